package domain

import (
	"os"
	"path/filepath"
	"testing"
)

const trainerYAML = `metadata:
  name: trainer
spec:
  build:
    base_image: python:3.9
    requirements:
      - pandas
    source: git://github.com/acme/models#main
  workdir: ./sub
`

func writeSpec(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFunctionDefaultsProject(t *testing.T) {
	path := writeSpec(t, t.TempDir(), "trainer.yaml", trainerYAML)

	fn, err := LoadFunction(path)
	if err != nil {
		t.Fatalf("LoadFunction: %v", err)
	}
	if fn.Meta.Project != "default" {
		t.Fatalf("project = %q, want default", fn.Meta.Project)
	}
	if fn.Spec.Build.BaseImage != "python:3.9" {
		t.Fatalf("base image = %q", fn.Spec.Build.BaseImage)
	}
	if len(fn.Spec.Build.Requirements) != 1 || fn.Spec.Build.Requirements[0] != "pandas" {
		t.Fatalf("requirements = %v", fn.Spec.Build.Requirements)
	}
}

func TestLoadFunctionRequiresName(t *testing.T) {
	path := writeSpec(t, t.TempDir(), "bad.yaml", "metadata: {}\n")
	if _, err := LoadFunction(path); err == nil {
		t.Fatalf("expected error for missing name")
	}
}

func TestLoadFunctionsDirSkipsNonYAML(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "trainer.yaml", trainerYAML)
	writeSpec(t, dir, "notes.txt", "ignore me")

	functions, err := LoadFunctionsDir(dir)
	if err != nil {
		t.Fatalf("LoadFunctionsDir: %v", err)
	}
	if len(functions) != 1 || functions[0].Meta.Name != "trainer" {
		t.Fatalf("unexpected functions %v", functions)
	}
}
