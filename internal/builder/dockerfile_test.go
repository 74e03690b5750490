package builder

import (
	"strings"
	"testing"

	"github.com/fnforge/fnforge/internal/domain"
)

func TestRenderDockerfileSections(t *testing.T) {
	fn := &domain.Function{
		Meta: domain.Meta{Name: "trainer", Project: "iris"},
		Spec: domain.FunctionSpec{
			CloneTargetDir: "/opt/app",
			Build: domain.BuildSpec{
				BaseImage:    "python:3.9",
				Requirements: []string{"pandas", "scikit-learn>=1.0"},
				Commands:     []string{"apt-get update", "apt-get install -y gcc"},
				Extra:        "ENV MODE=batch",
			},
		},
	}

	out, err := renderDockerfile(fn, renderOptions{withSDK: true, sdkVersion: "1.4.2", copySource: true, targetDir: fn.Spec.CloneTargetDir})
	if err != nil {
		t.Fatalf("renderDockerfile: %v", err)
	}

	want := []string{
		"FROM python:3.9",
		`RUN python -m pip install "pandas" "scikit-learn>=1.0"`,
		`RUN python -m pip install "fnforge==1.4.2"`,
		"RUN apt-get update",
		"RUN apt-get install -y gcc",
		"COPY ./_source /opt/app",
		"WORKDIR /opt/app",
		"ENV MODE=batch",
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), out)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestRenderDockerfileFallsBackToResolvedImage(t *testing.T) {
	fn := &domain.Function{
		Meta: domain.Meta{Name: "scorer", Project: "iris"},
		Spec: domain.FunctionSpec{
			Image: "python:3.11",
			Build: domain.BuildSpec{Commands: []string{"pip install lightgbm"}},
		},
	}
	out, err := renderDockerfile(fn, renderOptions{})
	if err != nil {
		t.Fatalf("renderDockerfile: %v", err)
	}
	if !strings.HasPrefix(out, "FROM python:3.11\n") {
		t.Fatalf("expected resolved image as base:\n%s", out)
	}
}

func TestRenderDockerfileDefaultBase(t *testing.T) {
	fn := &domain.Function{
		Meta: domain.Meta{Name: "scorer", Project: "iris"},
		Spec: domain.FunctionSpec{Build: domain.BuildSpec{Commands: []string{"pip install lightgbm"}}},
	}
	out, err := renderDockerfile(fn, renderOptions{defaultBase: "fnforge/base:1.4"})
	if err != nil {
		t.Fatalf("renderDockerfile: %v", err)
	}
	if !strings.HasPrefix(out, "FROM fnforge/base:1.4\n") {
		t.Fatalf("expected configured default base:\n%s", out)
	}
}

func TestRenderDockerfileRequiresBase(t *testing.T) {
	fn := &domain.Function{Meta: domain.Meta{Name: "empty", Project: "iris"}}
	if _, err := renderDockerfile(fn, renderOptions{}); err == nil {
		t.Fatalf("expected error for missing base image")
	}
}

func TestRenderDockerfileUnpinnedSDK(t *testing.T) {
	fn := &domain.Function{
		Meta: domain.Meta{Name: "trainer", Project: "iris"},
		Spec: domain.FunctionSpec{Build: domain.BuildSpec{BaseImage: "python:3.9"}},
	}
	out, err := renderDockerfile(fn, renderOptions{withSDK: true})
	if err != nil {
		t.Fatalf("renderDockerfile: %v", err)
	}
	if !strings.Contains(out, `RUN python -m pip install "fnforge"`) {
		t.Fatalf("expected unpinned SDK install:\n%s", out)
	}
}
