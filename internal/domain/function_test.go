package domain

import (
	"reflect"
	"testing"
)

func TestWithSourceArchivePromotesBaseImage(t *testing.T) {
	fn := &Function{
		Meta: Meta{Name: "trainer", Project: "iris"},
		Spec: FunctionSpec{Build: BuildSpec{BaseImage: "fnforge/base:1.0"}},
	}
	fn.WithSourceArchive(SourceArchive{
		Source:        "git://github.com/acme/models#main",
		PullAtRuntime: true,
		TargetDir:     "/repo",
		Handler:       "train",
	})

	if fn.Spec.Image != "fnforge/base:1.0" {
		t.Fatalf("expected base image promotion, got %q", fn.Spec.Image)
	}
	if !fn.Spec.Build.LoadSourceOnRun {
		t.Fatalf("expected load-on-run flag")
	}
	if fn.Spec.CloneTargetDir != "/repo" || fn.Spec.DefaultHandler != "train" {
		t.Fatalf("unexpected spec %+v", fn.Spec)
	}
}

func TestWithSourceArchiveBuildTimeClearsImage(t *testing.T) {
	fn := &Function{
		Meta: Meta{Name: "trainer", Project: "iris"},
		Spec: FunctionSpec{Image: "python:3.9"},
	}
	fn.WithSourceArchive(SourceArchive{Source: "https://example.com/code.tar.gz"})

	if fn.Spec.Image != "" {
		t.Fatalf("build-time source must clear the image, got %q", fn.Spec.Image)
	}
	if fn.Spec.Build.BaseImage != "python:3.9" {
		t.Fatalf("expected image demoted to base, got %q", fn.Spec.Build.BaseImage)
	}
}

func TestWithSourceArchiveRuntimePullKeepsExistingImage(t *testing.T) {
	fn := &Function{
		Meta: Meta{Name: "trainer", Project: "iris"},
		Spec: FunctionSpec{
			Image: "custom:1.0",
			Build: BuildSpec{BaseImage: "python:3.9"},
		},
	}
	fn.WithSourceArchive(SourceArchive{Source: "git://github.com/acme/models", PullAtRuntime: true})

	if fn.Spec.Image != "custom:1.0" {
		t.Fatalf("resolved image must be kept, got %q", fn.Spec.Image)
	}
}

func TestBuildConfigMergesUnique(t *testing.T) {
	fn := &Function{
		Meta: Meta{Name: "trainer", Project: "iris"},
		Spec: FunctionSpec{Build: BuildSpec{
			BaseImage:    "python:3.9",
			Commands:     []string{"apt-get update"},
			Requirements: []string{"pandas"},
		}},
	}
	fn.BuildConfig(BuildConfigUpdate{
		Commands:     []string{"apt-get update", "apt-get install -y gcc"},
		Requirements: []string{"numpy"},
	}, false)

	wantCommands := []string{"apt-get update", "apt-get install -y gcc"}
	if !reflect.DeepEqual(fn.Spec.Build.Commands, wantCommands) {
		t.Fatalf("commands = %v", fn.Spec.Build.Commands)
	}
	wantReqs := []string{"pandas", "numpy"}
	if !reflect.DeepEqual(fn.Spec.Build.Requirements, wantReqs) {
		t.Fatalf("requirements = %v", fn.Spec.Build.Requirements)
	}
}

func TestBuildConfigOverwriteReplaces(t *testing.T) {
	fn := &Function{
		Meta: Meta{Name: "trainer", Project: "iris"},
		Spec: FunctionSpec{Build: BuildSpec{BaseImage: "python:3.9", Commands: []string{"old"}}},
	}
	fn.BuildConfig(BuildConfigUpdate{Commands: []string{"new"}}, true)
	if !reflect.DeepEqual(fn.Spec.Build.Commands, []string{"new"}) {
		t.Fatalf("commands = %v", fn.Spec.Build.Commands)
	}
}

func TestBuildConfigEnforcesImageInvariant(t *testing.T) {
	fn := &Function{
		Meta: Meta{Name: "trainer", Project: "iris"},
		Spec: FunctionSpec{Image: "python:3.9"},
	}
	fn.BuildConfig(BuildConfigUpdate{Commands: []string{"pip install pandas"}}, false)

	if fn.Spec.Image != "" {
		t.Fatalf("image must be cleared when a build is required, got %q", fn.Spec.Image)
	}
	if fn.Spec.Build.BaseImage != "python:3.9" {
		t.Fatalf("base image = %q", fn.Spec.Build.BaseImage)
	}
}

func TestBuildRequired(t *testing.T) {
	cases := []struct {
		name  string
		build BuildSpec
		want  bool
	}{
		{"empty", BuildSpec{}, false},
		{"runtime source only", BuildSpec{Source: "git://x", LoadSourceOnRun: true}, false},
		{"build-time source", BuildSpec{Source: "git://x"}, true},
		{"commands", BuildSpec{Commands: []string{"make"}}, true},
		{"requirements", BuildSpec{Requirements: []string{"pandas"}}, true},
		{"extra lines", BuildSpec{Extra: "ENV A=b"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fn := &Function{Spec: FunctionSpec{Build: tc.build}}
			if got := fn.BuildRequired(); got != tc.want {
				t.Fatalf("BuildRequired() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFullImagePath(t *testing.T) {
	cases := []struct {
		name          string
		image         string
		registry      string
		clientVersion string
		want          string
	}{
		{"relative resolved against registry", "./func-iris-trainer:latest", "registry.local:5000", "", "registry.local:5000/func-iris-trainer:latest"},
		{"relative without registry kept", "./func-iris-trainer:latest", "", "", "./func-iris-trainer:latest"},
		{"official untagged pinned to client version", "fnforge/base", "", "1.4.2", "fnforge/base:1.4.2"},
		{"official tagged left alone", "fnforge/base:2.0", "", "1.4.2", "fnforge/base:2.0"},
		{"third-party untagged left alone", "python", "", "1.4.2", "python"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fn := &Function{Spec: FunctionSpec{Image: tc.image}}
			if got := fn.FullImagePath(tc.registry, tc.clientVersion); got != tc.want {
				t.Fatalf("FullImagePath() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIsOfficialImage(t *testing.T) {
	if !IsOfficialImage("fnforge/base:1.0") {
		t.Fatalf("namespace prefix should be official")
	}
	if !IsOfficialImage("registry.local:5000/fnforge/base") {
		t.Fatalf("registry-qualified namespace should be official")
	}
	if IsOfficialImage("python:3.9") {
		t.Fatalf("third-party image should not be official")
	}
}

func TestStateNormalizesEmpty(t *testing.T) {
	fn := &Function{}
	if fn.State() != StateUnbuilt {
		t.Fatalf("empty state should normalize to unbuilt, got %q", fn.State())
	}
}
