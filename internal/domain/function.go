package domain

import (
	"fmt"
	"path"
	"strings"

	corev1 "k8s.io/api/core/v1"
)

// Label keys attached to runs and pods.
const (
	LabelProject       = "fnforge.dev/project"
	LabelFunction      = "fnforge.dev/function"
	LabelRunUID        = "fnforge.dev/uid"
	LabelClientVersion = "fnforge.dev/client-version"
)

// OfficialImageNamespace is the registry namespace of images that already
// ship the fnforge SDK.
const OfficialImageNamespace = "fnforge/"

// BuildState tracks the image readiness of a function.
type BuildState string

const (
	StateUnbuilt BuildState = "unbuilt"
	StatePending BuildState = "pending"
	StateRunning BuildState = "running"
	StateReady   BuildState = "ready"
	StateError   BuildState = "error"
)

// Terminal reports whether no further build transitions are possible short
// of a new deploy.
func (s BuildState) Terminal() bool {
	return s == StateReady || s == StateError
}

// Active reports whether a build is in flight.
func (s BuildState) Active() bool {
	return s == StatePending || s == StateRunning
}

// Meta identifies a function within a project.
type Meta struct {
	Name    string            `json:"name" yaml:"name"`
	Project string            `json:"project" yaml:"project"`
	Labels  map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// BuildSpec describes how the function image is produced.
type BuildSpec struct {
	BaseImage       string   `json:"base_image,omitempty" yaml:"base_image,omitempty"`
	Image           string   `json:"image,omitempty" yaml:"image,omitempty"`
	Commands        []string `json:"commands,omitempty" yaml:"commands,omitempty"`
	Requirements    []string `json:"requirements,omitempty" yaml:"requirements,omitempty"`
	Extra           string   `json:"extra,omitempty" yaml:"extra,omitempty"`
	Source          string   `json:"source,omitempty" yaml:"source,omitempty"`
	LoadSourceOnRun bool     `json:"load_source_on_run,omitempty" yaml:"load_source_on_run,omitempty"`
	Secret          string   `json:"secret,omitempty" yaml:"secret,omitempty"`
	WithSDK         *bool    `json:"with_sdk,omitempty" yaml:"with_sdk,omitempty"`
	AutoBuild       bool     `json:"auto_build,omitempty" yaml:"auto_build,omitempty"`
}

// FunctionSpec is the deployable description of a compute function. The
// invariant maintained by the mutation helpers below: either Image is
// resolved or a build is pending, never both.
type FunctionSpec struct {
	Image           string                      `json:"image,omitempty" yaml:"image,omitempty"`
	Build           BuildSpec                   `json:"build,omitempty" yaml:"build,omitempty"`
	Workdir         string                      `json:"workdir,omitempty" yaml:"workdir,omitempty"`
	CloneTargetDir  string                      `json:"clone_target_dir,omitempty" yaml:"clone_target_dir,omitempty"`
	Env             []corev1.EnvVar             `json:"env,omitempty" yaml:"env,omitempty"`
	VolumeMounts    []corev1.VolumeMount        `json:"volume_mounts,omitempty" yaml:"volume_mounts,omitempty"`
	Volumes         []corev1.Volume             `json:"volumes,omitempty" yaml:"volumes,omitempty"`
	Resources       corev1.ResourceRequirements `json:"resources,omitempty" yaml:"resources,omitempty"`
	ImagePullPolicy string                      `json:"image_pull_policy,omitempty" yaml:"image_pull_policy,omitempty"`
	ImagePullSecret string                      `json:"image_pull_secret,omitempty" yaml:"image_pull_secret,omitempty"`
	ServiceAccount  string                      `json:"service_account,omitempty" yaml:"service_account,omitempty"`
	DefaultHandler  string                      `json:"default_handler,omitempty" yaml:"default_handler,omitempty"`
}

// FunctionStatus is mutated as build outcomes are observed.
type FunctionStatus struct {
	State    BuildState `json:"state,omitempty" yaml:"state,omitempty"`
	BuildPod string     `json:"build_pod,omitempty" yaml:"build_pod,omitempty"`
}

// Function is a user-defined compute function tracked by fnforge.
type Function struct {
	Meta   Meta           `json:"metadata" yaml:"metadata"`
	Spec   FunctionSpec   `json:"spec" yaml:"spec"`
	Status FunctionStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// Key returns the store key for the function.
func (f *Function) Key() string {
	return f.Meta.Project + "/" + f.Meta.Name
}

// State normalizes the build state; an empty status means unbuilt.
func (f *Function) State() BuildState {
	if f.Status.State == "" {
		return StateUnbuilt
	}
	return f.Status.State
}

// SourceArchive configures code loading from a git/tar/zip archive.
type SourceArchive struct {
	// Source is a git URL (optionally with a #ref fragment) or an archive URL.
	Source string
	// Workdir is relative to the archive root, or absolute to the image root.
	Workdir string
	// PullAtRuntime loads the archive in the pod at run time instead of
	// baking it into the image.
	PullAtRuntime bool
	// TargetDir is where the source is cloned or extracted.
	TargetDir string
	// Handler overrides the default function handler.
	Handler string
}

// WithSourceArchive configures the function to load code from an archive,
// either at build time or at run time. When the base image alone is enough
// (runtime pull, no build commands) it is promoted to the run image so no
// build is required; a build-time pull clears the image to force a rebuild.
func (f *Function) WithSourceArchive(archive SourceArchive) {
	f.Spec.Build.Source = archive.Source
	if archive.Handler != "" {
		f.Spec.DefaultHandler = archive.Handler
	}
	if archive.Workdir != "" {
		f.Spec.Workdir = archive.Workdir
	}
	if archive.TargetDir != "" {
		f.Spec.CloneTargetDir = archive.TargetDir
	}
	f.Spec.Build.LoadSourceOnRun = archive.PullAtRuntime

	build := &f.Spec.Build
	switch {
	case build.BaseImage != "" && len(build.Commands) == 0 && archive.PullAtRuntime && f.Spec.Image == "":
		f.Spec.Image = build.BaseImage
	case !archive.PullAtRuntime:
		// clear the image so the build will not be skipped
		if build.BaseImage == "" {
			build.BaseImage = f.Spec.Image
		}
		f.Spec.Image = ""
	}
}

// BuildConfigUpdate carries new builder configuration for BuildConfig.
type BuildConfigUpdate struct {
	Image           string
	BaseImage       string
	Commands        []string
	Requirements    []string
	Secret          string
	Source          string
	Extra           string
	LoadSourceOnRun *bool
	WithSDK         *bool
	AutoBuild       *bool
}

// BuildConfig applies builder configuration for the deploy operation. With
// overwrite=false, commands and requirements are merged with the existing
// lists; otherwise the new values replace them.
func (f *Function) BuildConfig(update BuildConfigUpdate, overwrite bool) {
	build := &f.Spec.Build
	if update.Image != "" {
		build.Image = update.Image
	}
	if update.BaseImage != "" {
		build.BaseImage = update.BaseImage
	}
	if update.Secret != "" {
		build.Secret = update.Secret
	}
	if update.Source != "" {
		build.Source = update.Source
	}
	if update.Extra != "" {
		build.Extra = update.Extra
	}
	if update.LoadSourceOnRun != nil {
		build.LoadSourceOnRun = *update.LoadSourceOnRun
	}
	if update.WithSDK != nil {
		build.WithSDK = update.WithSDK
	}
	if update.AutoBuild != nil {
		build.AutoBuild = *update.AutoBuild
	}
	if overwrite {
		build.Commands = update.Commands
		build.Requirements = update.Requirements
	} else {
		build.Commands = mergeUnique(build.Commands, update.Commands)
		build.Requirements = mergeUnique(build.Requirements, update.Requirements)
	}
	f.PrepareImageForDeploy()
}

// PrepareImageForDeploy enforces the image/build invariant: when a build is
// required, the current image becomes the base image and the resolved image
// is cleared until a ready build is observed.
func (f *Function) PrepareImageForDeploy() {
	build := &f.Spec.Build
	if !f.BuildRequired() {
		return
	}
	if build.BaseImage == "" {
		build.BaseImage = f.Spec.Image
	}
	f.Spec.Image = ""
}

// BuildRequired reports whether the spec carries work that only an image
// build can satisfy.
func (f *Function) BuildRequired() bool {
	build := &f.Spec.Build
	if build.Source != "" && !build.LoadSourceOnRun {
		return true
	}
	return len(build.Commands) > 0 || len(build.Requirements) > 0 || build.Extra != ""
}

// FullImagePath resolves the image reference used for pod submission. A
// leading "." is replaced with the configured registry; official images
// without an explicit tag are pinned to the client version when one is
// supplied via run labels.
func (f *Function) FullImagePath(registry, clientVersion string) string {
	image := f.Spec.Image
	if strings.HasPrefix(image, ".") && registry != "" {
		image = path.Join(strings.TrimSuffix(registry, "/"), strings.TrimPrefix(image, "."))
	}
	if clientVersion != "" && IsOfficialImage(image) && !strings.Contains(image, ":") {
		image = fmt.Sprintf("%s:%s", image, clientVersion)
	}
	return image
}

// IsOfficialImage reports whether the image lives in the fnforge namespace
// and therefore already contains the SDK.
func IsOfficialImage(image string) bool {
	return strings.HasPrefix(image, OfficialImageNamespace) ||
		strings.Contains(image, "/"+OfficialImageNamespace)
}

func mergeUnique(existing, extra []string) []string {
	if len(extra) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing))
	merged := append([]string(nil), existing...)
	for _, value := range existing {
		seen[value] = struct{}{}
	}
	for _, value := range extra {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		merged = append(merged, value)
	}
	return merged
}
