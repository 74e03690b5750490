package deploy

import (
	"context"
	"errors"

	"github.com/fnforge/fnforge/internal/domain"
)

// ErrBuildNotFound indicates the build backend has no record of the
// function or its build.
var ErrBuildNotFound = errors.New("deploy: build not found")

// ErrDeployFailed indicates a watched deploy ended without a ready image.
var ErrDeployFailed = errors.New("deploy: build did not reach ready state")

// BuildOptions forwards deploy-time choices to the build backend.
type BuildOptions struct {
	// WithSDK bakes the fnforge SDK into the image.
	WithSDK bool
	// SDKVersion pins the SDK version; empty means current.
	SDKVersion string
	// SkipDeployed reuses an existing image when one is already built.
	SkipDeployed bool
	// BuilderEnv is passed to the builder environment (config/credentials).
	BuilderEnv map[string]string
}

// BuildResult is the backend's response to a build submission. The resolved
// spec fields are written back into the function even when the build is
// still in flight.
type BuildResult struct {
	Ready          bool
	State          domain.BuildState
	Image          string
	BaseImage      string
	CloneTargetDir string
	TargetImage    string
	BuildPod       string
}

// StatusPatch is the state delta returned by a builder status fetch. The
// caller applies it explicitly; the fetch itself never mutates the function.
type StatusPatch struct {
	State    domain.BuildState
	Image    string
	BuildPod string
}

// Backend is the remote build service consumed by the coordinator.
type Backend interface {
	// RemoteBuild submits (or re-submits) the function's build.
	RemoteBuild(ctx context.Context, fn *domain.Function, opts BuildOptions) (BuildResult, error)

	// BuilderStatus returns build log bytes starting at offset (empty when
	// wantLogs is false) plus the current state patch. It fails with
	// ErrBuildNotFound when no build record exists.
	BuilderStatus(ctx context.Context, fn *domain.Function, offset int64, wantLogs bool) ([]byte, StatusPatch, error)
}

// ApplyStatusPatch writes a status fetch result into the function.
func ApplyStatusPatch(fn *domain.Function, patch StatusPatch) {
	if patch.State != "" {
		fn.Status.State = patch.State
	}
	if patch.Image != "" {
		fn.Spec.Image = patch.Image
	}
	if patch.BuildPod != "" {
		fn.Status.BuildPod = patch.BuildPod
	}
}
