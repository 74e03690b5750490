// Package deploy drives the image build cycle of a function: it submits the
// build to the backend, watches it to a terminal state while streaming
// incremental logs, and records the outcome on the function.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"log/slog"

	"github.com/fnforge/fnforge/internal/domain"
)

const defaultPollInterval = 2 * time.Second

// Service coordinates remote image builds.
type Service struct {
	backend      Backend
	logger       *slog.Logger
	out          io.Writer
	pollInterval time.Duration
}

// New creates a build coordinator. Build logs are streamed to out (stdout
// when nil); pollInterval falls back to 2 seconds when unset.
func New(backend Backend, logger *slog.Logger, out io.Writer, pollInterval time.Duration) Service {
	if out == nil {
		out = os.Stdout
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return Service{
		backend:      backend,
		logger:       logger,
		out:          out,
		pollInterval: pollInterval,
	}
}

// Options control a single deploy call.
type Options struct {
	// Watch blocks until the build reaches a terminal state.
	Watch bool
	// WithSDK overrides SDK injection; when nil the function spec decides,
	// and failing that it is inferred from the base image namespace.
	WithSDK *bool
	// SDKVersion pins which SDK version to include.
	SDKVersion string
	// SkipDeployed reuses an already-built image.
	SkipDeployed bool
	// InPipeline marks the deploy as part of an orchestrated pipeline step.
	InPipeline bool
	// BuilderEnv is forwarded to the builder (e.g. git credentials).
	BuilderEnv map[string]string
	// ShowOnFailure suppresses build logs unless the build fails.
	ShowOnFailure bool
}

// Deploy builds the function container image and reports whether the
// function ended up ready. With Watch set, a build that does not reach
// ready is a deploy failure.
func (s Service) Deploy(ctx context.Context, fn *domain.Function, opts Options) (bool, error) {
	build := &fn.Spec.Build

	withSDK := false
	switch {
	case opts.WithSDK != nil:
		withSDK = *opts.WithSDK
	case build.WithSDK != nil:
		withSDK = *build.WithSDK
	default:
		withSDK = build.BaseImage != "" && !domain.IsOfficialImage(build.BaseImage)
	}

	if build.Source == "" && len(build.Commands) == 0 && len(build.Requirements) == 0 &&
		build.Extra == "" && withSDK {
		s.logger.Info("running build to add the fnforge SDK, set with_sdk=false to skip if it is already in the image",
			"function", fn.Meta.Name, "project", fn.Meta.Project)
	}

	fn.Status.State = domain.StateUnbuilt
	if build.BaseImage != "" {
		// clear the image so the build will not be skipped
		fn.Spec.Image = ""
	}

	watch := opts.Watch
	if opts.InPipeline {
		// A pipeline step pod exits as soon as this call returns; without a
		// watch the remote build would outlive the step and the pipeline
		// would see a completed step with no image.
		watch = true
	}

	result, err := s.backend.RemoteBuild(ctx, fn, BuildOptions{
		WithSDK:      withSDK,
		SDKVersion:   opts.SDKVersion,
		SkipDeployed: opts.SkipDeployed,
		BuilderEnv:   opts.BuilderEnv,
	})
	if err != nil {
		return false, fmt.Errorf("submit remote build: %w", err)
	}
	s.applyBuildResult(fn, result)

	ready := result.Ready
	if !ready {
		s.logger.Info("started building image",
			"image", result.TargetImage, "function", fn.Meta.Name, "project", fn.Meta.Project)
	}

	if watch && !ready {
		state, err := s.watchBuild(ctx, fn, opts.ShowOnFailure)
		if err != nil {
			return false, err
		}
		fn.Status.State = state
		ready = state == domain.StateReady
	}

	if watch && !ready {
		return false, ErrDeployFailed
	}
	return ready, nil
}

func (s Service) applyBuildResult(fn *domain.Function, result BuildResult) {
	fn.Status.State = result.State
	fn.Status.BuildPod = result.BuildPod
	fn.Spec.Image = result.Image
	if fn.Spec.Build.BaseImage == "" {
		fn.Spec.Build.BaseImage = result.BaseImage
	}
	if result.CloneTargetDir != "" {
		// enriched by the backend when it resolved the source target
		fn.Spec.CloneTargetDir = result.CloneTargetDir
	}
}

// watchBuild polls the builder until the build leaves the pending/running
// states, printing incremental logs by byte offset. Polling errors are not
// retried; they abort the watch.
func (s Service) watchBuild(ctx context.Context, fn *domain.Function, showOnFailure bool) (domain.BuildState, error) {
	text, patch, err := s.backend.BuilderStatus(ctx, fn, 0, true)
	if err != nil {
		if errors.Is(err, ErrBuildNotFound) {
			return "", fmt.Errorf("function or build process not found: %w", err)
		}
		return "", err
	}
	ApplyStatusPatch(fn, patch)
	s.printLog(fn, text, showOnFailure)
	offset := int64(len(text))

	for fn.State().Active() {
		if err := sleepCtx(ctx, s.pollInterval); err != nil {
			return fn.State(), err
		}
		var chunk []byte
		if showOnFailure {
			_, patch, err = s.backend.BuilderStatus(ctx, fn, 0, false)
			if err != nil {
				return fn.State(), err
			}
			ApplyStatusPatch(fn, patch)
			if fn.State() == domain.StateError {
				// re-read the complete log so the full failure trace is shown
				chunk, patch, err = s.backend.BuilderStatus(ctx, fn, 0, true)
				if err != nil {
					return fn.State(), err
				}
				ApplyStatusPatch(fn, patch)
				offset = 0
			}
		} else {
			chunk, patch, err = s.backend.BuilderStatus(ctx, fn, offset, true)
			if err != nil {
				return fn.State(), err
			}
			ApplyStatusPatch(fn, patch)
		}
		s.printLog(fn, chunk, showOnFailure)
		offset += int64(len(chunk))
	}

	fmt.Fprintln(s.out)
	return fn.State(), nil
}

func (s Service) printLog(fn *domain.Function, text []byte, showOnFailure bool) {
	if len(text) == 0 {
		return
	}
	if showOnFailure && fn.State() != domain.StateError {
		return
	}
	_, _ = s.out.Write(text)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
