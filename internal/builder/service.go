package builder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fnforge/fnforge/internal/docker"
	"github.com/fnforge/fnforge/internal/domain"
	"github.com/fnforge/fnforge/internal/service/deploy"
	"github.com/fnforge/fnforge/internal/source"
	"github.com/fnforge/fnforge/internal/workspace"
	"github.com/fnforge/fnforge/pkg/config"
)

// ImageBuilder abstracts the container engine used for image builds.
// *docker.Client satisfies it.
type ImageBuilder interface {
	BuildImage(ctx context.Context, dir, tag string, buildArgs map[string]*string, onOutput docker.OutputCallback) error
	PushImage(ctx context.Context, tag string, onOutput docker.OutputCallback) error
}

// Service builds function images in-process and serves build status and
// logs to the deploy coordinator.
type Service struct {
	images        ImageBuilder
	workspace     *workspace.Manager
	logger        *slog.Logger
	imageRegistry string
	sdkImage      string
	buildTimeout  time.Duration
	gitTimeout    time.Duration
	jobs          *registry
}

// New creates a build service.
func New(images ImageBuilder, ws *workspace.Manager, logger *slog.Logger, cfg config.ServiceConfig) *Service {
	buildTimeout := cfg.BuildTimeout
	if buildTimeout <= 0 {
		buildTimeout = 30 * time.Minute
	}
	gitTimeout := cfg.GitTimeout
	if gitTimeout <= 0 {
		gitTimeout = 2 * time.Minute
	}
	return &Service{
		images:        images,
		workspace:     ws,
		logger:        logger,
		imageRegistry: cfg.Registry,
		sdkImage:      cfg.SDKImage,
		buildTimeout:  buildTimeout,
		gitTimeout:    gitTimeout,
		jobs:          newRegistry(),
	}
}

// RemoteBuild starts a build for the function unless the current image can
// be reused. Builds run asynchronously; progress is served via
// BuilderStatus.
func (s *Service) RemoteBuild(ctx context.Context, fn *domain.Function, opts deploy.BuildOptions) (deploy.BuildResult, error) {
	if opts.SkipDeployed && fn.Spec.Image != "" && fn.State() == domain.StateReady {
		s.logger.Info("reusing deployed image", "function", fn.Key(), "image", fn.Spec.Image)
		return deploy.BuildResult{Ready: true, State: domain.StateReady, Image: fn.Spec.Image}, nil
	}

	if !fn.BuildRequired() && !opts.WithSDK {
		base := fn.Spec.Build.BaseImage
		if base == "" {
			base = fn.Spec.Image
		}
		if base == "" {
			return deploy.BuildResult{}, fmt.Errorf("function %s has neither an image nor build instructions", fn.Key())
		}
		return deploy.BuildResult{Ready: true, State: domain.StateReady, Image: base, BaseImage: base}, nil
	}

	target := s.targetImage(fn)
	jobID := fmt.Sprintf("build-%s-%s", fn.Meta.Name, uuid.NewString()[:8])
	j := s.jobs.create(fn.Key(), jobID)
	s.logger.Info("build submitted", "function", fn.Key(), "job", jobID, "target", target)

	snapshot := *fn
	go s.runBuild(&snapshot, opts, target, jobID, j)

	return deploy.BuildResult{
		State:          domain.StatePending,
		BaseImage:      fn.Spec.Build.BaseImage,
		CloneTargetDir: fn.Spec.CloneTargetDir,
		TargetImage:    target,
		BuildPod:       jobID,
	}, nil
}

// BuilderStatus serves the build state and log bytes from offset onwards.
func (s *Service) BuilderStatus(ctx context.Context, fn *domain.Function, offset int64, wantLogs bool) ([]byte, deploy.StatusPatch, error) {
	j, ok := s.jobs.get(fn.Key())
	if !ok {
		return nil, deploy.StatusPatch{}, deploy.ErrBuildNotFound
	}
	chunk, state, image, pod := j.snapshot(offset, wantLogs)
	return chunk, deploy.StatusPatch{State: state, Image: image, BuildPod: pod}, nil
}

// targetImage picks the image reference the build produces. A leading "."
// defers registry resolution to submission time.
func (s *Service) targetImage(fn *domain.Function) string {
	if fn.Spec.Build.Image != "" {
		return fn.Spec.Build.Image
	}
	return fmt.Sprintf("./func-%s-%s:latest", fn.Meta.Project, fn.Meta.Name)
}

// resolveTarget expands a "."-prefixed target against the configured
// registry for the actual docker tag.
func (s *Service) resolveTarget(target string) string {
	if strings.HasPrefix(target, ".") && s.imageRegistry != "" {
		return path.Join(strings.TrimSuffix(s.imageRegistry, "/"), strings.TrimPrefix(target, "."))
	}
	return target
}

func (s *Service) runBuild(fn *domain.Function, opts deploy.BuildOptions, target, jobID string, j *job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.buildTimeout)
	defer cancel()

	j.setState(domain.StateRunning)
	j.appendLine("preparing workspace")

	dir, err := s.workspace.Prepare(jobID)
	if err != nil {
		s.fail(fn, j, err)
		return
	}
	defer func() {
		if err := s.workspace.CleanupByID(jobID); err != nil {
			s.logger.Error("workspace cleanup failed", "job", jobID, "error", err)
		}
	}()

	build := fn.Spec.Build
	copySource := build.Source != "" && !build.LoadSourceOnRun
	if copySource {
		j.appendLine(fmt.Sprintf("fetching source %s", build.Source))
		srcDir := filepath.Join(dir, sourceCopyDir)
		if err := os.MkdirAll(srcDir, 0o755); err != nil {
			s.fail(fn, j, fmt.Errorf("create source directory: %w", err))
			return
		}
		fetchCtx, cancelFetch := context.WithTimeout(ctx, s.gitTimeout)
		err := source.Fetch(fetchCtx, build.Source, srcDir)
		cancelFetch()
		if err != nil {
			s.fail(fn, j, err)
			return
		}
		j.appendLine("source fetched")
	}

	dockerfile, err := renderDockerfile(fn, renderOptions{
		withSDK:     opts.WithSDK,
		sdkVersion:  opts.SDKVersion,
		copySource:  copySource,
		targetDir:   fn.Spec.CloneTargetDir,
		defaultBase: s.sdkImage,
	})
	if err != nil {
		s.fail(fn, j, err)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte(dockerfile), 0o644); err != nil {
		s.fail(fn, j, fmt.Errorf("write dockerfile: %w", err))
		return
	}

	resolved := s.resolveTarget(target)
	buildArgs := make(map[string]*string, len(opts.BuilderEnv))
	for k, v := range opts.BuilderEnv {
		value := v
		buildArgs[k] = &value
	}

	j.appendLine(fmt.Sprintf("building image %s", resolved))
	if err := s.images.BuildImage(ctx, dir, resolved, buildArgs, j.appendLine); err != nil {
		s.fail(fn, j, err)
		return
	}

	if s.imageRegistry != "" {
		j.appendLine(fmt.Sprintf("pushing image %s", resolved))
		if err := s.images.PushImage(ctx, resolved, j.appendLine); err != nil {
			s.fail(fn, j, err)
			return
		}
	}

	j.appendLine("build completed")
	j.finish(domain.StateReady, target)
	s.logger.Info("build completed", "function", fn.Key(), "image", target)
}

func (s *Service) fail(fn *domain.Function, j *job, err error) {
	j.appendLine(fmt.Sprintf("build failed: %v", err))
	j.finish(domain.StateError, "")
	s.logger.Error("build failed", "function", fn.Key(), "error", err)
}
