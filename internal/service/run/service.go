// Package run submits function runs to the pod execution backend. A submit
// call returns as soon as the pod is accepted; completion is observed by an
// external tracker.
package run

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	corev1 "k8s.io/api/core/v1"

	"github.com/fnforge/fnforge/internal/domain"
	"github.com/fnforge/fnforge/internal/podspec"
)

// PodBackend creates execution pods on the cluster.
type PodBackend interface {
	CreatePod(ctx context.Context, pod *corev1.Pod) (name, namespace string, err error)
}

// SubmissionError wraps a backend rejection (validation, quota, duplicate)
// and carries the backend's message.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("run submission rejected: %s", e.Message)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Submission is the backend-assigned identity of an accepted run.
type Submission struct {
	PodName   string `json:"pod_name"`
	Namespace string `json:"namespace"`
}

// Service builds and submits execution pods.
type Service struct {
	pods     PodBackend
	logger   *slog.Logger
	registry string
}

// New creates a run submitter. registry resolves relative image references.
func New(pods PodBackend, logger *slog.Logger, registry string) Service {
	return Service{pods: pods, logger: logger, registry: registry}
}

// Submit builds the execution pod for the run and creates it on the backend.
// On success the run status transitions to running with the assigned pod
// identity; the call does not wait for the pod to finish.
func (s Service) Submit(ctx context.Context, fn *domain.Function, r *domain.Run) (Submission, error) {
	command, args, extraEnv := resolveCmdArgs(fn, r)
	workdir := podspec.ResolveWorkdir(&fn.Spec)
	image := fn.FullImagePath(s.registry, r.ClientVersion())

	pod := podspec.Build(image, fn, r, extraEnv, command, args, workdir)
	name, namespace, err := s.pods.CreatePod(ctx, pod)
	if err != nil {
		return Submission{}, &SubmissionError{Message: err.Error(), Err: err}
	}

	text := fmt.Sprintf("Job is running in the background, pod: %s", name)
	s.logger.Info(text, "project", r.Meta.Project, "run_uid", r.Meta.UID, "namespace", namespace)

	now := time.Now().UTC()
	r.Status.State = domain.RunStateRunning
	r.Status.StatusText = text
	r.Status.PodName = name
	r.Status.Namespace = namespace
	r.Status.StartedAt = now
	r.Status.UpdatedAt = now

	return Submission{PodName: name, Namespace: namespace}, nil
}

// resolveCmdArgs derives the container command, args and the injected
// environment from the run request. Injected entries go before the
// function-declared ones; the workdir and source are forwarded as env vars
// when their resolution is deferred to run time.
func resolveCmdArgs(fn *domain.Function, r *domain.Run) (string, []string, []corev1.EnvVar) {
	extraEnv := []corev1.EnvVar{
		{Name: "FNFORGE_PROJECT", Value: r.Meta.Project},
		{Name: "FNFORGE_RUN_NAME", Value: r.Meta.Name},
		{Name: "FNFORGE_RUN_UID", Value: r.Meta.UID},
	}
	if r.Spec.OutputPath != "" {
		extraEnv = append(extraEnv, corev1.EnvVar{Name: "FNFORGE_OUTPUT_PATH", Value: r.Spec.OutputPath})
	}
	handler := r.Spec.Handler
	if handler == "" {
		handler = fn.Spec.DefaultHandler
	}
	if handler != "" {
		extraEnv = append(extraEnv, corev1.EnvVar{Name: "FNFORGE_HANDLER", Value: handler})
	}
	if fn.Spec.Build.Source != "" && fn.Spec.Build.LoadSourceOnRun {
		extraEnv = append(extraEnv, corev1.EnvVar{Name: "FNFORGE_SOURCE", Value: fn.Spec.Build.Source})
		if fn.Spec.CloneTargetDir != "" {
			extraEnv = append(extraEnv, corev1.EnvVar{Name: "FNFORGE_TARGET_DIR", Value: fn.Spec.CloneTargetDir})
		}
		if fn.Spec.Workdir != "" {
			// resolved in the pod after the source is materialized
			extraEnv = append(extraEnv, corev1.EnvVar{Name: "FNFORGE_WORKDIR", Value: fn.Spec.Workdir})
		}
	}
	extraEnv = append(extraEnv, r.Spec.Env...)

	return r.Spec.Command, r.Spec.Args, extraEnv
}
