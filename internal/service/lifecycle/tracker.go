// Package lifecycle owns the build/run state machine: it answers readiness
// questions and applies state transitions driven by deploy and run
// submission outcomes, persisting each one through the store.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/fnforge/fnforge/internal/domain"
	"github.com/fnforge/fnforge/internal/service/deploy"
	"github.com/fnforge/fnforge/internal/store"
)

// Tracker mediates function and run state.
type Tracker struct {
	backend   deploy.Backend
	functions store.FunctionStore
	runs      store.RunStore
	logger    *slog.Logger
}

// New creates a tracker. The stores may be nil when persistence is handled
// elsewhere; the backend is used only for the readiness probe.
func New(backend deploy.Backend, functions store.FunctionStore, runs store.RunStore, logger *slog.Logger) *Tracker {
	return &Tracker{backend: backend, functions: functions, runs: runs, logger: logger}
}

// IsDeployed reports whether the function has a usable container image. When
// the image is not yet resolved locally it probes the build backend once for
// enrichment and re-checks. The probe is deliberately non-fatal: any backend
// error downgrades to "not deployed" instead of failing the caller.
func (t *Tracker) IsDeployed(ctx context.Context, fn *domain.Function) bool {
	if fn.Spec.Image != "" {
		return true
	}

	_, patch, err := t.backend.BuilderStatus(ctx, fn, 0, false)
	if err != nil {
		t.logger.Debug("builder status probe failed, assuming not deployed",
			"function", fn.Meta.Name, "project", fn.Meta.Project, "error", err)
	} else {
		deploy.ApplyStatusPatch(fn, patch)
	}

	if fn.Spec.Image != "" {
		return true
	}
	return fn.State() == domain.StateReady
}

// SaveFunction persists the function after a deploy outcome mutated it.
func (t *Tracker) SaveFunction(ctx context.Context, fn *domain.Function) error {
	if t.functions == nil {
		return nil
	}
	return t.functions.SaveFunction(ctx, fn)
}

// TransitionRun moves a run to the given state and persists the status.
// Terminal states are sticky: a run that succeeded or errored rejects any
// further transition.
func (t *Tracker) TransitionRun(ctx context.Context, r *domain.Run, state domain.RunState, statusText string) error {
	if r.Status.State.Terminal() {
		return fmt.Errorf("run %s/%s is already %s", r.Meta.Project, r.Meta.UID, r.Status.State)
	}
	if !validRunTransition(r.Status.State, state) {
		return fmt.Errorf("invalid run transition %q -> %q", r.Status.State, state)
	}

	r.Status.State = state
	if statusText != "" {
		r.Status.StatusText = statusText
	}
	r.Status.UpdatedAt = time.Now().UTC()

	if t.runs == nil {
		return nil
	}
	if err := t.runs.UpdateRunStatus(ctx, r.Meta.Project, r.Meta.UID, r.Status); err != nil {
		return fmt.Errorf("persist run status: %w", err)
	}
	return nil
}

func validRunTransition(from, to domain.RunState) bool {
	switch from {
	case "", domain.RunStatePending:
		return to == domain.RunStateRunning || to == domain.RunStateError || to == domain.RunStatePending
	case domain.RunStateRunning:
		return to == domain.RunStateSucceeded || to == domain.RunStateError || to == domain.RunStateRunning
	default:
		return false
	}
}
