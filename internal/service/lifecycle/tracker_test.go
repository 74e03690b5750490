package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/fnforge/fnforge/internal/domain"
	"github.com/fnforge/fnforge/internal/service/deploy"
)

type probeBackend struct {
	patch  deploy.StatusPatch
	err    error
	probes int
}

func (b *probeBackend) RemoteBuild(context.Context, *domain.Function, deploy.BuildOptions) (deploy.BuildResult, error) {
	return deploy.BuildResult{}, errors.New("not used")
}

func (b *probeBackend) BuilderStatus(context.Context, *domain.Function, int64, bool) ([]byte, deploy.StatusPatch, error) {
	b.probes++
	if b.err != nil {
		return nil, deploy.StatusPatch{}, b.err
	}
	return nil, b.patch, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestIsDeployedWithResolvedImage(t *testing.T) {
	backend := &probeBackend{}
	tracker := New(backend, nil, nil, testLogger())
	fn := &domain.Function{Spec: domain.FunctionSpec{Image: "fnforge/model:latest"}}

	if !tracker.IsDeployed(context.Background(), fn) {
		t.Fatalf("expected deployed with resolved image")
	}
	if backend.probes != 0 {
		t.Fatalf("resolved image must not trigger a probe, got %d", backend.probes)
	}
}

func TestIsDeployedEnrichesFromBackend(t *testing.T) {
	backend := &probeBackend{patch: deploy.StatusPatch{State: domain.StateReady, Image: "registry/model:latest"}}
	tracker := New(backend, nil, nil, testLogger())
	fn := &domain.Function{}

	if !tracker.IsDeployed(context.Background(), fn) {
		t.Fatalf("expected deployed after enrichment")
	}
	if fn.Spec.Image != "registry/model:latest" {
		t.Fatalf("expected image enrichment, got %q", fn.Spec.Image)
	}

	// the second call answers from the enriched image without further probes
	if !tracker.IsDeployed(context.Background(), fn) {
		t.Fatalf("expected deployed on repeat call")
	}
	if backend.probes != 1 {
		t.Fatalf("expected a single enrichment probe, got %d", backend.probes)
	}
}

func TestIsDeployedSwallowsProbeErrors(t *testing.T) {
	backend := &probeBackend{err: errors.New("backend unreachable")}
	tracker := New(backend, nil, nil, testLogger())
	fn := &domain.Function{}

	if tracker.IsDeployed(context.Background(), fn) {
		t.Fatalf("expected not deployed when the probe fails")
	}
	if fn.Status.State != "" {
		t.Fatalf("failed probe must not mutate state, got %q", fn.Status.State)
	}
}

func TestIsDeployedReadyStateWithoutImage(t *testing.T) {
	backend := &probeBackend{patch: deploy.StatusPatch{State: domain.StateReady}}
	tracker := New(backend, nil, nil, testLogger())
	fn := &domain.Function{}

	if !tracker.IsDeployed(context.Background(), fn) {
		t.Fatalf("expected ready state to count as deployed")
	}
}

func TestTransitionRunTerminalIsSticky(t *testing.T) {
	tracker := New(&probeBackend{}, nil, nil, testLogger())
	r := &domain.Run{Meta: domain.RunMeta{Project: "iris", UID: "u1"}}
	r.Status.State = domain.RunStateSucceeded

	if err := tracker.TransitionRun(context.Background(), r, domain.RunStateError, ""); err == nil {
		t.Fatalf("expected terminal state to reject transitions")
	}
}

func TestTransitionRunValidFlow(t *testing.T) {
	tracker := New(&probeBackend{}, nil, nil, testLogger())
	r := &domain.Run{Meta: domain.RunMeta{Project: "iris", UID: "u1"}}

	for _, state := range []domain.RunState{domain.RunStateRunning, domain.RunStateSucceeded} {
		if err := tracker.TransitionRun(context.Background(), r, state, "step"); err != nil {
			t.Fatalf("transition to %q failed: %v", state, err)
		}
	}
	if r.Status.State != domain.RunStateSucceeded {
		t.Fatalf("expected succeeded, got %q", r.Status.State)
	}
	if r.Status.UpdatedAt.IsZero() {
		t.Fatalf("expected updated timestamp")
	}
}

func TestTransitionRunRejectsSkippedStates(t *testing.T) {
	tracker := New(&probeBackend{}, nil, nil, testLogger())
	r := &domain.Run{Meta: domain.RunMeta{Project: "iris", UID: "u1"}}

	if err := tracker.TransitionRun(context.Background(), r, domain.RunStateSucceeded, ""); err == nil {
		t.Fatalf("expected pending->succeeded to be rejected")
	}
}
