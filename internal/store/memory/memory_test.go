package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/fnforge/fnforge/internal/domain"
	"github.com/fnforge/fnforge/internal/store"
)

func TestFunctionRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	fn := &domain.Function{
		Meta: domain.Meta{Name: "trainer", Project: "iris"},
		Spec: domain.FunctionSpec{Image: "fnforge/base:1.0"},
	}
	if err := s.SaveFunction(ctx, fn); err != nil {
		t.Fatalf("SaveFunction: %v", err)
	}

	got, err := s.GetFunction(ctx, "iris", "trainer")
	if err != nil {
		t.Fatalf("GetFunction: %v", err)
	}
	if got.Spec.Image != "fnforge/base:1.0" {
		t.Fatalf("image = %q", got.Spec.Image)
	}

	// mutations of the returned copy must not leak into the store
	got.Spec.Image = "mutated"
	again, _ := s.GetFunction(ctx, "iris", "trainer")
	if again.Spec.Image != "fnforge/base:1.0" {
		t.Fatalf("store leaked mutation: %q", again.Spec.Image)
	}
}

func TestGetFunctionMissing(t *testing.T) {
	s := New()
	if _, err := s.GetFunction(context.Background(), "iris", "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRunsMostRecentFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, uid := range []string{"u1", "u2", "u3"} {
		r := &domain.Run{Meta: domain.RunMeta{Name: "train", Project: "iris", UID: uid}}
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	runs, err := s.ListRuns(ctx, "iris", 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Meta.UID != "u3" || runs[1].Meta.UID != "u2" {
		t.Fatalf("unexpected order: %s, %s", runs[0].Meta.UID, runs[1].Meta.UID)
	}
}

func TestUpdateRunStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	r := &domain.Run{Meta: domain.RunMeta{Name: "train", Project: "iris", UID: "u1"}}
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	status := domain.RunStatus{State: domain.RunStateRunning, PodName: "train-abc"}
	if err := s.UpdateRunStatus(ctx, "iris", "u1", status); err != nil {
		t.Fatalf("UpdateRunStatus: %v", err)
	}
	got, _ := s.GetRun(ctx, "iris", "u1")
	if got.Status.State != domain.RunStateRunning || got.Status.PodName != "train-abc" {
		t.Fatalf("unexpected status %+v", got.Status)
	}

	if err := s.UpdateRunStatus(ctx, "iris", "ghost", status); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
