package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/fnforge/fnforge/internal/domain"
	"github.com/fnforge/fnforge/internal/store/memory"
)

type fakePhases struct {
	phases  map[string]corev1.PodPhase
	pods    []corev1.Pod
	err     error
	deleted []string
}

func (f *fakePhases) PodPhase(ctx context.Context, name string) (corev1.PodPhase, error) {
	if f.err != nil {
		return "", f.err
	}
	phase, ok := f.phases[name]
	if !ok {
		return "", errors.New("pod not found")
	}
	return phase, nil
}

func (f *fakePhases) DeletePod(ctx context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakePhases) ListRunPods(ctx context.Context, selector string) ([]corev1.Pod, error) {
	return f.pods, nil
}

func seedRun(t *testing.T, mem *memory.Store, uid, pod string, state domain.RunState) {
	t.Helper()
	r := &domain.Run{Meta: domain.RunMeta{Name: "train", Project: "iris", UID: uid}}
	r.Status.State = state
	r.Status.PodName = pod
	if err := mem.CreateRun(context.Background(), r); err != nil {
		t.Fatal(err)
	}
}

func TestSweepTransitionsRunsFromPodPhases(t *testing.T) {
	mem := memory.New()
	seedRun(t, mem, "u1", "pod-1", domain.RunStateRunning)
	seedRun(t, mem, "u2", "pod-2", domain.RunStateRunning)

	phases := &fakePhases{phases: map[string]corev1.PodPhase{
		"pod-1": corev1.PodSucceeded,
		"pod-2": corev1.PodFailed,
	}}
	tracker := New(&probeBackend{}, mem, mem, testLogger())
	m := NewMonitor(phases, mem, tracker, testLogger(), time.Second)

	m.sweep(context.Background())

	r1, _ := mem.GetRun(context.Background(), "iris", "u1")
	if r1.Status.State != domain.RunStateSucceeded {
		t.Fatalf("u1 state = %q", r1.Status.State)
	}
	r2, _ := mem.GetRun(context.Background(), "iris", "u2")
	if r2.Status.State != domain.RunStateError {
		t.Fatalf("u2 state = %q", r2.Status.State)
	}
	if len(phases.deleted) != 2 {
		t.Fatalf("expected both finished pods deleted, got %v", phases.deleted)
	}
}

func TestSweepIgnoresLaggingPodPhase(t *testing.T) {
	mem := memory.New()
	seedRun(t, mem, "u1", "pod-1", domain.RunStateRunning)

	phases := &fakePhases{phases: map[string]corev1.PodPhase{"pod-1": corev1.PodPending}}
	tracker := New(&probeBackend{}, mem, mem, testLogger())
	m := NewMonitor(phases, mem, tracker, testLogger(), time.Second)

	m.sweep(context.Background())

	r, _ := mem.GetRun(context.Background(), "iris", "u1")
	if r.Status.State != domain.RunStateRunning {
		t.Fatalf("run must stay running while the pod phase lags, got %q", r.Status.State)
	}
	if len(phases.deleted) != 0 {
		t.Fatalf("no pods should be deleted, got %v", phases.deleted)
	}
}

func TestSweepSkipsTerminalRuns(t *testing.T) {
	mem := memory.New()
	seedRun(t, mem, "u1", "pod-1", domain.RunStateSucceeded)

	phases := &fakePhases{phases: map[string]corev1.PodPhase{"pod-1": corev1.PodFailed}}
	tracker := New(&probeBackend{}, mem, mem, testLogger())
	m := NewMonitor(phases, mem, tracker, testLogger(), time.Second)

	m.sweep(context.Background())

	r, _ := mem.GetRun(context.Background(), "iris", "u1")
	if r.Status.State != domain.RunStateSucceeded {
		t.Fatalf("terminal run must not change, got %q", r.Status.State)
	}
}

func TestSweepReapsOrphanedPods(t *testing.T) {
	mem := memory.New()
	seedRun(t, mem, "u1", "pod-1", domain.RunStateSucceeded)
	seedRun(t, mem, "u2", "pod-2", domain.RunStateRunning)

	phases := &fakePhases{
		phases: map[string]corev1.PodPhase{"pod-2": corev1.PodRunning},
		pods: []corev1.Pod{
			{ObjectMeta: metav1.ObjectMeta{Name: "pod-1", Labels: map[string]string{domain.LabelRunUID: "u1"}}},
			{ObjectMeta: metav1.ObjectMeta{Name: "pod-2", Labels: map[string]string{domain.LabelRunUID: "u2"}}},
		},
	}
	tracker := New(&probeBackend{}, mem, mem, testLogger())
	m := NewMonitor(phases, mem, tracker, testLogger(), time.Second)

	m.sweep(context.Background())

	if len(phases.deleted) != 1 || phases.deleted[0] != "pod-1" {
		t.Fatalf("expected only the finished run's pod deleted, got %v", phases.deleted)
	}
}

func TestSweepToleratesLookupFailures(t *testing.T) {
	mem := memory.New()
	seedRun(t, mem, "u1", "pod-1", domain.RunStateRunning)

	phases := &fakePhases{err: errors.New("api server down")}
	tracker := New(&probeBackend{}, mem, mem, testLogger())
	m := NewMonitor(phases, mem, tracker, testLogger(), time.Second)

	m.sweep(context.Background())

	r, _ := mem.GetRun(context.Background(), "iris", "u1")
	if r.Status.State != domain.RunStateRunning {
		t.Fatalf("state must be unchanged on lookup failure, got %q", r.Status.State)
	}
}
