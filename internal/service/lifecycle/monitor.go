package lifecycle

import (
	"context"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/fnforge/fnforge/internal/domain"
	"github.com/fnforge/fnforge/internal/store"
)

// PodWatcher reports the current phase of a run pod and removes pods whose
// runs have finished.
type PodWatcher interface {
	PodPhase(ctx context.Context, name string) (corev1.PodPhase, error)
	DeletePod(ctx context.Context, name string) error
	ListRunPods(ctx context.Context, selector string) ([]corev1.Pod, error)
}

// Monitor drives run state transitions by polling pod phases. Lookup
// failures are logged and retried on the next tick; pods of runs that
// reached a terminal state are deleted.
type Monitor struct {
	pods     PodWatcher
	runs     store.RunStore
	tracker  *Tracker
	logger   *slog.Logger
	interval time.Duration
}

// NewMonitor creates a run monitor.
func NewMonitor(pods PodWatcher, runs store.RunStore, tracker *Tracker, logger *slog.Logger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{pods: pods, runs: runs, tracker: tracker, logger: logger, interval: interval}
}

// Run polls until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Monitor) sweep(ctx context.Context) {
	runs, err := m.runs.ListRuns(ctx, "", 0)
	if err != nil {
		m.logger.Error("list runs failed", "error", err)
		return
	}
	active := make(map[string]struct{}, len(runs))
	for i := range runs {
		r := runs[i]
		if !r.Status.State.Terminal() {
			active[r.Meta.UID] = struct{}{}
		}
		if r.Status.State.Terminal() || r.Status.PodName == "" {
			continue
		}
		phase, err := m.pods.PodPhase(ctx, r.Status.PodName)
		if err != nil {
			m.logger.Warn("pod phase lookup failed", "run", r.Meta.UID, "pod", r.Status.PodName, "error", err)
			continue
		}
		state, text := runStateForPhase(phase)
		if state == "" || state == r.Status.State {
			continue
		}
		if runStateRank[state] < runStateRank[r.Status.State] {
			// a pod still pending behind an already-running run is stale
			// information, not a transition
			continue
		}
		if err := m.tracker.TransitionRun(ctx, &r, state, text); err != nil {
			m.logger.Warn("run transition rejected", "run", r.Meta.UID, "state", state, "error", err)
			continue
		}
		if state.Terminal() {
			if err := m.pods.DeletePod(ctx, r.Status.PodName); err != nil {
				m.logger.Warn("pod cleanup failed", "run", r.Meta.UID, "pod", r.Status.PodName, "error", err)
			}
		}
	}
	m.reapOrphans(ctx, active)
}

// reapOrphans deletes run pods whose runs are terminal or gone. This also
// retries deletions that failed on the sweep that observed the terminal
// phase.
func (m *Monitor) reapOrphans(ctx context.Context, active map[string]struct{}) {
	pods, err := m.pods.ListRunPods(ctx, domain.LabelRunUID)
	if err != nil {
		m.logger.Warn("list run pods failed", "error", err)
		return
	}
	for i := range pods {
		p := pods[i]
		if _, ok := active[p.Labels[domain.LabelRunUID]]; ok {
			continue
		}
		if err := m.pods.DeletePod(ctx, p.Name); err != nil {
			m.logger.Warn("pod cleanup failed", "pod", p.Name, "error", err)
		}
	}
}

// runStateRank orders run states so the sweep never walks a run backwards
// when the pod phase lags the recorded state.
var runStateRank = map[domain.RunState]int{
	domain.RunStatePending:   0,
	domain.RunStateRunning:   1,
	domain.RunStateSucceeded: 2,
	domain.RunStateError:     2,
}

func runStateForPhase(phase corev1.PodPhase) (domain.RunState, string) {
	switch phase {
	case corev1.PodPending:
		return domain.RunStatePending, "pod is pending"
	case corev1.PodRunning:
		return domain.RunStateRunning, "pod is running"
	case corev1.PodSucceeded:
		return domain.RunStateSucceeded, "run completed"
	case corev1.PodFailed:
		return domain.RunStateError, "pod failed"
	default:
		return "", ""
	}
}
