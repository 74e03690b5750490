// Package memory provides an in-process store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fnforge/fnforge/internal/domain"
	"github.com/fnforge/fnforge/internal/store"
)

// Store keeps functions and runs in maps guarded by a single lock.
type Store struct {
	mu        sync.RWMutex
	functions map[string]domain.Function
	runs      map[string]domain.Run
	runOrder  []string
}

var (
	_ store.FunctionStore = (*Store)(nil)
	_ store.RunStore      = (*Store)(nil)
)

// New constructs an empty Store.
func New() *Store {
	return &Store{
		functions: make(map[string]domain.Function),
		runs:      make(map[string]domain.Run),
	}
}

func functionKey(project, name string) string { return project + "/" + name }
func runKey(project, uid string) string       { return project + "/" + uid }

// SaveFunction inserts or replaces the function record.
func (s *Store) SaveFunction(ctx context.Context, fn *domain.Function) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.functions[fn.Key()] = *fn
	return nil
}

// GetFunction returns a copy of the stored function.
func (s *Store) GetFunction(ctx context.Context, project, name string) (*domain.Function, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.functions[functionKey(project, name)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &fn, nil
}

// ListFunctions returns the project's functions sorted by name.
func (s *Store) ListFunctions(ctx context.Context, project string) ([]domain.Function, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Function
	for _, fn := range s.functions {
		if project == "" || fn.Meta.Project == project {
			out = append(out, fn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Meta.Name < out[j].Meta.Name })
	return out, nil
}

// CreateRun records a new run.
func (s *Store) CreateRun(ctx context.Context, r *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := runKey(r.Meta.Project, r.Meta.UID)
	if _, ok := s.runs[key]; !ok {
		s.runOrder = append(s.runOrder, key)
	}
	s.runs[key] = *r
	return nil
}

// UpdateRunStatus replaces the status of an existing run.
func (s *Store) UpdateRunStatus(ctx context.Context, project, uid string, status domain.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := runKey(project, uid)
	r, ok := s.runs[key]
	if !ok {
		return store.ErrNotFound
	}
	r.Status = status
	s.runs[key] = r
	return nil
}

// GetRun returns a copy of the stored run.
func (s *Store) GetRun(ctx context.Context, project, uid string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runKey(project, uid)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

// ListRuns returns the project's runs, most recent first.
func (s *Store) ListRuns(ctx context.Context, project string, limit int) ([]domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Run
	for i := len(s.runOrder) - 1; i >= 0; i-- {
		r, ok := s.runs[s.runOrder[i]]
		if !ok {
			continue
		}
		if project != "" && r.Meta.Project != project {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
