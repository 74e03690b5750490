// Package store defines the narrow persistence boundary for functions and
// runs. The orchestration core mutates in-memory objects; callers persist
// them through these interfaces after each transition.
package store

import (
	"context"

	"github.com/fnforge/fnforge/internal/domain"
)

// FunctionStore persists function specs and their build status.
type FunctionStore interface {
	SaveFunction(ctx context.Context, fn *domain.Function) error
	GetFunction(ctx context.Context, project, name string) (*domain.Function, error)
	ListFunctions(ctx context.Context, project string) ([]domain.Function, error)
}

// RunStore persists run records and status updates.
type RunStore interface {
	CreateRun(ctx context.Context, r *domain.Run) error
	UpdateRunStatus(ctx context.Context, project, uid string, status domain.RunStatus) error
	GetRun(ctx context.Context, project, uid string) (*domain.Run, error)
	ListRuns(ctx context.Context, project string, limit int) ([]domain.Run, error)
}
