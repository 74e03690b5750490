// Package postgres implements the persistence interfaces on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fnforge/fnforge/internal/domain"
	"github.com/fnforge/fnforge/internal/store"
)

// Store implements persistence on a pgx connection pool. Function and run
// specs are stored as jsonb documents keyed by their identity columns.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ store.FunctionStore = (*Store)(nil)
	_ store.RunStore      = (*Store)(nil)
)

// New constructs a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS functions (
	project    TEXT NOT NULL,
	name       TEXT NOT NULL,
	spec       JSONB NOT NULL,
	status     JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (project, name)
);
CREATE TABLE IF NOT EXISTS runs (
	project    TEXT NOT NULL,
	uid        TEXT NOT NULL,
	name       TEXT NOT NULL,
	spec       JSONB NOT NULL,
	status     JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (project, uid)
);
CREATE INDEX IF NOT EXISTS runs_project_created_idx ON runs (project, created_at DESC);
`

// Ensure creates the schema when it does not exist yet.
func (s *Store) Ensure(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveFunction upserts the function record.
func (s *Store) SaveFunction(ctx context.Context, fn *domain.Function) error {
	spec, err := json.Marshal(fn.Spec)
	if err != nil {
		return fmt.Errorf("encode function spec: %w", err)
	}
	status, err := json.Marshal(fn.Status)
	if err != nil {
		return fmt.Errorf("encode function status: %w", err)
	}
	const query = `INSERT INTO functions (project, name, spec, status, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (project, name) DO UPDATE SET spec = EXCLUDED.spec, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`
	_, err = s.pool.Exec(ctx, query, fn.Meta.Project, fn.Meta.Name, spec, status, time.Now().UTC())
	return err
}

// GetFunction fetches a function by project and name.
func (s *Store) GetFunction(ctx context.Context, project, name string) (*domain.Function, error) {
	const query = `SELECT spec, status FROM functions WHERE project = $1 AND name = $2`
	row := s.pool.QueryRow(ctx, query, project, name)
	var spec, status []byte
	if err := row.Scan(&spec, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	fn := domain.Function{Meta: domain.Meta{Project: project, Name: name}}
	if err := json.Unmarshal(spec, &fn.Spec); err != nil {
		return nil, fmt.Errorf("decode function spec: %w", err)
	}
	if err := json.Unmarshal(status, &fn.Status); err != nil {
		return nil, fmt.Errorf("decode function status: %w", err)
	}
	return &fn, nil
}

// ListFunctions returns the project's functions ordered by name.
func (s *Store) ListFunctions(ctx context.Context, project string) ([]domain.Function, error) {
	const query = `SELECT project, name, spec, status FROM functions WHERE ($1 = '' OR project = $1) ORDER BY name`
	rows, err := s.pool.Query(ctx, query, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Function
	for rows.Next() {
		var fn domain.Function
		var spec, status []byte
		if err := rows.Scan(&fn.Meta.Project, &fn.Meta.Name, &spec, &status); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(spec, &fn.Spec); err != nil {
			return nil, fmt.Errorf("decode function spec: %w", err)
		}
		if err := json.Unmarshal(status, &fn.Status); err != nil {
			return nil, fmt.Errorf("decode function status: %w", err)
		}
		out = append(out, fn)
	}
	return out, rows.Err()
}

// CreateRun inserts a run record.
func (s *Store) CreateRun(ctx context.Context, r *domain.Run) error {
	spec, err := json.Marshal(r.Spec)
	if err != nil {
		return fmt.Errorf("encode run spec: %w", err)
	}
	status, err := json.Marshal(r.Status)
	if err != nil {
		return fmt.Errorf("encode run status: %w", err)
	}
	const query = `INSERT INTO runs (project, uid, name, spec, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = s.pool.Exec(ctx, query, r.Meta.Project, r.Meta.UID, r.Meta.Name, spec, status, time.Now().UTC())
	return err
}

// UpdateRunStatus replaces the status document of an existing run.
func (s *Store) UpdateRunStatus(ctx context.Context, project, uid string, status domain.RunStatus) error {
	doc, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode run status: %w", err)
	}
	const query = `UPDATE runs SET status = $3 WHERE project = $1 AND uid = $2`
	tag, err := s.pool.Exec(ctx, query, project, uid, doc)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun fetches a run by project and uid.
func (s *Store) GetRun(ctx context.Context, project, uid string) (*domain.Run, error) {
	const query = `SELECT name, spec, status FROM runs WHERE project = $1 AND uid = $2`
	row := s.pool.QueryRow(ctx, query, project, uid)
	r := domain.Run{Meta: domain.RunMeta{Project: project, UID: uid}}
	var spec, status []byte
	if err := row.Scan(&r.Meta.Name, &spec, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(spec, &r.Spec); err != nil {
		return nil, fmt.Errorf("decode run spec: %w", err)
	}
	if err := json.Unmarshal(status, &r.Status); err != nil {
		return nil, fmt.Errorf("decode run status: %w", err)
	}
	return &r, nil
}

// ListRuns returns the project's runs, most recent first.
func (s *Store) ListRuns(ctx context.Context, project string, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT project, uid, name, spec, status FROM runs
		WHERE ($1 = '' OR project = $1) ORDER BY created_at DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, project, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Run
	for rows.Next() {
		var r domain.Run
		var spec, status []byte
		if err := rows.Scan(&r.Meta.Project, &r.Meta.UID, &r.Meta.Name, &spec, &status); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(spec, &r.Spec); err != nil {
			return nil, fmt.Errorf("decode run spec: %w", err)
		}
		if err := json.Unmarshal(status, &r.Status); err != nil {
			return nil, fmt.Errorf("decode run status: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
