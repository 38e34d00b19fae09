// Package worker contains the queue-consumption harness shared by every
// pipeline worker and the workers themselves: identify, router, compiler,
// delivery, and queue metrics.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/lead-pipeline/internal/domain"
)

// StateStore persists worker liveness rows.
type StateStore interface {
	// Get returns the state row for a worker. A worker never seen before
	// reports WorkerStarting with a zero LastSeen.
	Get(ctx context.Context, name string) (domain.WorkerState, error)
	// Upsert writes status (and optionally stopped_at), refreshing last_seen.
	Upsert(ctx context.Context, name string, status domain.WorkerStatus, stoppedAt *time.Time) error
	// List returns all known worker states.
	List(ctx context.Context) ([]domain.WorkerState, error)
}

// PGStateStore implements StateStore against the worker_states table.
type PGStateStore struct{ db *sql.DB }

// NewPGStateStore creates a Postgres-backed worker state store.
func NewPGStateStore(db *sql.DB) *PGStateStore { return &PGStateStore{db: db} }

func (s *PGStateStore) Get(ctx context.Context, name string) (domain.WorkerState, error) {
	var st domain.WorkerState
	var stopped sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT name, status, last_seen, stopped_at FROM worker_states WHERE name = $1`,
		name,
	).Scan(&st.Name, &st.Status, &st.LastSeen, &stopped)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WorkerState{Name: name, Status: domain.WorkerStarting}, nil
	}
	if err != nil {
		return domain.WorkerState{}, fmt.Errorf("get worker state %s: %w", name, err)
	}
	if stopped.Valid {
		t := stopped.Time
		st.StoppedAt = &t
	}
	return st, nil
}

func (s *PGStateStore) Upsert(ctx context.Context, name string, status domain.WorkerStatus, stoppedAt *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worker_states (name, status, last_seen, stopped_at)
		VALUES ($1, $2, NOW(), $3)
		ON CONFLICT (name) DO UPDATE SET status = $2, last_seen = NOW(), stopped_at = $3
	`, name, status, stoppedAt)
	if err != nil {
		return fmt.Errorf("upsert worker state %s: %w", name, err)
	}
	return nil
}

func (s *PGStateStore) List(ctx context.Context) ([]domain.WorkerState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, status, last_seen, stopped_at FROM worker_states ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list worker states: %w", err)
	}
	defer rows.Close()

	var out []domain.WorkerState
	for rows.Next() {
		var st domain.WorkerState
		var stopped sql.NullTime
		if err := rows.Scan(&st.Name, &st.Status, &st.LastSeen, &stopped); err != nil {
			return nil, fmt.Errorf("list worker states: scan: %w", err)
		}
		if stopped.Valid {
			t := stopped.Time
			st.StoppedAt = &t
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
