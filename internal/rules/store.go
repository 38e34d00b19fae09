package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNoRouter is returned when no current compiled routing function exists.
var ErrNoRouter = errors.New("rules: no current routing function")

// RouterVersion is one published compile output. Exactly one version is
// current at any time; history is retained for inspection and rollback.
type RouterVersion struct {
	ID         string    `json:"id" db:"id"`
	Version    int       `json:"version" db:"version"`
	Tree       *Node     `json:"tree" db:"tree"`
	Current    bool      `json:"current" db:"is_current"`
	CompiledAt time.Time `json:"compiled_at" db:"compiled_at"`
}

// Store persists rules and compiled routing functions.
type Store interface {
	// ListEnabled returns enabled rules ordered by ascending priority.
	ListEnabled(ctx context.Context) ([]Rule, error)
	// Insert adds a rule. A zero ID is assigned.
	Insert(ctx context.Context, r *Rule) error
	// ListAll returns every rule, enabled or not, ordered by priority.
	ListAll(ctx context.Context) ([]Rule, error)
	// Publish atomically replaces the current routing function with tree.
	Publish(ctx context.Context, tree *Node) (RouterVersion, error)
	// Current returns the current routing function, or ErrNoRouter.
	Current(ctx context.Context) (RouterVersion, error)
}

// PGStore implements Store against the rules and routing_functions tables.
type PGStore struct{ db *sql.DB }

// NewPGStore creates a Postgres-backed rule store.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) ListEnabled(ctx context.Context) ([]Rule, error) {
	return s.list(ctx, `
		SELECT id, name, priority, predicate_json, route_name, enabled, created_at
		FROM rules WHERE enabled = true ORDER BY priority ASC, created_at ASC
	`)
}

func (s *PGStore) ListAll(ctx context.Context) ([]Rule, error) {
	return s.list(ctx, `
		SELECT id, name, priority, predicate_json, route_name, enabled, created_at
		FROM rules ORDER BY priority ASC, created_at ASC
	`)
}

func (s *PGStore) list(ctx context.Context, query string) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var r Rule
		var pred []byte
		if err := rows.Scan(&r.ID, &r.Name, &r.Priority, &pred, &r.RouteName, &r.Enabled, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("list rules: scan: %w", err)
		}
		if len(pred) > 0 {
			if err := json.Unmarshal(pred, &r.Predicate); err != nil {
				return nil, fmt.Errorf("list rules: predicate for %s: %w", r.Name, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) Insert(ctx context.Context, r *Rule) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	pred, err := json.Marshal(r.Predicate)
	if err != nil {
		return fmt.Errorf("insert rule: marshal predicate: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules (id, name, priority, predicate_json, route_name, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, r.ID, r.Name, r.Priority, pred, r.RouteName, r.Enabled)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// Publish replaces the current routing function inside one transaction so
// the router never observes a partial rule set. An advisory transaction lock
// single-flights concurrent compiles; they serialize rather than interleave.
func (s *PGStore) Publish(ctx context.Context, tree *Node) (RouterVersion, error) {
	treeJSON, err := json.Marshal(tree)
	if err != nil {
		return RouterVersion{}, fmt.Errorf("publish router: marshal tree: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RouterVersion{}, fmt.Errorf("publish router: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, routerPublishLockID); err != nil {
		return RouterVersion{}, fmt.Errorf("publish router: lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE routing_functions SET is_current = false WHERE is_current = true`); err != nil {
		return RouterVersion{}, fmt.Errorf("publish router: demote current: %w", err)
	}

	v := RouterVersion{ID: uuid.New().String(), Tree: tree, Current: true}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO routing_functions (id, version, tree, is_current, compiled_at)
		VALUES ($1, COALESCE((SELECT MAX(version) FROM routing_functions), 0) + 1, $2, true, NOW())
		RETURNING version, compiled_at
	`, v.ID, treeJSON).Scan(&v.Version, &v.CompiledAt)
	if err != nil {
		return RouterVersion{}, fmt.Errorf("publish router: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return RouterVersion{}, fmt.Errorf("publish router: commit: %w", err)
	}
	return v, nil
}

// routerPublishLockID keys the advisory lock for router publishes.
const routerPublishLockID = 0x6c656164 // "lead"

func (s *PGStore) Current(ctx context.Context) (RouterVersion, error) {
	var v RouterVersion
	var treeJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, version, tree, is_current, compiled_at
		FROM routing_functions WHERE is_current = true
	`).Scan(&v.ID, &v.Version, &treeJSON, &v.Current, &v.CompiledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RouterVersion{}, ErrNoRouter
	}
	if err != nil {
		return RouterVersion{}, fmt.Errorf("current router: %w", err)
	}
	if err := json.Unmarshal(treeJSON, &v.Tree); err != nil {
		return RouterVersion{}, fmt.Errorf("current router: tree: %w", err)
	}
	return v, nil
}
