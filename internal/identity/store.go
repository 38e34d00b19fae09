package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/lead-pipeline/internal/domain"
)

// looseMatchLimit bounds the candidate set for a loose match; resolution
// only needs enough candidates to find one two-of-three agreement.
const looseMatchLimit = 10

// PGStore implements Store against the lead_identities table.
type PGStore struct{ db *sql.DB }

// NewPGStore creates a Postgres-backed identity store.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) FindByAny(ctx context.Context, email, phone, fullName string) ([]domain.Identity, error) {
	var conds []string
	var args []any
	add := func(col, val string) {
		if val != "" {
			args = append(args, val)
			conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	add("email", email)
	add("phone", phone)
	add("full_name", fullName)
	if len(conds) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(full_name, ''), COALESCE(alias_of::text, ''), created_at
		FROM lead_identities
		WHERE %s
		ORDER BY created_at ASC
		LIMIT %d
	`, strings.Join(conds, " OR "), looseMatchLimit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find identities: %w", err)
	}
	defer rows.Close()

	var out []domain.Identity
	for rows.Next() {
		var ident domain.Identity
		if err := rows.Scan(&ident.ID, &ident.Email, &ident.Phone, &ident.FullName, &ident.AliasOf, &ident.CreatedAt); err != nil {
			return nil, fmt.Errorf("find identities: scan: %w", err)
		}
		out = append(out, ident)
	}
	return out, rows.Err()
}

func (s *PGStore) Get(ctx context.Context, id string) (domain.Identity, error) {
	var ident domain.Identity
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(full_name, ''), COALESCE(alias_of::text, ''), created_at
		FROM lead_identities WHERE id = $1
	`, id).Scan(&ident.ID, &ident.Email, &ident.Phone, &ident.FullName, &ident.AliasOf, &ident.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Identity{}, ErrNotFound
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("get identity %s: %w", id, err)
	}
	return ident, nil
}

func (s *PGStore) Insert(ctx context.Context, ident *domain.Identity) error {
	if ident.ID == "" {
		ident.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lead_identities (id, email, phone, full_name, alias_of, created_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, '')::uuid, NOW())
	`, ident.ID, ident.Email, ident.Phone, ident.FullName, ident.AliasOf)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}
