package delivery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/lead-pipeline/internal/domain"
)

// ErrNotFound is returned for missing lead records.
var ErrNotFound = errors.New("delivery: lead not found")

// ErrDuplicateKey signals that another worker instance inserted the same
// (partner, dedupe_key) first. The caller treats it as a duplicate sighting,
// never as a crash.
var ErrDuplicateKey = errors.New("delivery: duplicate dedupe key")

// LeadStore persists lead delivery records.
type LeadStore interface {
	// GetByKey fetches the record for (partner, dedupe key), or ErrNotFound.
	GetByKey(ctx context.Context, partnerName, dedupeKey string) (domain.Lead, error)
	// Insert creates a new pending record. Returns ErrDuplicateKey when the
	// (partner, dedupe_key) unique constraint rejects the row.
	Insert(ctx context.Context, lead *domain.Lead) error
	// SetStatus updates status and updated_at in place.
	SetStatus(ctx context.Context, id string, status domain.LeadStatus) error
	// SetFailed marks the record failed with the given attempt count.
	SetFailed(ctx context.Context, id string, attempts int) error
}

// ConfigStore loads per-partner delivery configuration.
type ConfigStore interface {
	// Get returns the config row for a partner, or ErrMissingPartner.
	Get(ctx context.Context, partnerName string) (domain.PartnerConfig, error)
}

// PGLeadStore implements LeadStore against the leads table.
type PGLeadStore struct{ db *sql.DB }

// NewPGLeadStore creates a Postgres-backed lead store.
func NewPGLeadStore(db *sql.DB) *PGLeadStore { return &PGLeadStore{db: db} }

func (s *PGLeadStore) GetByKey(ctx context.Context, partnerName, dedupeKey string) (domain.Lead, error) {
	var l domain.Lead
	err := s.db.QueryRowContext(ctx, `
		SELECT id, person_id, COALESCE(alias_id::text, ''), partner_name, dedupe_key, status, attempts, form_data, updated_at
		FROM leads WHERE partner_name = $1 AND dedupe_key = $2
	`, partnerName, dedupeKey).Scan(
		&l.ID, &l.PersonID, &l.AliasID, &l.PartnerName, &l.DedupeKey,
		&l.Status, &l.Attempts, &l.FormData, &l.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	if err != nil {
		return domain.Lead{}, fmt.Errorf("get lead %s/%s: %w", partnerName, dedupeKey, err)
	}
	return l, nil
}

func (s *PGLeadStore) Insert(ctx context.Context, lead *domain.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.Status == "" {
		lead.Status = domain.LeadPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (id, person_id, alias_id, partner_name, dedupe_key, status, attempts, form_data, updated_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, NOW())
	`, lead.ID, lead.PersonID, lead.AliasID, lead.PartnerName, lead.DedupeKey, lead.Status, lead.Attempts, []byte(lead.FormData))
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		// unique_violation on (partner_name, dedupe_key): another instance
		// claimed this key between our lookup and insert
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

func (s *PGLeadStore) SetStatus(ctx context.Context, id string, status domain.LeadStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("set lead %s %s: %w", id, status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGLeadStore) SetFailed(ctx context.Context, id string, attempts int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = 'failed', attempts = $2, updated_at = NOW() WHERE id = $1`,
		id, attempts,
	)
	if err != nil {
		return fmt.Errorf("set lead %s failed: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PGConfigStore implements ConfigStore against the partner_configs table.
type PGConfigStore struct{ db *sql.DB }

// NewPGConfigStore creates a Postgres-backed partner config store.
func NewPGConfigStore(db *sql.DB) *PGConfigStore { return &PGConfigStore{db: db} }

func (s *PGConfigStore) Get(ctx context.Context, partnerName string) (domain.PartnerConfig, error) {
	var cfg domain.PartnerConfig
	err := s.db.QueryRowContext(ctx, `
		SELECT partner_name, settings, updated_at
		FROM partner_configs WHERE partner_name = $1
	`, partnerName).Scan(&cfg.PartnerName, &cfg.Settings, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PartnerConfig{}, fmt.Errorf("%w: no config row for %q", ErrMissingPartner, partnerName)
	}
	if err != nil {
		return domain.PartnerConfig{}, fmt.Errorf("partner config %s: %w", partnerName, err)
	}
	return cfg, nil
}
