package delivery

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/lead-pipeline/internal/domain"
)

// CRMSettings is the partner_configs payload for the CRM partner.
type CRMSettings struct {
	// Source tags delivered rows so the CRM can tell pipelines apart.
	Source string `json:"source,omitempty"`
}

// CRMPartner delivers leads into the crm_leads table, the hand-off surface
// the dealer CRM polls. Re-delivery of the same lead id upserts in place, so
// the handler itself is idempotent on top of the engine's dedupe.
type CRMPartner struct{ db *sql.DB }

// NewCRMPartner creates a CRM partner over the shared database.
func NewCRMPartner(db *sql.DB) *CRMPartner { return &CRMPartner{db: db} }

// Dedupe keys CRM leads on email first since that is the CRM's own unique
// contact handle, falling back to phone.
func (c *CRMPartner) Dedupe(msg domain.RoutingMessage) (string, error) {
	switch {
	case msg.Email != "":
		return strings.ToLower(msg.Email), nil
	case msg.Phone != "":
		return msg.Phone, nil
	}
	return "", fmt.Errorf("crm: message has neither email nor phone")
}

func (c *CRMPartner) Deliver(ctx context.Context, msg domain.RoutingMessage, cfg domain.PartnerConfig) error {
	var settings CRMSettings
	if len(cfg.Settings) > 0 {
		if err := json.Unmarshal(cfg.Settings, &settings); err != nil {
			return fmt.Errorf("crm: settings: %w", err)
		}
	}

	formData := msg.Payload
	if len(formData) == 0 {
		formData = json.RawMessage("{}")
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO crm_leads (id, person_id, email, phone, full_name, source, form_data, delivered_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, NOW())
		ON CONFLICT (person_id) DO UPDATE
		SET email = EXCLUDED.email, phone = EXCLUDED.phone, full_name = EXCLUDED.full_name,
			form_data = EXCLUDED.form_data, delivered_at = NOW()
	`, uuid.New().String(), msg.PersonID, msg.Email, msg.Phone, msg.FullName, settings.Source, []byte(formData))
	if err != nil {
		return fmt.Errorf("crm: insert lead: %w", err)
	}
	return nil
}
