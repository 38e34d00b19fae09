package domain

import (
	"encoding/json"
	"time"
)

// LeadStatus enumerates the delivery lifecycle of a lead record.
type LeadStatus string

const (
	LeadPending   LeadStatus = "pending"
	LeadCompleted LeadStatus = "completed"
	LeadFailed    LeadStatus = "failed"
)

// Lead is one delivery record per (partner, dedupe key) pair. The pair is the
// idempotency boundary: duplicate sightings of the same key are suppressed
// while the record is completed, or pending and fresh. Rows are mutated in
// place across attempts and never deleted.
type Lead struct {
	ID          string          `json:"id" db:"id"`
	PersonID    string          `json:"person_id" db:"person_id"`
	AliasID     string          `json:"alias_id,omitempty" db:"alias_id"`
	PartnerName string          `json:"partner_name" db:"partner_name"`
	DedupeKey   string          `json:"dedupe_key" db:"dedupe_key"`
	Status      LeadStatus      `json:"status" db:"status"`
	Attempts    int             `json:"attempts" db:"attempts"`
	FormData    json.RawMessage `json:"form_data,omitempty" db:"form_data"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// PartnerConfig is the per-partner delivery configuration loaded at the start
// of each batch. Settings is partner-implementation specific (endpoint URL,
// auth header, target table, ...).
type PartnerConfig struct {
	PartnerName string          `json:"partner_name" db:"partner_name"`
	Settings    json.RawMessage `json:"settings" db:"settings"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}
