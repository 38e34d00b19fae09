package domain

import "time"

// Identity represents a canonical person, or an alias variant of one when
// AliasOf is set. Alias chains have depth exactly one: an alias always points
// at a canonical record, never at another alias. Identities are append-only;
// once written as an alias a row is never mutated.
type Identity struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email,omitempty" db:"email"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	FullName  string    `json:"full_name,omitempty" db:"full_name"`
	AliasOf   string    `json:"alias_of,omitempty" db:"alias_of"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsAlias reports whether the record is an alias of a canonical identity.
func (i Identity) IsAlias() bool { return i.AliasOf != "" }

// Resolution is the outcome of resolving a submission to an identity.
// AliasID is set only when the resolver created an alias for fields that
// disagreed with the matched canonical record.
type Resolution struct {
	PersonID string
	AliasID  string
}
