// Package identity resolves lead submissions to canonical person identities,
// creating alias records when partial identifiers disagree.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/lead-pipeline/internal/domain"
	"github.com/ignite/lead-pipeline/internal/pkg/logger"
)

// ErrNoIdentifiers is returned for submissions with no usable identity
// fields. Ingress validates this, so seeing it here means a malformed
// message; it is fatal for the message, not retryable.
var ErrNoIdentifiers = errors.New("identity: no identifiers provided")

// ErrNotFound is returned by stores for missing identity rows.
var ErrNotFound = errors.New("identity: not found")

// Store is the persistence contract for identities.
type Store interface {
	// FindByAny returns identities where any stored field equals the
	// corresponding non-empty argument (loose match). Bounded result.
	FindByAny(ctx context.Context, email, phone, fullName string) ([]domain.Identity, error)
	// Get fetches one identity by id.
	Get(ctx context.Context, id string) (domain.Identity, error)
	// Insert persists a new identity, assigning its ID when empty.
	Insert(ctx context.Context, ident *domain.Identity) error
}

// Resolver merges incoming submissions into canonical identities.
//
// Resolution is idempotent under retry in the at-least-once sense: a
// re-processed submission either matches the record a previous partial
// attempt created or inserts a duplicate canonical row. It never deepens an
// alias chain past one.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver over the identity store.
func NewResolver(store Store) *Resolver { return &Resolver{store: store} }

// Resolve maps a submission to a person id, creating an alias when a matched
// record disagrees with the submission, or a new canonical identity when no
// qualifying match exists.
func (r *Resolver) Resolve(ctx context.Context, sub domain.Submission) (domain.Resolution, error) {
	email := strings.ToLower(strings.TrimSpace(sub.Email))
	fullName := strings.ToLower(strings.TrimSpace(sub.FullName))
	phone := strings.TrimSpace(sub.Phone)

	provided := 0
	for _, v := range []string{email, phone, fullName} {
		if v != "" {
			provided++
		}
	}
	if provided == 0 {
		return domain.Resolution{}, ErrNoIdentifiers
	}

	candidates, err := r.store.FindByAny(ctx, email, phone, fullName)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("identity: loose match: %w", err)
	}

	// Two-of-three strict match: a single shared field (a common phone
	// number, say) is never enough to merge. Only attempted when the
	// submission itself carries at least two identifiers.
	var personID string
	if provided >= 2 {
		for _, cand := range candidates {
			if agreements(cand, email, phone, fullName) >= 2 {
				personID = cand.ID
				if cand.IsAlias() {
					personID = cand.AliasOf
				}
				break
			}
		}
	}

	if personID == "" {
		fresh := domain.Identity{Email: email, Phone: phone, FullName: fullName}
		if err := r.store.Insert(ctx, &fresh); err != nil {
			return domain.Resolution{}, fmt.Errorf("identity: insert canonical: %w", err)
		}
		logger.Info("new canonical identity", "person_id", fresh.ID)
		return domain.Resolution{PersonID: fresh.ID}, nil
	}

	canonical, err := r.store.Get(ctx, personID)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("identity: load canonical %s: %w", personID, err)
	}

	if differs(canonical.Email, email) || differs(canonical.Phone, phone) || differs(canonical.FullName, fullName) {
		alias := domain.Identity{Email: email, Phone: phone, FullName: fullName, AliasOf: personID}
		if err := r.store.Insert(ctx, &alias); err != nil {
			return domain.Resolution{}, fmt.Errorf("identity: insert alias: %w", err)
		}
		logger.Info("identity alias created", "person_id", personID, "alias_id", alias.ID)
		return domain.Resolution{PersonID: personID, AliasID: alias.ID}, nil
	}
	return domain.Resolution{PersonID: personID}, nil
}

// agreements counts submitted fields that are present on both sides and
// equal on the candidate.
func agreements(cand domain.Identity, email, phone, fullName string) int {
	n := 0
	if email != "" && cand.Email == email {
		n++
	}
	if phone != "" && cand.Phone == phone {
		n++
	}
	if fullName != "" && cand.FullName == fullName {
		n++
	}
	return n
}

// differs reports a true disagreement: both values present and unequal.
// A field absent on either side is not a difference.
func differs(stored, got string) bool {
	return got != "" && stored != "" && got != stored
}
