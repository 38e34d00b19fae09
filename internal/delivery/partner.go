// Package delivery implements the per-partner idempotent delivery engine:
// dedupe-key computation, the lead-record state machine, bounded handler
// retry, and dead-letter escalation.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ignite/lead-pipeline/internal/domain"
)

// ErrMissingPartner is returned when a route names a partner with no
// registered implementation or no configuration row. It is a hard failure
// for the batch: delivering to an unknown partner cannot be retried into
// success.
var ErrMissingPartner = errors.New("delivery: missing partner artifacts")

// Partner is the fixed delivery interface each partner implements, compiled
// into the binary and selected by route name. Config carries the
// partner-specific settings loaded at the start of each batch.
type Partner interface {
	// Dedupe computes the deterministic idempotency key for a message.
	Dedupe(msg domain.RoutingMessage) (string, error)
	// Deliver hands the lead to the partner system.
	Deliver(ctx context.Context, msg domain.RoutingMessage, cfg domain.PartnerConfig) error
}

// Registry holds the registered partner implementations.
type Registry struct {
	mu       sync.RWMutex
	partners map[string]Partner
}

// NewRegistry creates an empty partner registry.
func NewRegistry() *Registry {
	return &Registry{partners: map[string]Partner{}}
}

// Register binds a partner implementation to its route name. Re-registering
// a name replaces the previous implementation.
func (r *Registry) Register(name string, p Partner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partners[name] = p
}

// Get returns the partner for name, or ErrMissingPartner.
func (r *Registry) Get(name string) (Partner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.partners[name]
	if !ok {
		return nil, fmt.Errorf("%w: no implementation registered for %q", ErrMissingPartner, name)
	}
	return p, nil
}

// Names returns the registered partner names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.partners))
	for name := range r.partners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
