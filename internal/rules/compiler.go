package rules

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ignite/lead-pipeline/internal/domain"
	"github.com/ignite/lead-pipeline/internal/pkg/logger"
)

// Compiler turns the enabled rule set into a published routing function.
// It is triggered by compile_queue signals; every run recompiles from a full
// snapshot of the rule table, so missed or coalesced signals are harmless.
type Compiler struct {
	store Store
	cache *CachedLoader
}

// NewCompiler creates a compiler over the rule store. cache may be nil.
func NewCompiler(store Store, cache *CachedLoader) *Compiler {
	return &Compiler{store: store, cache: cache}
}

// Compile loads enabled rules, builds the decision tree, and atomically
// publishes it as the current routing function. Zero enabled rules is an
// error: the pipeline must fail routing loudly rather than guess.
func (c *Compiler) Compile(ctx context.Context) (RouterVersion, error) {
	enabled, err := c.store.ListEnabled(ctx)
	if err != nil {
		return RouterVersion{}, fmt.Errorf("compile: load rules: %w", err)
	}
	tree, err := BuildTree(enabled)
	if err != nil {
		return RouterVersion{}, fmt.Errorf("compile: %w", err)
	}
	v, err := c.store.Publish(ctx, tree)
	if err != nil {
		return RouterVersion{}, fmt.Errorf("compile: %w", err)
	}
	if c.cache != nil {
		c.cache.Invalidate(ctx)
	}
	logger.Info("routing function published",
		"version", fmt.Sprintf("%d", v.Version),
		"rules", fmt.Sprintf("%d", len(enabled)))
	return v, nil
}

// MessageFields flattens a routing message into the field map the evaluator
// tests conditions against. Nested payload values are reachable with dotted
// paths ("payload.source").
func MessageFields(msg domain.RoutingMessage) map[string]any {
	fields := map[string]any{
		"person_id": msg.PersonID,
	}
	if msg.Email != "" {
		fields["email"] = msg.Email
	}
	if msg.FullName != "" {
		fields["full_name"] = msg.FullName
	}
	if msg.Phone != "" {
		fields["phone"] = msg.Phone
	}
	if msg.AliasID != "" {
		fields["alias_id"] = msg.AliasID
	}
	if len(msg.Payload) > 0 {
		var payload any
		if err := json.Unmarshal(msg.Payload, &payload); err == nil {
			fields["payload"] = payload
		}
	}
	return fields
}
