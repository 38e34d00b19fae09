package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/lead-pipeline/internal/domain"
	"github.com/ignite/lead-pipeline/internal/pkg/backoff"
	"github.com/ignite/lead-pipeline/internal/pkg/logger"
	"github.com/ignite/lead-pipeline/internal/queue"
)

// Options tunes the delivery engine.
type Options struct {
	// BatchSize is the dequeue batch size per invocation.
	BatchSize int
	// VisibilityTimeout hides dequeued messages from other instances.
	VisibilityTimeout time.Duration
	// HandlerRetry bounds partner handler attempts. No jitter by default.
	HandlerRetry backoff.Policy
	// PendingStaleness is the window after which a pending record counts as
	// a duplicate on re-sighting rather than a fresh claim.
	PendingStaleness time.Duration
}

// DefaultOptions mirrors the pipeline defaults: batches of 25, 30s
// visibility, 3 handler attempts, 1 minute staleness.
func DefaultOptions() Options {
	return Options{
		BatchSize:         25,
		VisibilityTimeout: 30 * time.Second,
		HandlerRetry:      backoff.DefaultPolicy(),
		PendingStaleness:  time.Minute,
	}
}

// Engine delivers leads to partners with per-(partner, dedupe_key)
// idempotency. One Engine instance serves all partners; the partner and its
// config are resolved once per batch.
type Engine struct {
	leads    LeadStore
	configs  ConfigStore
	registry *Registry
	q        queue.Queue
	opts     Options
	now      func() time.Time
}

// NewEngine creates a delivery engine. Zero option fields get defaults.
func NewEngine(leads LeadStore, configs ConfigStore, registry *Registry, q queue.Queue, opts Options) *Engine {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = def.VisibilityTimeout
	}
	if opts.HandlerRetry.MaxAttempts == 0 {
		opts.HandlerRetry = def.HandlerRetry
	}
	if opts.PendingStaleness <= 0 {
		opts.PendingStaleness = def.PendingStaleness
	}
	return &Engine{leads: leads, configs: configs, registry: registry, q: q, opts: opts, now: time.Now}
}

// SetClock overrides the time source for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// ProcessBatch dequeues one batch from the partner's route queue and
// processes it strictly sequentially. A missing partner implementation or
// config row is a hard failure for the whole batch.
func (e *Engine) ProcessBatch(ctx context.Context, partnerName string) error {
	partner, err := e.registry.Get(partnerName)
	if err != nil {
		return err
	}
	cfg, err := e.configs.Get(ctx, partnerName)
	if err != nil {
		return err
	}

	queueName := queue.RouteQueue(partnerName)
	dlqName := queue.RouteDLQ(partnerName)
	batch, err := e.q.DequeueBatch(ctx, queueName, e.opts.BatchSize, e.opts.VisibilityTimeout)
	if err != nil {
		return fmt.Errorf("delivery %s: dequeue: %w", partnerName, err)
	}
	for _, item := range batch {
		if err := e.deliverOne(ctx, partner, cfg, partnerName, queueName, dlqName, item); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) deliverOne(ctx context.Context, partner Partner, cfg domain.PartnerConfig, partnerName, queueName, dlqName string, item queue.Message) error {
	var msg domain.RoutingMessage
	if err := json.Unmarshal(item.Payload, &msg); err != nil {
		// malformed payload cannot succeed on retry; dead-letter it
		e.deadLetter(ctx, dlqName, queueName, item, fmt.Errorf("malformed routing message: %w", err))
		return nil
	}

	key, err := partner.Dedupe(msg)
	if err != nil || key == "" {
		if err == nil {
			err = errors.New("empty dedupe key")
		}
		e.deadLetter(ctx, dlqName, queueName, item, fmt.Errorf("dedupe: %w", err))
		return nil
	}

	rec, err := e.leads.GetByKey(ctx, partnerName, key)
	switch {
	case err == nil:
		if e.isDuplicateSighting(rec) {
			logger.Info("duplicate lead skipped",
				"partner", partnerName, "dedupe_key", key, "status", string(rec.Status))
			return e.q.DeleteMessage(ctx, queueName, item.ID)
		}
		if err := e.leads.SetStatus(ctx, rec.ID, domain.LeadPending); err != nil {
			return fmt.Errorf("delivery %s: claim lead: %w", partnerName, err)
		}
		rec.Status = domain.LeadPending

	case errors.Is(err, ErrNotFound):
		rec = domain.Lead{
			PersonID:    msg.PersonID,
			AliasID:     msg.AliasID,
			PartnerName: partnerName,
			DedupeKey:   key,
			Status:      domain.LeadPending,
			FormData:    msg.Payload,
		}
		if err := e.leads.Insert(ctx, &rec); err != nil {
			if errors.Is(err, ErrDuplicateKey) {
				// another instance won the insert race; their delivery owns
				// this key now
				logger.Info("duplicate lead skipped (insert race)",
					"partner", partnerName, "dedupe_key", key)
				return e.q.DeleteMessage(ctx, queueName, item.ID)
			}
			return fmt.Errorf("delivery %s: insert lead: %w", partnerName, err)
		}

	default:
		return fmt.Errorf("delivery %s: lookup lead: %w", partnerName, err)
	}

	attempts := 0
	deliverErr := backoff.Retry(ctx, e.opts.HandlerRetry, func() error {
		attempts++
		return partner.Deliver(ctx, msg, cfg)
	})
	if deliverErr == nil {
		logger.Info("lead delivered", "partner", partnerName, "dedupe_key", key)
		if err := e.leads.SetStatus(ctx, rec.ID, domain.LeadCompleted); err != nil {
			return fmt.Errorf("delivery %s: complete lead: %w", partnerName, err)
		}
		return e.q.DeleteMessage(ctx, queueName, item.ID)
	}

	// Retries exhausted. Failure bookkeeping, dead-lettering and the final
	// ack are each best-effort: an error here is logged, never re-raised, so
	// the cleanup path cannot loop.
	logger.Error("lead delivery failed",
		"partner", partnerName, "dedupe_key", key, "error", deliverErr.Error())
	if err := e.leads.SetFailed(ctx, rec.ID, rec.Attempts+attempts); err != nil {
		logger.Error("failed-status write failed",
			"partner", partnerName, "lead_id", rec.ID, "error", err.Error())
	}
	e.deadLetter(ctx, dlqName, queueName, item, deliverErr)
	return nil
}

// isDuplicateSighting implements the idempotency short-circuit: completed
// records, and pending records older than the staleness window, suppress the
// incoming message. A fresh pending record falls through and is reclaimed.
func (e *Engine) isDuplicateSighting(rec domain.Lead) bool {
	if rec.Status == domain.LeadCompleted {
		return true
	}
	return rec.Status == domain.LeadPending && e.now().Sub(rec.UpdatedAt) > e.opts.PendingStaleness
}

// deadLetter publishes the message and error to the dead-letter queue and
// acknowledges the original. Both steps are independent and best-effort.
func (e *Engine) deadLetter(ctx context.Context, dlqName, queueName string, item queue.Message, cause error) {
	dl := domain.DeadLetter{Message: item.Payload, Error: cause.Error()}
	if _, err := e.q.Enqueue(ctx, dlqName, dl, 0); err != nil {
		logger.Error("dead-letter publish failed", "dlq", dlqName, "error", err.Error())
	}
	if err := e.q.DeleteMessage(ctx, queueName, item.ID); err != nil {
		logger.Error("dead-letter ack failed", "queue", queueName, "msg_id", fmt.Sprintf("%d", item.ID), "error", err.Error())
	}
}
