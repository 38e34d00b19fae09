package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/lead-pipeline/internal/domain"
	"github.com/ignite/lead-pipeline/internal/identity"
	"github.com/ignite/lead-pipeline/internal/pkg/backoff"
	"github.com/ignite/lead-pipeline/internal/pkg/logger"
	"github.com/ignite/lead-pipeline/internal/queue"
)

// IdentifyWorker consumes submission_queue, resolves each submission to a
// canonical identity, and forwards the annotated message to routing_queue.
// Failed submissions go to submission_dlq with the error attached.
type IdentifyWorker struct {
	resolver *identity.Resolver
	q        queue.Queue
	retry    backoff.Policy
	batch    int
	vt       time.Duration
}

// NewIdentifyWorker creates the identify worker. retry bounds resolution
// attempts per message.
func NewIdentifyWorker(resolver *identity.Resolver, q queue.Queue, retry backoff.Policy, batchSize int, visibilityTimeout time.Duration) *IdentifyWorker {
	if batchSize <= 0 {
		batchSize = 25
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 30 * time.Second
	}
	return &IdentifyWorker{resolver: resolver, q: q, retry: retry, batch: batchSize, vt: visibilityTimeout}
}

// Name implements the pipeline worker naming used for liveness rows.
func (w *IdentifyWorker) Name() string { return "identify-worker" }

// Process handles one dequeued batch sequentially.
func (w *IdentifyWorker) Process(ctx context.Context) error {
	batch, err := w.q.DequeueBatch(ctx, queue.SubmissionQueue, w.batch, w.vt)
	if err != nil {
		return fmt.Errorf("identify: dequeue: %w", err)
	}
	for _, item := range batch {
		if err := w.processOne(ctx, item); err != nil {
			w.deadLetter(ctx, item, err)
		}
	}
	return nil
}

func (w *IdentifyWorker) processOne(ctx context.Context, item queue.Message) error {
	var sub domain.Submission
	if err := json.Unmarshal(item.Payload, &sub); err != nil {
		return fmt.Errorf("malformed submission: %w", err)
	}

	var res domain.Resolution
	err := backoff.Retry(ctx, w.retry, func() error {
		var rerr error
		res, rerr = w.resolver.Resolve(ctx, sub)
		return rerr
	})
	if err != nil {
		return err
	}

	routed := domain.RoutingMessage{Submission: sub, PersonID: res.PersonID, AliasID: res.AliasID}
	if _, err := w.q.Enqueue(ctx, queue.RoutingQueue, routed, 0); err != nil {
		return fmt.Errorf("forward to routing: %w", err)
	}
	if err := w.q.DeleteMessage(ctx, queue.SubmissionQueue, item.ID); err != nil {
		return fmt.Errorf("ack submission: %w", err)
	}
	return nil
}

// deadLetter publishes the failed submission and acknowledges the original;
// both steps are best-effort so a broken cleanup path cannot loop.
func (w *IdentifyWorker) deadLetter(ctx context.Context, item queue.Message, cause error) {
	logger.Error("submission dead-lettered", "msg_id", fmt.Sprintf("%d", item.ID), "error", cause.Error())
	dl := domain.DeadLetter{Message: item.Payload, Error: cause.Error()}
	if _, err := w.q.Enqueue(ctx, queue.SubmissionDLQ, dl, 0); err != nil {
		logger.Error("submission dlq publish failed", "error", err.Error())
	}
	if err := w.q.DeleteMessage(ctx, queue.SubmissionQueue, item.ID); err != nil {
		logger.Error("submission ack failed", "error", err.Error())
	}
}
