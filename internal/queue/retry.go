package queue

import (
	"context"
	"errors"
	"time"

	"github.com/ignite/lead-pipeline/internal/pkg/backoff"
)

// Retrying decorates a Queue with bounded exponential-backoff retry around
// every operation. The underlying queue call may transiently fail (connection
// drop, failover); exhausting the retry budget surfaces the error to the
// caller, which decides whether to dead-letter.
type Retrying struct {
	inner  Queue
	policy backoff.Policy
}

// RetryPolicy returns the jittered queue policy with the given attempt cap.
func RetryPolicy(attempts int) backoff.Policy {
	p := backoff.QueuePolicy()
	if attempts > 0 {
		p.MaxAttempts = attempts
	}
	return p
}

// WithRetry wraps q in a Retrying decorator. A zero policy gets the jittered
// queue defaults.
func WithRetry(q Queue, policy backoff.Policy) *Retrying {
	if policy.MaxAttempts == 0 {
		policy = backoff.QueuePolicy()
	}
	return &Retrying{inner: q, policy: policy}
}

func (r *Retrying) Enqueue(ctx context.Context, name string, body any, delay time.Duration) (int64, error) {
	var id int64
	err := backoff.Retry(ctx, r.policy, func() error {
		var err error
		id, err = r.inner.Enqueue(ctx, name, body, delay)
		return err
	})
	return id, err
}

func (r *Retrying) DequeueBatch(ctx context.Context, name string, batchSize int, visibilityTimeout time.Duration) ([]Message, error) {
	var batch []Message
	err := backoff.Retry(ctx, r.policy, func() error {
		var err error
		batch, err = r.inner.DequeueBatch(ctx, name, batchSize, visibilityTimeout)
		return err
	})
	return batch, err
}

func (r *Retrying) DeleteMessage(ctx context.Context, name string, id int64) error {
	return backoff.Retry(ctx, r.policy, func() error {
		err := r.inner.DeleteMessage(ctx, name, id)
		if errors.Is(err, ErrNotFound) {
			// Deleting an already-deleted message is not transient
			return nil
		}
		return err
	})
}
