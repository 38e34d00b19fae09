package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/lead-pipeline/internal/pkg/backoff"
)

// flaky fails the first failures calls of each operation, then delegates to
// an in-memory queue.
type flaky struct {
	inner    *Memory
	failures int
	calls    int
}

func (f *flaky) trip() error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection reset")
	}
	return nil
}

func (f *flaky) Enqueue(ctx context.Context, name string, body any, delay time.Duration) (int64, error) {
	if err := f.trip(); err != nil {
		return 0, err
	}
	return f.inner.Enqueue(ctx, name, body, delay)
}

func (f *flaky) DequeueBatch(ctx context.Context, name string, batchSize int, vt time.Duration) ([]Message, error) {
	if err := f.trip(); err != nil {
		return nil, err
	}
	return f.inner.DequeueBatch(ctx, name, batchSize, vt)
}

func (f *flaky) DeleteMessage(ctx context.Context, name string, id int64) error {
	if err := f.trip(); err != nil {
		return err
	}
	return f.inner.DeleteMessage(ctx, name, id)
}

func testPolicy(attempts int) backoff.Policy {
	return backoff.Policy{MaxAttempts: attempts, BaseDelay: time.Microsecond, MaxDelay: time.Millisecond, Multiplier: 2}
}

func TestRetrying_RecoversFromTransientFailures(t *testing.T) {
	f := &flaky{inner: NewMemory(), failures: 2}
	q := WithRetry(f, testPolicy(3))

	id, err := q.Enqueue(context.Background(), "q", "m", 0)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
	assert.Equal(t, 3, f.calls)
}

func TestRetrying_ExhaustionSurfacesError(t *testing.T) {
	f := &flaky{inner: NewMemory(), failures: 10}
	q := WithRetry(f, testPolicy(3))

	_, err := q.Enqueue(context.Background(), "q", "m", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted 3 attempts")
	assert.Equal(t, 3, f.calls)
}

func TestRetrying_DeleteMissingIsIdempotent(t *testing.T) {
	q := WithRetry(NewMemory(), testPolicy(3))
	// acknowledging an already-deleted message is a success, not a retry loop
	assert.NoError(t, q.DeleteMessage(context.Background(), "q", 42))
}

func TestRetrying_DequeuePassesThrough(t *testing.T) {
	mem := NewMemory()
	_, err := mem.Enqueue(context.Background(), "q", map[string]string{"k": "v"}, 0)
	require.NoError(t, err)

	q := WithRetry(mem, testPolicy(3))
	batch, err := q.DequeueBatch(context.Background(), "q", 10, time.Second)
	require.NoError(t, err)
	assert.Len(t, batch, 1)
}

func TestRetryPolicy_CapsAttempts(t *testing.T) {
	p := RetryPolicy(5)
	assert.Equal(t, 5, p.MaxAttempts)
	assert.True(t, p.Jitter)

	def := RetryPolicy(0)
	assert.Equal(t, 3, def.MaxAttempts)
}
