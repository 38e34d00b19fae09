package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_RoundTrip(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	body := map[string]any{"email": "a@x.com", "payload": map[string]any{"budget": float64(100)}}
	id, err := q.Enqueue(ctx, "submission_queue", body, 0)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	batch, err := q.DequeueBatch(ctx, "submission_queue", 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, id, batch[0].ID)
	assert.Equal(t, 1, batch[0].ReadCount)

	var got map[string]any
	require.NoError(t, json.Unmarshal(batch[0].Payload, &got))
	assert.Equal(t, body, got)
}

func TestMemory_VisibilityTimeoutHidesInFlight(t *testing.T) {
	q := NewMemory()
	now := time.Now()
	q.SetClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "q", "m", 0)
	require.NoError(t, err)

	first, err := q.DequeueBatch(ctx, "q", 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// in-flight message is invisible to a concurrent consumer
	second, err := q.DequeueBatch(ctx, "q", 10, 30*time.Second)
	require.NoError(t, err)
	assert.Empty(t, second)

	// after the timeout lapses it is redelivered with a bumped read count
	now = now.Add(31 * time.Second)
	third, err := q.DequeueBatch(ctx, "q", 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, first[0].ID, third[0].ID)
	assert.Equal(t, 2, third[0].ReadCount)
}

func TestMemory_EnqueueDelay(t *testing.T) {
	q := NewMemory()
	now := time.Now()
	q.SetClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "q", "m", 10*time.Second)
	require.NoError(t, err)

	batch, err := q.DequeueBatch(ctx, "q", 10, time.Second)
	require.NoError(t, err)
	assert.Empty(t, batch)

	now = now.Add(11 * time.Second)
	batch, err = q.DequeueBatch(ctx, "q", 10, time.Second)
	require.NoError(t, err)
	assert.Len(t, batch, 1)
}

func TestMemory_DeleteIsPermanent(t *testing.T) {
	q := NewMemory()
	now := time.Now()
	q.SetClock(func() time.Time { return now })
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "q", "m", 0)
	require.NoError(t, err)
	require.NoError(t, q.DeleteMessage(ctx, "q", id))

	now = now.Add(time.Hour)
	batch, err := q.DequeueBatch(ctx, "q", 10, time.Second)
	require.NoError(t, err)
	assert.Empty(t, batch)

	assert.ErrorIs(t, q.DeleteMessage(ctx, "q", id), ErrNotFound)
}

func TestMemory_BatchSizeBound(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()
	for i := 0; i < 40; i++ {
		_, err := q.Enqueue(ctx, "q", i, 0)
		require.NoError(t, err)
	}

	batch, err := q.DequeueBatch(ctx, "q", 25, 30*time.Second)
	require.NoError(t, err)
	assert.Len(t, batch, 25)
}

func TestMemory_QueuesAreIsolated(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()
	_, err := q.Enqueue(ctx, "route_a_queue", "m", 0)
	require.NoError(t, err)

	batch, err := q.DequeueBatch(ctx, "route_b_queue", 10, time.Second)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestMemory_QueueMetrics(t *testing.T) {
	q := NewMemory()
	now := time.Now()
	q.SetClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "a", 1, 0)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "a", 2, time.Hour)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "b", 3, 0)
	require.NoError(t, err)

	metrics, err := q.QueueMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, "a", metrics[0].Queue)
	assert.Equal(t, 2, metrics[0].Total)
	assert.Equal(t, 1, metrics[0].Visible)
	assert.Equal(t, "b", metrics[1].Queue)
}

func TestRouteQueueNames(t *testing.T) {
	assert.Equal(t, "route_dealer_queue", RouteQueue("dealer"))
	assert.Equal(t, "route_dealer_dlq", RouteDLQ("dealer"))
}
