// Package queue defines the durable queue contract shared by every pipeline
// worker, with a PostgreSQL implementation, a retrying decorator, and an
// in-memory implementation for tests.
//
// Semantics are at-least-once: a dequeued message stays invisible for its
// visibility timeout and becomes deliverable again unless explicitly deleted.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by DeleteMessage when the message does not exist
// in the named queue (already deleted, or never enqueued there).
var ErrNotFound = errors.New("queue: message not found")

// Message is one dequeued queue entry. ReadCount includes the dequeue that
// returned it; VisibleAt is the deadline after which the queue will redeliver
// it unless it is deleted first.
type Message struct {
	ID         int64           `json:"msg_id"`
	Payload    json.RawMessage `json:"payload"`
	ReadCount  int             `json:"read_count"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	VisibleAt  time.Time       `json:"visibility_deadline"`
}

// Queue is the durable queue contract. Implementations must provide
// at-least-once delivery with visibility timeouts.
type Queue interface {
	// Enqueue publishes body (JSON-marshaled) to the named queue. A non-zero
	// delay keeps the message invisible for that duration.
	Enqueue(ctx context.Context, name string, body any, delay time.Duration) (int64, error)

	// DequeueBatch fetches up to batchSize currently-visible messages and
	// makes them invisible for visibilityTimeout.
	DequeueBatch(ctx context.Context, name string, batchSize int, visibilityTimeout time.Duration) ([]Message, error)

	// DeleteMessage permanently acknowledges one message.
	DeleteMessage(ctx context.Context, name string, id int64) error
}

// Metrics is a point-in-time depth report for one queue.
type Metrics struct {
	Queue     string     `json:"queue"`
	Visible   int        `json:"visible"`
	Total     int        `json:"total"`
	OldestAge *time.Time `json:"oldest_enqueued_at,omitempty"`
}

// MetricsReader reports queue depths for the operational surface.
type MetricsReader interface {
	QueueMetrics(ctx context.Context) ([]Metrics, error)
}

// Well-known pipeline queues.
const (
	SubmissionQueue = "submission_queue"
	SubmissionDLQ   = "submission_dlq"
	RoutingQueue    = "routing_queue"
	RoutingDLQ      = "routing_dlq"
	CompileQueue    = "compile_queue"
)

// RouteQueue returns the delivery queue for a partner route.
func RouteQueue(partner string) string {
	return fmt.Sprintf("route_%s_queue", partner)
}

// RouteDLQ returns the dead-letter queue for a partner route.
func RouteDLQ(partner string) string {
	return fmt.Sprintf("route_%s_dlq", partner)
}
