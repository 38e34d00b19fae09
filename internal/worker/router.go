package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/lead-pipeline/internal/domain"
	"github.com/ignite/lead-pipeline/internal/pkg/logger"
	"github.com/ignite/lead-pipeline/internal/queue"
	"github.com/ignite/lead-pipeline/internal/rules"
)

// RouterWorker consumes routing_queue, evaluates the current compiled
// routing function, and forwards each message to its partner route queue.
// A message with no matching route is a hard routing failure and is
// dead-lettered, never routed by guesswork.
type RouterWorker struct {
	loader rules.CurrentLoader
	q      queue.Queue
	batch  int
	vt     time.Duration
}

// NewRouterWorker creates the router worker.
func NewRouterWorker(loader rules.CurrentLoader, q queue.Queue, batchSize int, visibilityTimeout time.Duration) *RouterWorker {
	if batchSize <= 0 {
		batchSize = 25
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 30 * time.Second
	}
	return &RouterWorker{loader: loader, q: q, batch: batchSize, vt: visibilityTimeout}
}

func (w *RouterWorker) Name() string { return "router-worker" }

// Process loads the routing function once per invocation, then routes one
// batch. A missing routing function fails the whole invocation: messages
// stay queued and redeliver once a compile has published.
func (w *RouterWorker) Process(ctx context.Context) error {
	current, err := w.loader.Current(ctx)
	if err != nil {
		return fmt.Errorf("router: load routing function: %w", err)
	}

	batch, err := w.q.DequeueBatch(ctx, queue.RoutingQueue, w.batch, w.vt)
	if err != nil {
		return fmt.Errorf("router: dequeue: %w", err)
	}
	for _, item := range batch {
		if err := w.routeOne(ctx, current.Tree, item); err != nil {
			w.deadLetter(ctx, item, err)
		}
	}
	return nil
}

func (w *RouterWorker) routeOne(ctx context.Context, tree *rules.Node, item queue.Message) error {
	var msg domain.RoutingMessage
	if err := json.Unmarshal(item.Payload, &msg); err != nil {
		return fmt.Errorf("malformed routing message: %w", err)
	}

	route, ok := rules.Evaluate(tree, rules.MessageFields(msg))
	if !ok {
		return fmt.Errorf("no route matched")
	}

	if _, err := w.q.Enqueue(ctx, queue.RouteQueue(route), msg, 0); err != nil {
		return fmt.Errorf("forward to %s: %w", route, err)
	}
	if err := w.q.DeleteMessage(ctx, queue.RoutingQueue, item.ID); err != nil {
		return fmt.Errorf("ack routing message: %w", err)
	}
	return nil
}

func (w *RouterWorker) deadLetter(ctx context.Context, item queue.Message, cause error) {
	logger.Error("routing message dead-lettered", "msg_id", fmt.Sprintf("%d", item.ID), "error", cause.Error())
	dl := domain.DeadLetter{Message: item.Payload, Error: cause.Error()}
	if _, err := w.q.Enqueue(ctx, queue.RoutingDLQ, dl, 0); err != nil {
		logger.Error("routing dlq publish failed", "error", err.Error())
	}
	if err := w.q.DeleteMessage(ctx, queue.RoutingQueue, item.ID); err != nil {
		logger.Error("routing ack failed", "error", err.Error())
	}
}
