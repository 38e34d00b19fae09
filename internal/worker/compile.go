package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/lead-pipeline/internal/pkg/logger"
	"github.com/ignite/lead-pipeline/internal/queue"
	"github.com/ignite/lead-pipeline/internal/rules"
)

// CompileWorker consumes compile_queue signals and rebuilds the routing
// function from a full rule snapshot. Signals are coalesced: one compile
// serves however many queued, and every signal in the batch is acknowledged
// after a successful publish.
type CompileWorker struct {
	compiler *rules.Compiler
	q        queue.Queue
	batch    int
	vt       time.Duration
}

// NewCompileWorker creates the compile worker.
func NewCompileWorker(compiler *rules.Compiler, q queue.Queue, batchSize int, visibilityTimeout time.Duration) *CompileWorker {
	if batchSize <= 0 {
		batchSize = 25
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 30 * time.Second
	}
	return &CompileWorker{compiler: compiler, q: q, batch: batchSize, vt: visibilityTimeout}
}

func (w *CompileWorker) Name() string { return "rule-compiler" }

// Process compiles once if any signal is pending. A failed compile (store
// unreachable, zero enabled rules) leaves the signals queued; they redeliver
// after the visibility timeout and the compile is retried.
func (w *CompileWorker) Process(ctx context.Context) error {
	batch, err := w.q.DequeueBatch(ctx, queue.CompileQueue, w.batch, w.vt)
	if err != nil {
		return fmt.Errorf("compile: dequeue: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}

	if _, err := w.compiler.Compile(ctx); err != nil {
		return err
	}

	for _, item := range batch {
		if err := w.q.DeleteMessage(ctx, queue.CompileQueue, item.ID); err != nil {
			// the published function is already live; a redelivered signal
			// just causes a redundant recompile
			logger.Warn("compile signal ack failed", "msg_id", fmt.Sprintf("%d", item.ID), "error", err.Error())
		}
	}
	return nil
}
