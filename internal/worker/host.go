package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ignite/lead-pipeline/internal/pkg/logger"
)

// Worker is one pipeline stage runnable under the harness.
type Worker interface {
	Name() string
	Process(ctx context.Context) error
}

// Host polls a set of workers, each in its own goroutine, each invocation
// wrapped by the harness. A worker that dies is retried on the next poll; a
// disabled worker is polled too, so flipping the kill-switch off brings it
// back without a restart.
type Host struct {
	harness *Harness
	poll    time.Duration

	mu      sync.Mutex
	workers []Worker
}

// NewHost creates a host. poll defaults to 5 seconds.
func NewHost(harness *Harness, poll time.Duration) *Host {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Host{harness: harness, poll: poll}
}

// Add registers a worker with the host. Must be called before Run.
func (h *Host) Add(w Worker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.workers = append(h.workers, w)
}

// Run polls every registered worker until ctx is canceled, then waits for
// in-flight invocations to finish.
func (h *Host) Run(ctx context.Context) {
	h.mu.Lock()
	workers := make([]Worker, len(h.workers))
	copy(workers, h.workers)
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			h.pollLoop(ctx, w)
		}(w)
	}
	wg.Wait()
}

func (h *Host) pollLoop(ctx context.Context, w Worker) {
	logger.Info("worker polling started", "worker", w.Name(), "interval", h.poll.String())
	ticker := time.NewTicker(h.poll)
	defer ticker.Stop()

	for {
		// Uncaught worker failures mark the worker dead but never crash the
		// host; the next tick starts fresh.
		if err := h.harness.Run(ctx, w.Name(), w.Process); err != nil && !errors.Is(err, ErrDisabled) {
			logger.Warn("worker invocation failed", "worker", w.Name(), "error", err.Error())
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			logger.Info("worker polling stopped", "worker", w.Name())
			return
		}
	}
}
