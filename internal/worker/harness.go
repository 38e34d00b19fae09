package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/lead-pipeline/internal/domain"
	"github.com/ignite/lead-pipeline/internal/pkg/logger"
)

// ErrDisabled is returned by Run when the worker's state row carries the
// disabled status, the operator kill-switch.
var ErrDisabled = errors.New("worker: disabled")

// Harness is the generic invocation wrapper every worker runs under. It
// owns the liveness protocol: the kill-switch check, the busy heartbeat,
// and the terminal idle/dead transition. The heartbeat is always stopped
// before the terminal write, so a dying worker can never be resurrected to
// busy by a stray tick.
type Harness struct {
	states    StateStore
	heartbeat time.Duration
}

// NewHarness creates a harness. heartbeat defaults to 10 seconds.
func NewHarness(states StateStore, heartbeat time.Duration) *Harness {
	if heartbeat <= 0 {
		heartbeat = 10 * time.Second
	}
	return &Harness{states: states, heartbeat: heartbeat}
}

// supervisor is the single writer of one worker's state row. All mutations
// funnel through transition under its mutex; once a terminal status is
// written the supervisor refuses further heartbeats.
type supervisor struct {
	mu       sync.Mutex
	terminal bool
	states   StateStore
	name     string
}

func (s *supervisor) transition(ctx context.Context, status domain.WorkerStatus, stoppedAt *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return
	}
	if status == domain.WorkerDead || status == domain.WorkerDisabled {
		s.terminal = true
	}
	if err := s.states.Upsert(ctx, s.name, status, stoppedAt); err != nil {
		logger.Error("worker state write failed",
			"worker", s.name, "status", string(status), "error", err.Error())
	}
}

func (s *supervisor) heartbeatTick(ctx context.Context) {
	s.transition(ctx, domain.WorkerBusy, nil)
}

// Run executes one worker invocation under the liveness protocol:
//
//  1. disabled status exits immediately without processing;
//  2. starting is recorded and a busy heartbeat begins;
//  3. fn runs; success records idle, failure records dead + stopped_at;
//  4. a canceled ctx during fn records dead (process shutdown).
//
// Run returns fn's error (or ErrDisabled); the host decides whether to keep
// polling. A dead worker does not crash the host process.
func (h *Harness) Run(ctx context.Context, name string, fn func(context.Context) error) error {
	st, err := h.states.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("harness %s: read state: %w", name, err)
	}
	sup := &supervisor{states: h.states, name: name}
	if st.Status == domain.WorkerDisabled {
		logger.Info("worker disabled, exiting", "worker", name)
		now := time.Now()
		sup.transition(ctx, domain.WorkerDisabled, &now)
		return ErrDisabled
	}

	sup.transition(ctx, domain.WorkerStarting, nil)

	// Heartbeat runs concurrently with fn. Its goroutine is joined before
	// any terminal write below; the supervisor's terminal latch is the
	// second line of defense.
	stop := make(chan struct{})
	var hbDone sync.WaitGroup
	hbDone.Add(1)
	go func() {
		defer hbDone.Done()
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sup.heartbeatTick(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	runErr := fn(ctx)

	close(stop)
	hbDone.Wait()

	// Terminal writes use a fresh context: the worker's state must be
	// recorded even when the run context was canceled by shutdown.
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch {
	case runErr != nil:
		logger.Error("worker crashed", "worker", name, "error", runErr.Error())
		now := time.Now()
		sup.transition(writeCtx, domain.WorkerDead, &now)
	case ctx.Err() != nil:
		now := time.Now()
		sup.transition(writeCtx, domain.WorkerDead, &now)
	default:
		sup.transition(writeCtx, domain.WorkerIdle, nil)
	}
	return runErr
}
