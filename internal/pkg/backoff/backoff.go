// Package backoff provides bounded retry with exponential backoff for
// operations against the queue, the store, and partner endpoints.
package backoff

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy describes a bounded retry schedule. The delay before attempt n
// (n >= 2) is BaseDelay * Multiplier^(n-2), capped at MaxDelay, with full
// jitter applied when Jitter is true.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
}

// DefaultPolicy mirrors the pipeline's standard retry schedule:
// three attempts, 10ms base, doubling, no jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
	}
}

// QueuePolicy is the schedule for queue infrastructure calls, which contend
// with other workers and therefore jitter their delays.
func QueuePolicy() Policy {
	p := DefaultPolicy()
	p.BaseDelay = 50 * time.Millisecond
	p.Jitter = true
	return p
}

func (p Policy) normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 10 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

// delay returns the sleep before the given attempt (attempt is 1-based;
// attempt 1 has no delay).
func (p Policy) delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-2))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		// Full jitter: random duration between 0 and the calculated delay
		d = rand.Float64() * d
	}
	return time.Duration(d)
}

// Retry invokes fn up to p.MaxAttempts times, sleeping between attempts per
// the policy. It stops early when fn succeeds or ctx is done. The returned
// error is the last attempt's error, wrapped with the attempt count.
func Retry(ctx context.Context, p Policy, fn func() error) error {
	p = p.normalize()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if d := p.delay(attempt); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				if lastErr != nil {
					return fmt.Errorf("backoff: canceled after %d attempts: %w", attempt-1, lastErr)
				}
				return ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("backoff: canceled after %d attempts: %w", attempt-1, lastErr)
			}
			return err
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("backoff: exhausted %d attempts: %w", p.MaxAttempts, lastErr)
}
