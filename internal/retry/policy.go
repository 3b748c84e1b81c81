package retry

import (
	"context"
	"time"
)

// Outcome classifies a single attempt so the policy can pick the right delay
type Outcome int

const (
	// Success ends the retry loop
	Success Outcome = iota
	// RateLimited backs off with a delay that grows linearly per attempt
	RateLimited
	// Transient retries after a fixed short delay
	Transient
)

// Policy is an explicit retry discipline: bounded attempts, a backoff rule
// per failure class, and an injectable sleep so tests run without real
// delays. Attempts within one Do call are strictly sequential.
type Policy struct {
	MaxAttempts    int
	RateLimitDelay time.Duration
	RetryDelay     time.Duration

	// Sleep defaults to a context-aware timer wait
	Sleep func(ctx context.Context, d time.Duration) error
}

// DelayFor returns the backoff before the attempt following the given
// (1-based) attempt. Rate-limit delays grow with the attempt number; other
// transient failures wait a fixed interval.
func (p Policy) DelayFor(attempt int, outcome Outcome) time.Duration {
	if outcome == RateLimited {
		return p.RateLimitDelay * time.Duration(attempt)
	}
	return p.RetryDelay
}

// Do runs fn up to MaxAttempts times. fn reports how its attempt ended; the
// returned error of the final attempt is surfaced unchanged so callers keep
// the last observed failure.
func (p Policy) Do(ctx context.Context, fn func(attempt int) (Outcome, error)) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = wait
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		outcome, err := fn(attempt)
		if outcome == Success {
			return nil
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}
		if err := sleep(ctx, p.DelayFor(attempt, outcome)); err != nil {
			return err
		}
	}
	return lastErr
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
