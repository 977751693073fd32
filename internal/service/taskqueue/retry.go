package taskqueue

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how a single task is retried when the provider throttles it.
type RetryPolicy struct {
	// MaxAttempts counts the first call.
	MaxAttempts int
	BaseDelay   time.Duration
	// Jitter is the upper bound of the random amount added to the first delay.
	Jitter    time.Duration
	Retryable func(error) bool
}

// Backoff returns the wait before retry number attempt (1-based): the jittered
// base delay doubled for every earlier retry.
func (p RetryPolicy) Backoff(attempt int, jitter time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return (p.BaseDelay + jitter) * time.Duration(1<<uint(attempt-1))
}

// newJitter draws from a source seeded for this call only, so concurrent
// callers never share a retry rhythm.
func (p RetryPolicy) newJitter() time.Duration {
	if p.Jitter <= 0 {
		return 0
	}
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	return time.Duration(rng.Int64N(int64(p.Jitter)))
}

func sleepWithContext(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
