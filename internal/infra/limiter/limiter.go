// Package limiter admits generation runs: a token bucket caps how fast runs
// start and a semaphore caps how many run at once.
package limiter

import (
	"context"
	"math"
	"sync"

	"golang.org/x/time/rate"
)

type Limiter struct {
	semaphore   chan struct{}
	rateLimiter *rate.Limiter
}

// New builds a limiter. A non-positive rate disables the token bucket.
func New(maxConcurrent int, ratePerSecond float64) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	limit := rate.Inf
	burst := maxConcurrent
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = int(math.Max(1, math.Ceil(ratePerSecond)))
	}
	return &Limiter{
		semaphore:   make(chan struct{}, maxConcurrent),
		rateLimiter: rate.NewLimiter(limit, burst),
	}
}

func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	if err := l.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	select {
	case l.semaphore <- struct{}{}:
		return l.releaseFunc(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Limiter) TryAcquire() (release func(), ok bool) {
	select {
	case l.semaphore <- struct{}{}:
	default:
		return nil, false
	}
	if !l.rateLimiter.Allow() {
		<-l.semaphore
		return nil, false
	}
	return l.releaseFunc(), true
}

// InUse reports slots currently held.
func (l *Limiter) InUse() int {
	return len(l.semaphore)
}

func (l *Limiter) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(func() { <-l.semaphore })
	}
}
