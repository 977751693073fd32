// Package taskqueue runs provider calls strictly one at a time, leaving a
// minimum gap between calls and retrying throttled calls with backoff.
package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ChaseRain/deckstream/internal/infra/logger"
)

type Task[T any] func(ctx context.Context) (T, error)

// Result is delivered exactly once per enqueued task. A failed task carries
// the zero value and the last error; it never stops the queue.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
}

type Options struct {
	Name string
	// Spacing is the minimum idle gap between the end of one task and the
	// start of the next.
	Spacing time.Duration
	Retry   RetryPolicy
	Logger  *logger.Logger

	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

type job[T any] struct {
	ctx  context.Context
	task Task[T]
	done chan Result[T]
}

type Queue[T any] struct {
	opts   Options
	logger *logger.Logger

	mu       sync.Mutex
	pending  []*job[T]
	running  bool
	lastDone time.Time
}

func New[T any](opts Options) *Queue[T] {
	if opts.Sleep == nil {
		opts.Sleep = sleepWithContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 1
	}
	if opts.Name == "" {
		opts.Name = "taskqueue"
	}
	return &Queue[T]{
		opts:   opts,
		logger: logger.OrNop(opts.Logger).Named(opts.Name),
	}
}

// Enqueue appends task in FIFO order and returns a channel that receives its
// result once. ctx is handed to the task; a task whose ctx is already done
// when its turn comes is skipped with ctx's error.
func (q *Queue[T]) Enqueue(ctx context.Context, task Task[T]) <-chan Result[T] {
	j := &job[T]{ctx: ctx, task: task, done: make(chan Result[T], 1)}

	q.mu.Lock()
	q.pending = append(q.pending, j)
	start := !q.running
	q.running = true
	q.mu.Unlock()

	if start {
		go q.drain()
	}
	return j.done
}

// Do enqueues task and waits for its result.
func (q *Queue[T]) Do(ctx context.Context, task Task[T]) Result[T] {
	return <-q.Enqueue(ctx, task)
}

// Len reports tasks waiting to start.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue[T]) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		j := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		lastDone := q.lastDone
		q.mu.Unlock()

		if err := j.ctx.Err(); err != nil {
			j.done <- Result[T]{Err: err}
			close(j.done)
			continue
		}

		if !lastDone.IsZero() {
			if wait := q.opts.Spacing - q.opts.Now().Sub(lastDone); wait > 0 {
				q.logger.Debug("spacing before next task", "wait_ms", wait.Milliseconds())
				_ = q.opts.Sleep(context.Background(), wait)
			}
		}

		res := q.execute(j)

		q.mu.Lock()
		q.lastDone = q.opts.Now()
		q.mu.Unlock()

		j.done <- res
		close(j.done)
	}
}

func (q *Queue[T]) execute(j *job[T]) (res Result[T]) {
	policy := q.opts.Retry
	jitter := policy.newJitter()

	for attempt := 1; ; attempt++ {
		value, err := q.call(j)
		res = Result[T]{Value: value, Err: err, Attempts: attempt}
		if err == nil {
			return res
		}
		if policy.Retryable == nil || !policy.Retryable(err) {
			q.logger.Error("task failed", "attempt", attempt, "error", err)
			return Result[T]{Err: err, Attempts: attempt}
		}
		if attempt >= policy.MaxAttempts {
			q.logger.Error("task still throttled after retries", "attempts", attempt, "error", err)
			return Result[T]{Err: err, Attempts: attempt}
		}
		wait := policy.Backoff(attempt, jitter)
		q.logger.Warn("task rate limited",
			"retry_attempt", attempt,
			"retry_max", policy.MaxAttempts-1,
			"retry_in_ms", wait.Milliseconds(),
		)
		if err := q.opts.Sleep(j.ctx, wait); err != nil {
			return Result[T]{Err: err, Attempts: attempt}
		}
	}
}

func (q *Queue[T]) call(j *job[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return j.task(j.ctx)
}
