package taskqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ChaseRain/deckstream/internal/infra/logger"
)

var errThrottled = errors.New("throttled")

func isThrottled(err error) bool { return errors.Is(err, errThrottled) }

// fakeClock advances only when the queue sleeps.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func TestQueue_NeverRunsTasksConcurrently(t *testing.T) {
	for _, n := range []int{1, 2, 10} {
		q := New[int](Options{})

		type interval struct{ start, end time.Time }
		var (
			mu        sync.Mutex
			intervals []interval
			active    int32
			overlap   atomic.Bool
		)

		results := make([]<-chan Result[int], n)
		for i := 0; i < n; i++ {
			i := i
			results[i] = q.Enqueue(context.Background(), func(ctx context.Context) (int, error) {
				if atomic.AddInt32(&active, 1) > 1 {
					overlap.Store(true)
				}
				start := time.Now()
				time.Sleep(2 * time.Millisecond)
				end := time.Now()
				atomic.AddInt32(&active, -1)
				mu.Lock()
				intervals = append(intervals, interval{start, end})
				mu.Unlock()
				return i, nil
			})
		}
		for i, ch := range results {
			res := <-ch
			require.NoError(t, res.Err)
			assert.Equal(t, i, res.Value)
		}

		assert.False(t, overlap.Load())
		require.Len(t, intervals, n)
		for i := 1; i < len(intervals); i++ {
			assert.False(t, intervals[i].start.Before(intervals[i-1].end), "task %d started before task %d ended", i, i-1)
		}
	}
}

func TestQueue_RetriesThrottledTaskWithoutReordering(t *testing.T) {
	clock := newFakeClock()
	q := New[string](Options{
		Spacing: 15 * time.Second,
		Retry:   RetryPolicy{MaxAttempts: 3, BaseDelay: 5 * time.Second, Retryable: isThrottled},
		Sleep:   clock.Sleep,
		Now:     clock.Now,
	})

	var (
		mu    sync.Mutex
		order []string
		calls int
	)
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	r1 := q.Enqueue(context.Background(), func(context.Context) (string, error) {
		record("task1")
		return "img1", nil
	})
	r2 := q.Enqueue(context.Background(), func(context.Context) (string, error) {
		record("task2")
		calls++
		if calls <= 2 {
			return "", errThrottled
		}
		return "img2", nil
	})
	r3 := q.Enqueue(context.Background(), func(context.Context) (string, error) {
		record("task3")
		return "img3", nil
	})

	res1, res2, res3 := <-r1, <-r2, <-r3
	assert.Equal(t, "img1", res1.Value)
	require.NoError(t, res2.Err)
	assert.Equal(t, "img2", res2.Value)
	assert.Equal(t, 3, res2.Attempts)
	assert.Equal(t, "img3", res3.Value)

	assert.Equal(t, []string{"task1", "task2", "task2", "task2", "task3"}, order)
	assert.Equal(t, []time.Duration{
		15 * time.Second, // spacing after task1
		5 * time.Second,  // first retry
		10 * time.Second, // second retry doubles
		15 * time.Second, // spacing after task2
	}, clock.Sleeps())
}

func TestQueue_NonRetryableFailureDoesNotStallQueue(t *testing.T) {
	clock := newFakeClock()
	q := New[string](Options{
		Retry: RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Retryable: isThrottled},
		Sleep: clock.Sleep,
		Now:   clock.Now,
	})

	bad := q.Enqueue(context.Background(), func(context.Context) (string, error) {
		return "", errors.New("invalid prompt")
	})
	panicky := q.Enqueue(context.Background(), func(context.Context) (string, error) {
		panic("boom")
	})
	good := q.Enqueue(context.Background(), func(context.Context) (string, error) {
		return "ok", nil
	})

	res := <-bad
	assert.EqualError(t, res.Err, "invalid prompt")
	assert.Equal(t, 1, res.Attempts)
	assert.Error(t, (<-panicky).Err)
	assert.Equal(t, "ok", (<-good).Value)
	assert.Empty(t, clock.Sleeps())
}

func TestQueue_ExhaustedRetriesResolveWithError(t *testing.T) {
	clock := newFakeClock()
	q := New[string](Options{
		Retry: RetryPolicy{MaxAttempts: 3, BaseDelay: 5 * time.Second, Retryable: isThrottled},
		Sleep: clock.Sleep,
		Now:   clock.Now,
	})
	var calls int
	res := q.Do(context.Background(), func(context.Context) (string, error) {
		calls++
		return "", errThrottled
	})
	assert.ErrorIs(t, res.Err, errThrottled)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, clock.Sleeps())
}

func TestQueue_NoSpacingWhenIdleLongEnough(t *testing.T) {
	clock := newFakeClock()
	q := New[int](Options{Spacing: 15 * time.Second, Sleep: clock.Sleep, Now: clock.Now})

	q.Do(context.Background(), func(context.Context) (int, error) { return 1, nil })
	clock.mu.Lock()
	clock.now = clock.now.Add(time.Minute)
	clock.mu.Unlock()
	q.Do(context.Background(), func(context.Context) (int, error) { return 2, nil })

	assert.Empty(t, clock.Sleeps())
}

func TestQueue_SkipsTaskWhoseContextIsDone(t *testing.T) {
	q := New[int](Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran bool
	res := q.Do(ctx, func(context.Context) (int, error) {
		ran = true
		return 1, nil
	})
	assert.False(t, ran)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 0, q.Len())
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: 5 * time.Second}
	assert.Equal(t, time.Duration(0), p.Backoff(0, 0))
	assert.Equal(t, 5500*time.Millisecond, p.Backoff(1, 500*time.Millisecond))
	assert.Equal(t, 11*time.Second, p.Backoff(2, 500*time.Millisecond))
	assert.Equal(t, 22*time.Second, p.Backoff(3, 500*time.Millisecond))
}

func TestRetryPolicy_JitterWithinBound(t *testing.T) {
	p := RetryPolicy{Jitter: time.Second}
	for i := 0; i < 50; i++ {
		j := p.newJitter()
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, time.Second)
	}
	assert.Equal(t, time.Duration(0), RetryPolicy{}.newJitter())
}

func TestQueue_LogsUnderItsName(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	q := New[string](Options{
		Name:   "images",
		Logger: &logger.Logger{SugaredLogger: zap.New(core).Sugar()},
	})

	res := q.Do(context.Background(), func(context.Context) (string, error) {
		return "", errors.New("boom")
	})
	require.Error(t, res.Err)

	entries := logs.FilterMessage("task failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "images", entries[0].LoggerName)
}
