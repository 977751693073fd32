package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquire_RespectsConcurrency(t *testing.T) {
	l := New(2, 0)

	r1, ok := l.TryAcquire()
	require.True(t, ok)
	r2, ok := l.TryAcquire()
	require.True(t, ok)
	_, ok = l.TryAcquire()
	assert.False(t, ok)
	assert.Equal(t, 2, l.InUse())

	r1()
	r1()
	assert.Equal(t, 1, l.InUse())
	r3, ok := l.TryAcquire()
	assert.True(t, ok)
	r2()
	r3()
	assert.Equal(t, 0, l.InUse())
}

func TestTryAcquire_RateLimited(t *testing.T) {
	l := New(10, 1)
	release, ok := l.TryAcquire()
	require.True(t, ok)
	release()

	_, ok = l.TryAcquire()
	assert.False(t, ok)
	assert.Equal(t, 0, l.InUse())
}

func TestAcquire_HonorsContext(t *testing.T) {
	l := New(1, 0)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
