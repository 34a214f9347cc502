package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told, so refill math is deterministic.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestLimiter(maxRequests int, window time.Duration, burst int) (*Limiter, *fakeClock, *[]time.Duration) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	slept := &[]time.Duration{}
	l := New(maxRequests, window, burst)
	l.now = clock.now
	l.lastRefill = clock.t
	l.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		clock.advance(d)
		return nil
	}
	return l, clock, slept
}

func TestAcquireBurstWithoutWaiting(t *testing.T) {
	l, _, slept := newTestLimiter(60, time.Minute, 10)

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	assert.Empty(t, *slept, "burst-sized request run should never sleep")
}

func TestAcquireBlocksWhenEmpty(t *testing.T) {
	l, _, slept := newTestLimiter(60, time.Minute, 2)

	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Acquire(context.Background()))

	require.Len(t, *slept, 1)
	// 60 per minute = 1 token per second
	assert.Equal(t, time.Second, (*slept)[0])
}

func TestTokensRegenerateOverTime(t *testing.T) {
	l, clock, _ := newTestLimiter(80, time.Minute, 10)

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	assert.InDelta(t, 0, l.Tokens(), 0.001)

	// 80/min = 4 tokens per 3 seconds
	clock.advance(3 * time.Second)
	assert.InDelta(t, 4, l.Tokens(), 0.001)
}

func TestTokensCappedAtBurst(t *testing.T) {
	l, clock, _ := newTestLimiter(80, time.Minute, 10)

	clock.advance(time.Hour)
	assert.InDelta(t, 10, l.Tokens(), 0.001)
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	l, _, _ := newTestLimiter(60, time.Minute, 1)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentAcquiresNeverOverdraw(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := New(60, time.Minute, 5)
	l.now = clock.now
	l.lastRefill = clock.t
	l.sleep = func(ctx context.Context, d time.Duration) error {
		return ctx.Err()
	}

	done := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			done <- l.Acquire(context.Background())
		}()
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, <-done)
	}
	assert.InDelta(t, 0, l.Tokens(), 0.001)
}
