// Package ratelimit implements the token-bucket throttle guarding outbound
// calls to the messaging provider.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket. Tokens regenerate proportional to elapsed time
// at maxRequests per window, capped at burst. Acquire blocks until a full
// token is available, so no caller proceeds ahead of the bucket.
type Limiter struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time

	ratePerSec float64
	burst      float64

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New creates a Limiter allowing maxRequests per window with the given burst
// size. The bucket starts full.
func New(maxRequests int, window time.Duration, burst int) *Limiter {
	l := &Limiter{
		tokens:     float64(burst),
		ratePerSec: float64(maxRequests) / window.Seconds(),
		burst:      float64(burst),
		now:        time.Now,
		sleep:      sleepCtx,
	}
	l.lastRefill = l.now()
	return l
}

// Acquire blocks until one token is consumed or ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait := l.take()
		if wait <= 0 {
			return nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// take consumes a token if available, otherwise returns how long until
// exactly one token will have regenerated. Refill and consumption happen
// under one lock so concurrent callers cannot overdraw the bucket.
func (l *Limiter) take() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(l.lastRefill)
	if elapsed > 0 {
		l.tokens += elapsed.Seconds() * l.ratePerSec
		if l.tokens > l.burst {
			l.tokens = l.burst
		}
		l.lastRefill = now
	}

	if l.tokens >= 1 {
		l.tokens--
		return 0
	}

	missing := 1 - l.tokens
	return time.Duration(missing / l.ratePerSec * float64(time.Second))
}

// Tokens returns the current token count after a refill, for inspection.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	tokens := l.tokens + now.Sub(l.lastRefill).Seconds()*l.ratePerSec
	if tokens > l.burst {
		tokens = l.burst
	}
	return tokens
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
