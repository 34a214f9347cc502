// Package retry wraps transient provider failures with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"syscall"
	"time"

	"reminder-service/internal/logging"
)

// retryAfterHinter is implemented by rate-limit errors that carry a
// provider-specified wait hint.
type retryAfterHinter interface {
	RetryAfterHint() time.Duration
}

// httpStatusError is implemented by provider errors carrying an HTTP status.
type httpStatusError interface {
	HTTPStatus() int
}

// Config controls the backoff schedule.
type Config struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultConfig matches the provider client defaults: 3 retries, 1s initial
// delay doubling up to 30s.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Manager executes operations with retry on transient failures.
type Manager struct {
	cfg    Config
	logger *logging.Logger

	sleep     func(context.Context, time.Duration) error
	randFloat func() float64
}

func NewManager(cfg Config, logger *logging.Logger) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = 2.0
	}
	return &Manager{
		cfg:       cfg,
		logger:    logger,
		sleep:     sleepCtx,
		randFloat: rand.Float64,
	}
}

// Execute runs fn, retrying retryable failures up to MaxRetries times.
// Non-retryable errors propagate immediately; the final error is the last
// attempt's error.
func (m *Manager) Execute(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
		if attempt == m.cfg.MaxRetries {
			break
		}
		delay := m.delayFor(attempt, lastErr)
		m.logger.Warnf("Attempt %d/%d for %s failed, retrying in %v: %v",
			attempt+1, m.cfg.MaxRetries+1, op, delay, lastErr)
		if err := m.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, m.cfg.MaxRetries+1, lastErr)
}

// delayFor computes the jittered backoff for the given attempt, floored at
// the provider's retry-after hint for rate-limit errors.
func (m *Manager) delayFor(attempt int, err error) time.Duration {
	delay := float64(m.cfg.InitialDelay) * math.Pow(m.cfg.BackoffMultiplier, float64(attempt))
	// jitter +/-25%
	delay *= 0.75 + m.randFloat()*0.5
	if delay > float64(m.cfg.MaxDelay) {
		delay = float64(m.cfg.MaxDelay)
	}
	d := time.Duration(delay)

	var hinter retryAfterHinter
	if errors.As(err, &hinter) {
		if hint := hinter.RetryAfterHint(); hint > d {
			d = hint
		}
	}
	return d
}

// Retryable classifies an error as transient. Rate-limit errors, retryable
// HTTP statuses and known transient network failures qualify; everything
// else (validation, business-rule and permanent provider errors) does not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var hinter retryAfterHinter
	if errors.As(err, &hinter) {
		return true
	}

	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.HTTPStatus() {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	return false
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
