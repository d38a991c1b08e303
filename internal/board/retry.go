package board

import (
	"context"
	"errors"
	"time"
)

// RetryConfig bounds the capped exponential backoff used both by
// WithRetry (synchronous per-call retry) and the push-retry queue
// (asynchronous mirror-failure retry). Mirrors the reconnect-wait /
// max-reconnects shape of the teacher's internal/nats.Client, generalized
// from "reconnect forever" to "retry up to N times, then surface."
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig starts from a 200ms base delay capped at 10s, with
// at most 5 attempts. Unlike the teacher's NATS client (fixed 2s wait,
// reconnect forever), board calls must eventually surface to the caller.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 5,
	BaseDelay:   200 * time.Millisecond,
	MaxDelay:    10 * time.Second,
}

// WithRetry runs fn, retrying while it returns a *TransientError, with
// capped exponential backoff. Non-transient errors return immediately.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.BaseDelay
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var transient *TransientError
		if !errors.As(lastErr, &transient) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}
