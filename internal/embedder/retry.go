package embedder

import (
	"context"
	"math/rand/v2"
	"time"
)

// Retry configuration defaults.
const (
	MaxRetries       = 3
	InitialBackoffMs = 100
	MaxBackoffMs     = 5000
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig returns sensible defaults for API retry.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: MaxRetries,
		BaseDelay:  InitialBackoffMs * time.Millisecond,
		MaxDelay:   MaxBackoffMs * time.Millisecond,
	}
}

// backoffFor returns the exponential delay for an attempt with jitter of up
// to +/-25%, capped at MaxDelay.
func (c RetryConfig) backoffFor(attempt int) time.Duration {
	if attempt > 20 {
		attempt = 20
	}
	backoff := c.BaseDelay * time.Duration(1<<uint(attempt))
	if backoff > c.MaxDelay {
		backoff = c.MaxDelay
	}
	jitter := time.Duration(rand.Int64N(int64(backoff)/2+1)) - backoff/4
	return backoff + jitter
}

// retryWithBackoff executes fn with exponential backoff. Retry is skipped on
// context cancellation.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T

	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt < config.MaxRetries-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(config.backoffFor(attempt)):
			}
		}
	}

	return zero, lastErr
}
