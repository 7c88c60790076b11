package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig configures retry behaviour for units of work that may lose a race.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns the retry budget used for contended writes.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    5,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      500 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// ErrRetriesExhausted wraps the last conflict once the retry budget is spent.
var ErrRetriesExhausted = errors.New("persistence: retries exhausted")

// RetryHelper re-runs a function while it fails with ErrConflict.
type RetryHelper struct {
	config  RetryConfig
	onRetry func(attempt int, err error)
}

// NewRetryHelper creates a retry helper. onRetry, when set, is called before
// every re-attempt.
func NewRetryHelper(config RetryConfig, onRetry func(attempt int, err error)) *RetryHelper {
	if config.BackoffFactor < 1 {
		config.BackoffFactor = 1
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &RetryHelper{config: config, onRetry: onRetry}
}

// WithRetry executes fn, retrying conflicts with exponential backoff.
func (rh *RetryHelper) WithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := rh.config.InitialDelay

	for attempt := 0; attempt <= rh.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if rh.onRetry != nil {
				rh.onRetry(attempt, lastErr)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * rh.config.BackoffFactor)
				if rh.config.MaxDelay > 0 && delay > rh.config.MaxDelay {
					delay = rh.config.MaxDelay
				}
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w after %d retries: %w", ErrRetriesExhausted, rh.config.MaxRetries, lastErr)
}
