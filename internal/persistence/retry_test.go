package persistence

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(maxRetries int, onRetry func(int, error)) *RetryHelper {
	return NewRetryHelper(RetryConfig{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2,
	}, onRetry)
}

func TestRetryHelper_RetriesConflictsUntilSuccess(t *testing.T) {
	var retries []int
	helper := fastRetry(5, func(attempt int, err error) {
		assert.ErrorIs(t, err, ErrConflict)
		retries = append(retries, attempt)
	})

	calls := 0
	err := helper.WithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("busy: %w", ErrConflict)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestRetryHelper_DoesNotRetryOtherErrors(t *testing.T) {
	helper := fastRetry(5, nil)

	calls := 0
	err := helper.WithRetry(context.Background(), func() error {
		calls++
		return ErrUnavailable
	})

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, calls)
}

func TestRetryHelper_ExhaustedBudgetWrapsLastConflict(t *testing.T) {
	helper := fastRetry(2, nil)

	calls := 0
	err := helper.WithRetry(context.Background(), func() error {
		calls++
		return ErrConflict
	})

	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRetryHelper_StopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	helper := fastRetry(10, func(int, error) { cancel() })

	err := helper.WithRetry(ctx, func() error { return ErrConflict })
	assert.True(t, errors.Is(err, context.Canceled))
}
