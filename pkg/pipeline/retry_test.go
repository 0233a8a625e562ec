package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryBackoff_DoublesFromBase(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryBackoff(0))
	assert.Equal(t, 400*time.Millisecond, retryBackoff(1))
	assert.Equal(t, 800*time.Millisecond, retryBackoff(2))
}

func TestWithRetry_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0

	err := withRetry(context.Background(), 3, func() error {
		calls++

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	sentinel := errors.New("transient")

	err := withRetry(context.Background(), 3, func() error {
		calls++
		if calls < 3 {
			return sentinel
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_ReturnsLastErrorAfterExhaustingAttempts(t *testing.T) {
	sentinel := errors.New("persistent")
	calls := 0

	err := withRetry(context.Background(), 2, func() error {
		calls++

		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 2, calls)
}

func TestWithRetry_CancellationAbortsBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0

	err := withRetry(ctx, 3, func() error {
		calls++

		return errors.New("fails")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
