package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type timeoutError struct {
	timeout bool
}

func (e timeoutError) Error() string   { return "net timeout" }
func (e timeoutError) Timeout() bool   { return e.timeout }
func (e timeoutError) Temporary() bool { return e.timeout }

func TestExponentialRetryPolicy_ShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy()

	require.False(t, p.ShouldRetry(nil, 1))
	require.False(t, p.ShouldRetry(errors.New("boom"), 3))
	require.False(t, p.ShouldRetry(context.Canceled, 1))
	require.False(t, p.ShouldRetry(context.DeadlineExceeded, 1))
	require.True(t, p.ShouldRetry(errors.New("boom"), 1))
	require.True(t, p.ShouldRetry(timeoutError{timeout: true}, 1))
	require.False(t, p.ShouldRetry(timeoutError{timeout: false}, 1))
}

func TestExponentialRetryPolicy_BackoffBounds(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy()

	for attempt := 1; attempt <= 5; attempt++ {
		backoff := p.Backoff(attempt)
		require.Greater(t, backoff, time.Duration(0), "attempt %d", attempt)
		require.LessOrEqual(t, backoff, p.maxDelay, "attempt %d", attempt)
	}
}

func TestExponentialRetryPolicy_BackoffGrows(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy()

	// Jitter is bounded by half the capped delay, so the minimum for a later
	// attempt eventually exceeds the maximum for an earlier one.
	require.GreaterOrEqual(t, p.Backoff(4), p.Backoff(1)/2)
}
