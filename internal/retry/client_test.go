// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package retry

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/errors"
)

func fastConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       0,
	}
}

func retryableErr() error {
	return &errors.APIError{StatusCode: http.StatusServiceUnavailable, Message: "down", ErrorType: errors.ErrorTypeAPI}
}

func TestDoWithRetrySucceedsFirstTry(t *testing.T) {
	c := NewClient(fastConfig(), false)
	calls := 0
	err := c.DoWithRetry(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithRetryRetriesTransientErrors(t *testing.T) {
	c := NewClient(fastConfig(), false)
	calls := 0
	err := c.DoWithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return retryableErr()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoWithRetryGivesUp(t *testing.T) {
	c := NewClient(fastConfig(), false)
	calls := 0
	err := c.DoWithRetry(context.Background(), func() error {
		calls++
		return retryableErr()
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
}

func TestDoWithRetryPermanentErrorFailsFast(t *testing.T) {
	c := NewClient(fastConfig(), false)
	calls := 0
	err := c.DoWithRetry(context.Background(), func() error {
		calls++
		return &errors.APIError{StatusCode: http.StatusNotFound, Message: "gone", ErrorType: errors.ErrorTypeNotFound}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "permanent error")
}

func TestDoWithRetryHonorsContext(t *testing.T) {
	c := NewClient(&Config{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     time.Second,
		Multiplier:   1,
	}, false)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := c.DoWithRetry(ctx, func() error { return retryableErr() })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClientNilConfig(t *testing.T) {
	c := NewClient(nil, false)
	assert.Equal(t, 3, c.config.MaxAttempts)
}

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Hour)
	boom := func() error { return retryableErr() }

	require.Error(t, cb.Call(boom))
	assert.Equal(t, StateClosed, cb.State())

	require.Error(t, cb.Call(boom))
	assert.Equal(t, StateOpen, cb.State())

	calls := 0
	err := cb.Call(func() error { calls++; return nil })
	require.Error(t, err, "open breaker rejects without calling")
	assert.Equal(t, 0, calls)
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	require.Error(t, cb.Call(func() error { return retryableErr() }))
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Three consecutive successes close the breaker.
	for i := 0; i < 3; i++ {
		require.NoError(t, cb.Call(func() error { return nil }))
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	require.Error(t, cb.Call(func() error { return retryableErr() }))

	time.Sleep(20 * time.Millisecond)
	require.Error(t, cb.Call(func() error { return retryableErr() }))
	assert.Equal(t, StateOpen, cb.State())
}

// Exercised with -race: the breaker is shared by every hydration
// worker hitting the same repository, so Call must tolerate concurrent
// callers with a flapping upstream.
func TestCircuitBreakerConcurrentCalls(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Millisecond)

	var flip atomic.Int64
	flaky := func() error {
		if flip.Add(1)%2 == 0 {
			return retryableErr()
		}
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = cb.Call(flaky)
			}
		}()
	}
	wg.Wait()

	state := cb.State()
	assert.Contains(t, []CircuitState{StateClosed, StateOpen, StateHalfOpen}, state)

	cb.Reset()
	assert.NoError(t, cb.Call(func() error { return nil }))
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Hour)
	require.Error(t, cb.Call(func() error { return retryableErr() }))
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Call(func() error { return nil }))
}
