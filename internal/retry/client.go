// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package retry

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/errors"
)

type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     15 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Client retries transient failures with exponential backoff. The
// remote client itself never retries; this lives at the command layer
// where there is enough context to decide.
type Client struct {
	config *Config
	debug  bool
}

func NewClient(config *Config, debug bool) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		config: config,
		debug:  debug,
	}
}

func (c *Client) DoWithRetry(ctx context.Context, fn func() error) error {
	delay := c.config.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !errors.IsRetryable(err) {
			if c.debug {
				fmt.Printf("Error is not retryable: %v\n", err)
			}
			return fmt.Errorf("permanent error: %w", err)
		}

		if attempt == c.config.MaxAttempts {
			if c.debug {
				fmt.Printf("Giving up after %d attempts\n", c.config.MaxAttempts)
			}
			return fmt.Errorf("giving up after %d attempts: %w", c.config.MaxAttempts, lastErr)
		}

		jitter := time.Duration(rand.Float64() * c.config.Jitter * float64(delay))
		actualDelay := delay + jitter

		if c.debug {
			fmt.Printf("Attempt %d/%d failed: %v. Retrying in %v...\n",
				attempt, c.config.MaxAttempts, err, actualDelay)
		}

		select {
		case <-time.After(actualDelay):
			delay = time.Duration(float64(delay) * c.config.Multiplier)
			if delay > c.config.MaxDelay {
				delay = c.config.MaxDelay
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

// CircuitBreaker guards the undocumented session protocol: it degrades
// upstream over time, and hammering a broken endpoint on every poll
// tick only makes the tree slower.
type CircuitBreaker struct {
	maxFailures      int
	resetTimeout     time.Duration
	halfOpenRequests int

	mu           sync.Mutex
	failures     int
	lastFailTime time.Time
	state        CircuitState
	successCount int
}

type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:      maxFailures,
		resetTimeout:     resetTimeout,
		halfOpenRequests: 3,
		state:            StateClosed,
	}
}

// Call runs fn under the breaker. The session fetcher shares one
// breaker across the orchestrator's job fan-out, so state lives behind
// a mutex; fn itself runs unlocked to keep hydrations concurrent.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	if cb.state == StateOpen && time.Since(cb.lastFailTime) > cb.resetTimeout {
		cb.state = StateHalfOpen
		cb.successCount = 0
	}
	if cb.state == StateOpen {
		cb.mu.Unlock()
		return fmt.Errorf("circuit breaker is open")
	}
	entered := cb.state
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.lastFailTime = time.Now()
		if entered == StateHalfOpen {
			cb.state = StateOpen
			cb.failures = cb.maxFailures
		} else {
			cb.failures++
			if cb.failures >= cb.maxFailures {
				cb.state = StateOpen
			}
		}
		return err
	}

	if entered == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.halfOpenRequests {
			cb.state = StateClosed
			cb.failures = 0
		}
		return nil
	}
	if cb.failures > 0 {
		cb.failures--
	}
	return nil
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && time.Since(cb.lastFailTime) > cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successCount = 0
}
