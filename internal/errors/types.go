// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package errors

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// NoTokenError returns a consistent error message for a missing token.
func NoTokenError() error {
	return fmt.Errorf(`access token not configured. You have 3 options:

A) Run 'giteawatch login' for interactive setup (recommended)
B) Run 'giteawatch config set token YOUR_TOKEN'
C) Set GITEAWATCH_TOKEN environment variable in your shell config

Generate a token under Settings > Applications on your Gitea instance`)
}

type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeAPI
	ErrorTypeNetwork
	ErrorTypeAuth
	ErrorTypeConfig
	ErrorTypeProtocol
	ErrorTypeTimeout
	ErrorTypeNotFound
)

// APIError is a non-2xx (or non-JSON) response from the primary API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	ErrorType  ErrorType
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("API error: %s (status %d)", e.Status, e.StatusCode)
}

func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode || e.ErrorType == t.ErrorType
}

// NetworkError wraps transport-level failures, including timeouts.
type NetworkError struct {
	Err       error
	Operation string
	URL       string
	Timeout   bool
}

func (e *NetworkError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("network error during %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AuthError covers rejected or missing credentials.
type AuthError struct {
	Message string
	Reason  string
}

func (e *AuthError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("authentication failed: %s (%s)", e.Message, e.Reason)
	}
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// ConfigError blocks all fetching: missing base URL or token. It is
// surfaced as an actionable message, never as a crash.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error (%s): %s", e.Field, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// ProtocolError is a session-protocol failure, e.g. a CSRF rejection
// that survived the single retry.
type ProtocolError struct {
	Operation string
	Message   string
	Err       error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session protocol error during %s: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("session protocol error during %s: %s", e.Operation, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

var (
	ErrNoToken      = &AuthError{Message: "no access token configured", Reason: "missing_token"}
	ErrInvalidToken = &AuthError{Message: "invalid access token", Reason: "invalid_token"}
	ErrTimeout      = &NetworkError{Err: errors.New("request timeout"), Operation: "API request", Timeout: true}
)

// IsRetryable reports whether an error is worth retrying at a layer
// that has enough context to retry (commands, never the client).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 408, 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout() || urlErr.Temporary()
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Temporary() || ne.Timeout()
	}

	return false
}

func IsTimeout(err error) bool {
	if err == nil {
		return false
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.Timeout
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}

	return false
}

func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401 || apiErr.StatusCode == 403
	}

	return false
}

func IsConfigError(err error) bool {
	if err == nil {
		return false
	}

	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404
	}

	return false
}
