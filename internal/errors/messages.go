// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// bodySnippetLen bounds how much of a failing response body is carried
// inside an error message.
const bodySnippetLen = 200

type apiErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ParseAPIError turns a non-2xx response into a typed error carrying
// the HTTP status and a snippet of the body.
func ParseAPIError(statusCode int, body []byte) error {
	// Gitea error payloads carry "message"; some proxies send "error".
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil {
		message := apiErr.Message
		if message == "" {
			message = apiErr.Error
		}
		if message != "" {
			return createErrorFromStatusCode(statusCode, message)
		}
	}

	message := strings.TrimSpace(string(body))
	if len(message) > bodySnippetLen {
		message = message[:bodySnippetLen]
	}
	if message == "" {
		message = fmt.Sprintf("API request failed with status %d", statusCode)
	}

	return createErrorFromStatusCode(statusCode, message)
}

func createErrorFromStatusCode(statusCode int, message string) error {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Message: message, Reason: http.StatusText(statusCode)}
	case http.StatusNotFound:
		return &APIError{
			StatusCode: statusCode,
			Status:     http.StatusText(statusCode),
			Message:    message,
			ErrorType:  ErrorTypeNotFound,
		}
	case http.StatusRequestTimeout:
		return &APIError{
			StatusCode: statusCode,
			Status:     http.StatusText(statusCode),
			Message:    message,
			ErrorType:  ErrorTypeTimeout,
		}
	default:
		return &APIError{
			StatusCode: statusCode,
			Status:     http.StatusText(statusCode),
			Message:    message,
			ErrorType:  ErrorTypeAPI,
		}
	}
}

// FormatUserError rewrites an error into a message suitable for direct
// display, stripping wrapper noise.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Message
	}

	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr.Error()
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		if netErr.Timeout {
			return "request timed out; the server may be slow or unreachable"
		}
		return "network connectivity issue: " + netErr.Err.Error()
	}

	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return protoErr.Error()
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}

	return err.Error()
}
