// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/errors"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/pkg/version"
)

const (
	// DefaultTimeout bounds a single request; callers may override it
	// per call. The engine polls, so nothing is allowed to hang.
	DefaultTimeout = 30 * time.Second
)

// Client executes HTTP calls against one Gitea instance. It injects
// bearer auth and sensible defaults, and it never retries: retry
// policy lives in callers that have enough context to decide.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	insecure   bool
	timeout    time.Duration
	debug      bool
}

// NewClient builds a client for baseURL. insecure disables TLS
// certificate verification; it is opt-in and logged loudly so it can
// never be mistaken for a default.
func NewClient(token, baseURL string, insecure, debug bool) *Client {
	transport := http.DefaultTransport
	if insecure {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // #nosec G402 -- explicit user opt-in
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		logger.Warn("TLS certificate verification disabled", "base_url", baseURL)
	}

	return &Client{
		httpClient: &http.Client{Transport: transport},
		baseURL:    baseURL,
		token:      token,
		insecure:   insecure,
		timeout:    DefaultTimeout,
		debug:      debug,
	}
}

// BaseURL returns the configured instance URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HasToken reports whether a bearer token is configured.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// Response is the raw outcome of one request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status code is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Do executes one request. A bearer header is injected when a token is
// present and "Accept: application/json" is defaulted; both may be
// overridden via headers. timeout <= 0 falls back to the client
// default. Timeouts surface as a NetworkError with Timeout set.
func (c *Client) Do(ctx context.Context, method, path string, headers map[string]string, body io.Reader, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", fmt.Sprintf("giteawatch/%s", version.GetVersion()))
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if c.debug {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		logger.Debug("API request",
			"method", method,
			"url", req.URL.String(),
			"has_body", body != nil,
		)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		netErr := &errors.NetworkError{
			Err:       err,
			Operation: fmt.Sprintf("%s %s", method, path),
			URL:       c.baseURL + path,
			Timeout:   reqCtx.Err() == context.DeadlineExceeded,
		}
		return nil, netErr
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.NetworkError{
			Err:       err,
			Operation: fmt.Sprintf("%s %s", method, path),
			URL:       c.baseURL + path,
			Timeout:   reqCtx.Err() == context.DeadlineExceeded,
		}
	}

	if c.debug {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		logger.Debug("API response", "status", resp.Status, "bytes", len(respBody))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// GetJSON issues a GET and validates that the response is 2xx JSON.
func (c *Client) GetJSON(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.Do(ctx, http.MethodGet, path, nil, nil, 0)
	if err != nil {
		return nil, err
	}
	if err := ValidateJSONResponse(resp); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// PostJSON issues a POST with a JSON body and extra headers. The
// response is returned unvalidated so callers can inspect protocol
// failures (the session fetcher needs the raw body for CSRF checks).
func (c *Client) PostJSON(ctx context.Context, path string, headers map[string]string, payload any) (*Response, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	merged := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		merged[k] = v
	}

	return c.Do(ctx, http.MethodPost, path, merged, bytes.NewReader(bodyBytes), 0)
}
