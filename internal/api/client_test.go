// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/errors"
)

func TestNewClient(t *testing.T) {
	client := NewClient("tok", "https://git.example.com", false, false)
	assert.Equal(t, "https://git.example.com", client.BaseURL())
	assert.True(t, client.HasToken())

	anon := NewClient("", "https://git.example.com", false, false)
	assert.False(t, anon.HasToken())
}

func TestDoInjectsAuthAndDefaults(t *testing.T) {
	var gotAuth, gotAccept, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient("secret-token", server.URL, false, false)
	resp, err := client.Do(context.Background(), http.MethodGet, "/api/v1/ping", nil, nil, 0)
	require.NoError(t, err)

	assert.True(t, resp.OK())
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
	assert.Contains(t, gotAgent, "giteawatch/")
}

func TestDoHeaderOverride(t *testing.T) {
	var gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
	}))
	defer server.Close()

	client := NewClient("tok", server.URL, false, false)
	_, err := client.Do(context.Background(), http.MethodGet, "/logs", map[string]string{"Accept": "*/*"}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "*/*", gotAccept)
}

func TestDoNoTokenMeansNoAuthHeader(t *testing.T) {
	var sawAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
	}))
	defer server.Close()

	client := NewClient("", server.URL, false, false)
	_, err := client.Do(context.Background(), http.MethodGet, "/", nil, nil, 0)
	require.NoError(t, err)
	assert.False(t, sawAuth)
}

func TestDoTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient("tok", server.URL, false, false)
	_, err := client.Do(context.Background(), http.MethodGet, "/slow", nil, nil, 20*time.Millisecond)
	require.Error(t, err)

	netErr, ok := err.(*errors.NetworkError)
	require.True(t, ok, "timeout should surface as NetworkError, got %T", err)
	assert.True(t, netErr.Timeout)
	assert.True(t, errors.IsTimeout(err))
}

func TestGetJSONRejectsNonJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html>login page</html>`))
	}))
	defer server.Close()

	client := NewClient("tok", server.URL, false, false)
	_, err := client.GetJSON(context.Background(), "/api/v1/repos")
	assert.Error(t, err)
}

func TestGetJSONSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"repo not found"}`))
	}))
	defer server.Close()

	client := NewClient("tok", server.URL, false, false)
	_, err := client.GetJSON(context.Background(), "/api/v1/repos/x/y")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Contains(t, err.Error(), "repo not found")
}

func TestPostJSONSendsBody(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody = make([]byte, r.ContentLength)
		_, _ = r.Body.Read(gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient("tok", server.URL, false, false)
	resp, err := client.PostJSON(context.Background(), "/view", map[string]string{"x-csrf-token": "abc"},
		map[string]any{"logCursors": []any{}})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"logCursors":[]}`, string(gotBody))
}
