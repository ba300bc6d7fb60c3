// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"fmt"
	"mime"
	"strings"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/errors"
)

// ParseError converts a non-2xx response into a typed error.
func ParseError(resp *Response) error {
	return errors.ParseAPIError(resp.StatusCode, resp.Body)
}

// ValidateJSONResponse checks that a response is 2xx and, when a
// Content-Type is present, that it is JSON. Failures become typed
// errors carrying the status and a body snippet.
func ValidateJSONResponse(resp *Response) error {
	if !resp.OK() {
		return errors.ParseAPIError(resp.StatusCode, resp.Body)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return &errors.APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unparseable content type %q", ct),
			ErrorType:  errors.ErrorTypeAPI,
		}
	}
	if mediaType != "application/json" && !strings.HasSuffix(mediaType, "+json") {
		snippet := string(resp.Body)
		if len(snippet) > 120 {
			snippet = snippet[:120]
		}
		return &errors.APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("expected JSON, got %s: %s", mediaType, snippet),
			ErrorType:  errors.ErrorTypeAPI,
		}
	}
	return nil
}
