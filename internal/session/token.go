// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"net/http"
	"regexp"
	"strings"
)

// The run page embeds the CSRF token in several places depending on
// the server version. Extraction tries each strategy in preference
// order; the first hit wins.

var (
	csrfCookiePattern  = regexp.MustCompile(`_csrf=([^;]+)`)
	metaTagPattern     = regexp.MustCompile(`<meta\s+name="csrf-token"\s+content="([^"]+)"`)
	hiddenInputPattern = regexp.MustCompile(`<input[^>]+name="_csrf"[^>]+value="([^"]+)"`)
	dataCSRFPattern    = regexp.MustCompile(`data-csrf="([^"]+)"`)
)

// extractToken finds the CSRF token in a run-page response. Returns
// "" when no strategy succeeds; that is not fatal, some server
// versions accept the POST without it.
func extractToken(header http.Header, body []byte) string {
	// Multi-value Set-Cookie first, then the single-header case (the
	// same loop covers both since Values returns one entry then).
	for _, raw := range header.Values("Set-Cookie") {
		if m := csrfCookiePattern.FindStringSubmatch(raw); m != nil {
			return m[1]
		}
	}

	html := string(body)
	if m := metaTagPattern.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	if m := hiddenInputPattern.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	if m := dataCSRFPattern.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	return ""
}

// extractCookies collects the name=value pairs from Set-Cookie headers
// for replay on subsequent POSTs.
func extractCookies(header http.Header) []string {
	var pairs []string
	for _, raw := range header.Values("Set-Cookie") {
		pair := raw
		if i := strings.Index(raw, ";"); i >= 0 {
			pair = raw[:i]
		}
		pair = strings.TrimSpace(pair)
		if pair != "" && strings.Contains(pair, "=") {
			pairs = append(pairs, pair)
		}
	}
	return pairs
}
