// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

// Environment variable constants
const (
	// EnvToken is the environment variable for the Gitea access token
	EnvToken = "GITEAWATCH_TOKEN"

	// EnvBaseURL is the environment variable for the Gitea instance URL
	EnvBaseURL = "GITEAWATCH_BASE_URL"

	// EnvDebug is the environment variable for debug mode
	EnvDebug = "GITEAWATCH_DEBUG"
)
