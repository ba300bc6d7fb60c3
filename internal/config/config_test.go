// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateConfig redirects XDG paths into a temp dir and resets viper's
// global state so tests cannot see or touch the real config.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	xdg.Reload()
	viper.Reset()
	t.Cleanup(func() {
		viper.Reset()
		xdg.Reload()
	})
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	isolateConfig(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "", cfg.BaseURL)
	assert.Equal(t, "workspace", cfg.Discovery)
	assert.Equal(t, 10, cfg.PollRunningSeconds)
	assert.Equal(t, 60, cfg.PollIdleSeconds)
	assert.Equal(t, 20, cfg.MaxRuns)
	assert.Equal(t, 50, cfg.MaxJobs)
	assert.Equal(t, 4, cfg.RepoConcurrency)
	assert.Equal(t, 3, cfg.JobConcurrency)
	assert.False(t, cfg.InsecureTLS)
	assert.False(t, cfg.Debug)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	isolateConfig(t)
	t.Setenv(EnvBaseURL, "https://git.example.com")
	t.Setenv(EnvDebug, "1")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://git.example.com", cfg.BaseURL)
	assert.True(t, cfg.Debug)
}

func TestSaveAndReloadConfig(t *testing.T) {
	dir := isolateConfig(t)

	cfg := &Config{
		BaseURL:            "https://git.internal:3000",
		Discovery:          "pinned",
		Pinned:             []string{"acme/widgets"},
		PollRunningSeconds: 5,
		PollIdleSeconds:    120,
		MaxRuns:            10,
		MaxJobs:            25,
		RepoConcurrency:    2,
		JobConcurrency:     2,
	}
	require.NoError(t, SaveConfig(cfg))

	_, err := os.Stat(filepath.Join(dir, "giteawatch", "config.yaml"))
	require.NoError(t, err)

	viper.Reset()
	loaded, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://git.internal:3000", loaded.BaseURL)
	assert.Equal(t, "pinned", loaded.Discovery)
	assert.Equal(t, []string{"acme/widgets"}, loaded.Pinned)
	assert.Equal(t, 5, loaded.PollRunningSeconds)
	assert.Equal(t, 120, loaded.PollIdleSeconds)
	assert.Equal(t, 10, loaded.MaxRuns)
	assert.Equal(t, 25, loaded.MaxJobs)
}

func TestConfigDirUnderXDG(t *testing.T) {
	dir := isolateConfig(t)
	assert.Equal(t, filepath.Join(dir, "giteawatch"), ConfigDir())
}
