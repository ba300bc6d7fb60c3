// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// Config is the configuration-provider surface the engine consumes.
// The token never lives here; it goes through SecureStorage.
type Config struct {
	BaseURL     string `mapstructure:"base_url"`
	InsecureTLS bool   `mapstructure:"insecure_tls"`

	// Discovery selects repository resolution: workspace, pinned, all.
	Discovery string   `mapstructure:"discovery"`
	Pinned    []string `mapstructure:"pinned"`
	Roots     []string `mapstructure:"roots"`

	// Poll intervals in seconds: the scheduler uses the shorter one
	// while any run is active.
	PollRunningSeconds int `mapstructure:"poll_running_seconds"`
	PollIdleSeconds    int `mapstructure:"poll_idle_seconds"`

	MaxRuns int `mapstructure:"max_runs"`
	MaxJobs int `mapstructure:"max_jobs"`

	RepoConcurrency int `mapstructure:"repo_concurrency"`
	JobConcurrency  int `mapstructure:"job_concurrency"`

	Debug bool `mapstructure:"debug"`
}

var defaultConfig = Config{
	Discovery:          "workspace",
	PollRunningSeconds: 10,
	PollIdleSeconds:    60,
	MaxRuns:            20,
	MaxJobs:            50,
	RepoConcurrency:    4,
	JobConcurrency:     3,
}

// ConfigDir returns the giteawatch config directory.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, "giteawatch")
}

// LoadConfig reads config.yaml plus GITEAWATCH_* env overrides.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configDir := ConfigDir()
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create config directory %s: %v\n", configDir, err)
	}
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("GITEAWATCH")
	viper.AutomaticEnv()

	viper.SetDefault("discovery", defaultConfig.Discovery)
	viper.SetDefault("poll_running_seconds", defaultConfig.PollRunningSeconds)
	viper.SetDefault("poll_idle_seconds", defaultConfig.PollIdleSeconds)
	viper.SetDefault("max_runs", defaultConfig.MaxRuns)
	viper.SetDefault("max_jobs", defaultConfig.MaxJobs)
	viper.SetDefault("repo_concurrency", defaultConfig.RepoConcurrency)
	viper.SetDefault("job_concurrency", defaultConfig.JobConcurrency)
	viper.SetDefault("insecure_tls", false)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if os.Getenv(EnvBaseURL) != "" {
		config.BaseURL = os.Getenv(EnvBaseURL)
	}
	if os.Getenv(EnvDebug) == "1" || os.Getenv(EnvDebug) == "true" {
		config.Debug = true
	}

	return &config, nil
}

// SaveConfig persists the configuration to config.yaml.
func SaveConfig(config *Config) error {
	viper.Set("base_url", config.BaseURL)
	viper.Set("insecure_tls", config.InsecureTLS)
	viper.Set("discovery", config.Discovery)
	viper.Set("pinned", config.Pinned)
	viper.Set("roots", config.Roots)
	viper.Set("poll_running_seconds", config.PollRunningSeconds)
	viper.Set("poll_idle_seconds", config.PollIdleSeconds)
	viper.Set("max_runs", config.MaxRuns)
	viper.Set("max_jobs", config.MaxJobs)
	viper.Set("repo_concurrency", config.RepoConcurrency)
	viper.Set("job_concurrency", config.JobConcurrency)
	viper.Set("debug", config.Debug)

	configDir := ConfigDir()
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configDir, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
