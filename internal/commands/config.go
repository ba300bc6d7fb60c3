package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Get and set configuration values",
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Show configuration values",
	RunE: func(_ *cobra.Command, args []string) error {
		entries := map[string]string{
			"base-url":             cfg.BaseURL,
			"insecure-tls":         strconv.FormatBool(cfg.InsecureTLS),
			"discovery":            cfg.Discovery,
			"pinned":               strings.Join(cfg.Pinned, ","),
			"roots":                strings.Join(cfg.Roots, ","),
			"poll-running-seconds": strconv.Itoa(cfg.PollRunningSeconds),
			"poll-idle-seconds":    strconv.Itoa(cfg.PollIdleSeconds),
			"max-runs":             strconv.Itoa(cfg.MaxRuns),
			"max-jobs":             strconv.Itoa(cfg.MaxJobs),
		}

		if len(args) == 1 {
			value, ok := entries[args[0]]
			if !ok {
				return fmt.Errorf("unknown config key %q", args[0])
			}
			fmt.Println(value)
			return nil
		}

		for _, key := range []string{"base-url", "insecure-tls", "discovery", "pinned", "roots",
			"poll-running-seconds", "poll-idle-seconds", "max-runs", "max-jobs"} {
			fmt.Printf("%s: %s\n", key, entries[key])
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		switch key {
		case "base-url":
			cfg.BaseURL = value
		case "insecure-tls":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("insecure-tls wants true/false: %w", err)
			}
			if b {
				fmt.Println("Warning: TLS certificate verification will be disabled.")
			}
			cfg.InsecureTLS = b
		case "discovery":
			if value != "workspace" && value != "pinned" && value != "all" {
				return fmt.Errorf("discovery must be workspace, pinned, or all")
			}
			cfg.Discovery = value
		case "pinned":
			cfg.Pinned = splitNonEmpty(value)
		case "roots":
			cfg.Roots = splitNonEmpty(value)
		case "poll-running-seconds":
			return setIntField(&cfg.PollRunningSeconds, key, value)
		case "poll-idle-seconds":
			return setIntField(&cfg.PollIdleSeconds, key, value)
		case "max-runs":
			return setIntField(&cfg.MaxRuns, key, value)
		case "max-jobs":
			return setIntField(&cfg.MaxJobs, key, value)
		case "token":
			storage := config.NewSecureStorage()
			return storage.SaveToken(value)
		default:
			return fmt.Errorf("unknown config key %q", key)
		}

		return config.SaveConfig(cfg)
	},
}

func setIntField(field *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fmt.Errorf("%s wants a positive integer", key)
	}
	*field = n
	return config.SaveConfig(cfg)
}

func splitNonEmpty(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}
