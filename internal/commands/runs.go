package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/api"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/config"
	apperrors "github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/errors"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/models"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/retry"
)

// buildClient assembles an API client from config plus the stored
// token. Configuration errors surface before any network call.
func buildClient() (*api.Client, error) {
	if cfg.BaseURL == "" {
		return nil, &apperrors.ConfigError{Field: "base_url", Message: "no Gitea instance configured"}
	}
	token, err := config.NewSecureStorage().GetToken()
	if err != nil || token == "" {
		return nil, apperrors.NoTokenError()
	}
	return api.NewClient(token, cfg.BaseURL, cfg.InsecureTLS, cfg.Debug), nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func splitRepoArg(arg string) (owner, name string, err error) {
	parts := strings.SplitN(arg, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected owner/repo, got %q", arg)
	}
	return parts[0], parts[1], nil
}

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs <owner/repo>",
	Short: "List recent workflow runs for a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, name, err := splitRepoArg(args[0])
		if err != nil {
			return err
		}

		client, err := buildClient()
		if err != nil {
			return err
		}

		var runs []*models.WorkflowRun
		retrier := retry.NewClient(retry.DefaultConfig(), cfg.Debug)
		err = retrier.DoWithRetry(cmd.Context(), func() error {
			ctx, cancel := context.WithTimeout(cmd.Context(), api.DefaultTimeout)
			defer cancel()
			runs, err = client.ListRuns(ctx, owner, name, runsLimit)
			return err
		})
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No workflow runs found.")
			return nil
		}

		for _, run := range runs {
			status := string(run.Status)
			if run.Conclusion != models.ConclusionNone {
				status = fmt.Sprintf("%s (%s)", run.Status, run.Conclusion)
			}
			fmt.Printf("#%-6d %-24s %-20s %-16s %s\n",
				run.RunNumber,
				truncate(run.Title, 24),
				status,
				run.Branch,
				run.CreatedAt.Local().Format(time.RFC822),
			)
		}
		return nil
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
}
