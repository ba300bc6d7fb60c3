package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/cache"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/discovery"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/refresh"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/tree"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/tui"
)

var (
	watchRepos []string
	watchRoots []string
	watchMode  string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch workflow runs in a live terminal tree",
	Long: `Watch opens an interactive tree of repositories, runs, jobs and steps
that refreshes itself while anything is running. Repositories come from
the configured discovery mode unless --repo or --mode override it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := buildClient()
		if err != nil {
			return err
		}

		mode := discovery.Mode(cfg.Discovery)
		pinned := cfg.Pinned
		roots := cfg.Roots
		if len(watchRepos) > 0 {
			mode = discovery.ModePinned
			pinned = watchRepos
		}
		if len(watchRoots) > 0 {
			mode = discovery.ModeWorkspace
			roots = watchRoots
		}
		if watchMode != "" {
			switch discovery.Mode(watchMode) {
			case discovery.ModeWorkspace, discovery.ModePinned, discovery.ModeAll:
				mode = discovery.Mode(watchMode)
			default:
				return fmt.Errorf("unknown discovery mode %q, want workspace, pinned or all", watchMode)
			}
		}

		resolver := discovery.NewResolver(client, mode, cfg.BaseURL, pinned, roots, cfg.MaxRuns)
		orch := refresh.New(client, cache.NewStore(), tree.NewDiffer(), resolver, refresh.Config{
			RepoConcurrency: cfg.RepoConcurrency,
			JobConcurrency:  cfg.JobConcurrency,
			MaxRuns:         cfg.MaxRuns,
			MaxJobs:         cfg.MaxJobs,
			RepollDelay:     time.Duration(cfg.PollRunningSeconds) * time.Second,
		}, newLogger())

		return tui.Run(orch, cfg)
	},
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchRepos, "repo", nil, "owner/name to watch (repeatable, implies pinned mode)")
	watchCmd.Flags().StringSliceVar(&watchRoots, "root", nil, "workspace directory to scan for git remotes (repeatable)")
	watchCmd.Flags().StringVar(&watchMode, "mode", "", "discovery mode: workspace, pinned or all")
}
