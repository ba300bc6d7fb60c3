package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/config"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/errors"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/pkg/version"
)

var (
	cfg     *config.Config
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "giteawatch",
	Short: "Live view of Gitea Actions runs, jobs, steps, and logs",
	Long: `giteawatch polls a Gitea instance for workflow runs and renders them
as a live tree, streaming job and step logs while they execute.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			// Don't fail if config doesn't exist yet
			cfg = &config.Config{}
		}

		if debug {
			cfg.Debug = true
		}

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		errorMsg := errors.FormatUserError(err)
		fmt.Fprintf(os.Stderr, "Error: %s\n", errorMsg)

		if errors.IsAuthError(err) {
			fmt.Fprintf(os.Stderr, "\nHint: Run 'giteawatch login' to configure authentication\n")
		} else if errors.IsConfigError(err) {
			fmt.Fprintf(os.Stderr, "\nHint: Run 'giteawatch config set base-url https://your.gitea.host'\n")
		} else if errors.IsNetworkError(err) {
			fmt.Fprintf(os.Stderr, "\nHint: Check your connection to the Gitea instance and try again\n")
		}

		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.config/giteawatch/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(watchCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.GetBuildInfo())
	},
}
