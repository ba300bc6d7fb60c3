package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/api"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/config"
)

var loginCmd = &cobra.Command{
	Use:   "login [token]",
	Short: "Store your Gitea access token securely",
	Long: `Store a Gitea access token using secure storage. The token goes into
your system keyring when available, or an encrypted file as a fallback.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var token string
		if len(args) > 0 {
			// Token provided as argument, for CI use.
			token = args[0]
		} else {
			fmt.Print("Enter your access token: ")

			byteToken, err := term.ReadPassword(int(syscall.Stdin))
			if err != nil {
				// Not a terminal; fall back to plain read.
				reader := bufio.NewReader(os.Stdin)
				input, _ := reader.ReadString('\n')
				token = strings.TrimSpace(input)
			} else {
				token = string(byteToken)
				fmt.Println()
			}
		}

		if token == "" {
			return fmt.Errorf("token cannot be empty")
		}

		if cfg.BaseURL != "" {
			// Probe the token before storing it.
			client := api.NewClient(token, cfg.BaseURL, cfg.InsecureTLS, cfg.Debug)
			if _, err := client.SearchRepositories(context.Background(), cfg.BaseURL, 1); err != nil {
				return fmt.Errorf("token verification failed: %w", err)
			}
		}

		storage := config.NewSecureStorage()
		if err := storage.SaveToken(token); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}

		fmt.Println("Token stored.")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored access token",
	RunE: func(_ *cobra.Command, _ []string) error {
		storage := config.NewSecureStorage()
		if err := storage.DeleteToken(); err != nil {
			return err
		}
		fmt.Println("Token removed.")
		return nil
	},
}
