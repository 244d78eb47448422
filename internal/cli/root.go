package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "wolfctl",
		Short: "CLI tool for the wolfbot game server",
		Long: `wolfctl drives the wolfbot JSON API.

Moderators create and advance games, manage players and channels, and
rebalance journals. Players sign up and vote with their own tokens.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load token from file if not provided via flag/env
			if err := cfg.LoadToken(); err != nil {
				return err
			}

			opts := []ClientOption{WithTimeout(cfg.Timeout)}
			if cfg.Verbose {
				opts = append(opts, WithTrace(cmd.ErrOrStderr()))
			}
			client = NewClient(cfg.ServerURL, cfg.Token, opts...)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: WOLFBOT_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.Token, "token", cfg.Token, "Bearer token (env: WOLFBOT_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "Token file path (env: WOLFBOT_TOKEN_FILE)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Community, "community", "c", cfg.Community, "Community (guild) id (env: WOLFBOT_COMMUNITY)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Trace each request to stderr")
	rootCmd.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")

	// Add subcommands
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newGameCmd())
	rootCmd.AddCommand(newVoteCmd())
	rootCmd.AddCommand(newJournalCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func output(cmd *cobra.Command) *Output {
	return NewOutput(cfg.Output, cmd.OutOrStdout())
}

func community() (string, error) {
	if cfg.Community == "" {
		return "", errors.New("--community is required (env: WOLFBOT_COMMUNITY)")
	}
	return cfg.Community, nil
}
