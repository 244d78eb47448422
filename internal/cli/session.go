package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/wolfbot/internal/api/request"
	"github.com/mcoot/wolfbot/internal/api/response"
	"github.com/mcoot/wolfbot/internal/dependencies/clock"
	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/services/auth"
)

func newLoginCmd() *cobra.Command {
	var member, key string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange a moderator key for a moderator token",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := request.LoginRequest{MemberID: member, Key: key}
			var result response.Session

			if err := client.Post(cmd.Context(), "/api/v1/sessions", req, &result); err != nil {
				return err
			}

			// Save token
			if err := cfg.SaveToken(result.Token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&member, "member", "", "Your member id (required)")
	cmd.Flags().StringVar(&key, "key", "", "Moderator key (required)")
	_ = cmd.MarkFlagRequired("member")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Offline token tools for server operators",
	}

	cmd.AddCommand(newTokenIssueCmd())
	cmd.AddCommand(newTokenHashCmd())

	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var (
		secret    string
		moderator bool
		ttl       time.Duration
		save      bool
	)

	cmd := &cobra.Command{
		Use:   "issue <member>",
		Short: "Sign a token with the server secret",
		Long: `Sign a token with the server secret. Player tokens are handed out this
way, typically by a chat bot that knows the member's id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := auth.New(clock.New(), auth.Config{Secret: secret, TokenTTL: ttl}, slog.New(slog.NewTextHandler(io.Discard, nil)))
			session, err := svc.Issue(model.MemberID(args[0]), moderator)
			if err != nil {
				return err
			}

			if save {
				if err := cfg.SaveToken(session.Token); err != nil {
					return fmt.Errorf("failed to save token: %w", err)
				}
			}

			output(cmd).Print(response.SessionFromAuth(session))
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", getEnvOrDefault("WOLFBOT_JWT_SECRET", ""), "Token secret (env: WOLFBOT_JWT_SECRET)")
	cmd.Flags().BoolVar(&moderator, "moderator", false, "Issue a moderator token")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultConfig().TokenTTL, "Token lifetime")
	cmd.Flags().BoolVar(&save, "save", false, "Save the token to the token file")

	return cmd
}

func newTokenHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <key>",
		Short: "Hash a moderator key for the server config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashKey(args[0])
			if err != nil {
				return err
			}

			output(cmd).PrintMessage(hash)
			return nil
		},
	}
}
