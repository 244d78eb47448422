package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcoot/wolfbot/internal/api/request"
	"github.com/mcoot/wolfbot/internal/api/response"
)

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Journal commands",
	}

	cmd.AddCommand(newJournalCreateCmd())
	cmd.AddCommand(newJournalRebalanceCmd())
	cmd.AddCommand(newJournalAssignCmd())

	return cmd
}

func newJournalCreateCmd() *cobra.Command {
	var req request.CreateJournalRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a private journal channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := community()
			if err != nil {
				return err
			}

			var result response.Journal
			if err := client.Post(cmd.Context(), apiPath("/communities/%s/journals", c), req, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.DisplayName, "name", "", "Display name the channel is named after (required)")
	cmd.Flags().StringVar(&req.MemberID, "member", "", "Journal owner (defaults to the token's member)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newJournalRebalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebalance",
		Short: "Re-sort journals into alphabetical containers (moderator only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := community()
			if err != nil {
				return err
			}

			var result response.Rebalance
			if err := client.Post(cmd.Context(), apiPath("/communities/%s/journals/rebalance", c), nil, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}

func newJournalAssignCmd() *cobra.Command {
	var req request.AssignJournalRequest

	cmd := &cobra.Command{
		Use:   "assign <channel>",
		Short: "Give an existing journal channel to a member (moderator only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := community()
			if err != nil {
				return err
			}

			var result response.Journal
			if err := client.Put(cmd.Context(), apiPath("/communities/%s/journals/%s/owner", c, args[0]), req, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.MemberID, "member", "", "New owner (required)")
	cmd.Flags().StringVar(&req.DisplayName, "name", "", "Display name (defaults to the recorded one)")
	_ = cmd.MarkFlagRequired("member")

	return cmd
}
