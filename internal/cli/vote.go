package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/wolfbot/internal/api/request"
	"github.com/mcoot/wolfbot/internal/api/response"
)

func newVoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vote",
		Short: "Day vote commands",
	}

	cmd.AddCommand(newVoteCastCmd())
	cmd.AddCommand(newVoteRetractCmd())
	cmd.AddCommand(newVoteTallyCmd())

	return cmd
}

func newVoteCastCmd() *cobra.Command {
	var day int

	cmd := &cobra.Command{
		Use:   "cast <game> <voter> <target>",
		Short: "Cast or replace a vote for the day",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := request.CastVoteRequest{TargetID: args[2], Day: day}

			if err := client.Put(cmd.Context(), apiPath("/games/%s/votes/%s", args[0], args[1]), req, nil); err != nil {
				return err
			}

			output(cmd).PrintMessage(fmt.Sprintf("%s voted for %s on day %d", args[1], args[2], day))
			return nil
		},
	}

	cmd.Flags().IntVar(&day, "day", 0, "Day number the vote is for (required)")
	_ = cmd.MarkFlagRequired("day")

	return cmd
}

func newVoteRetractCmd() *cobra.Command {
	var day int

	cmd := &cobra.Command{
		Use:   "retract <game> <voter>",
		Short: "Withdraw a vote",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := apiPath("/games/%s/votes/%s", args[0], args[1]) + fmt.Sprintf("?day=%d", day)

			if err := client.Delete(cmd.Context(), path); err != nil {
				return err
			}

			output(cmd).PrintMessage("Vote retracted")
			return nil
		},
	}

	cmd.Flags().IntVar(&day, "day", 0, "Day number of the vote (required)")
	_ = cmd.MarkFlagRequired("day")

	return cmd
}

func newVoteTallyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tally <game>",
		Short: "Show the live tally for the current day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Tally

			if err := client.Get(cmd.Context(), apiPath("/games/%s/votes", args[0]), &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}
