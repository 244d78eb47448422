package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mcoot/wolfbot/internal/api/request"
	"github.com/mcoot/wolfbot/internal/api/response"
)

func newGameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "game",
		Short: "Game commands",
	}

	cmd.AddCommand(newGameCreateCmd())
	cmd.AddCommand(newGameGetCmd())
	cmd.AddCommand(newGameCurrentCmd())
	cmd.AddCommand(newGameSignUpCmd())
	cmd.AddCommand(newGameSignOutCmd())
	cmd.AddCommand(newGameTransitionCmd("start", "Start the game at night 1 (moderator only)"))
	cmd.AddCommand(newGameTransitionCmd("advance", "Advance to the next phase (moderator only)"))
	cmd.AddCommand(newGameTransitionCmd("end", "End the game and open every channel (moderator only)"))
	cmd.AddCommand(newGameTransitionCmd("resync", "Re-apply permissions for the current state (moderator only)"))
	cmd.AddCommand(newGameLockdownCmd())
	cmd.AddCommand(newGameKillCmd())
	cmd.AddCommand(newGameAddChannelCmd())
	cmd.AddCommand(newGameSettingsCmd())

	return cmd
}

func newGameCreateCmd() *cobra.Command {
	var req request.CreateGameRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a game open for sign-ups (moderator only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := community()
			if err != nil {
				return err
			}

			var result response.Game
			if err := client.Post(cmd.Context(), apiPath("/communities/%s/games", c), req, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Game name, shown on the category")
	cmd.Flags().IntVar(&req.VotesToHang, "votes-to-hang", 0, "Votes needed to be eligible for elimination (default from server)")
	cmd.Flags().StringVar(&req.DayMessage, "day-message", "", "Message posted at dawn")
	cmd.Flags().StringVar(&req.NightMessage, "night-message", "", "Message posted at dusk")
	cmd.Flags().StringVar(&req.WolfDayMessage, "wolf-day-message", "", "Message posted in wolf chat at dawn")
	cmd.Flags().StringVar(&req.WolfNightMessage, "wolf-night-message", "", "Message posted in wolf chat at dusk")

	return cmd
}

func newGameGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <game>",
		Short: "Get a game with its players",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Game

			if err := client.Get(cmd.Context(), apiPath("/games/%s", args[0]), &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}

func newGameCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Get the community's open game",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := community()
			if err != nil {
				return err
			}

			var result response.Game
			if err := client.Get(cmd.Context(), apiPath("/communities/%s/game", c), &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}

func newGameSignUpCmd() *cobra.Command {
	var req request.SignUpRequest

	cmd := &cobra.Command{
		Use:   "signup <game>",
		Short: "Sign up for a game",
		Long: `Sign up for a game. Players sign themselves up; moderators may pass
--member to sign up someone else.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Player

			if err := client.Post(cmd.Context(), apiPath("/games/%s/signups", args[0]), req, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.DisplayName, "name", "", "Display name (required)")
	cmd.Flags().StringVar(&req.MemberID, "member", "", "Member to sign up (defaults to the token's member)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newGameSignOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout <game> <member>",
		Short: "Withdraw a sign-up",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Delete(cmd.Context(), apiPath("/games/%s/signups/%s", args[0], args[1])); err != nil {
				return err
			}

			output(cmd).PrintMessage("Signed out")
			return nil
		},
	}
}

// newGameTransitionCmd builds the commands that POST to a game action and
// print the resulting transition
func newGameTransitionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <game>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Transition

			if err := client.Post(cmd.Context(), apiPath("/games/%s/"+action, args[0]), nil, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}

func newGameLockdownCmd() *cobra.Command {
	var off bool

	cmd := &cobra.Command{
		Use:   "lockdown <game>",
		Short: "Stop the living from posting in town square and memos (moderator only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := request.LockdownRequest{Locked: !off}
			var result response.Transition

			if err := client.Post(cmd.Context(), apiPath("/games/%s/lockdown", args[0]), req, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&off, "off", false, "Lift the lockdown")

	return cmd
}

func newGameKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <game> <member>",
		Short: "Mark a player dead (moderator only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Player

			if err := client.Post(cmd.Context(), apiPath("/games/%s/players/%s/kill", args[0], args[1]), nil, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}

func newGameAddChannelCmd() *cobra.Command {
	var req request.AddChannelRequest

	cmd := &cobra.Command{
		Use:   "add-channel <game> <name>",
		Short: "Add an extra game channel (moderator only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[1]
			var result response.AuxChannel

			if err := client.Post(cmd.Context(), apiPath("/games/%s/channels", args[0]), req, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.DayMessage, "day-message", "", "Message posted at dawn (defaults to the game's)")
	cmd.Flags().StringVar(&req.NightMessage, "night-message", "", "Message posted at dusk (defaults to the game's)")
	cmd.Flags().BoolVar(&req.OpenAtDawn, "open-at-dawn", false, "Let the living post during the day")
	cmd.Flags().BoolVar(&req.OpenAtDusk, "open-at-dusk", false, "Let the living post during the night")
	cmd.Flags().StringSliceVar(&req.Invited, "invite", nil, "Members who can see the channel")

	return cmd
}

func newGameSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings <game>",
		Short: "Change an open game's vote threshold or phase messages (moderator only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := settingsRequest(cmd.Flags())
			if err != nil {
				return err
			}

			var result response.Game
			if err := client.Patch(cmd.Context(), apiPath("/games/%s/settings", args[0]), req, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().Int("votes-to-hang", 0, "Votes needed to hang a player")
	cmd.Flags().String("day-message", "", "Message posted in town square at dawn")
	cmd.Flags().String("night-message", "", "Message posted in town square at dusk")
	cmd.Flags().String("wolf-day-message", "", "Message posted to the wolves at dawn")
	cmd.Flags().String("wolf-night-message", "", "Message posted to the wolves at dusk")

	return cmd
}

// settingsRequest sends only the flags the user actually set, so an empty
// message can still be set explicitly.
func settingsRequest(flags *pflag.FlagSet) (request.UpdateSettingsRequest, error) {
	var req request.UpdateSettingsRequest

	if flags.Changed("votes-to-hang") {
		n, err := flags.GetInt("votes-to-hang")
		if err != nil {
			return req, err
		}
		req.VotesToHang = &n
	}

	messages := map[string]**string{
		"day-message":        &req.DayMessage,
		"night-message":      &req.NightMessage,
		"wolf-day-message":   &req.WolfDayMessage,
		"wolf-night-message": &req.WolfNightMessage,
	}
	for name, field := range messages {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return req, err
		}
		*field = &v
	}

	if req == (request.UpdateSettingsRequest{}) {
		return req, errors.New("set at least one of --votes-to-hang or the message flags")
	}
	return req, nil
}
