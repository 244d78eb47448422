package game

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/services/dirsync"
	"github.com/mcoot/wolfbot/internal/services/tally"
)

// StartGame moves a game from signup to the first night. The new state is
// persisted before any channel is created or role assigned.
func (c *Controller) StartGame(ctx context.Context, gameID model.GameID) (*AdvanceResult, error) {
	const op = "start game"

	done, err := c.begin(gameID)
	if err != nil {
		return nil, err
	}
	defer done()

	g, err := c.storage.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status != model.GameStatusSignup {
		return nil, model.Invalid(op, model.ErrNotInSignup)
	}
	players, err := c.storage.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if len(players) == 0 {
		return nil, model.Invalid(op, model.ErrInsufficientPlayers)
	}
	auxes, err := c.storage.ListAuxChannels(ctx, gameID)
	if err != nil {
		return nil, err
	}

	from := g.State()
	g, err = c.transition(ctx, op, model.Transition{
		GameID:    gameID,
		From:      from,
		To:        model.NightState(1),
		ChangedAt: c.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	result := &AdvanceResult{Game: g, From: from, To: g.State()}

	if err := c.renameSignup(ctx, g); err != nil {
		result.Errors = append(result.Errors, err)
	}
	result.Errors = append(result.Errors, c.provision(ctx, g, allSlots)...)
	result.Errors = append(result.Errors, c.provisionDeferred(ctx, g, auxes)...)
	if err := c.storage.SaveGame(ctx, g); err != nil {
		c.logger.Error("failed to save channel references",
			slog.String("game_id", string(g.ID)),
			slog.String("error", err.Error()),
		)
		result.Errors = append(result.Errors, model.Persistence(op, err))
	}

	result.Errors = append(result.Errors, c.reconcileRoles(ctx, g, players)...)
	result.Sync = c.syncer.Sync(ctx, g.CommunityID, targets(g, auxes))
	result.Errors = append(result.Errors, c.announce(ctx, g, auxes)...)

	c.logTransition(result, len(players))
	return result, nil
}

// AdvancePhase moves an active game to its next phase. Leaving a day tallies
// that day's votes and purges every vote in the same write as the state
// change. The public summary goes to the voting booth and the full report to
// mod chat for the moderator who advanced.
func (c *Controller) AdvancePhase(ctx context.Context, gameID model.GameID, moderator model.MemberID) (*AdvanceResult, error) {
	const op = "advance phase"

	done, err := c.begin(gameID)
	if err != nil {
		return nil, err
	}
	defer done()

	g, err := c.storage.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	from := g.State()
	to, err := from.Next()
	if err != nil {
		return nil, model.Invalid(op, err)
	}

	t := model.Transition{GameID: gameID, From: from, To: to, ChangedAt: c.clock.Now()}
	var report *tally.Report
	if from.IsDay() {
		votes, err := c.storage.ListVotes(ctx, gameID, from.DayNumber)
		if err != nil {
			return nil, err
		}
		players, err := c.storage.ListPlayers(ctx, gameID)
		if err != nil {
			return nil, err
		}
		r := tally.Tally(from.DayNumber, votes, model.PlayerNames(players), g.VotesToHang)
		report = &r
		t.ClearVotes = true
	}
	auxes, err := c.storage.ListAuxChannels(ctx, gameID)
	if err != nil {
		return nil, err
	}

	g, err = c.transition(ctx, op, t)
	if err != nil {
		return nil, err
	}
	result := &AdvanceResult{Game: g, From: from, To: g.State(), Tally: report}

	result.Sync = c.syncer.Sync(ctx, g.CommunityID, targets(g, auxes))

	if report != nil {
		if from.VotingOpen() {
			if err := c.post(ctx, g, model.SlotVotingBooth, report.Summary()); err != nil {
				result.Errors = append(result.Errors, err)
			}
		}
		if err := c.post(ctx, g, model.SlotModChat, modReport(*report, moderator)); err != nil {
			result.Errors = append(result.Errors, err)
		}
	}
	result.Errors = append(result.Errors, c.announce(ctx, g, auxes)...)

	c.logTransition(result, -1)
	return result, nil
}

// modReport is the private tally message for the moderator who closed the day
func modReport(r tally.Report, moderator model.MemberID) string {
	msg := fmt.Sprintf("Day %d closed by %s.\n%s", r.DayNumber, moderator, r.Summary())
	if leader, ok := r.Leader(); ok && leader.Eligible {
		return msg + fmt.Sprintf("\n%s reached the threshold of %d.", leader.TargetName, r.Threshold)
	}
	return msg + fmt.Sprintf("\nNobody reached the threshold of %d.", r.Threshold)
}

// EndGame terminates a game. Ending an ended game re-applies the terminal
// permissions and roles without error, so it is safe to repeat.
func (c *Controller) EndGame(ctx context.Context, gameID model.GameID) (*AdvanceResult, error) {
	const op = "end game"

	done, err := c.begin(gameID)
	if err != nil {
		return nil, err
	}
	defer done()

	g, err := c.storage.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	players, err := c.storage.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}
	auxes, err := c.storage.ListAuxChannels(ctx, gameID)
	if err != nil {
		return nil, err
	}

	from := g.State()
	first := g.Status != model.GameStatusEnded
	if first {
		g, err = c.transition(ctx, op, model.Transition{
			GameID:    gameID,
			From:      from,
			To:        model.State{Status: model.GameStatusEnded, DayNumber: g.DayNumber},
			ChangedAt: c.clock.Now(),
		})
		if err != nil {
			return nil, err
		}
	}
	result := &AdvanceResult{Game: g, From: from, To: g.State()}

	result.Errors = append(result.Errors, c.reconcileRoles(ctx, g, players)...)
	result.Sync = c.syncer.Sync(ctx, g.CommunityID, targets(g, auxes))
	if first {
		if err := c.post(ctx, g, model.SlotTownSquare, "**GAME OVER**\nThe game has ended. All channels are now open."); err != nil {
			result.Errors = append(result.Errors, err)
		}
	}

	c.logTransition(result, len(players))
	return result, nil
}

// SetLockdown locks or lifts alive posting in town square and memos
func (c *Controller) SetLockdown(ctx context.Context, gameID model.GameID, locked bool) (*AdvanceResult, error) {
	const op = "set lockdown"

	done, err := c.begin(gameID)
	if err != nil {
		return nil, err
	}
	defer done()

	g, err := c.storage.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status != model.GameStatusActive {
		return nil, model.Invalid(op, model.ErrGameNotActive)
	}

	g.Lockdown = locked
	g.UpdatedAt = c.clock.Now()
	if err := c.storage.SaveGame(ctx, g); err != nil {
		return nil, model.Persistence(op, err)
	}

	result := &AdvanceResult{Game: g, From: g.State(), To: g.State()}
	var lockable []dirsync.Target
	for _, t := range targets(g, nil) {
		if t.ChannelID == g.ChannelFor(model.SlotTownSquare) || t.ChannelID == g.ChannelFor(model.SlotMemos) {
			lockable = append(lockable, t)
		}
	}
	result.Sync = c.syncer.Sync(ctx, g.CommunityID, lockable)

	c.logger.Info("lockdown changed",
		slog.String("game_id", string(g.ID)),
		slog.Bool("locked", locked),
		slog.Int("failed_channels", result.Sync.Failed),
	)
	return result, nil
}

// Resync heals a game: it provisions missing channels and deferred aux
// channels, reconciles member roles and re-applies every channel's matrix
// for the current state
func (c *Controller) Resync(ctx context.Context, gameID model.GameID) (*AdvanceResult, error) {
	const op = "resync"

	done, err := c.begin(gameID)
	if err != nil {
		return nil, err
	}
	defer done()

	g, err := c.storage.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	players, err := c.storage.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}
	auxes, err := c.storage.ListAuxChannels(ctx, gameID)
	if err != nil {
		return nil, err
	}
	result := &AdvanceResult{Game: g, From: g.State(), To: g.State()}

	if g.Status != model.GameStatusEnded {
		slots := setupSlots
		if g.Status == model.GameStatusActive {
			slots = allSlots
		}
		before := len(g.Channels)
		container := g.ContainerID
		result.Errors = append(result.Errors, c.provision(ctx, g, slots)...)
		if g.Status == model.GameStatusActive {
			result.Errors = append(result.Errors, c.provisionDeferred(ctx, g, auxes)...)
		}
		if len(g.Channels) != before || g.ContainerID != container {
			if err := c.storage.SaveGame(ctx, g); err != nil {
				return nil, model.Persistence(op, err)
			}
		}
	}

	result.Errors = append(result.Errors, c.reconcileRoles(ctx, g, players)...)
	result.Sync = c.syncer.Sync(ctx, g.CommunityID, targets(g, auxes))

	c.logTransition(result, len(players))
	return result, nil
}

func (c *Controller) logTransition(r *AdvanceResult, players int) {
	attrs := []any{
		slog.String("game_id", string(r.Game.ID)),
		slog.String("from", r.From.String()),
		slog.String("to", r.To.String()),
		slog.Int("synced_channels", r.Sync.Synced()),
		slog.Int("failed_channels", r.Sync.Failed),
		slog.Int("other_failures", len(r.Errors)),
	}
	if players >= 0 {
		attrs = append(attrs, slog.Int("players", players))
	}
	if r.Tally != nil {
		attrs = append(attrs, slog.Int("votes", r.Tally.TotalVotes()))
	}
	if r.Sync.Failed > 0 || len(r.Errors) > 0 {
		c.logger.Warn("transition applied with directory failures", attrs...)
		return
	}
	c.logger.Info("transition applied", attrs...)
}
