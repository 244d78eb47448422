package game

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/services/tally"
)

// CastVote records voter's vote for target on day, replacing any earlier
// vote by the same voter that day
func (c *Controller) CastVote(ctx context.Context, gameID model.GameID, voter, target model.MemberID, day int) error {
	const op = "cast vote"

	g, err := c.openDay(ctx, op, gameID, day)
	if err != nil {
		return err
	}
	if voter == target && !c.cfg.AllowSelfVote {
		return model.Invalid(op, model.ErrSelfVote)
	}
	if err := c.requireAlive(ctx, op, gameID, voter, model.ErrVoterNotAlive); err != nil {
		return err
	}
	if err := c.requireAlive(ctx, op, gameID, target, model.ErrTargetNotAlive); err != nil {
		return err
	}

	v := &model.Vote{
		GameID:    g.ID,
		DayNumber: day,
		VoterID:   voter,
		TargetID:  target,
		CastAt:    c.clock.Now(),
	}
	if err := c.storage.UpsertVote(ctx, v); err != nil {
		return voteWriteError(op, err)
	}

	c.logger.Info("vote cast",
		slog.String("game_id", string(gameID)),
		slog.Int("day", day),
		slog.String("voter", string(voter)),
		slog.String("target", string(target)),
	)
	return nil
}

// RetractVote removes voter's vote on day
func (c *Controller) RetractVote(ctx context.Context, gameID model.GameID, voter model.MemberID, day int) error {
	const op = "retract vote"

	if _, err := c.openDay(ctx, op, gameID, day); err != nil {
		return err
	}
	if err := c.storage.DeleteVote(ctx, gameID, day, voter); err != nil {
		return voteWriteError(op, err)
	}

	c.logger.Info("vote retracted",
		slog.String("game_id", string(gameID)),
		slog.Int("day", day),
		slog.String("voter", string(voter)),
	)
	return nil
}

// CurrentTally returns the live tally for the game's current day
func (c *Controller) CurrentTally(ctx context.Context, gameID model.GameID) (*tally.Report, error) {
	g, err := c.storage.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if !g.State().IsDay() {
		return nil, model.Invalid("tally", model.ErrVotingClosed)
	}
	votes, err := c.storage.ListVotes(ctx, gameID, g.DayNumber)
	if err != nil {
		return nil, err
	}
	players, err := c.storage.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}
	r := tally.Tally(g.DayNumber, votes, model.PlayerNames(players), g.VotesToHang)
	return &r, nil
}

// openDay loads the game and checks day is the current voting day
func (c *Controller) openDay(ctx context.Context, op string, gameID model.GameID, day int) (*model.Game, error) {
	g, err := c.storage.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	switch {
	case g.Status == model.GameStatusEnded:
		return nil, model.Invalid(op, model.ErrGameEnded)
	case !g.State().VotingOpen():
		return nil, model.Invalid(op, model.ErrVotingClosed)
	case day != g.DayNumber:
		return nil, model.Invalid(op, model.ErrWrongDay)
	}
	return g, nil
}

// voteWriteError classifies a failed vote write. The store rejects writes
// once the day has ended, even if openDay passed.
func voteWriteError(op string, err error) error {
	switch {
	case errors.Is(err, model.ErrGameNotFound):
		return err
	case errors.Is(err, model.ErrVotingClosed), errors.Is(err, model.ErrNoVote):
		return model.Invalid(op, err)
	}
	return model.Persistence(op, err)
}

func (c *Controller) requireAlive(ctx context.Context, op string, gameID model.GameID, member model.MemberID, sentinel error) error {
	p, err := c.storage.GetPlayer(ctx, gameID, member)
	if err != nil {
		if errors.Is(err, model.ErrPlayerNotFound) {
			return model.Invalid(op, sentinel)
		}
		return err
	}
	if !p.IsAlive() {
		return model.Invalid(op, sentinel)
	}
	return nil
}
