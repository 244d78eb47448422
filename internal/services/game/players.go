package game

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/mcoot/wolfbot/internal/directory"
	"github.com/mcoot/wolfbot/internal/model"
)

// SignUp adds a member to a game in signup and gives them the signed-up role
func (c *Controller) SignUp(ctx context.Context, gameID model.GameID, member model.MemberID, displayName string) (*model.Player, error) {
	const op = "sign up"

	displayName = strings.TrimSpace(displayName)
	if displayName == "" || member == "" {
		return nil, model.Invalid(op, model.ErrInvalidDisplayName)
	}

	g, err := c.storage.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status != model.GameStatusSignup {
		return nil, model.Invalid(op, model.ErrNotInSignup)
	}
	if _, err := c.storage.GetPlayer(ctx, gameID, member); err == nil {
		return nil, model.Invalid(op, model.ErrAlreadySignedUp)
	} else if !errors.Is(err, model.ErrPlayerNotFound) {
		return nil, err
	}

	p := &model.Player{
		GameID:      gameID,
		MemberID:    member,
		DisplayName: displayName,
		Status:      model.PlayerStatusAlive,
		SignedUpAt:  c.clock.Now(),
	}
	if err := c.storage.SavePlayer(ctx, p); err != nil {
		return nil, model.Persistence(op, err)
	}

	c.logger.Info("player signed up",
		slog.String("game_id", string(gameID)),
		slog.String("member_id", string(member)),
	)

	if err := c.syncer.Pace(ctx); err != nil {
		return p, err
	}
	if err := c.dir.AddMemberRole(ctx, g.CommunityID, member, model.RoleSignedUp); err != nil {
		return p, c.roleError(g, member, "add role", err)
	}
	return p, nil
}

// SignOut removes a member from a game in signup
func (c *Controller) SignOut(ctx context.Context, gameID model.GameID, member model.MemberID) error {
	const op = "sign out"

	g, err := c.storage.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Status != model.GameStatusSignup {
		return model.Invalid(op, model.ErrNotInSignup)
	}
	if _, err := c.storage.GetPlayer(ctx, gameID, member); err != nil {
		if errors.Is(err, model.ErrPlayerNotFound) {
			return model.Invalid(op, err)
		}
		return err
	}
	if err := c.storage.DeletePlayer(ctx, gameID, member); err != nil {
		return model.Persistence(op, err)
	}

	c.logger.Info("player signed out",
		slog.String("game_id", string(gameID)),
		slog.String("member_id", string(member)),
	)

	if err := c.syncer.Pace(ctx); err != nil {
		return err
	}
	if err := c.dir.RemoveMemberRole(ctx, g.CommunityID, member, model.RoleSignedUp); err != nil {
		return c.roleError(g, member, "remove role", err)
	}
	return nil
}

// Kill marks an alive player dead and swaps their alive role for dead
func (c *Controller) Kill(ctx context.Context, gameID model.GameID, member model.MemberID) (*model.Player, error) {
	const op = "kill"

	g, err := c.storage.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status != model.GameStatusActive {
		return nil, model.Invalid(op, model.ErrGameNotActive)
	}
	p, err := c.storage.GetPlayer(ctx, gameID, member)
	if err != nil {
		if errors.Is(err, model.ErrPlayerNotFound) {
			return nil, model.Invalid(op, err)
		}
		return nil, err
	}
	if !p.IsAlive() {
		return nil, model.Invalid(op, model.ErrPlayerNotAlive)
	}

	p.Status = model.PlayerStatusDead
	if err := c.storage.SavePlayer(ctx, p); err != nil {
		return nil, model.Persistence(op, err)
	}

	c.logger.Info("player killed",
		slog.String("game_id", string(gameID)),
		slog.String("member_id", string(member)),
		slog.String("state", g.State().String()),
	)

	return p, errors.Join(c.reconcileRoles(ctx, g, []*model.Player{p})...)
}

// wantRoles returns the game roles a player should hold in the game's state
func wantRoles(g *model.Game, p *model.Player) []model.RoleName {
	switch g.Status {
	case model.GameStatusSignup:
		return []model.RoleName{model.RoleSignedUp}
	case model.GameStatusActive:
		if p.IsAlive() {
			return []model.RoleName{model.RoleAlive}
		}
		return []model.RoleName{model.RoleDead}
	default:
		return []model.RoleName{model.RoleSpectator}
	}
}

// reconcileRoles brings every player's roles in line with the game state.
// Current roles come from one bulk member fetch so that only changes are
// written; if the fetch fails every change is written blind.
func (c *Controller) reconcileRoles(ctx context.Context, g *model.Game, players []*model.Player) []error {
	managed := append(slices.Clone(model.GameRoles), model.RoleSpectator)

	current := make(map[model.MemberID][]model.RoleName)
	known := true
	members, err := c.dir.ListMembers(ctx, g.CommunityID)
	if err != nil {
		known = false
		c.logger.Warn("member fetch failed, writing roles blind",
			slog.String("game_id", string(g.ID)),
			slog.String("error", err.Error()),
		)
	}
	for _, m := range members {
		current[m.ID] = m.Roles
	}

	var errs []error
	for _, p := range players {
		want := wantRoles(g, p)
		have := current[p.MemberID]
		for _, role := range managed {
			wanted := slices.Contains(want, role)
			held := slices.Contains(have, role)
			var write func(context.Context, model.CommunityID, model.MemberID, model.RoleName) error
			op := "add role"
			switch {
			case wanted && (!held || !known):
				write = c.dir.AddMemberRole
			case !wanted && (held || !known):
				write, op = c.dir.RemoveMemberRole, "remove role"
			default:
				continue
			}
			if err := c.syncer.Pace(ctx); err != nil {
				return append(errs, err)
			}
			if err := write(ctx, g.CommunityID, p.MemberID, role); err != nil {
				errs = append(errs, c.roleError(g, p.MemberID, op, err))
			}
		}
	}
	return errs
}

func (c *Controller) roleError(g *model.Game, member model.MemberID, op string, err error) error {
	c.logger.Warn("failed to update member role",
		slog.String("game_id", string(g.ID)),
		slog.String("member_id", string(member)),
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	if errors.Is(err, directory.ErrNotFound) {
		err = errors.Join(model.ErrMemberNotFound, err)
	}
	return &model.DirectoryError{Name: string(member), Op: op, Err: err}
}
