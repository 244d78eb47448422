package game

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/mcoot/wolfbot/internal/directory"
	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/services/dirsync"
	"github.com/mcoot/wolfbot/internal/services/permissions"
)

// setupSlots exist from creation, the rest are added when the game starts
var setupSlots = []model.Slot{model.SlotModChat, model.SlotDeadChat}

// allSlots is every well-known slot in sync order
var allSlots = append(slices.Clone(setupSlots), model.GameSlots...)

// announceSlots receive the phase banner on every transition
var announceSlots = []model.Slot{model.SlotTownSquare, model.SlotVotingBooth, model.SlotWolfChat}

var auxNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,89}$`)

// channelName returns the display name for a slot. Dead chat doubles as the
// signup channel until the game starts.
func channelName(g *model.Game, slot model.Slot) string {
	if slot == model.SlotDeadChat && g.Status == model.GameStatusSignup {
		return g.ChannelName("signup")
	}
	return g.ChannelName(string(slot))
}

func slotFlags(g *model.Game) permissions.Flags {
	return permissions.Flags{Lockdown: g.Lockdown}
}

func auxFlags(a *model.AuxChannel) permissions.Flags {
	return permissions.Flags{
		OpenAtDawn: a.OpenAtDawn,
		OpenAtDusk: a.OpenAtDusk,
		Invited:    a.Invited,
	}
}

// targets lists every provisioned game channel with its matrix for the
// game's current state
func targets(g *model.Game, auxes []*model.AuxChannel) []dirsync.Target {
	var out []dirsync.Target
	for _, slot := range allSlots {
		id := g.ChannelFor(slot)
		if id == "" {
			continue
		}
		kind, err := permissions.KindForSlot(slot)
		if err != nil {
			continue
		}
		out = append(out, dirsync.Target{
			ChannelID: id,
			Name:      channelName(g, slot),
			Matrix:    permissions.Resolve(kind, g.State(), slotFlags(g)),
		})
	}
	for _, a := range auxes {
		if !a.IsProvisioned() {
			continue
		}
		out = append(out, dirsync.Target{
			ChannelID: a.RemoteID,
			Name:      g.ChannelName(a.Name),
			Matrix:    permissions.Resolve(permissions.KindAuxiliary, g.State(), auxFlags(a)),
		})
	}
	return out
}

// ensureContainer creates the game's category if it does not exist yet
func (c *Controller) ensureContainer(ctx context.Context, g *model.Game) error {
	if g.ContainerID != "" {
		return nil
	}
	if err := c.syncer.Pace(ctx); err != nil {
		return err
	}
	container, err := c.dir.CreateChannel(ctx, directory.ChannelSpec{
		CommunityID: g.CommunityID,
		Name:        g.ContainerName(),
		Kind:        directory.KindContainer,
	})
	if err != nil {
		return &model.DirectoryError{Name: g.ContainerName(), Op: "create container", Err: err}
	}
	g.ContainerID = container.ID
	return nil
}

// provision creates any of slots the game does not have yet. The caller
// persists the channel references.
func (c *Controller) provision(ctx context.Context, g *model.Game, slots []model.Slot) []error {
	if err := c.ensureContainer(ctx, g); err != nil {
		return []error{err}
	}

	var errs []error
	for _, slot := range slots {
		if g.ChannelFor(slot) != "" {
			continue
		}
		kind, err := permissions.KindForSlot(slot)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		name := channelName(g, slot)
		if err := c.syncer.Pace(ctx); err != nil {
			return append(errs, err)
		}
		ch, err := c.dir.CreateChannel(ctx, directory.ChannelSpec{
			CommunityID: g.CommunityID,
			Name:        name,
			ParentID:    g.ContainerID,
			Overlays:    dirsync.Overlays(permissions.Resolve(kind, g.State(), slotFlags(g))),
		})
		if err != nil {
			c.logger.Warn("failed to provision channel",
				slog.String("game_id", string(g.ID)),
				slog.String("channel", name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, &model.DirectoryError{Name: name, Op: "create channel", Err: err})
			continue
		}
		g.SetChannel(slot, ch.ID)
	}
	return errs
}

// provisionAux creates an auxiliary channel remotely and records its id
func (c *Controller) provisionAux(ctx context.Context, g *model.Game, a *model.AuxChannel) error {
	if err := c.ensureContainer(ctx, g); err != nil {
		return err
	}
	name := g.ChannelName(a.Name)
	if err := c.syncer.Pace(ctx); err != nil {
		return err
	}
	ch, err := c.dir.CreateChannel(ctx, directory.ChannelSpec{
		CommunityID: g.CommunityID,
		Name:        name,
		ParentID:    g.ContainerID,
		Overlays:    dirsync.Overlays(permissions.Resolve(permissions.KindAuxiliary, g.State(), auxFlags(a))),
	})
	if err != nil {
		return &model.DirectoryError{Name: name, Op: "create channel", Err: err}
	}
	a.RemoteID = ch.ID
	if err := c.storage.SaveAuxChannel(ctx, a); err != nil {
		return model.Persistence("provision aux channel", err)
	}
	return nil
}

// provisionDeferred creates every aux channel that was added before start
func (c *Controller) provisionDeferred(ctx context.Context, g *model.Game, auxes []*model.AuxChannel) []error {
	var errs []error
	for _, a := range auxes {
		if a.IsProvisioned() {
			continue
		}
		if err := c.provisionAux(ctx, g, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// ProvisionAuxChannel adds an extra channel to a game. During signup the
// channel is recorded and created when the game starts.
func (c *Controller) ProvisionAuxChannel(ctx context.Context, gameID model.GameID, spec model.AuxChannelSpec) (*model.AuxChannel, error) {
	const op = "provision aux channel"

	name := strings.ToLower(strings.TrimSpace(spec.Name))
	if !auxNamePattern.MatchString(name) {
		return nil, model.Invalid(op, model.ErrInvalidChannelName)
	}

	done, err := c.begin(gameID)
	if err != nil {
		return nil, err
	}
	defer done()

	g, err := c.storage.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status == model.GameStatusEnded {
		return nil, model.Invalid(op, model.ErrGameEnded)
	}

	for _, slot := range allSlots {
		if name == string(slot) {
			return nil, model.Invalid(op, model.ErrDuplicateChannel)
		}
	}
	auxes, err := c.storage.ListAuxChannels(ctx, gameID)
	if err != nil {
		return nil, err
	}
	for _, a := range auxes {
		if a.Name == name {
			return nil, model.Invalid(op, model.ErrDuplicateChannel)
		}
	}

	a := &model.AuxChannel{
		GameID:       gameID,
		Name:         name,
		DayMessage:   spec.DayMessage,
		NightMessage: spec.NightMessage,
		OpenAtDawn:   spec.OpenAtDawn,
		OpenAtDusk:   spec.OpenAtDusk,
		Invited:      slices.Clone(spec.Invited),
		CreatedAt:    c.clock.Now(),
	}
	if err := c.storage.SaveAuxChannel(ctx, a); err != nil {
		return nil, model.Persistence(op, err)
	}

	if g.Status != model.GameStatusActive {
		c.logger.Info("aux channel deferred until start",
			slog.String("game_id", string(gameID)),
			slog.String("channel", name),
		)
		return a, nil
	}

	containerWasSet := g.ContainerID != ""
	if err := c.provisionAux(ctx, g, a); err != nil {
		c.logger.Warn("failed to provision aux channel",
			slog.String("game_id", string(gameID)),
			slog.String("channel", name),
			slog.String("error", err.Error()),
		)
		return a, err
	}
	if !containerWasSet {
		if err := c.storage.SaveGame(ctx, g); err != nil {
			return a, model.Persistence(op, err)
		}
	}

	c.logger.Info("aux channel provisioned",
		slog.String("game_id", string(gameID)),
		slog.String("channel", name),
		slog.String("channel_id", string(a.RemoteID)),
	)
	return a, nil
}

// announce posts the phase banner to every announcing channel
func (c *Controller) announce(ctx context.Context, g *model.Game, auxes []*model.AuxChannel) []error {
	if g.Status != model.GameStatusActive {
		return nil
	}
	banner := fmt.Sprintf("**%s**", strings.ToUpper(g.State().String()))

	var errs []error
	send := func(id model.ChannelID, name, msg string) {
		if id == "" || msg == "" {
			return
		}
		if err := c.syncer.Pace(ctx); err != nil {
			errs = append(errs, err)
			return
		}
		if err := c.dir.SendMessage(ctx, id, banner+"\n"+msg); err != nil {
			errs = append(errs, &model.DirectoryError{ChannelID: id, Name: name, Op: "announce", Err: err})
		}
	}

	for _, slot := range announceSlots {
		msg := g.PhaseMessage(g.Phase)
		if slot == model.SlotWolfChat {
			msg = cmp.Or(g.WolfMessage(g.Phase), msg)
		}
		send(g.ChannelFor(slot), channelName(g, slot), msg)
	}
	for _, a := range auxes {
		if a.IsProvisioned() {
			send(a.RemoteID, g.ChannelName(a.Name), a.MessageFor(g, g.Phase))
		}
	}
	return errs
}

// post sends a message to a slot, logging rather than failing
func (c *Controller) post(ctx context.Context, g *model.Game, slot model.Slot, msg string) error {
	id := g.ChannelFor(slot)
	if id == "" {
		return nil
	}
	if err := c.syncer.Pace(ctx); err != nil {
		return err
	}
	if err := c.dir.SendMessage(ctx, id, msg); err != nil {
		c.logger.Warn("failed to post message",
			slog.String("game_id", string(g.ID)),
			slog.String("slot", string(slot)),
			slog.String("error", err.Error()),
		)
		return &model.DirectoryError{ChannelID: id, Name: channelName(g, slot), Op: "post", Err: err}
	}
	return nil
}

// renameSignup gives the signup channel its dead chat name once the game starts
func (c *Controller) renameSignup(ctx context.Context, g *model.Game) error {
	id := g.ChannelFor(model.SlotDeadChat)
	if id == "" {
		return nil
	}
	name := channelName(g, model.SlotDeadChat)
	if err := c.syncer.Pace(ctx); err != nil {
		return err
	}
	if err := c.dir.RenameChannel(ctx, id, name); err != nil {
		return &model.DirectoryError{ChannelID: id, Name: name, Op: "rename", Err: err}
	}
	return nil
}
