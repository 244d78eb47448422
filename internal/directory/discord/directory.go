// Package discord implements the directory over a Discord guild. Role
// targets are addressed by name and resolved to guild role ids on demand.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/mcoot/wolfbot/internal/directory"
	"github.com/mcoot/wolfbot/internal/model"
)

// Config holds the bot credentials
type Config struct {
	Token string
}

// memberPageSize is the largest page the members endpoint returns
const memberPageSize = 1000

// ErrUnknownRole is returned when a role name does not exist in the guild
var ErrUnknownRole = errors.New("discord: unknown role")

// Session is the subset of *discordgo.Session the directory uses
type Session interface {
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelEdit(channelID string, data *discordgo.ChannelEdit, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	ChannelPermissionSet(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64, options ...discordgo.RequestOption) error
	ChannelPermissionDelete(channelID, targetID string, options ...discordgo.RequestOption) error
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildMembers(guildID string, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ Session = (*discordgo.Session)(nil)

// Directory is a directory.Directory backed by the Discord REST API
type Directory struct {
	session Session
	logger  *slog.Logger

	mu sync.Mutex
	// roles maps guild -> role name -> role id
	roles map[model.CommunityID]map[model.RoleName]string
}

var _ directory.Directory = (*Directory)(nil)

// Open creates a REST session for the bot token
func Open(cfg Config, logger *slog.Logger) (*Directory, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord token is required")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	return New(s, logger), nil
}

// New wraps an existing session
func New(s Session, logger *slog.Logger) *Directory {
	return &Directory{
		session: s,
		logger:  logger,
		roles:   make(map[model.CommunityID]map[model.RoleName]string),
	}
}

func (d *Directory) CreateChannel(ctx context.Context, spec directory.ChannelSpec) (directory.Channel, error) {
	overwrites, err := d.toOverwrites(ctx, spec.CommunityID, spec.Overlays)
	if err != nil {
		return directory.Channel{}, err
	}
	kind := discordgo.ChannelTypeGuildText
	if spec.Kind == directory.KindContainer {
		kind = discordgo.ChannelTypeGuildCategory
	}
	ch, err := d.session.GuildChannelCreateComplex(string(spec.CommunityID), discordgo.GuildChannelCreateData{
		Name:                 spec.Name,
		Type:                 kind,
		ParentID:             string(spec.ParentID),
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return directory.Channel{}, wrap(err)
	}
	return d.fromChannel(ctx, ch)
}

func (d *Directory) RenameChannel(ctx context.Context, id model.ChannelID, name string) error {
	_, err := d.session.ChannelEdit(string(id), &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx))
	return wrap(err)
}

func (d *Directory) DeleteChannel(ctx context.Context, id model.ChannelID) error {
	_, err := d.session.ChannelDelete(string(id), discordgo.WithContext(ctx))
	return wrap(err)
}

func (d *Directory) SetPosition(ctx context.Context, id model.ChannelID, pos int) error {
	_, err := d.session.ChannelEdit(string(id), &discordgo.ChannelEdit{Position: &pos}, discordgo.WithContext(ctx))
	return wrap(err)
}

func (d *Directory) SetParent(ctx context.Context, id, parentID model.ChannelID) error {
	_, err := d.session.ChannelEdit(string(id), &discordgo.ChannelEdit{ParentID: string(parentID)}, discordgo.WithContext(ctx))
	return wrap(err)
}

func (d *Directory) GetChannel(ctx context.Context, id model.ChannelID) (directory.Channel, error) {
	ch, err := d.session.Channel(string(id), discordgo.WithContext(ctx))
	if err != nil {
		return directory.Channel{}, wrap(err)
	}
	return d.fromChannel(ctx, ch)
}

func (d *Directory) ListChannels(ctx context.Context, community model.CommunityID) ([]directory.Channel, error) {
	channels, err := d.session.GuildChannels(string(community), discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrap(err)
	}
	out := make([]directory.Channel, 0, len(channels))
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildText && ch.Type != discordgo.ChannelTypeGuildCategory {
			continue
		}
		c, err := d.fromChannel(ctx, ch)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (d *Directory) SetOverlay(ctx context.Context, community model.CommunityID, id model.ChannelID, overlay directory.Overlay) error {
	targetID, targetType, err := d.target(ctx, community, overlay.Target)
	if err != nil {
		return err
	}
	return wrap(d.session.ChannelPermissionSet(string(id), targetID, targetType,
		toBits(overlay.Allow), toBits(overlay.Deny), discordgo.WithContext(ctx)))
}

func (d *Directory) DeleteOverlay(ctx context.Context, community model.CommunityID, id model.ChannelID, target directory.Target) error {
	targetID, _, err := d.target(ctx, community, target)
	if err != nil {
		return err
	}
	return wrap(d.session.ChannelPermissionDelete(string(id), targetID, discordgo.WithContext(ctx)))
}

func (d *Directory) AddMemberRole(ctx context.Context, community model.CommunityID, member model.MemberID, role model.RoleName) error {
	roleID, err := d.roleID(ctx, community, role)
	if err != nil {
		return err
	}
	return wrap(d.session.GuildMemberRoleAdd(string(community), string(member), roleID, discordgo.WithContext(ctx)))
}

func (d *Directory) RemoveMemberRole(ctx context.Context, community model.CommunityID, member model.MemberID, role model.RoleName) error {
	roleID, err := d.roleID(ctx, community, role)
	if err != nil {
		return err
	}
	return wrap(d.session.GuildMemberRoleRemove(string(community), string(member), roleID, discordgo.WithContext(ctx)))
}

func (d *Directory) ListMembers(ctx context.Context, community model.CommunityID) ([]directory.Member, error) {
	names, err := d.roleNames(ctx, community)
	if err != nil {
		return nil, err
	}
	var out []directory.Member
	after := ""
	for {
		page, err := d.session.GuildMembers(string(community), after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, wrap(err)
		}
		for _, m := range page {
			if m.User == nil {
				continue
			}
			member := directory.Member{
				ID:          model.MemberID(m.User.ID),
				DisplayName: displayName(m),
				Bot:         m.User.Bot,
			}
			for _, id := range m.Roles {
				if name, ok := names[id]; ok {
					member.Roles = append(member.Roles, name)
				}
			}
			out = append(out, member)
			after = m.User.ID
		}
		if len(page) < memberPageSize {
			return out, nil
		}
	}
}

func (d *Directory) SendMessage(ctx context.Context, id model.ChannelID, content string) error {
	_, err := d.session.ChannelMessageSend(string(id), content, discordgo.WithContext(ctx))
	return wrap(err)
}

func displayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

// roleID resolves a role name, refreshing the guild's roles once on a miss
func (d *Directory) roleID(ctx context.Context, community model.CommunityID, role model.RoleName) (string, error) {
	d.mu.Lock()
	id, ok := d.roles[community][role]
	d.mu.Unlock()
	if ok {
		return id, nil
	}
	if err := d.refreshRoles(ctx, community); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.roles[community][role]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownRole, role)
}

// roleNames returns role id -> name for a guild
func (d *Directory) roleNames(ctx context.Context, community model.CommunityID) (map[string]model.RoleName, error) {
	d.mu.Lock()
	cached := d.roles[community]
	d.mu.Unlock()
	if cached == nil {
		if err := d.refreshRoles(ctx, community); err != nil {
			return nil, err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]model.RoleName, len(d.roles[community]))
	for name, id := range d.roles[community] {
		out[id] = name
	}
	return out, nil
}

func (d *Directory) refreshRoles(ctx context.Context, community model.CommunityID) error {
	roles, err := d.session.GuildRoles(string(community), discordgo.WithContext(ctx))
	if err != nil {
		return wrap(err)
	}
	byName := make(map[model.RoleName]string, len(roles))
	for _, r := range roles {
		byName[model.RoleName(r.Name)] = r.ID
	}
	d.mu.Lock()
	d.roles[community] = byName
	d.mu.Unlock()
	d.logger.Debug("refreshed guild roles",
		slog.String("community_id", string(community)),
		slog.Int("roles", len(roles)),
	)
	return nil
}

func (d *Directory) target(ctx context.Context, community model.CommunityID, t directory.Target) (string, discordgo.PermissionOverwriteType, error) {
	if t.Kind == directory.TargetMember {
		return t.ID, discordgo.PermissionOverwriteTypeMember, nil
	}
	id, err := d.roleID(ctx, community, model.RoleName(t.ID))
	return id, discordgo.PermissionOverwriteTypeRole, err
}

func (d *Directory) toOverwrites(ctx context.Context, community model.CommunityID, overlays []directory.Overlay) ([]*discordgo.PermissionOverwrite, error) {
	out := make([]*discordgo.PermissionOverwrite, 0, len(overlays))
	for _, o := range overlays {
		id, kind, err := d.target(ctx, community, o.Target)
		if err != nil {
			return nil, err
		}
		out = append(out, &discordgo.PermissionOverwrite{
			ID:    id,
			Type:  kind,
			Allow: toBits(o.Allow),
			Deny:  toBits(o.Deny),
		})
	}
	return out, nil
}

func (d *Directory) fromChannel(ctx context.Context, ch *discordgo.Channel) (directory.Channel, error) {
	out := directory.Channel{
		ID:          model.ChannelID(ch.ID),
		CommunityID: model.CommunityID(ch.GuildID),
		Name:        ch.Name,
		Kind:        directory.KindText,
		ParentID:    model.ChannelID(ch.ParentID),
		Position:    ch.Position,
	}
	if ch.Type == discordgo.ChannelTypeGuildCategory {
		out.Kind = directory.KindContainer
	}
	var names map[string]model.RoleName
	for _, po := range ch.PermissionOverwrites {
		o := directory.Overlay{Allow: fromBits(po.Allow), Deny: fromBits(po.Deny)}
		if po.Type == discordgo.PermissionOverwriteTypeMember {
			o.Target = directory.MemberTarget(model.MemberID(po.ID))
		} else {
			if names == nil {
				var err error
				if names, err = d.roleNames(ctx, out.CommunityID); err != nil {
					return directory.Channel{}, err
				}
			}
			name, ok := names[po.ID]
			if !ok {
				// Roles the engine does not manage are passed through by id
				name = model.RoleName(po.ID)
			}
			o.Target = directory.RoleTarget(name)
		}
		out.Overlays = append(out.Overlays, o)
	}
	directory.SortOverlays(out.Overlays)
	return out, nil
}

// wrap maps a 404 onto directory.ErrNotFound
func wrap(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
		return errors.Join(directory.ErrNotFound, err)
	}
	return err
}
