// Package directory describes the remote chat platform the engine projects
// game state onto. The platform is rate limited and only eventually reflects
// writes: a successful call means the request was accepted, not that a
// subsequent read will observe it.
package directory

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/mcoot/wolfbot/internal/model"
)

// Permission is a bitset of channel rights
type Permission uint64

const (
	PermView Permission = 1 << iota
	PermPost
	PermReadHistory
	PermAttachFiles
	PermEmbedLinks
	PermExternalEmoji
	PermAddReactions
	PermPinMessages
	PermCreateThreads
	PermPostInThreads
)

// Has reports whether every bit of q is set
func (p Permission) Has(q Permission) bool {
	return p&q == q
}

// TargetKind distinguishes role overlays from member overlays
type TargetKind string

const (
	TargetRole   TargetKind = "role"
	TargetMember TargetKind = "member"
)

// Target is the subject of a permission overlay
type Target struct {
	Kind TargetKind
	ID   string // Role name or member id
}

// RoleTarget targets a named role
func RoleTarget(role model.RoleName) Target {
	return Target{Kind: TargetRole, ID: string(role)}
}

// MemberTarget targets a single member
func MemberTarget(id model.MemberID) Target {
	return Target{Kind: TargetMember, ID: string(id)}
}

// Overlay is a per-channel override of rights for one target
type Overlay struct {
	Target Target
	Allow  Permission
	Deny   Permission
}

// ChannelKind is the remote object type
type ChannelKind string

const (
	KindText      ChannelKind = "text"
	KindContainer ChannelKind = "container"
)

// Channel is the remote view of a channel or container
type Channel struct {
	ID          model.ChannelID
	CommunityID model.CommunityID
	Name        string
	Kind        ChannelKind
	ParentID    model.ChannelID
	Position    int
	Overlays    []Overlay
}

// Overlay returns the overlay for a target, if any
func (c Channel) Overlay(t Target) (Overlay, bool) {
	for _, o := range c.Overlays {
		if o.Target == t {
			return o, true
		}
	}
	return Overlay{}, false
}

// IsContainer reports whether the channel is a container
func (c Channel) IsContainer() bool {
	return c.Kind == KindContainer
}

// CloneOverlays deep-copies an overlay list
func CloneOverlays(overlays []Overlay) []Overlay {
	return slices.Clone(overlays)
}

// SortOverlays orders overlays roles first, then by target id
func SortOverlays(overlays []Overlay) {
	slices.SortFunc(overlays, func(a, b Overlay) int {
		if a.Target.Kind != b.Target.Kind {
			if a.Target.Kind == TargetRole {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Target.ID, b.Target.ID)
	})
}

// ChannelSpec describes a channel to create
type ChannelSpec struct {
	CommunityID model.CommunityID
	Name        string
	Kind        ChannelKind
	ParentID    model.ChannelID
	Overlays    []Overlay
}

// Member is a community member as seen by the platform
type Member struct {
	ID          model.MemberID
	DisplayName string
	Roles       []model.RoleName
	Bot         bool
}

// HasRole reports whether the member carries a role
func (m Member) HasRole(role model.RoleName) bool {
	return slices.Contains(m.Roles, role)
}

// ErrNotFound is returned for unknown channels and members
var ErrNotFound = errors.New("directory: not found")

// Directory is the remote channel graph of a chat platform
type Directory interface {
	CreateChannel(ctx context.Context, spec ChannelSpec) (Channel, error)
	RenameChannel(ctx context.Context, id model.ChannelID, name string) error
	DeleteChannel(ctx context.Context, id model.ChannelID) error
	// SetPosition moves a channel to index pos among its siblings
	SetPosition(ctx context.Context, id model.ChannelID, pos int) error
	// SetParent requests a container reassignment. The move is asynchronous
	// and must be confirmed by polling GetChannel or ListChannels.
	SetParent(ctx context.Context, id, parentID model.ChannelID) error

	GetChannel(ctx context.Context, id model.ChannelID) (Channel, error)
	ListChannels(ctx context.Context, community model.CommunityID) ([]Channel, error)

	// SetOverlay replaces the overlay for overlay.Target on a channel
	SetOverlay(ctx context.Context, community model.CommunityID, id model.ChannelID, overlay Overlay) error
	DeleteOverlay(ctx context.Context, community model.CommunityID, id model.ChannelID, target Target) error

	AddMemberRole(ctx context.Context, community model.CommunityID, member model.MemberID, role model.RoleName) error
	RemoveMemberRole(ctx context.Context, community model.CommunityID, member model.MemberID, role model.RoleName) error
	ListMembers(ctx context.Context, community model.CommunityID) ([]Member, error)

	SendMessage(ctx context.Context, id model.ChannelID, content string) error
}

// Children returns the channels whose parent is containerID, ordered by position
func Children(channels []Channel, containerID model.ChannelID) []Channel {
	var out []Channel
	for _, c := range channels {
		if c.ParentID == containerID && !c.IsContainer() {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b Channel) int {
		return a.Position - b.Position
	})
	return out
}

// Find returns the channel with the given id from a listing
func Find(channels []Channel, id model.ChannelID) (Channel, bool) {
	for _, c := range channels {
		if c.ID == id {
			return c, true
		}
	}
	return Channel{}, false
}
