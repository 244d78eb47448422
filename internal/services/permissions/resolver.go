// Package permissions maps a channel kind and game state to the access each
// role should have. Resolution is pure: no storage and no remote calls.
package permissions

import (
	"fmt"
	"slices"

	"github.com/mcoot/wolfbot/internal/model"
)

// ChannelKind is the closed set of channel behaviours the resolver knows
type ChannelKind string

const (
	KindTownSquare  ChannelKind = "town-square"
	KindVotingBooth ChannelKind = "voting-booth"
	KindMemos       ChannelKind = "memos"
	KindResults     ChannelKind = "results"
	KindWolfChat    ChannelKind = "wolf-chat"
	KindDeadChat    ChannelKind = "dead-chat"
	KindModOnly     ChannelKind = "mod-only"
	KindJournal     ChannelKind = "journal"
	KindAuxiliary   ChannelKind = "auxiliary"
)

// Kinds lists every channel kind
var Kinds = []ChannelKind{
	KindTownSquare, KindVotingBooth, KindMemos, KindResults, KindWolfChat,
	KindDeadChat, KindModOnly, KindJournal, KindAuxiliary,
}

// KindForSlot returns the kind of a well-known game channel
func KindForSlot(slot model.Slot) (ChannelKind, error) {
	switch slot {
	case model.SlotTownSquare:
		return KindTownSquare, nil
	case model.SlotVotingBooth:
		return KindVotingBooth, nil
	case model.SlotMemos:
		return KindMemos, nil
	case model.SlotResults:
		return KindResults, nil
	case model.SlotWolfChat:
		return KindWolfChat, nil
	case model.SlotDeadChat:
		return KindDeadChat, nil
	case model.SlotModChat:
		return KindModOnly, nil
	}
	return "", fmt.Errorf("unknown slot %q", slot)
}

// Grant is the desired setting of one right in an overlay
type Grant uint8

const (
	Unset Grant = iota // Leave whatever the remote overlay has
	Allow
	Deny
	Neutral // Clear both allow and deny
)

func (g Grant) String() string {
	switch g {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case Neutral:
		return "neutral"
	}
	return "unset"
}

// Access is the desired overlay for one role or member
type Access struct {
	View    Grant
	Post    Grant
	Threads Grant // Creating and posting in threads
	Pin     Grant
}

// CanView reports whether the access explicitly allows viewing
func (a Access) CanView() bool { return a.View == Allow }

// CanPost reports whether the access explicitly allows posting
func (a Access) CanPost() bool { return a.Post == Allow }

// Flags are the per-channel inputs beyond kind and state
type Flags struct {
	OpenAtDawn bool
	OpenAtDusk bool
	Invited    []model.MemberID
	Lockdown   bool
	Owner      model.MemberID // Journal owner
}

// Matrix is the resolved access for one channel. Roles absent from the
// matrix are left untouched when it is applied.
type Matrix struct {
	Kind    ChannelKind
	State   model.State
	Roles   map[model.RoleName]Access
	Members map[model.MemberID]Access
}

// Role returns the access for a role and whether the matrix sets it
func (m Matrix) Role(role model.RoleName) (Access, bool) {
	a, ok := m.Roles[role]
	return a, ok
}

// RoleNames returns the roles in the matrix in a stable order
func (m Matrix) RoleNames() []model.RoleName {
	var out []model.RoleName
	for _, r := range roleOrder {
		if _, ok := m.Roles[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

// MemberIDs returns the member entries in sorted order
func (m Matrix) MemberIDs() []model.MemberID {
	out := make([]model.MemberID, 0, len(m.Members))
	for id := range m.Members {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

var roleOrder = []model.RoleName{
	model.RoleEveryone, model.RoleSignedUp, model.RoleAlive, model.RoleDead, model.RoleSpectator, model.RoleMod,
}

var (
	hidden   = Access{View: Deny, Post: Deny}
	readOnly = Access{View: Allow, Post: Deny}
	full     = Access{View: Allow, Post: Allow}
)

// Resolve returns the desired access matrix for a channel
func Resolve(kind ChannelKind, state model.State, flags Flags) Matrix {
	m := Matrix{
		Kind:  kind,
		State: state,
		Roles: make(map[model.RoleName]Access),
	}

	switch kind {
	case KindModOnly:
		m.Roles[model.RoleEveryone] = hidden
		m.Roles[model.RoleMod] = full
		return m
	case KindJournal:
		m.Roles[model.RoleEveryone] = hidden
		m.Roles[model.RoleMod] = full
		m.Roles[model.RoleSpectator] = readOnly
		m.Roles[model.RoleDead] = readOnly
		if flags.Owner != "" {
			m.Members = map[model.MemberID]Access{
				flags.Owner: {View: Allow, Post: Allow, Pin: Allow},
			}
		}
		return m
	}

	if state.Status == model.GameStatusEnded {
		m.Roles[model.RoleEveryone] = Access{View: Allow}
		m.Roles[model.RoleAlive] = readOnly
		return m
	}

	switch kind {
	case KindDeadChat:
		if state.Status == model.GameStatusSignup {
			m.Roles[model.RoleEveryone] = full
			m.Roles[model.RoleMod] = full
			return m
		}
		m.Roles[model.RoleAlive] = Access{View: Deny}
		m.Roles[model.RoleDead] = full
		m.Roles[model.RoleSpectator] = full
		m.Roles[model.RoleMod] = full

	case KindResults:
		m.Roles[model.RoleEveryone] = hidden
		m.Roles[model.RoleAlive] = readOnly
		m.Roles[model.RoleDead] = readOnly
		m.Roles[model.RoleSpectator] = readOnly
		m.Roles[model.RoleMod] = full

	case KindMemos:
		spectated(m, openUnless(flags.Lockdown))

	case KindTownSquare:
		spectated(m, openUnless(flags.Lockdown))
		for role, a := range m.Roles {
			a.Threads = Deny
			m.Roles[role] = a
		}

	case KindVotingBooth:
		spectated(m, openUnless(!state.VotingOpen()))

	case KindWolfChat:
		m.Roles[model.RoleEveryone] = hidden
		m.Roles[model.RoleMod] = full
		m.Roles[model.RoleSpectator] = readOnly
		m.Roles[model.RoleDead] = readOnly
		// Wolves post without the channel being listed for every alive member
		m.Roles[model.RoleAlive] = Access{View: Deny, Post: Allow}

	case KindAuxiliary:
		m.Roles[model.RoleEveryone] = hidden
		m.Roles[model.RoleMod] = full
		m.Roles[model.RoleSpectator] = readOnly
		post := Deny
		if (state.IsDay() && flags.OpenAtDawn) || (state.IsNight() && flags.OpenAtDusk) {
			post = Allow
		}
		m.Roles[model.RoleAlive] = Access{View: Deny, Post: post}
		if len(flags.Invited) > 0 {
			m.Members = make(map[model.MemberID]Access, len(flags.Invited))
			for _, id := range flags.Invited {
				m.Members[id] = Access{View: Allow}
			}
		}
	}
	return m
}

// spectated fills the common layout: hidden from everyone, readable by the
// dead and spectators, writable by mods, and alive access as given.
func spectated(m Matrix, alive Access) {
	m.Roles[model.RoleEveryone] = hidden
	m.Roles[model.RoleAlive] = alive
	m.Roles[model.RoleDead] = readOnly
	m.Roles[model.RoleSpectator] = readOnly
	m.Roles[model.RoleMod] = full
}

func openUnless(closed bool) Access {
	if closed {
		return readOnly
	}
	return full
}
