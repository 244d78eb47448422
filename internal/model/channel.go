package model

import (
	"strings"
	"time"
)

// JournalSuffix terminates the name of every journal channel
const JournalSuffix = "-journal"

// AuxChannel is an extra game channel added by a moderator
type AuxChannel struct {
	GameID       GameID
	Name         string
	DayMessage   string // Overrides the game's day message when set
	NightMessage string // Overrides the game's night message when set
	OpenAtDawn   bool   // Alive may post during the day
	OpenAtDusk   bool   // Alive may post during the night
	RemoteID     ChannelID
	Invited      []MemberID
	CreatedAt    time.Time
}

// IsProvisioned returns true once the channel exists remotely
func (c *AuxChannel) IsProvisioned() bool {
	return c.RemoteID != ""
}

// MessageFor returns the banner for a phase, falling back to the game default
func (c *AuxChannel) MessageFor(g *Game, p Phase) string {
	msg := c.NightMessage
	if p == PhaseDay {
		msg = c.DayMessage
	}
	if msg == "" {
		return g.PhaseMessage(p)
	}
	return msg
}

// AuxChannelSpec is the moderator's request for a new auxiliary channel
type AuxChannelSpec struct {
	Name         string
	DayMessage   string
	NightMessage string
	OpenAtDawn   bool
	OpenAtDusk   bool
	Invited      []MemberID
}

// Journal is a player's private channel, one per member per community
type Journal struct {
	CommunityID CommunityID
	MemberID    MemberID
	ChannelID   ChannelID
	DisplayName string
	CreatedAt   time.Time
}

// JournalChannelName derives the channel name from a display name
func JournalChannelName(displayName string) string {
	return strings.Join(strings.Fields(strings.ToLower(displayName)), "-") + JournalSuffix
}

// JournalBaseName strips the journal suffix and lowercases, for sorting
func JournalBaseName(channelName string) string {
	return strings.ToLower(strings.TrimSuffix(channelName, JournalSuffix))
}

// IsJournalName reports whether a channel name is a journal
func IsJournalName(channelName string) bool {
	return strings.HasSuffix(channelName, JournalSuffix)
}
