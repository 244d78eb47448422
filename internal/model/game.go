package model

import (
	"fmt"
	"time"
)

// GameID uniquely identifies a game
type GameID string

// CommunityID identifies the chat community (guild) hosting games
type CommunityID string

// ChannelID is the remote identity of a channel or container in the directory
type ChannelID string

// GameStatus is the coarse lifecycle state of a game
type GameStatus string

const (
	GameStatusSignup GameStatus = "signup" // Accepting sign-ups, no game channels yet
	GameStatusActive GameStatus = "active" // Alternating night/day
	GameStatusEnded  GameStatus = "ended"  // Terminal, read-only
)

// Phase is the day/night sub-state of an active game
type Phase string

const (
	PhaseNone  Phase = ""
	PhaseNight Phase = "night"
	PhaseDay   Phase = "day"
)

// Slot names one of the well-known channels every game owns
type Slot string

const (
	SlotTownSquare  Slot = "town-square"
	SlotVotingBooth Slot = "voting-booth"
	SlotMemos       Slot = "memos"
	SlotResults     Slot = "results"
	SlotWolfChat    Slot = "wolf-chat"
	SlotDeadChat    Slot = "dead-chat"
	SlotModChat     Slot = "mod-chat"
)

// GameSlots lists the slots provisioned when a game starts, in display order.
// Dead chat and mod chat exist from creation.
var GameSlots = []Slot{SlotResults, SlotMemos, SlotTownSquare, SlotVotingBooth, SlotWolfChat}

// State is the (status, phase, day) triple the state machine moves through
type State struct {
	Status    GameStatus
	Phase     Phase
	DayNumber int
}

// SignupState is the state of a freshly created game
func SignupState() State {
	return State{Status: GameStatusSignup}
}

// NightState returns the active night state for day d
func NightState(d int) State {
	return State{Status: GameStatusActive, Phase: PhaseNight, DayNumber: d}
}

// DayState returns the active day state for day d
func DayState(d int) State {
	return State{Status: GameStatusActive, Phase: PhaseDay, DayNumber: d}
}

// IsDay reports whether the state is an active day phase
func (s State) IsDay() bool {
	return s.Status == GameStatusActive && s.Phase == PhaseDay
}

// IsNight reports whether the state is an active night phase
func (s State) IsNight() bool {
	return s.Status == GameStatusActive && s.Phase == PhaseNight
}

// VotingOpen reports whether votes may be cast. The first day has no vote.
func (s State) VotingOpen() bool {
	return s.IsDay() && s.DayNumber >= 2
}

// AcceptsVotesFor reports whether votes for day may be written in this state
func (s State) AcceptsVotesFor(day int) bool {
	return s.VotingOpen() && s.DayNumber == day
}

// Next returns the state an advance moves to. Day d goes to night d,
// night d goes to day d+1.
func (s State) Next() (State, error) {
	if s.Status != GameStatusActive {
		return State{}, ErrGameNotActive
	}
	if s.Phase == PhaseDay {
		return NightState(s.DayNumber), nil
	}
	return DayState(s.DayNumber + 1), nil
}

func (s State) String() string {
	switch s.Status {
	case GameStatusActive:
		return fmt.Sprintf("%s %d", s.Phase, s.DayNumber)
	default:
		return string(s.Status)
	}
}

// Game is the authoritative record of one game in a community
type Game struct {
	ID          GameID
	CommunityID CommunityID
	Number      int
	Name        string

	Status    GameStatus
	Phase     Phase
	DayNumber int

	VotesToHang      int
	DayMessage       string
	NightMessage     string
	WolfDayMessage   string
	WolfNightMessage string

	// Lockdown denies the alive role posting in town square and memos
	Lockdown bool

	ContainerID ChannelID
	Channels    map[Slot]ChannelID

	PhaseChangedAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// State returns the game's current state triple
func (g *Game) State() State {
	return State{Status: g.Status, Phase: g.Phase, DayNumber: g.DayNumber}
}

// ChannelFor returns the remote channel in a slot, or "" if not provisioned
func (g *Game) ChannelFor(slot Slot) ChannelID {
	if g.Channels == nil {
		return ""
	}
	return g.Channels[slot]
}

// SetChannel records the remote channel for a slot
func (g *Game) SetChannel(slot Slot, id ChannelID) {
	if g.Channels == nil {
		g.Channels = make(map[Slot]ChannelID)
	}
	g.Channels[slot] = id
}

// ChannelPrefix is the prefix of every game channel name, e.g. "g12"
func (g *Game) ChannelPrefix() string {
	return fmt.Sprintf("g%d", g.Number)
}

// ChannelName returns the display name of a channel in this game
func (g *Game) ChannelName(suffix string) string {
	return fmt.Sprintf("%s-%s", g.ChannelPrefix(), suffix)
}

// ContainerName returns the name of the game's category
func (g *Game) ContainerName() string {
	if g.Name != "" {
		return fmt.Sprintf("%s Game %d", g.Name, g.Number)
	}
	return fmt.Sprintf("Game %d", g.Number)
}

// PhaseMessage returns the default banner text for a phase
func (g *Game) PhaseMessage(p Phase) string {
	if p == PhaseDay {
		return g.DayMessage
	}
	return g.NightMessage
}

// WolfMessage returns the wolf chat banner for a phase, "" if unset
func (g *Game) WolfMessage(p Phase) string {
	if p == PhaseDay {
		return g.WolfDayMessage
	}
	return g.WolfNightMessage
}

// Transition is a compare-and-set update of a game's state triple.
// Stores apply it as a single atomic write.
type Transition struct {
	GameID    GameID
	From      State
	To        State
	ChangedAt time.Time
	// ClearVotes purges every vote of the game in the same write
	ClearVotes bool
}

// GameSettings holds the tunables supplied when a game is created
type GameSettings struct {
	Name             string
	VotesToHang      int
	DayMessage       string
	NightMessage     string
	WolfDayMessage   string
	WolfNightMessage string
}

// SettingsUpdate changes some settings of an open game. Nil fields are left
// as they are.
type SettingsUpdate struct {
	VotesToHang      *int
	DayMessage       *string
	NightMessage     *string
	WolfDayMessage   *string
	WolfNightMessage *string
}

// IsEmpty reports whether u changes nothing
func (u SettingsUpdate) IsEmpty() bool {
	return u.VotesToHang == nil && u.DayMessage == nil && u.NightMessage == nil &&
		u.WolfDayMessage == nil && u.WolfNightMessage == nil
}

// ApplyTo writes u's fields onto g
func (u SettingsUpdate) ApplyTo(g *Game) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	if u.VotesToHang != nil {
		g.VotesToHang = *u.VotesToHang
	}
	set(&g.DayMessage, u.DayMessage)
	set(&g.NightMessage, u.NightMessage)
	set(&g.WolfDayMessage, u.WolfDayMessage)
	set(&g.WolfNightMessage, u.WolfNightMessage)
}

// DefaultGameSettings returns the settings used when none are supplied
func DefaultGameSettings() GameSettings {
	return GameSettings{
		VotesToHang:  4,
		DayMessage:   "WAKE UP! Time to bully your fellow villagers and vote them out.",
		NightMessage: "Night falls. Everyone, be quiet and go to sleep.",
	}
}

// Apply sets the game's state triple from a transition
func (g *Game) Apply(t Transition) {
	g.Status = t.To.Status
	g.Phase = t.To.Phase
	g.DayNumber = t.To.DayNumber
	g.PhaseChangedAt = t.ChangedAt
	g.UpdatedAt = t.ChangedAt
}

// Clone returns a deep copy of the game
func (g *Game) Clone() *Game {
	out := *g
	if g.Channels != nil {
		out.Channels = make(map[Slot]ChannelID, len(g.Channels))
		for k, v := range g.Channels {
			out.Channels[k] = v
		}
	}
	return &out
}

// IsOpen reports whether the game still blocks a new game in its community
func (g *Game) IsOpen() bool {
	return g.Status == GameStatusSignup || g.Status == GameStatusActive
}
