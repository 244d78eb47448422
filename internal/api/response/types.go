package response

import (
	"time"

	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/services/auth"
	"github.com/mcoot/wolfbot/internal/services/dirsync"
	"github.com/mcoot/wolfbot/internal/services/game"
	"github.com/mcoot/wolfbot/internal/services/journal"
	"github.com/mcoot/wolfbot/internal/services/tally"
)

// Session is the response for the login endpoint
type Session struct {
	Token     string    `json:"token"`
	MemberID  string    `json:"member_id"`
	Moderator bool      `json:"moderator"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionFromAuth converts an auth.Session
func SessionFromAuth(s *auth.Session) Session {
	return Session{
		Token:     s.Token,
		MemberID:  string(s.Member),
		Moderator: s.Moderator,
		ExpiresAt: s.ExpiresAt,
	}
}

// Player represents a signed-up player
type Player struct {
	MemberID    string    `json:"member_id"`
	DisplayName string    `json:"display_name"`
	Status      string    `json:"status"`
	SignedUpAt  time.Time `json:"signed_up_at"`
}

// PlayerFromModel converts a model.Player
func PlayerFromModel(p *model.Player) Player {
	return Player{
		MemberID:    string(p.MemberID),
		DisplayName: p.DisplayName,
		Status:      string(p.Status),
		SignedUpAt:  p.SignedUpAt,
	}
}

// AuxChannel represents a moderator-added channel
type AuxChannel struct {
	Name       string   `json:"name"`
	ChannelID  string   `json:"channel_id,omitempty"`
	OpenAtDawn bool     `json:"open_at_dawn"`
	OpenAtDusk bool     `json:"open_at_dusk"`
	Invited    []string `json:"invited,omitempty"`
}

// AuxChannelFromModel converts a model.AuxChannel
func AuxChannelFromModel(c *model.AuxChannel) AuxChannel {
	invited := make([]string, len(c.Invited))
	for i, id := range c.Invited {
		invited[i] = string(id)
	}
	return AuxChannel{
		Name:       c.Name,
		ChannelID:  string(c.RemoteID),
		OpenAtDawn: c.OpenAtDawn,
		OpenAtDusk: c.OpenAtDusk,
		Invited:    invited,
	}
}

// Game represents a game in API responses
type Game struct {
	ID          string            `json:"id"`
	CommunityID string            `json:"community_id"`
	Number      int               `json:"number"`
	Name        string            `json:"name,omitempty"`
	Status      string            `json:"status"`
	Phase       string            `json:"phase,omitempty"`
	DayNumber   int               `json:"day_number"`
	State       string            `json:"state"`
	VotesToHang int               `json:"votes_to_hang"`
	Messages    Messages          `json:"messages"`
	Lockdown    bool              `json:"lockdown"`
	ContainerID string            `json:"container_id,omitempty"`
	Channels    map[string]string `json:"channels,omitempty"`
	Players     []Player          `json:"players,omitempty"`
	AuxChannels []AuxChannel      `json:"aux_channels,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Messages are a game's phase banners
type Messages struct {
	Day       string `json:"day,omitempty"`
	Night     string `json:"night,omitempty"`
	WolfDay   string `json:"wolf_day,omitempty"`
	WolfNight string `json:"wolf_night,omitempty"`
}

// GameFromModel converts a model.Game with its players and aux channels
func GameFromModel(g *model.Game, players []*model.Player, aux []*model.AuxChannel) Game {
	channels := make(map[string]string, len(g.Channels))
	for slot, id := range g.Channels {
		channels[string(slot)] = string(id)
	}
	resp := Game{
		ID:          string(g.ID),
		CommunityID: string(g.CommunityID),
		Number:      g.Number,
		Name:        g.Name,
		Status:      string(g.Status),
		Phase:       string(g.Phase),
		DayNumber:   g.DayNumber,
		State:       g.State().String(),
		VotesToHang: g.VotesToHang,
		Messages: Messages{
			Day:       g.DayMessage,
			Night:     g.NightMessage,
			WolfDay:   g.WolfDayMessage,
			WolfNight: g.WolfNightMessage,
		},
		Lockdown:    g.Lockdown,
		ContainerID: string(g.ContainerID),
		Channels:    channels,
		CreatedAt:   g.CreatedAt,
	}
	for _, p := range players {
		resp.Players = append(resp.Players, PlayerFromModel(p))
	}
	for _, c := range aux {
		resp.AuxChannels = append(resp.AuxChannels, AuxChannelFromModel(c))
	}
	return resp
}

// TallyResult is one target's line in a tally
type TallyResult struct {
	TargetID   string   `json:"target_id"`
	TargetName string   `json:"target_name"`
	Count      int      `json:"count"`
	Voters     []string `json:"voters"`
	Eligible   bool     `json:"eligible"`
}

// Tally is a ranked vote count
type Tally struct {
	DayNumber int           `json:"day_number"`
	Threshold int           `json:"threshold"`
	Results   []TallyResult `json:"results"`
	Summary   string        `json:"summary"`
}

// TallyFromReport converts a tally.Report
func TallyFromReport(r *tally.Report) Tally {
	resp := Tally{
		DayNumber: r.DayNumber,
		Threshold: r.Threshold,
		Results:   make([]TallyResult, len(r.Results)),
		Summary:   r.Summary(),
	}
	for i, res := range r.Results {
		voters := make([]string, len(res.Voters))
		for j, v := range res.Voters {
			voters[j] = v.Name
		}
		resp.Results[i] = TallyResult{
			TargetID:   string(res.TargetID),
			TargetName: res.TargetName,
			Count:      res.Count,
			Voters:     voters,
			Eligible:   res.Eligible,
		}
	}
	return resp
}

// Sync reports the directory side of an operation
type Sync struct {
	Synced         int      `json:"synced"`
	Failed         int      `json:"failed"`
	FailedChannels []string `json:"failed_channels,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}

func syncFromResult(r dirsync.Result, extra []error) Sync {
	s := Sync{Synced: r.Synced(), Failed: r.Failed}
	for _, id := range r.FailedChannels() {
		s.FailedChannels = append(s.FailedChannels, string(id))
	}
	for _, o := range r.Outcomes {
		if o.Err != nil {
			s.Errors = append(s.Errors, o.Err.Error())
		}
	}
	for _, err := range extra {
		s.Errors = append(s.Errors, err.Error())
	}
	return s
}

// Transition is the response for every state-changing game operation.
// The state change is committed even when Sync reports failures.
type Transition struct {
	Game  Game   `json:"game"`
	From  string `json:"from"`
	To    string `json:"to"`
	Tally *Tally `json:"tally,omitempty"`
	Sync  Sync   `json:"sync"`
}

// TransitionFromResult converts a game.AdvanceResult
func TransitionFromResult(r *game.AdvanceResult) Transition {
	resp := Transition{
		Game: GameFromModel(r.Game, nil, nil),
		From: r.From.String(),
		To:   r.To.String(),
		Sync: syncFromResult(r.Sync, r.Errors),
	}
	if r.Tally != nil {
		t := TallyFromReport(r.Tally)
		resp.Tally = &t
	}
	return resp
}

// Journal represents a player's journal channel
type Journal struct {
	CommunityID string    `json:"community_id"`
	MemberID    string    `json:"member_id"`
	ChannelID   string    `json:"channel_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// JournalFromModel converts a model.Journal
func JournalFromModel(j *model.Journal) Journal {
	return Journal{
		CommunityID: string(j.CommunityID),
		MemberID:    string(j.MemberID),
		ChannelID:   string(j.ChannelID),
		DisplayName: j.DisplayName,
		CreatedAt:   j.CreatedAt,
	}
}

// Rebalance reports what a journal rebalance did
type Rebalance struct {
	RunID        string   `json:"run_id"`
	Journals     int      `json:"journals"`
	Containers   int      `json:"containers"`
	Moved        int      `json:"moved"`
	Unconfirmed  []string `json:"unconfirmed,omitempty"`
	Created      int      `json:"created"`
	Renamed      int      `json:"renamed"`
	Deleted      int      `json:"deleted"`
	Repositioned int      `json:"repositioned"`
	Restored     int      `json:"restored"`
	Healed       int      `json:"healed"`
	Failures     []string `json:"failures,omitempty"`
}

// RebalanceFromReport converts a journal.Report
func RebalanceFromReport(r *journal.Report) Rebalance {
	resp := Rebalance{
		RunID:        r.RunID,
		Journals:     r.Journals,
		Containers:   r.Containers,
		Moved:        r.Moved,
		Created:      r.Created,
		Renamed:      r.Renamed,
		Deleted:      r.Deleted,
		Repositioned: r.Repositioned,
		Restored:     r.Restored,
		Healed:       r.Healed,
	}
	for _, id := range r.Unconfirmed {
		resp.Unconfirmed = append(resp.Unconfirmed, string(id))
	}
	for _, err := range r.Failures {
		resp.Failures = append(resp.Failures, err.Error())
	}
	return resp
}

// Health is the response for the health endpoint
type Health struct {
	Status string `json:"status"`
}
