package request

import "github.com/mcoot/wolfbot/internal/model"

// LoginRequest is the request body for exchanging a moderator key for a token
type LoginRequest struct {
	MemberID string `json:"member_id"`
	Key      string `json:"key"`
}

// CreateGameRequest is the request body for creating a game.
// Omitted fields fall back to the server defaults.
type CreateGameRequest struct {
	Name             string `json:"name,omitempty"`
	VotesToHang      int    `json:"votes_to_hang,omitempty"`
	DayMessage       string `json:"day_message,omitempty"`
	NightMessage     string `json:"night_message,omitempty"`
	WolfDayMessage   string `json:"wolf_day_message,omitempty"`
	WolfNightMessage string `json:"wolf_night_message,omitempty"`
}

// Settings converts the request to game settings
func (r CreateGameRequest) Settings() model.GameSettings {
	return model.GameSettings{
		Name:             r.Name,
		VotesToHang:      r.VotesToHang,
		DayMessage:       r.DayMessage,
		NightMessage:     r.NightMessage,
		WolfDayMessage:   r.WolfDayMessage,
		WolfNightMessage: r.WolfNightMessage,
	}
}

// UpdateSettingsRequest is the request body for changing an open game's
// settings. Omitted fields are left unchanged.
type UpdateSettingsRequest struct {
	VotesToHang      *int    `json:"votes_to_hang,omitempty"`
	DayMessage       *string `json:"day_message,omitempty"`
	NightMessage     *string `json:"night_message,omitempty"`
	WolfDayMessage   *string `json:"wolf_day_message,omitempty"`
	WolfNightMessage *string `json:"wolf_night_message,omitempty"`
}

// Update converts the request to a settings update
func (r UpdateSettingsRequest) Update() model.SettingsUpdate {
	return model.SettingsUpdate{
		VotesToHang:      r.VotesToHang,
		DayMessage:       r.DayMessage,
		NightMessage:     r.NightMessage,
		WolfDayMessage:   r.WolfDayMessage,
		WolfNightMessage: r.WolfNightMessage,
	}
}

// SignUpRequest is the request body for joining a game
type SignUpRequest struct {
	MemberID    string `json:"member_id"`
	DisplayName string `json:"display_name"`
}

// LockdownRequest is the request body for toggling lockdown
type LockdownRequest struct {
	Locked bool `json:"locked"`
}

// AddChannelRequest is the request body for adding an auxiliary channel
type AddChannelRequest struct {
	Name         string   `json:"name"`
	DayMessage   string   `json:"day_message,omitempty"`
	NightMessage string   `json:"night_message,omitempty"`
	OpenAtDawn   bool     `json:"open_at_dawn"`
	OpenAtDusk   bool     `json:"open_at_dusk"`
	Invited      []string `json:"invited,omitempty"`
}

// Spec converts the request to an auxiliary channel spec
func (r AddChannelRequest) Spec() model.AuxChannelSpec {
	invited := make([]model.MemberID, len(r.Invited))
	for i, id := range r.Invited {
		invited[i] = model.MemberID(id)
	}
	return model.AuxChannelSpec{
		Name:         r.Name,
		DayMessage:   r.DayMessage,
		NightMessage: r.NightMessage,
		OpenAtDawn:   r.OpenAtDawn,
		OpenAtDusk:   r.OpenAtDusk,
		Invited:      invited,
	}
}

// CastVoteRequest is the request body for casting or replacing a vote
type CastVoteRequest struct {
	TargetID string `json:"target_id"`
	Day      int    `json:"day"`
}

// CreateJournalRequest is the request body for creating a journal
type CreateJournalRequest struct {
	MemberID    string `json:"member_id"`
	DisplayName string `json:"display_name"`
}

// AssignJournalRequest is the request body for giving a journal channel a
// new owner
type AssignJournalRequest struct {
	MemberID    string `json:"member_id"`
	DisplayName string `json:"display_name,omitempty"`
}
