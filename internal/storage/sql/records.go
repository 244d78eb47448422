package sql

import (
	"time"

	"github.com/mcoot/wolfbot/internal/model"
)

// Table rows. Kept separate from the model so schema tags stay out of it.

type communityRecord struct {
	ID          string `gorm:"primaryKey;size:64"`
	GameCounter int    `gorm:"not null;default:0"`
}

func (communityRecord) TableName() string { return "communities" }

type gameRecord struct {
	ID               string `gorm:"primaryKey;size:64"`
	CommunityID      string `gorm:"size:64;not null;index:idx_games_community_status"`
	Number           int    `gorm:"not null"`
	Name             string `gorm:"size:100"`
	Status           string `gorm:"size:16;not null;index:idx_games_community_status"`
	Phase            string `gorm:"size:16"`
	DayNumber        int
	VotesToHang      int
	DayMessage       string `gorm:"type:text"`
	NightMessage     string `gorm:"type:text"`
	WolfDayMessage   string `gorm:"type:text"`
	WolfNightMessage string `gorm:"type:text"`
	Lockdown         bool
	ContainerID      string                         `gorm:"size:64"`
	Channels         map[model.Slot]model.ChannelID `gorm:"serializer:json"`
	PhaseChangedAt   time.Time
	CreatedAt        time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime:false"`
}

func (gameRecord) TableName() string { return "games" }

func gameToRecord(g *model.Game) *gameRecord {
	return &gameRecord{
		ID:               string(g.ID),
		CommunityID:      string(g.CommunityID),
		Number:           g.Number,
		Name:             g.Name,
		Status:           string(g.Status),
		Phase:            string(g.Phase),
		DayNumber:        g.DayNumber,
		VotesToHang:      g.VotesToHang,
		DayMessage:       g.DayMessage,
		NightMessage:     g.NightMessage,
		WolfDayMessage:   g.WolfDayMessage,
		WolfNightMessage: g.WolfNightMessage,
		Lockdown:         g.Lockdown,
		ContainerID:      string(g.ContainerID),
		Channels:         g.Channels,
		PhaseChangedAt:   g.PhaseChangedAt,
		CreatedAt:        g.CreatedAt,
		UpdatedAt:        g.UpdatedAt,
	}
}

func (r *gameRecord) toModel() *model.Game {
	return &model.Game{
		ID:               model.GameID(r.ID),
		CommunityID:      model.CommunityID(r.CommunityID),
		Number:           r.Number,
		Name:             r.Name,
		Status:           model.GameStatus(r.Status),
		Phase:            model.Phase(r.Phase),
		DayNumber:        r.DayNumber,
		VotesToHang:      r.VotesToHang,
		DayMessage:       r.DayMessage,
		NightMessage:     r.NightMessage,
		WolfDayMessage:   r.WolfDayMessage,
		WolfNightMessage: r.WolfNightMessage,
		Lockdown:         r.Lockdown,
		ContainerID:      model.ChannelID(r.ContainerID),
		Channels:         r.Channels,
		PhaseChangedAt:   r.PhaseChangedAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type playerRecord struct {
	GameID      string `gorm:"primaryKey;size:64"`
	MemberID    string `gorm:"primaryKey;size:64"`
	DisplayName string `gorm:"size:100"`
	Status      string `gorm:"size:16;not null"`
	Role        string `gorm:"size:64"`
	SignedUpAt  time.Time
}

func (playerRecord) TableName() string { return "players" }

func playerToRecord(p *model.Player) *playerRecord {
	return &playerRecord{
		GameID:      string(p.GameID),
		MemberID:    string(p.MemberID),
		DisplayName: p.DisplayName,
		Status:      string(p.Status),
		Role:        p.Role,
		SignedUpAt:  p.SignedUpAt,
	}
}

func (r *playerRecord) toModel() *model.Player {
	return &model.Player{
		GameID:      model.GameID(r.GameID),
		MemberID:    model.MemberID(r.MemberID),
		DisplayName: r.DisplayName,
		Status:      model.PlayerStatus(r.Status),
		Role:        r.Role,
		SignedUpAt:  r.SignedUpAt,
	}
}

// voteRecord's primary key enforces one vote per voter per day
type voteRecord struct {
	GameID    string `gorm:"primaryKey;size:64"`
	DayNumber int    `gorm:"primaryKey;autoIncrement:false"`
	VoterID   string `gorm:"primaryKey;size:64"`
	TargetID  string `gorm:"size:64;not null"`
	CastAt    time.Time
}

func (voteRecord) TableName() string { return "votes" }

func (r *voteRecord) toModel() *model.Vote {
	return &model.Vote{
		GameID:    model.GameID(r.GameID),
		DayNumber: r.DayNumber,
		VoterID:   model.MemberID(r.VoterID),
		TargetID:  model.MemberID(r.TargetID),
		CastAt:    r.CastAt,
	}
}

type auxChannelRecord struct {
	GameID       string `gorm:"primaryKey;size:64"`
	Name         string `gorm:"primaryKey;size:100"`
	DayMessage   string `gorm:"type:text"`
	NightMessage string `gorm:"type:text"`
	OpenAtDawn   bool
	OpenAtDusk   bool
	RemoteID     string           `gorm:"size:64"`
	Invited      []model.MemberID `gorm:"serializer:json"`
	CreatedAt    time.Time        `gorm:"autoCreateTime:false"`
}

func (auxChannelRecord) TableName() string { return "aux_channels" }

func auxToRecord(c *model.AuxChannel) *auxChannelRecord {
	return &auxChannelRecord{
		GameID:       string(c.GameID),
		Name:         c.Name,
		DayMessage:   c.DayMessage,
		NightMessage: c.NightMessage,
		OpenAtDawn:   c.OpenAtDawn,
		OpenAtDusk:   c.OpenAtDusk,
		RemoteID:     string(c.RemoteID),
		Invited:      c.Invited,
		CreatedAt:    c.CreatedAt,
	}
}

func (r *auxChannelRecord) toModel() *model.AuxChannel {
	return &model.AuxChannel{
		GameID:       model.GameID(r.GameID),
		Name:         r.Name,
		DayMessage:   r.DayMessage,
		NightMessage: r.NightMessage,
		OpenAtDawn:   r.OpenAtDawn,
		OpenAtDusk:   r.OpenAtDusk,
		RemoteID:     model.ChannelID(r.RemoteID),
		Invited:      r.Invited,
		CreatedAt:    r.CreatedAt,
	}
}

type journalRecord struct {
	CommunityID string    `gorm:"primaryKey;size:64"`
	MemberID    string    `gorm:"primaryKey;size:64"`
	ChannelID   string    `gorm:"size:64;not null"`
	DisplayName string    `gorm:"size:100"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
}

func (journalRecord) TableName() string { return "player_journals" }

func journalToRecord(j *model.Journal) *journalRecord {
	return &journalRecord{
		CommunityID: string(j.CommunityID),
		MemberID:    string(j.MemberID),
		ChannelID:   string(j.ChannelID),
		DisplayName: j.DisplayName,
		CreatedAt:   j.CreatedAt,
	}
}

func (r *journalRecord) toModel() *model.Journal {
	return &model.Journal{
		CommunityID: model.CommunityID(r.CommunityID),
		MemberID:    model.MemberID(r.MemberID),
		ChannelID:   model.ChannelID(r.ChannelID),
		DisplayName: r.DisplayName,
		CreatedAt:   r.CreatedAt,
	}
}

var allRecords = []any{
	&communityRecord{}, &gameRecord{}, &playerRecord{}, &voteRecord{}, &auxChannelRecord{}, &journalRecord{},
}
