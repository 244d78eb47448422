package model

import "time"

// MemberID is the stable platform identity of a community member
type MemberID string

// PlayerStatus tracks whether a player can still act
type PlayerStatus string

const (
	PlayerStatusAlive PlayerStatus = "alive"
	PlayerStatusDead  PlayerStatus = "dead"
)

// Player is a member signed up to one game
type Player struct {
	GameID      GameID
	MemberID    MemberID
	DisplayName string
	Status      PlayerStatus
	Role        string // Assigned game role, empty until the moderator assigns one
	SignedUpAt  time.Time
}

// IsAlive returns true if the player has not been eliminated
func (p *Player) IsAlive() bool {
	return p.Status == PlayerStatusAlive
}

// PlayerNames builds a member -> display name lookup
func PlayerNames(players []*Player) map[MemberID]string {
	names := make(map[MemberID]string, len(players))
	for _, p := range players {
		names[p.MemberID] = p.DisplayName
	}
	return names
}
