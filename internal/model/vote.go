package model

import "time"

// Vote is one voter's choice on one day. At most one exists per
// (game, voter, day); a second cast replaces the first.
type Vote struct {
	GameID    GameID
	DayNumber int
	VoterID   MemberID
	TargetID  MemberID
	CastAt    time.Time
}
