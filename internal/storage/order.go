package storage

import (
	"cmp"

	"github.com/mcoot/wolfbot/internal/model"
)

// Listing order shared by every backend so callers see identical results

// ComparePlayers orders players by sign-up time, then member id
func ComparePlayers(a, b *model.Player) int {
	return cmp.Or(a.SignedUpAt.Compare(b.SignedUpAt), cmp.Compare(a.MemberID, b.MemberID))
}

// CompareVotes orders votes by voter
func CompareVotes(a, b *model.Vote) int {
	return cmp.Compare(a.VoterID, b.VoterID)
}

// CompareAuxChannels orders auxiliary channels by creation time, then name
func CompareAuxChannels(a, b *model.AuxChannel) int {
	return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Name, b.Name))
}

// CompareJournals orders journals by member
func CompareJournals(a, b *model.Journal) int {
	return cmp.Compare(a.MemberID, b.MemberID)
}
