// Package storagetest holds the behaviour every storage backend must share.
// Backend tests embed Suite and set NewStorage.
package storagetest

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/storage"
)

// Suite is the storage conformance suite
type Suite struct {
	suite.Suite
	Storage storage.Storage
	Ctx     context.Context

	// NewStorage returns an empty store for each test
	NewStorage func() storage.Storage
}

func (s *Suite) SetupTest() {
	s.Require().NotNil(s.NewStorage, "NewStorage must be set")
	s.Storage = s.NewStorage()
	s.Ctx = context.Background()
}

var epoch = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func (s *Suite) newGame(id model.GameID, community model.CommunityID, number int) *model.Game {
	return &model.Game{
		ID:          id,
		CommunityID: community,
		Number:      number,
		Status:      model.GameStatusSignup,
		VotesToHang: 4,
		DayMessage:  "day",
		CreatedAt:   epoch,
		UpdatedAt:   epoch,
	}
}

// CreateVotingGame stores an active game sitting in day's voting phase
func (s *Suite) CreateVotingGame(id model.GameID, day int) {
	g := s.newGame(id, model.CommunityID("guild-"+string(id)), 1)
	g.Apply(model.Transition{To: model.DayState(day), ChangedAt: epoch})
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, g))
}

// Community tests

func (s *Suite) TestNextGameNumberIncrements() {
	for want := 1; want <= 3; want++ {
		n, err := s.Storage.NextGameNumber(s.Ctx, "guild-1")
		s.Require().NoError(err)
		s.Equal(want, n)
	}
	n, err := s.Storage.NextGameNumber(s.Ctx, "guild-2")
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *Suite) TestNextGameNumberConcurrent() {
	const workers = 10
	var wg sync.WaitGroup
	seen := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.Storage.NextGameNumber(s.Ctx, "guild-1")
			if err == nil {
				seen <- n
			}
		}()
	}
	wg.Wait()
	close(seen)

	got := make(map[int]bool)
	for n := range seen {
		got[n] = true
	}
	s.Len(got, workers)
}

// Game tests

func (s *Suite) TestCreateAndGetGame() {
	g := s.newGame("game-1", "guild-1", 1)
	g.SetChannel(model.SlotModChat, "100")
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, g))

	got, err := s.Storage.GetGame(s.Ctx, "game-1")
	s.Require().NoError(err)
	s.Equal(g.Number, got.Number)
	s.Equal(model.GameStatusSignup, got.Status)
	s.Equal(model.ChannelID("100"), got.ChannelFor(model.SlotModChat))
	s.Equal(4, got.VotesToHang)
}

func (s *Suite) TestGetGameNotFound() {
	_, err := s.Storage.GetGame(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrGameNotFound)
}

func (s *Suite) TestCreateGameRejectsSecondOpenGame() {
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, s.newGame("game-1", "guild-1", 1)))

	err := s.Storage.CreateGame(s.Ctx, s.newGame("game-2", "guild-1", 2))
	s.ErrorIs(err, model.ErrGameInProgress)

	// Other communities are unaffected
	s.NoError(s.Storage.CreateGame(s.Ctx, s.newGame("game-3", "guild-2", 1)))
}

func (s *Suite) TestCreateGameAfterEnded() {
	g := s.newGame("game-1", "guild-1", 1)
	g.Status = model.GameStatusEnded
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, g))

	s.NoError(s.Storage.CreateGame(s.Ctx, s.newGame("game-2", "guild-1", 2)))
}

func (s *Suite) TestGetCurrentGame() {
	_, err := s.Storage.GetCurrentGame(s.Ctx, "guild-1")
	s.ErrorIs(err, model.ErrGameNotFound)

	s.Require().NoError(s.Storage.CreateGame(s.Ctx, s.newGame("game-1", "guild-1", 1)))
	got, err := s.Storage.GetCurrentGame(s.Ctx, "guild-1")
	s.Require().NoError(err)
	s.Equal(model.GameID("game-1"), got.ID)
}

func (s *Suite) TestGetCurrentGameIgnoresEnded() {
	g := s.newGame("game-1", "guild-1", 1)
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, g))
	_, err := s.Storage.ApplyTransition(s.Ctx, model.Transition{
		GameID: "game-1", From: model.SignupState(), To: model.State{Status: model.GameStatusEnded}, ChangedAt: epoch,
	})
	s.Require().NoError(err)

	_, err = s.Storage.GetCurrentGame(s.Ctx, "guild-1")
	s.ErrorIs(err, model.ErrGameNotFound)
}

func (s *Suite) TestSaveGameUpdatesFields() {
	g := s.newGame("game-1", "guild-1", 1)
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, g))

	g.Lockdown = true
	g.ContainerID = "500"
	g.SetChannel(model.SlotTownSquare, "501")
	s.Require().NoError(s.Storage.SaveGame(s.Ctx, g))

	got, err := s.Storage.GetGame(s.Ctx, "game-1")
	s.Require().NoError(err)
	s.True(got.Lockdown)
	s.Equal(model.ChannelID("500"), got.ContainerID)
	s.Equal(model.ChannelID("501"), got.ChannelFor(model.SlotTownSquare))
}

func (s *Suite) TestApplyTransition() {
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, s.newGame("game-1", "guild-1", 1)))
	at := epoch.Add(time.Hour)

	got, err := s.Storage.ApplyTransition(s.Ctx, model.Transition{
		GameID: "game-1", From: model.SignupState(), To: model.NightState(1), ChangedAt: at,
	})
	s.Require().NoError(err)
	s.Equal(model.NightState(1), got.State())
	s.True(got.PhaseChangedAt.Equal(at))

	stored, err := s.Storage.GetGame(s.Ctx, "game-1")
	s.Require().NoError(err)
	s.Equal(model.NightState(1), stored.State())
}

func (s *Suite) TestApplyTransitionRejectsStaleFrom() {
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, s.newGame("game-1", "guild-1", 1)))
	_, err := s.Storage.ApplyTransition(s.Ctx, model.Transition{
		GameID: "game-1", From: model.SignupState(), To: model.NightState(1), ChangedAt: epoch,
	})
	s.Require().NoError(err)

	// A second caller that read signup before the first write loses
	_, err = s.Storage.ApplyTransition(s.Ctx, model.Transition{
		GameID: "game-1", From: model.SignupState(), To: model.NightState(1), ChangedAt: epoch,
	})
	s.ErrorIs(err, model.ErrConcurrentTransition)

	stored, err := s.Storage.GetGame(s.Ctx, "game-1")
	s.Require().NoError(err)
	s.Equal(model.NightState(1), stored.State())
}

func (s *Suite) TestApplyTransitionUnknownGame() {
	_, err := s.Storage.ApplyTransition(s.Ctx, model.Transition{
		GameID: "missing", From: model.SignupState(), To: model.NightState(1),
	})
	s.ErrorIs(err, model.ErrGameNotFound)
}

func (s *Suite) TestApplyTransitionClearsVotes() {
	s.CreateVotingGame("game-1", 2)
	s.Require().NoError(s.Storage.UpsertVote(s.Ctx, &model.Vote{GameID: "game-1", DayNumber: 2, VoterID: "a", TargetID: "b"}))
	s.Require().NoError(s.Storage.UpsertVote(s.Ctx, &model.Vote{GameID: "game-1", DayNumber: 2, VoterID: "c", TargetID: "b"}))

	_, err := s.Storage.ApplyTransition(s.Ctx, model.Transition{
		GameID: "game-1", From: model.DayState(2), To: model.NightState(2), ChangedAt: epoch, ClearVotes: true,
	})
	s.Require().NoError(err)

	votes, err := s.Storage.ListVotes(s.Ctx, "game-1", 2)
	s.Require().NoError(err)
	s.Empty(votes)
}

// Player tests

func (s *Suite) TestPlayers() {
	p1 := &model.Player{GameID: "game-1", MemberID: "m2", DisplayName: "Bob", Status: model.PlayerStatusAlive, SignedUpAt: epoch}
	p2 := &model.Player{GameID: "game-1", MemberID: "m1", DisplayName: "Alice", Status: model.PlayerStatusAlive, SignedUpAt: epoch.Add(time.Minute)}
	other := &model.Player{GameID: "game-2", MemberID: "m1", DisplayName: "Alice", SignedUpAt: epoch}
	for _, p := range []*model.Player{p1, p2, other} {
		s.Require().NoError(s.Storage.SavePlayer(s.Ctx, p))
	}

	got, err := s.Storage.GetPlayer(s.Ctx, "game-1", "m1")
	s.Require().NoError(err)
	s.Equal("Alice", got.DisplayName)

	players, err := s.Storage.ListPlayers(s.Ctx, "game-1")
	s.Require().NoError(err)
	s.Require().Len(players, 2)
	s.Equal(model.MemberID("m2"), players[0].MemberID)
	s.Equal(model.MemberID("m1"), players[1].MemberID)

	p2.Status = model.PlayerStatusDead
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, p2))
	got, err = s.Storage.GetPlayer(s.Ctx, "game-1", "m1")
	s.Require().NoError(err)
	s.False(got.IsAlive())

	s.Require().NoError(s.Storage.DeletePlayer(s.Ctx, "game-1", "m1"))
	_, err = s.Storage.GetPlayer(s.Ctx, "game-1", "m1")
	s.ErrorIs(err, model.ErrPlayerNotFound)
	players, err = s.Storage.ListPlayers(s.Ctx, "game-1")
	s.Require().NoError(err)
	s.Len(players, 1)
}

// Vote tests

func (s *Suite) TestUpsertVoteReplaces() {
	s.CreateVotingGame("game-1", 2)
	s.Require().NoError(s.Storage.UpsertVote(s.Ctx, &model.Vote{GameID: "game-1", DayNumber: 2, VoterID: "a", TargetID: "b", CastAt: epoch}))
	s.Require().NoError(s.Storage.UpsertVote(s.Ctx, &model.Vote{GameID: "game-1", DayNumber: 2, VoterID: "a", TargetID: "c", CastAt: epoch}))

	votes, err := s.Storage.ListVotes(s.Ctx, "game-1", 2)
	s.Require().NoError(err)
	s.Require().Len(votes, 1)
	s.Equal(model.MemberID("c"), votes[0].TargetID)
}

func (s *Suite) TestVotesPartitionedByDay() {
	s.CreateVotingGame("game-1", 2)
	s.Require().NoError(s.Storage.UpsertVote(s.Ctx, &model.Vote{GameID: "game-1", DayNumber: 2, VoterID: "a", TargetID: "b"}))

	// Move on to day 3 without purging
	for _, t := range []model.Transition{
		{GameID: "game-1", From: model.DayState(2), To: model.NightState(2)},
		{GameID: "game-1", From: model.NightState(2), To: model.DayState(3)},
	} {
		_, err := s.Storage.ApplyTransition(s.Ctx, t)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.Storage.UpsertVote(s.Ctx, &model.Vote{GameID: "game-1", DayNumber: 3, VoterID: "a", TargetID: "c"}))

	day2, err := s.Storage.ListVotes(s.Ctx, "game-1", 2)
	s.Require().NoError(err)
	s.Require().Len(day2, 1)
	s.Equal(model.MemberID("b"), day2[0].TargetID)

	day3, err := s.Storage.ListVotes(s.Ctx, "game-1", 3)
	s.Require().NoError(err)
	s.Require().Len(day3, 1)
}

func (s *Suite) TestDeleteVote() {
	s.CreateVotingGame("game-1", 2)
	s.Require().NoError(s.Storage.UpsertVote(s.Ctx, &model.Vote{GameID: "game-1", DayNumber: 2, VoterID: "a", TargetID: "b"}))

	s.Require().NoError(s.Storage.DeleteVote(s.Ctx, "game-1", 2, "a"))
	votes, err := s.Storage.ListVotes(s.Ctx, "game-1", 2)
	s.Require().NoError(err)
	s.Empty(votes)

	err = s.Storage.DeleteVote(s.Ctx, "game-1", 2, "a")
	s.ErrorIs(err, model.ErrNoVote)
}

func (s *Suite) TestVoteWritesRequireOpenDay() {
	err := s.Storage.UpsertVote(s.Ctx, &model.Vote{GameID: "missing", DayNumber: 2, VoterID: "a", TargetID: "b"})
	s.ErrorIs(err, model.ErrGameNotFound)

	s.CreateVotingGame("game-1", 2)
	err = s.Storage.UpsertVote(s.Ctx, &model.Vote{GameID: "game-1", DayNumber: 3, VoterID: "a", TargetID: "b"})
	s.ErrorIs(err, model.ErrVotingClosed)
	s.Require().NoError(s.Storage.UpsertVote(s.Ctx, &model.Vote{GameID: "game-1", DayNumber: 2, VoterID: "a", TargetID: "b"}))

	_, err = s.Storage.ApplyTransition(s.Ctx, model.Transition{
		GameID: "game-1", From: model.DayState(2), To: model.NightState(2), ClearVotes: true,
	})
	s.Require().NoError(err)

	// A vote that lost the race with the day end is not written
	err = s.Storage.UpsertVote(s.Ctx, &model.Vote{GameID: "game-1", DayNumber: 2, VoterID: "c", TargetID: "b"})
	s.ErrorIs(err, model.ErrVotingClosed)
	err = s.Storage.DeleteVote(s.Ctx, "game-1", 2, "a")
	s.ErrorIs(err, model.ErrVotingClosed)

	votes, err := s.Storage.ListVotes(s.Ctx, "game-1", 2)
	s.Require().NoError(err)
	s.Empty(votes)
}

// Auxiliary channel tests

func (s *Suite) TestAuxChannels() {
	ch := &model.AuxChannel{
		GameID:     "game-1",
		Name:       "g1-seer",
		OpenAtDusk: true,
		Invited:    []model.MemberID{"m1"},
		CreatedAt:  epoch,
	}
	s.Require().NoError(s.Storage.SaveAuxChannel(s.Ctx, ch))
	s.Require().NoError(s.Storage.SaveAuxChannel(s.Ctx, &model.AuxChannel{GameID: "game-1", Name: "g1-cult", CreatedAt: epoch.Add(time.Minute)}))

	ch.RemoteID = "900"
	s.Require().NoError(s.Storage.SaveAuxChannel(s.Ctx, ch))

	list, err := s.Storage.ListAuxChannels(s.Ctx, "game-1")
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("g1-seer", list[0].Name)
	s.Equal(model.ChannelID("900"), list[0].RemoteID)
	s.True(list[0].OpenAtDusk)
	s.Equal([]model.MemberID{"m1"}, list[0].Invited)
	s.Equal("g1-cult", list[1].Name)
}

// Journal tests

func (s *Suite) TestJournals() {
	_, err := s.Storage.GetJournal(s.Ctx, "guild-1", "m1")
	s.ErrorIs(err, model.ErrJournalNotFound)

	s.Require().NoError(s.Storage.SaveJournal(s.Ctx, &model.Journal{CommunityID: "guild-1", MemberID: "m2", ChannelID: "2", DisplayName: "Bob", CreatedAt: epoch}))
	s.Require().NoError(s.Storage.SaveJournal(s.Ctx, &model.Journal{CommunityID: "guild-1", MemberID: "m1", ChannelID: "1", DisplayName: "Alice", CreatedAt: epoch}))
	s.Require().NoError(s.Storage.SaveJournal(s.Ctx, &model.Journal{CommunityID: "guild-2", MemberID: "m1", ChannelID: "3", DisplayName: "Alice", CreatedAt: epoch}))

	// Upsert by (community, member)
	s.Require().NoError(s.Storage.SaveJournal(s.Ctx, &model.Journal{CommunityID: "guild-1", MemberID: "m1", ChannelID: "4", DisplayName: "Alice", CreatedAt: epoch}))

	got, err := s.Storage.GetJournal(s.Ctx, "guild-1", "m1")
	s.Require().NoError(err)
	s.Equal(model.ChannelID("4"), got.ChannelID)

	list, err := s.Storage.ListJournals(s.Ctx, "guild-1")
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(model.MemberID("m1"), list[0].MemberID)
	s.Equal(model.MemberID("m2"), list[1].MemberID)
}

func (s *Suite) TestReassignJournal() {
	s.Require().NoError(s.Storage.SaveJournal(s.Ctx, &model.Journal{CommunityID: "guild-1", MemberID: "m1", ChannelID: "1", DisplayName: "Alice", CreatedAt: epoch}))
	s.Require().NoError(s.Storage.SaveJournal(s.Ctx, &model.Journal{CommunityID: "guild-1", MemberID: "m2", ChannelID: "2", DisplayName: "Bob", CreatedAt: epoch}))

	moved := &model.Journal{CommunityID: "guild-1", MemberID: "m3", ChannelID: "1", DisplayName: "Alice", CreatedAt: epoch}
	s.Require().NoError(s.Storage.ReassignJournal(s.Ctx, "m1", moved))

	_, err := s.Storage.GetJournal(s.Ctx, "guild-1", "m1")
	s.ErrorIs(err, model.ErrJournalNotFound)
	got, err := s.Storage.GetJournal(s.Ctx, "guild-1", "m3")
	s.Require().NoError(err)
	s.Equal(model.ChannelID("1"), got.ChannelID)

	taken := &model.Journal{CommunityID: "guild-1", MemberID: "m2", ChannelID: "1", DisplayName: "Alice", CreatedAt: epoch}
	s.ErrorIs(s.Storage.ReassignJournal(s.Ctx, "m3", taken), model.ErrJournalExists)
	s.ErrorIs(s.Storage.ReassignJournal(s.Ctx, "m1", moved), model.ErrJournalNotFound)

	list, err := s.Storage.ListJournals(s.Ctx, "guild-1")
	s.Require().NoError(err)
	s.Len(list, 2)
}
