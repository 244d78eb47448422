package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/wolfbot/internal/dependencies/mocks"
	"github.com/mcoot/wolfbot/internal/directory"
	"github.com/mcoot/wolfbot/internal/directory/memory"
	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/services/dirsync"
	storagememory "github.com/mcoot/wolfbot/internal/storage/memory"
	"github.com/mcoot/wolfbot/internal/storage/storagetest"
	"github.com/mcoot/wolfbot/internal/testutil"
)

const (
	community model.CommunityID = "guild-1"
	moderator model.MemberID    = "mod-1"
)

type ControllerSuite struct {
	suite.Suite
	storage    *storagetest.Failing
	dir        *memory.Directory
	clock      *mocks.MockClock
	ids        *mocks.MockIDs
	controller *Controller
	ctx        context.Context
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.storage = storagetest.NewFailing(storagememory.New())
	s.dir = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2026, 10, 1, 20, 0, 0, 0, time.UTC))
	s.ids = mocks.NewMockIDs()
	syncer := dirsync.New(s.dir, s.clock, 0, testutil.NopLogger())
	s.controller = NewController(s.storage, s.dir, syncer, s.clock, s.ids, DefaultConfig(), testutil.NopLogger())
	s.ctx = context.Background()
}

// Helpers

func (s *ControllerSuite) createGame(votesToHang int) *model.Game {
	g, err := s.controller.CreateGame(s.ctx, community, model.GameSettings{VotesToHang: votesToHang})
	s.Require().NoError(err)
	return g
}

func (s *ControllerSuite) signUp(g *model.Game, names ...string) []model.MemberID {
	ids := make([]model.MemberID, len(names))
	for i, name := range names {
		id := model.MemberID("m-" + strings.ToLower(name))
		s.dir.AddMember(community, directory.Member{ID: id, DisplayName: name})
		_, err := s.controller.SignUp(s.ctx, g.ID, id, name)
		s.Require().NoError(err)
		ids[i] = id
		s.clock.Advance(time.Second)
	}
	return ids
}

func (s *ControllerSuite) start(g *model.Game) *model.Game {
	result, err := s.controller.StartGame(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Require().NoError(result.Err())
	return result.Game
}

func (s *ControllerSuite) advance(g *model.Game) *AdvanceResult {
	result, err := s.controller.AdvancePhase(s.ctx, g.ID, moderator)
	s.Require().NoError(err)
	return result
}

// advanceTo moves an active game forward until it reaches want
func (s *ControllerSuite) advanceTo(g *model.Game, want model.State) *model.Game {
	for i := 0; i < 20; i++ {
		current, err := s.storage.GetGame(s.ctx, g.ID)
		s.Require().NoError(err)
		if current.State() == want {
			return current
		}
		s.advance(g)
	}
	s.FailNow("state not reached", want.String())
	return nil
}

func (s *ControllerSuite) channel(g *model.Game, slot model.Slot) directory.Channel {
	current, err := s.storage.GetGame(s.ctx, g.ID)
	s.Require().NoError(err)
	id := current.ChannelFor(slot)
	s.Require().NotEmpty(id, "slot %s not provisioned", slot)
	ch, ok := s.dir.Channel(id)
	s.Require().True(ok)
	return ch
}

func (s *ControllerSuite) overlay(ch directory.Channel, role model.RoleName) directory.Overlay {
	o, ok := ch.Overlay(directory.RoleTarget(role))
	s.Require().True(ok, "%s has no overlay for %s", ch.Name, role)
	return o
}

func (s *ControllerSuite) roles(member model.MemberID) []model.RoleName {
	m, ok := s.dir.Member(community, member)
	s.Require().True(ok)
	return m.Roles
}

// CreateGame tests

func (s *ControllerSuite) TestCreateGameProvisionsSetupChannels() {
	s.ids.Queue("game-1")
	g := s.createGame(3)

	s.Equal(model.GameID("game-1"), g.ID)
	s.Equal(1, g.Number)
	s.Equal(model.GameStatusSignup, g.Status)
	s.Equal(3, g.VotesToHang)
	s.Equal(model.DefaultGameSettings().DayMessage, g.DayMessage)

	container, ok := s.dir.Channel(g.ContainerID)
	s.Require().True(ok)
	s.Equal("Game 1", container.Name)
	s.True(container.IsContainer())

	signup := s.channel(g, model.SlotDeadChat)
	s.Equal("g1-signup", signup.Name)
	s.Equal(g.ContainerID, signup.ParentID)
	s.True(s.overlay(signup, model.RoleEveryone).Allow.Has(directory.PermView | directory.PermPost))

	modChat := s.channel(g, model.SlotModChat)
	s.True(s.overlay(modChat, model.RoleEveryone).Deny.Has(directory.PermView))
	s.True(s.overlay(modChat, model.RoleMod).Allow.Has(directory.PermView | directory.PermPost))

	stored, err := s.storage.GetGame(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Equal(g.Channels, stored.Channels)
}

func (s *ControllerSuite) TestCreateGameRejectsSecondOpenGame() {
	s.createGame(3)

	_, err := s.controller.CreateGame(s.ctx, community, model.GameSettings{})
	s.ErrorIs(err, model.ErrGameInProgress)
	s.True(model.IsValidation(err))
}

func (s *ControllerSuite) TestCreateGameAfterEndTakesNextNumber() {
	g := s.createGame(3)
	_, err := s.controller.EndGame(s.ctx, g.ID)
	s.Require().NoError(err)

	next, err := s.controller.CreateGame(s.ctx, community, model.GameSettings{Name: "Spooky"})
	s.Require().NoError(err)
	s.Equal(2, next.Number)

	container, _ := s.dir.Channel(next.ContainerID)
	s.Equal("Spooky Game 2", container.Name)
}

func (s *ControllerSuite) TestCreateGameRejectsBadThreshold() {
	_, err := s.controller.CreateGame(s.ctx, community, model.GameSettings{VotesToHang: -1})
	s.ErrorIs(err, model.ErrInvalidThreshold)
}

// Settings tests

func (s *ControllerSuite) TestUpdateSettingsAppliesToOpenGame() {
	g, ids := s.votingGame()
	s.Require().NoError(s.controller.CastVote(s.ctx, g.ID, ids[0], ids[1], 2))
	s.Require().NoError(s.controller.CastVote(s.ctx, g.ID, ids[2], ids[1], 2))

	threshold, night := 2, "Lights out, village."
	updated, err := s.controller.UpdateSettings(s.ctx, g.ID, model.SettingsUpdate{VotesToHang: &threshold, NightMessage: &night})
	s.Require().NoError(err)
	s.Equal(2, updated.VotesToHang)
	s.Equal(model.DefaultGameSettings().DayMessage, updated.DayMessage)

	report, err := s.controller.CurrentTally(s.ctx, g.ID)
	s.Require().NoError(err)
	leader, ok := report.Leader()
	s.Require().True(ok)
	s.True(leader.Eligible)

	s.advance(g)
	msgs := s.dir.Messages(s.channel(g, model.SlotTownSquare).ID)
	s.Require().NotEmpty(msgs)
	s.Contains(msgs[len(msgs)-1], night)
}

func (s *ControllerSuite) TestUpdateSettingsValidation() {
	g := s.createGame(3)

	_, err := s.controller.UpdateSettings(s.ctx, g.ID, model.SettingsUpdate{})
	s.ErrorIs(err, model.ErrNoSettingsChanged)

	zero := 0
	_, err = s.controller.UpdateSettings(s.ctx, g.ID, model.SettingsUpdate{VotesToHang: &zero})
	s.ErrorIs(err, model.ErrInvalidThreshold)
	s.True(model.IsValidation(err))

	msg := "Morning."
	s.storage.FailOn(storagetest.MethodSaveGame, errors.New("disk full"))
	_, err = s.controller.UpdateSettings(s.ctx, g.ID, model.SettingsUpdate{DayMessage: &msg})
	s.True(model.IsPersistence(err))
	s.storage.Clear()

	_, err = s.controller.EndGame(s.ctx, g.ID)
	s.Require().NoError(err)
	_, err = s.controller.UpdateSettings(s.ctx, g.ID, model.SettingsUpdate{DayMessage: &msg})
	s.ErrorIs(err, model.ErrGameEnded)

	_, err = s.controller.UpdateSettings(s.ctx, "game-missing", model.SettingsUpdate{DayMessage: &msg})
	s.ErrorIs(err, model.ErrGameNotFound)
}

// Signup tests

func (s *ControllerSuite) TestSignUpAddsRole() {
	g := s.createGame(3)
	ids := s.signUp(g, "Alice")

	s.Contains(s.roles(ids[0]), model.RoleSignedUp)
	p, err := s.storage.GetPlayer(s.ctx, g.ID, ids[0])
	s.Require().NoError(err)
	s.Equal("Alice", p.DisplayName)
	s.True(p.IsAlive())
}

func (s *ControllerSuite) TestSignUpTwiceRejected() {
	g := s.createGame(3)
	ids := s.signUp(g, "Alice")

	_, err := s.controller.SignUp(s.ctx, g.ID, ids[0], "Alice")
	s.ErrorIs(err, model.ErrAlreadySignedUp)
}

func (s *ControllerSuite) TestSignUpAfterStartRejected() {
	g := s.createGame(3)
	s.signUp(g, "Alice")
	s.start(g)

	_, err := s.controller.SignUp(s.ctx, g.ID, "m-late", "Late")
	s.ErrorIs(err, model.ErrNotInSignup)
}

func (s *ControllerSuite) TestSignUpRoleFailureKeepsPlayer() {
	g := s.createGame(3)
	boom := errors.New("missing permissions")
	s.dir.Fail(memory.OpAddRole, "", boom)

	p, err := s.controller.SignUp(s.ctx, g.ID, "m-alice", "Alice")
	s.ErrorIs(err, boom)
	var dirErr *model.DirectoryError
	s.ErrorAs(err, &dirErr)
	s.Require().NotNil(p)

	_, err = s.storage.GetPlayer(s.ctx, g.ID, "m-alice")
	s.NoError(err)
}

func (s *ControllerSuite) TestSignOut() {
	g := s.createGame(3)
	ids := s.signUp(g, "Alice")

	s.Require().NoError(s.controller.SignOut(s.ctx, g.ID, ids[0]))
	s.NotContains(s.roles(ids[0]), model.RoleSignedUp)
	_, err := s.storage.GetPlayer(s.ctx, g.ID, ids[0])
	s.ErrorIs(err, model.ErrPlayerNotFound)

	err = s.controller.SignOut(s.ctx, g.ID, ids[0])
	s.ErrorIs(err, model.ErrPlayerNotFound)
	s.True(model.IsValidation(err))
}

// StartGame tests

func (s *ControllerSuite) TestStartGameRequiresPlayers() {
	g := s.createGame(3)
	_, err := s.controller.StartGame(s.ctx, g.ID)
	s.ErrorIs(err, model.ErrInsufficientPlayers)
}

func (s *ControllerSuite) TestStartGameTwiceRejected() {
	g := s.createGame(3)
	s.signUp(g, "Alice")
	s.start(g)

	_, err := s.controller.StartGame(s.ctx, g.ID)
	s.ErrorIs(err, model.ErrNotInSignup)
}

func (s *ControllerSuite) TestStartGameProvisionsChannelsAndRoles() {
	g := s.createGame(3)
	ids := s.signUp(g, "Alice", "Bob")

	started := s.start(g)
	s.Equal(model.NightState(1), started.State())

	for _, slot := range model.GameSlots {
		ch := s.channel(g, slot)
		s.Equal(started.ChannelName(string(slot)), ch.Name)
		s.Equal(started.ContainerID, ch.ParentID)
	}
	s.Equal("g1-dead-chat", s.channel(g, model.SlotDeadChat).Name)

	for _, id := range ids {
		roles := s.roles(id)
		s.Contains(roles, model.RoleAlive)
		s.NotContains(roles, model.RoleSignedUp)
	}

	wolf := s.overlay(s.channel(g, model.SlotWolfChat), model.RoleAlive)
	s.True(wolf.Deny.Has(directory.PermView))
	s.True(wolf.Allow.Has(directory.PermPost))

	booth := s.overlay(s.channel(g, model.SlotVotingBooth), model.RoleAlive)
	s.True(booth.Deny.Has(directory.PermPost))

	deadChat := s.overlay(s.channel(g, model.SlotDeadChat), model.RoleAlive)
	s.True(deadChat.Deny.Has(directory.PermView))

	msgs := s.dir.Messages(s.channel(g, model.SlotTownSquare).ID)
	s.Require().Len(msgs, 1)
	s.Contains(msgs[0], "NIGHT 1")
	s.Contains(msgs[0], started.NightMessage)
}

func (s *ControllerSuite) TestStartGameWritesRolesBlindWhenMemberFetchFails() {
	g := s.createGame(3)
	ids := s.signUp(g, "Alice", "Bob")
	s.dir.Fail(memory.OpListMembers, "", errors.New("gateway timeout"))
	adds, removes := s.dir.Calls(memory.OpAddRole), s.dir.Calls(memory.OpRemoveRole)

	s.start(g)

	s.Equal(1, s.dir.Calls(memory.OpListMembers))
	for _, id := range ids {
		roles := s.roles(id)
		s.Contains(roles, model.RoleAlive)
		s.NotContains(roles, model.RoleSignedUp)
	}
	// Every managed role is written for every player
	s.Equal(adds+len(ids), s.dir.Calls(memory.OpAddRole))
	s.Equal(removes+3*len(ids), s.dir.Calls(memory.OpRemoveRole))
}

func (s *ControllerSuite) TestEveryDirectoryWriteIsPaced() {
	const pace = 250 * time.Millisecond
	syncer := dirsync.New(s.dir, s.clock, pace, testutil.NopLogger())
	s.controller = NewController(s.storage, s.dir, syncer, s.clock, s.ids, DefaultConfig(), testutil.NopLogger())

	g := s.createGame(3)
	ids := s.signUp(g, "Alice", "Bob", "Carol")
	s.Require().NoError(s.controller.SignOut(s.ctx, g.ID, ids[2]))
	s.start(g)
	s.advance(g)
	_, err := s.controller.Kill(s.ctx, g.ID, ids[1])
	s.Require().NoError(err)
	s.advance(g)

	writes := 0
	for _, op := range []string{
		memory.OpCreate, memory.OpRename, memory.OpDelete, memory.OpSetPosition, memory.OpSetParent,
		memory.OpSetOverlay, memory.OpDelOverlay, memory.OpAddRole, memory.OpRemoveRole, memory.OpSend,
	} {
		writes += s.dir.Calls(op)
	}
	s.Positive(s.dir.Calls(memory.OpRename))
	s.Positive(s.dir.Calls(memory.OpSend))
	s.Positive(s.dir.Calls(memory.OpRemoveRole))

	sleeps := s.clock.Sleeps()
	s.Len(sleeps, writes)
	for _, d := range sleeps {
		s.Equal(pace, d)
	}
}

func (s *ControllerSuite) TestStartGameProvisionsDeferredAux() {
	g := s.createGame(3)
	s.signUp(g, "Alice")
	aux, err := s.controller.ProvisionAuxChannel(s.ctx, g.ID, model.AuxChannelSpec{Name: "Masons", OpenAtDusk: true})
	s.Require().NoError(err)
	s.False(aux.IsProvisioned())

	s.start(g)

	auxes, err := s.storage.ListAuxChannels(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Require().Len(auxes, 1)
	s.True(auxes[0].IsProvisioned())

	ch, ok := s.dir.Channel(auxes[0].RemoteID)
	s.Require().True(ok)
	s.Equal("g1-masons", ch.Name)
	alive := s.overlay(ch, model.RoleAlive)
	s.True(alive.Allow.Has(directory.PermPost), "open at dusk during night 1")
	s.True(alive.Deny.Has(directory.PermView))
}

// AdvancePhase tests

func (s *ControllerSuite) TestAdvanceCycle() {
	g := s.createGame(3)
	s.signUp(g, "Alice")
	s.start(g)

	want := []model.State{model.DayState(2), model.NightState(2), model.DayState(3), model.NightState(3)}
	for _, w := range want {
		result := s.advance(g)
		s.Equal(w, result.To)
		s.Equal(w, result.Game.State())
	}
}

func (s *ControllerSuite) TestAdvanceBeforeStartRejected() {
	g := s.createGame(3)
	_, err := s.controller.AdvancePhase(s.ctx, g.ID, moderator)
	s.ErrorIs(err, model.ErrGameNotActive)
	s.True(model.IsValidation(err))
}

func (s *ControllerSuite) TestVotingBoothOpensOnDayTwo() {
	g := s.createGame(3)
	s.signUp(g, "Alice")
	s.start(g)

	// Night 1 is followed directly by day 2, so the booth stays closed until then
	s.True(s.overlay(s.channel(g, model.SlotVotingBooth), model.RoleAlive).Deny.Has(directory.PermPost))

	s.advanceTo(g, model.DayState(2))
	s.True(s.overlay(s.channel(g, model.SlotVotingBooth), model.RoleAlive).Allow.Has(directory.PermPost))

	s.advanceTo(g, model.NightState(2))
	s.True(s.overlay(s.channel(g, model.SlotVotingBooth), model.RoleAlive).Deny.Has(directory.PermPost))
}

func (s *ControllerSuite) TestDayEndTalliesAndPurgesVotes() {
	g := s.createGame(3)
	ids := s.signUp(g, "Ann", "Ben", "V1", "V2", "V3", "V4", "V5")
	ann, ben, voters := ids[0], ids[1], ids[2:]
	s.start(g)
	s.advanceTo(g, model.DayState(2))

	for _, v := range voters[:2] {
		s.Require().NoError(s.controller.CastVote(s.ctx, g.ID, v, ann, 2))
	}
	for _, v := range voters[2:] {
		s.Require().NoError(s.controller.CastVote(s.ctx, g.ID, v, ben, 2))
	}

	result := s.advance(g)
	s.Equal(model.NightState(2), result.To)
	s.Require().NotNil(result.Tally)
	s.Require().Len(result.Tally.Results, 2)
	s.Equal(ben, result.Tally.Results[0].TargetID)
	s.Equal(3, result.Tally.Results[0].Count)
	s.True(result.Tally.Results[0].Eligible)
	s.Equal(ann, result.Tally.Results[1].TargetID)
	s.False(result.Tally.Results[1].Eligible)

	votes, err := s.storage.ListVotes(s.ctx, g.ID, 2)
	s.Require().NoError(err)
	s.Empty(votes)

	booth := s.dir.Messages(s.channel(g, model.SlotVotingBooth).ID)
	s.Contains(strings.Join(booth, "\n"), "Ben: 3 votes (V3, V4, V5) [threshold reached]")

	modChat := s.dir.Messages(s.channel(g, model.SlotModChat).ID)
	s.Require().NotEmpty(modChat)
	last := modChat[len(modChat)-1]
	s.Contains(last, "closed by mod-1")
	s.Contains(last, "Ben reached the threshold of 3")
}

func (s *ControllerSuite) TestDayEndWithoutVotes() {
	g := s.createGame(3)
	s.signUp(g, "Alice")
	s.start(g)
	s.advanceTo(g, model.DayState(2))
	boothBefore := len(s.dir.Messages(s.channel(g, model.SlotVotingBooth).ID))

	result := s.advance(g)
	s.Require().NotNil(result.Tally)
	s.Equal(0, result.Tally.TotalVotes())
	// The empty summary and the night banner
	booth := s.dir.Messages(s.channel(g, model.SlotVotingBooth).ID)
	s.Len(booth, boothBefore+2)
	s.Contains(strings.Join(booth, "\n"), "No votes were cast.")

	modChat := s.dir.Messages(s.channel(g, model.SlotModChat).ID)
	s.Require().NotEmpty(modChat)
	s.Contains(modChat[len(modChat)-1], "Nobody reached the threshold of 3")
}

func (s *ControllerSuite) TestPersistenceFailureAbortsBeforeDirectoryIO() {
	g := s.createGame(3)
	s.signUp(g, "Alice")
	s.start(g)

	overlays := s.dir.Calls(memory.OpSetOverlay)
	sends := s.dir.Calls(memory.OpSend)
	gets := s.dir.Calls(memory.OpGetChannel)
	s.storage.FailOn(storagetest.MethodApplyTransition, errors.New("connection reset"))

	_, err := s.controller.AdvancePhase(s.ctx, g.ID, moderator)
	s.True(model.IsPersistence(err))

	s.Equal(overlays, s.dir.Calls(memory.OpSetOverlay))
	s.Equal(sends, s.dir.Calls(memory.OpSend))
	s.Equal(gets, s.dir.Calls(memory.OpGetChannel))

	stored, err := s.storage.GetGame(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Equal(model.NightState(1), stored.State())
}

func (s *ControllerSuite) TestConcurrentTransitionRejected() {
	g := s.createGame(3)
	s.signUp(g, "Alice")
	s.start(g)

	done, err := s.controller.begin(g.ID)
	s.Require().NoError(err)

	_, err = s.controller.AdvancePhase(s.ctx, g.ID, moderator)
	s.ErrorIs(err, model.ErrTransitionInProgress)
	_, err = s.controller.EndGame(s.ctx, g.ID)
	s.ErrorIs(err, model.ErrTransitionInProgress)

	done()
	_, err = s.controller.AdvancePhase(s.ctx, g.ID, moderator)
	s.NoError(err)
}

func (s *ControllerSuite) TestSyncFailureDoesNotRollBack() {
	g := s.createGame(3)
	s.signUp(g, "Alice")
	s.start(g)
	s.advanceTo(g, model.DayState(2))
	booth := s.channel(g, model.SlotVotingBooth)
	boom := errors.New("rate limited")
	s.dir.Fail(memory.OpSetOverlay, string(booth.ID), boom)

	result, err := s.controller.AdvancePhase(s.ctx, g.ID, moderator)
	s.Require().NoError(err)
	s.Equal(model.NightState(2), result.To)
	s.Equal(1, result.Sync.Failed)
	s.Equal([]model.ChannelID{booth.ID}, result.Sync.FailedChannels())
	s.ErrorIs(result.Err(), boom)

	stored, err := s.storage.GetGame(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Equal(model.NightState(2), stored.State())
	s.True(s.overlay(s.channel(g, model.SlotVotingBooth), model.RoleAlive).Allow.Has(directory.PermPost))

	s.dir.ClearFailures()
	healed, err := s.controller.Resync(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Equal(0, healed.Sync.Failed)
	s.NoError(healed.Err())
	s.True(s.overlay(s.channel(g, model.SlotVotingBooth), model.RoleAlive).Deny.Has(directory.PermPost))
}

// Voting tests

func (s *ControllerSuite) votingGame() (*model.Game, []model.MemberID) {
	g := s.createGame(3)
	ids := s.signUp(g, "Alice", "Bob", "Carol")
	s.start(g)
	return s.advanceTo(g, model.DayState(2)), ids
}

func (s *ControllerSuite) TestVoteReplacesEarlierVote() {
	g, ids := s.votingGame()

	s.Require().NoError(s.controller.CastVote(s.ctx, g.ID, ids[0], ids[1], 2))
	s.Require().NoError(s.controller.CastVote(s.ctx, g.ID, ids[0], ids[2], 2))

	votes, err := s.storage.ListVotes(s.ctx, g.ID, 2)
	s.Require().NoError(err)
	s.Require().Len(votes, 1)
	s.Equal(ids[2], votes[0].TargetID)
}

func (s *ControllerSuite) TestVoteAtNightRejected() {
	g := s.createGame(3)
	ids := s.signUp(g, "Alice", "Bob")
	s.start(g)

	err := s.controller.CastVote(s.ctx, g.ID, ids[0], ids[1], 1)
	s.ErrorIs(err, model.ErrVotingClosed)
	s.True(model.IsValidation(err))
}

func (s *ControllerSuite) TestVoteValidation() {
	g, ids := s.votingGame()

	s.ErrorIs(s.controller.CastVote(s.ctx, g.ID, ids[0], ids[1], 3), model.ErrWrongDay)
	s.ErrorIs(s.controller.CastVote(s.ctx, g.ID, ids[0], ids[0], 2), model.ErrSelfVote)
	s.ErrorIs(s.controller.CastVote(s.ctx, g.ID, "m-stranger", ids[0], 2), model.ErrVoterNotAlive)
	s.ErrorIs(s.controller.CastVote(s.ctx, g.ID, ids[0], "m-stranger", 2), model.ErrTargetNotAlive)

	_, err := s.controller.Kill(s.ctx, g.ID, ids[2])
	s.Require().NoError(err)
	s.ErrorIs(s.controller.CastVote(s.ctx, g.ID, ids[2], ids[0], 2), model.ErrVoterNotAlive)
	s.ErrorIs(s.controller.CastVote(s.ctx, g.ID, ids[0], ids[2], 2), model.ErrTargetNotAlive)
}

func (s *ControllerSuite) TestVotePersistenceFailure() {
	g, ids := s.votingGame()
	s.storage.FailOn(storagetest.MethodUpsertVote, errors.New("disk full"))

	err := s.controller.CastVote(s.ctx, g.ID, ids[0], ids[1], 2)
	s.True(model.IsPersistence(err))
}

func (s *ControllerSuite) TestRetractVote() {
	g, ids := s.votingGame()
	s.Require().NoError(s.controller.CastVote(s.ctx, g.ID, ids[0], ids[1], 2))

	s.Require().NoError(s.controller.RetractVote(s.ctx, g.ID, ids[0], 2))
	votes, _ := s.storage.ListVotes(s.ctx, g.ID, 2)
	s.Empty(votes)

	err := s.controller.RetractVote(s.ctx, g.ID, ids[0], 2)
	s.ErrorIs(err, model.ErrNoVote)
	s.True(model.IsValidation(err))
}

func (s *ControllerSuite) TestVoteLandingAfterDayEndRejected() {
	g, ids := s.votingGame()
	s.storage.Before(storagetest.MethodUpsertVote, func(ctx context.Context) {
		_, err := s.controller.AdvancePhase(ctx, g.ID, moderator)
		s.Require().NoError(err)
	})

	err := s.controller.CastVote(s.ctx, g.ID, ids[0], ids[1], 2)
	s.ErrorIs(err, model.ErrVotingClosed)
	s.True(model.IsValidation(err))

	current, err := s.storage.GetGame(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Equal(model.NightState(2), current.State())
	votes, err := s.storage.ListVotes(s.ctx, g.ID, 2)
	s.Require().NoError(err)
	s.Empty(votes)
}

func (s *ControllerSuite) TestRetractAfterDayEndRejected() {
	g, ids := s.votingGame()
	s.Require().NoError(s.controller.CastVote(s.ctx, g.ID, ids[0], ids[1], 2))
	s.storage.Before(storagetest.MethodDeleteVote, func(ctx context.Context) {
		_, err := s.controller.AdvancePhase(ctx, g.ID, moderator)
		s.Require().NoError(err)
	})

	err := s.controller.RetractVote(s.ctx, g.ID, ids[0], 2)
	s.ErrorIs(err, model.ErrVotingClosed)
	s.True(model.IsValidation(err))
}

func (s *ControllerSuite) TestCurrentTally() {
	g, ids := s.votingGame()
	s.Require().NoError(s.controller.CastVote(s.ctx, g.ID, ids[0], ids[1], 2))
	s.Require().NoError(s.controller.CastVote(s.ctx, g.ID, ids[2], ids[1], 2))

	report, err := s.controller.CurrentTally(s.ctx, g.ID)
	s.Require().NoError(err)
	leader, ok := report.Leader()
	s.Require().True(ok)
	s.Equal("Bob", leader.TargetName)
	s.Equal(2, leader.Count)
	s.False(leader.Eligible)
}

// EndGame tests

func (s *ControllerSuite) snapshot() ([]directory.Channel, []directory.Member) {
	channels, err := s.dir.ListChannels(s.ctx, community)
	s.Require().NoError(err)
	members, err := s.dir.ListMembers(s.ctx, community)
	s.Require().NoError(err)
	return channels, members
}

func (s *ControllerSuite) TestEndGameTwiceLeavesIdenticalState() {
	g := s.createGame(3)
	s.signUp(g, "Alice", "Bob")
	s.start(g)
	s.advanceTo(g, model.DayState(2))

	first, err := s.controller.EndGame(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Equal(model.GameStatusEnded, first.To.Status)
	channels, members := s.snapshot()
	roleWrites := s.dir.Calls(memory.OpAddRole) + s.dir.Calls(memory.OpRemoveRole)
	sends := s.dir.Calls(memory.OpSend)

	second, err := s.controller.EndGame(s.ctx, g.ID)
	s.Require().NoError(err)
	s.NoError(second.Err())
	for _, o := range second.Sync.Outcomes {
		s.Zero(o.Writes, o.Name)
	}

	channelsAgain, membersAgain := s.snapshot()
	s.Equal(channels, channelsAgain)
	s.Equal(members, membersAgain)
	s.Equal(roleWrites, s.dir.Calls(memory.OpAddRole)+s.dir.Calls(memory.OpRemoveRole))
	s.Equal(sends, s.dir.Calls(memory.OpSend))
}

func (s *ControllerSuite) TestEndGameOpensChannelsAndSpectates() {
	g := s.createGame(3)
	ids := s.signUp(g, "Alice", "Bob")
	s.start(g)
	_, err := s.controller.Kill(s.ctx, g.ID, ids[1])
	s.Require().NoError(err)

	_, err = s.controller.EndGame(s.ctx, g.ID)
	s.Require().NoError(err)

	for _, slot := range []model.Slot{model.SlotTownSquare, model.SlotWolfChat, model.SlotResults, model.SlotDeadChat} {
		ch := s.channel(g, slot)
		s.True(s.overlay(ch, model.RoleEveryone).Allow.Has(directory.PermView), ch.Name)
		s.True(s.overlay(ch, model.RoleAlive).Deny.Has(directory.PermPost), ch.Name)
	}
	modChat := s.channel(g, model.SlotModChat)
	s.True(s.overlay(modChat, model.RoleEveryone).Deny.Has(directory.PermView))

	for _, id := range ids {
		roles := s.roles(id)
		s.Contains(roles, model.RoleSpectator)
		for _, r := range model.GameRoles {
			s.NotContains(roles, r)
		}
	}
}

func (s *ControllerSuite) TestEndGameFromSignup() {
	g := s.createGame(3)
	ids := s.signUp(g, "Alice")

	result, err := s.controller.EndGame(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Equal(model.GameStatusEnded, result.Game.Status)
	s.Contains(s.roles(ids[0]), model.RoleSpectator)

	_, err = s.controller.GetCurrentGame(s.ctx, community)
	s.ErrorIs(err, model.ErrGameNotFound)
}

// Player actions

func (s *ControllerSuite) TestKillSwapsRoles() {
	g := s.createGame(3)
	ids := s.signUp(g, "Alice", "Bob")
	s.start(g)

	p, err := s.controller.Kill(s.ctx, g.ID, ids[0])
	s.Require().NoError(err)
	s.False(p.IsAlive())
	roles := s.roles(ids[0])
	s.Contains(roles, model.RoleDead)
	s.NotContains(roles, model.RoleAlive)

	_, err = s.controller.Kill(s.ctx, g.ID, ids[0])
	s.ErrorIs(err, model.ErrPlayerNotAlive)
}

func (s *ControllerSuite) TestKillDuringSignupRejected() {
	g := s.createGame(3)
	ids := s.signUp(g, "Alice")
	_, err := s.controller.Kill(s.ctx, g.ID, ids[0])
	s.ErrorIs(err, model.ErrGameNotActive)
}

func (s *ControllerSuite) TestLockdown() {
	g := s.createGame(3)
	s.signUp(g, "Alice")
	s.start(g)

	result, err := s.controller.SetLockdown(s.ctx, g.ID, true)
	s.Require().NoError(err)
	s.Len(result.Sync.Outcomes, 2)
	for _, slot := range []model.Slot{model.SlotTownSquare, model.SlotMemos} {
		s.True(s.overlay(s.channel(g, slot), model.RoleAlive).Deny.Has(directory.PermPost))
	}

	// Lockdown survives phase changes
	s.advance(g)
	s.True(s.overlay(s.channel(g, model.SlotTownSquare), model.RoleAlive).Deny.Has(directory.PermPost))

	_, err = s.controller.SetLockdown(s.ctx, g.ID, false)
	s.Require().NoError(err)
	s.True(s.overlay(s.channel(g, model.SlotTownSquare), model.RoleAlive).Allow.Has(directory.PermPost))
}

// Aux channels

func (s *ControllerSuite) TestProvisionAuxChannelWhileActive() {
	g := s.createGame(3)
	ids := s.signUp(g, "Alice", "Bob")
	s.start(g)

	aux, err := s.controller.ProvisionAuxChannel(s.ctx, g.ID, model.AuxChannelSpec{
		Name:       "lovers",
		DayMessage: "Whisper sweet nothings.",
		OpenAtDawn: true,
		Invited:    ids,
	})
	s.Require().NoError(err)
	s.True(aux.IsProvisioned())

	ch, ok := s.dir.Channel(aux.RemoteID)
	s.Require().True(ok)
	s.Equal(g.ContainerID, ch.ParentID)
	for _, id := range ids {
		o, ok := ch.Overlay(directory.MemberTarget(id))
		s.Require().True(ok)
		s.True(o.Allow.Has(directory.PermView))
	}
	s.True(s.overlay(ch, model.RoleAlive).Deny.Has(directory.PermPost), "closed at dusk")

	s.advance(g)
	ch, _ = s.dir.Channel(aux.RemoteID)
	s.True(s.overlay(ch, model.RoleAlive).Allow.Has(directory.PermPost), "open at dawn")
	msgs := s.dir.Messages(aux.RemoteID)
	s.Require().Len(msgs, 1)
	s.Contains(msgs[0], "Whisper sweet nothings.")
}

func (s *ControllerSuite) TestProvisionAuxChannelValidation() {
	g := s.createGame(3)
	_, err := s.controller.ProvisionAuxChannel(s.ctx, g.ID, model.AuxChannelSpec{Name: "masons"})
	s.Require().NoError(err)

	cases := map[string]error{
		"masons":      model.ErrDuplicateChannel,
		"town-square": model.ErrDuplicateChannel,
		"":            model.ErrInvalidChannelName,
		"bad name!":   model.ErrInvalidChannelName,
	}
	for name, want := range cases {
		_, err := s.controller.ProvisionAuxChannel(s.ctx, g.ID, model.AuxChannelSpec{Name: name})
		s.ErrorIs(err, want, fmt.Sprintf("name %q", name))
	}

	_, err = s.controller.EndGame(s.ctx, g.ID)
	s.Require().NoError(err)
	_, err = s.controller.ProvisionAuxChannel(s.ctx, g.ID, model.AuxChannelSpec{Name: "late"})
	s.ErrorIs(err, model.ErrGameEnded)
}

func (s *ControllerSuite) TestResyncProvisionsMissingChannels() {
	g := s.createGame(3)
	s.signUp(g, "Alice")
	s.dir.Fail(memory.OpCreate, "g1-wolf-chat", errors.New("rate limited"))

	result, err := s.controller.StartGame(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Error(result.Err())
	s.Empty(result.Game.ChannelFor(model.SlotWolfChat))

	s.dir.ClearFailures()
	healed, err := s.controller.Resync(s.ctx, g.ID)
	s.Require().NoError(err)
	s.NoError(healed.Err())
	wolf := s.channel(g, model.SlotWolfChat)
	s.Equal("g1-wolf-chat", wolf.Name)
}
