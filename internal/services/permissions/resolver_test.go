package permissions

import (
	"testing"

	"github.com/mcoot/wolfbot/internal/model"
	"github.com/stretchr/testify/suite"
)

type ResolverSuite struct {
	suite.Suite
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) alive(kind ChannelKind, state model.State, flags Flags) Access {
	a, ok := Resolve(kind, state, flags).Role(model.RoleAlive)
	s.Require().True(ok, "alive entry expected for %s in %s", kind, state)
	return a
}

func (s *ResolverSuite) TestVotingBoothClosedOnFirstDay() {
	a := s.alive(KindVotingBooth, model.DayState(1), Flags{})
	s.Equal(Allow, a.View)
	s.Equal(Deny, a.Post)
}

func (s *ResolverSuite) TestVotingBoothOpenFromSecondDay() {
	a := s.alive(KindVotingBooth, model.DayState(2), Flags{})
	s.Equal(Allow, a.View)
	s.Equal(Allow, a.Post)

	a = s.alive(KindVotingBooth, model.DayState(7), Flags{})
	s.Equal(Allow, a.Post)
}

func (s *ResolverSuite) TestVotingBoothClosedAtNight() {
	for d := 1; d <= 3; d++ {
		a := s.alive(KindVotingBooth, model.NightState(d), Flags{})
		s.Equal(Deny, a.Post, "night %d", d)
	}
}

func (s *ResolverSuite) TestVotingBoothViewableByDeadAndSpectators() {
	m := Resolve(KindVotingBooth, model.DayState(2), Flags{})
	for _, role := range []model.RoleName{model.RoleDead, model.RoleSpectator} {
		a, ok := m.Role(role)
		s.Require().True(ok)
		s.Equal(readOnly, a, role)
	}
	everyone, _ := m.Role(model.RoleEveryone)
	s.Equal(hidden, everyone)
}

func (s *ResolverSuite) TestWolfChatAliveNeverViewsAlwaysPosts() {
	states := []model.State{model.NightState(1), model.DayState(1), model.DayState(2), model.NightState(5)}
	for _, st := range states {
		a := s.alive(KindWolfChat, st, Flags{})
		s.Equal(Deny, a.View, st.String())
		s.Equal(Allow, a.Post, st.String())
	}
}

func (s *ResolverSuite) TestAuxiliaryFollowsDawnAndDuskFlags() {
	cases := []struct {
		name  string
		state model.State
		flags Flags
		post  Grant
	}{
		{"day open at dawn", model.DayState(2), Flags{OpenAtDawn: true}, Allow},
		{"day closed at dawn", model.DayState(2), Flags{OpenAtDusk: true}, Deny},
		{"night open at dusk", model.NightState(1), Flags{OpenAtDusk: true}, Allow},
		{"night closed at dusk", model.NightState(1), Flags{OpenAtDawn: true}, Deny},
		{"both", model.NightState(3), Flags{OpenAtDawn: true, OpenAtDusk: true}, Allow},
		{"signup", model.SignupState(), Flags{OpenAtDawn: true, OpenAtDusk: true}, Deny},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			a := s.alive(KindAuxiliary, tc.state, tc.flags)
			s.Equal(Deny, a.View)
			s.Equal(tc.post, a.Post)
		})
	}
}

func (s *ResolverSuite) TestAuxiliaryInvitedMembersAlwaysView() {
	flags := Flags{Invited: []model.MemberID{"m2", "m1"}}
	for _, st := range []model.State{model.DayState(1), model.NightState(1)} {
		m := Resolve(KindAuxiliary, st, flags)
		s.Equal([]model.MemberID{"m1", "m2"}, m.MemberIDs())
		for _, id := range m.MemberIDs() {
			s.Equal(Allow, m.Members[id].View)
		}
	}
}

func (s *ResolverSuite) TestLockdownDeniesAlivePosting() {
	for _, kind := range []ChannelKind{KindTownSquare, KindMemos} {
		open := s.alive(kind, model.DayState(2), Flags{})
		s.Equal(Allow, open.Post, kind)
		locked := s.alive(kind, model.DayState(2), Flags{Lockdown: true})
		s.Equal(Deny, locked.Post, kind)
		s.Equal(Allow, locked.View, kind)
	}
}

func (s *ResolverSuite) TestTownSquareDeniesThreads() {
	m := Resolve(KindTownSquare, model.NightState(1), Flags{})
	for _, role := range m.RoleNames() {
		s.Equal(Deny, m.Roles[role].Threads, role)
	}
}

func (s *ResolverSuite) TestDeadChatHiddenFromAliveWhileActive() {
	m := Resolve(KindDeadChat, model.NightState(1), Flags{})
	a, _ := m.Role(model.RoleAlive)
	s.Equal(Deny, a.View)
	d, _ := m.Role(model.RoleDead)
	s.Equal(full, d)
}

func (s *ResolverSuite) TestDeadChatOpenDuringSignup() {
	m := Resolve(KindDeadChat, model.SignupState(), Flags{})
	everyone, ok := m.Role(model.RoleEveryone)
	s.Require().True(ok)
	s.Equal(full, everyone)
	_, ok = m.Role(model.RoleAlive)
	s.False(ok)
}

func (s *ResolverSuite) TestEndedOpensEveryNonModChannel() {
	ended := model.State{Status: model.GameStatusEnded}
	kinds := []ChannelKind{KindTownSquare, KindVotingBooth, KindMemos, KindResults, KindWolfChat, KindDeadChat, KindAuxiliary}
	for _, kind := range kinds {
		m := Resolve(kind, ended, Flags{OpenAtDawn: true, OpenAtDusk: true})
		everyone, _ := m.Role(model.RoleEveryone)
		s.Equal(Allow, everyone.View, kind)
		s.Equal(Unset, everyone.Post, kind)
		alive, _ := m.Role(model.RoleAlive)
		s.Equal(Allow, alive.View, kind)
		s.Equal(Deny, alive.Post, kind)
	}
}

func (s *ResolverSuite) TestModOnlyUnaffectedByState() {
	want := Resolve(KindModOnly, model.SignupState(), Flags{})
	for _, st := range []model.State{model.NightState(1), model.DayState(4), {Status: model.GameStatusEnded}} {
		got := Resolve(KindModOnly, st, Flags{})
		s.Equal(want.Roles, got.Roles, st.String())
	}
	everyone, _ := want.Role(model.RoleEveryone)
	s.Equal(hidden, everyone)
}

func (s *ResolverSuite) TestJournalOwnerAndStateIndependence() {
	flags := Flags{Owner: "m1"}
	m := Resolve(KindJournal, model.DayState(3), flags)
	owner := m.Members["m1"]
	s.Equal(Allow, owner.View)
	s.Equal(Allow, owner.Post)
	s.Equal(Allow, owner.Pin)

	ended := Resolve(KindJournal, model.State{Status: model.GameStatusEnded}, flags)
	s.Equal(m.Roles, ended.Roles)
	s.Equal(m.Members, ended.Members)
}

func (s *ResolverSuite) TestKindForSlot() {
	for _, slot := range append(model.GameSlots, model.SlotDeadChat, model.SlotModChat) {
		kind, err := KindForSlot(slot)
		s.Require().NoError(err)
		s.Contains(Kinds, kind)
	}
	_, err := KindForSlot("breakdown")
	s.Error(err)
}

func (s *ResolverSuite) TestResolveIsDeterministic() {
	for _, kind := range Kinds {
		a := Resolve(kind, model.DayState(2), Flags{Invited: []model.MemberID{"x"}, Owner: "o"})
		b := Resolve(kind, model.DayState(2), Flags{Invited: []model.MemberID{"x"}, Owner: "o"})
		s.Equal(a, b, kind)
	}
}
