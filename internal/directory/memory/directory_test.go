package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/mcoot/wolfbot/internal/directory"
	"github.com/mcoot/wolfbot/internal/model"
	"github.com/stretchr/testify/suite"
)

const community model.CommunityID = "guild-1"

type DirectorySuite struct {
	suite.Suite
	dir *Directory
	ctx context.Context
}

func TestDirectorySuite(t *testing.T) {
	suite.Run(t, new(DirectorySuite))
}

func (s *DirectorySuite) SetupTest() {
	s.dir = New()
	s.ctx = context.Background()
}

func (s *DirectorySuite) create(name string, kind directory.ChannelKind, parent model.ChannelID, overlays ...directory.Overlay) directory.Channel {
	c, err := s.dir.CreateChannel(s.ctx, directory.ChannelSpec{
		CommunityID: community,
		Name:        name,
		Kind:        kind,
		ParentID:    parent,
		Overlays:    overlays,
	})
	s.Require().NoError(err)
	return c
}

func (s *DirectorySuite) TestCreateAssignsPositionsPerParent() {
	cat := s.create("Journals", directory.KindContainer, "")
	a := s.create("alice-journal", directory.KindText, cat.ID)
	b := s.create("bob-journal", directory.KindText, cat.ID)

	s.Equal(0, a.Position)
	s.Equal(1, b.Position)
	s.Equal(0, cat.Position)
}

func (s *DirectorySuite) TestSetPositionReordersSiblings() {
	cat := s.create("Journals", directory.KindContainer, "")
	a := s.create("a", directory.KindText, cat.ID)
	b := s.create("b", directory.KindText, cat.ID)
	c := s.create("c", directory.KindText, cat.ID)

	s.Require().NoError(s.dir.SetPosition(s.ctx, c.ID, 0))

	channels, err := s.dir.ListChannels(s.ctx, community)
	s.Require().NoError(err)
	children := directory.Children(channels, cat.ID)
	s.Require().Len(children, 3)
	s.Equal([]model.ChannelID{c.ID, a.ID, b.ID}, []model.ChannelID{children[0].ID, children[1].ID, children[2].ID})
}

func (s *DirectorySuite) TestMoveLandsAfterLagAndSyncsOverlays() {
	parentOverlay := directory.Overlay{Target: directory.RoleTarget(model.RoleEveryone), Deny: directory.PermView}
	src := s.create("Journals", directory.KindContainer, "")
	dst := s.create("Journals (N-Z)", directory.KindContainer, "", parentOverlay)
	own := directory.Overlay{Target: directory.MemberTarget("m1"), Allow: directory.PermView | directory.PermPost}
	ch := s.create("zed-journal", directory.KindText, src.ID, own)

	s.dir.SetMoveLag(2)
	s.Require().NoError(s.dir.SetParent(s.ctx, ch.ID, dst.ID))

	got, err := s.dir.GetChannel(s.ctx, ch.ID)
	s.Require().NoError(err)
	s.Equal(src.ID, got.ParentID)

	got, err = s.dir.GetChannel(s.ctx, ch.ID)
	s.Require().NoError(err)
	s.Equal(dst.ID, got.ParentID)
	s.Equal([]directory.Overlay{parentOverlay}, got.Overlays)
}

func (s *DirectorySuite) TestOverlayWrittenBeforeMoveLandsIsLost() {
	src := s.create("Journals", directory.KindContainer, "")
	dst := s.create("Journals (N-Z)", directory.KindContainer, "")
	ch := s.create("zed-journal", directory.KindText, src.ID)

	s.dir.SetMoveLag(1)
	s.Require().NoError(s.dir.SetParent(s.ctx, ch.ID, dst.ID))
	s.Require().NoError(s.dir.SetOverlay(s.ctx, community, ch.ID, directory.Overlay{
		Target: directory.MemberTarget("m1"),
		Allow:  directory.PermView,
	}))

	s.dir.Settle()
	got, ok := s.dir.Channel(ch.ID)
	s.Require().True(ok)
	s.Empty(got.Overlays)
}

func (s *DirectorySuite) TestDroppedMovesNeverLand() {
	src := s.create("Journals", directory.KindContainer, "")
	dst := s.create("Journals (N-Z)", directory.KindContainer, "")
	ch := s.create("zed-journal", directory.KindText, src.ID)

	s.dir.DropMoves(true)
	s.Require().NoError(s.dir.SetParent(s.ctx, ch.ID, dst.ID))
	s.dir.Settle()

	got, ok := s.dir.Channel(ch.ID)
	s.Require().True(ok)
	s.Equal(src.ID, got.ParentID)
}

func (s *DirectorySuite) TestSetOverlayReplacesByTarget() {
	ch := s.create("g1-town-square", directory.KindText, "")
	target := directory.RoleTarget(model.RoleAlive)

	s.Require().NoError(s.dir.SetOverlay(s.ctx, community, ch.ID, directory.Overlay{Target: target, Allow: directory.PermView}))
	s.Require().NoError(s.dir.SetOverlay(s.ctx, community, ch.ID, directory.Overlay{Target: target, Deny: directory.PermPost}))

	got, ok := s.dir.Channel(ch.ID)
	s.Require().True(ok)
	s.Require().Len(got.Overlays, 1)
	s.Equal(directory.PermPost, got.Overlays[0].Deny)
	s.Equal(directory.Permission(0), got.Overlays[0].Allow)
}

func (s *DirectorySuite) TestFailureInjection() {
	ch := s.create("g1-memos", directory.KindText, "")
	boom := errors.New("rate limited")
	s.dir.Fail(OpSetOverlay, string(ch.ID), boom)

	err := s.dir.SetOverlay(s.ctx, community, ch.ID, directory.Overlay{Target: directory.RoleTarget(model.RoleAlive)})
	s.ErrorIs(err, boom)
	s.Equal(1, s.dir.Calls(OpSetOverlay))

	s.dir.ClearFailures()
	err = s.dir.SetOverlay(s.ctx, community, ch.ID, directory.Overlay{Target: directory.RoleTarget(model.RoleAlive)})
	s.NoError(err)
}

func (s *DirectorySuite) TestDeleteContainerOrphansChildren() {
	cat := s.create("Journals (A-M)", directory.KindContainer, "")
	ch := s.create("alice-journal", directory.KindText, cat.ID)

	s.Require().NoError(s.dir.DeleteChannel(s.ctx, cat.ID))

	got, ok := s.dir.Channel(ch.ID)
	s.Require().True(ok)
	s.Equal(model.ChannelID(""), got.ParentID)
}

func (s *DirectorySuite) TestMemberRoles() {
	s.dir.AddMember(community, directory.Member{ID: "m1", DisplayName: "Alice"})

	s.Require().NoError(s.dir.AddMemberRole(s.ctx, community, "m1", model.RoleAlive))
	s.Require().NoError(s.dir.AddMemberRole(s.ctx, community, "m1", model.RoleAlive))
	m, ok := s.dir.Member(community, "m1")
	s.Require().True(ok)
	s.Equal([]model.RoleName{model.RoleAlive}, m.Roles)

	s.Require().NoError(s.dir.RemoveMemberRole(s.ctx, community, "m1", model.RoleAlive))
	m, _ = s.dir.Member(community, "m1")
	s.Empty(m.Roles)

	err := s.dir.AddMemberRole(s.ctx, community, "ghost", model.RoleAlive)
	s.ErrorIs(err, directory.ErrNotFound)
}

func (s *DirectorySuite) TestSendMessage() {
	ch := s.create("g1-results", directory.KindText, "")
	s.Require().NoError(s.dir.SendMessage(s.ctx, ch.ID, "hello"))
	s.Equal([]string{"hello"}, s.dir.Messages(ch.ID))
}
