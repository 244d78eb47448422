package journal

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/wolfbot/internal/model"
)

type PlanSuite struct {
	suite.Suite
}

func TestPlanSuite(t *testing.T) {
	suite.Run(t, new(PlanSuite))
}

func entries(names ...string) []Entry {
	out := make([]Entry, len(names))
	for i, n := range names {
		out[i] = Entry{ChannelID: model.ChannelID(fmt.Sprintf("c%d", i)), Name: n + model.JournalSuffix}
	}
	return out
}

func numbered(n int) []Entry {
	out := make([]Entry, n)
	for i := range out {
		out[i] = Entry{
			ChannelID: model.ChannelID(fmt.Sprintf("c%03d", i)),
			Name:      fmt.Sprintf("p%03d%s", i, model.JournalSuffix),
		}
	}
	return out
}

func (s *PlanSuite) TestContainerCount() {
	cases := []struct {
		n, capacity, current, want int
	}{
		{0, 50, 0, 1},
		{10, 50, 0, 1},
		{49, 50, 1, 1},
		{50, 50, 1, 2},
		{51, 50, 1, 2},
		{100, 50, 2, 2},
		{101, 50, 2, 3},
		{10, 50, 3, 3},
	}
	for _, c := range cases {
		s.Equal(c.want, ContainerCount(c.n, c.capacity, c.current), "n=%d current=%d", c.n, c.current)
	}
}

func (s *PlanSuite) TestPlanSplitsEarlierRangesLarger() {
	ranges := Plan(numbered(51), 2)
	s.Require().Len(ranges, 2)
	s.Len(ranges[0].Entries, 26)
	s.Len(ranges[1].Entries, 25)

	ranges = Plan(numbered(50), 2)
	s.Len(ranges[0].Entries, 25)
	s.Len(ranges[1].Entries, 25)

	ranges = Plan(numbered(7), 3)
	s.Len(ranges[0].Entries, 3)
	s.Len(ranges[1].Entries, 2)
	s.Len(ranges[2].Entries, 2)
}

func (s *PlanSuite) TestPlanSortsAndKeepsEveryEntry() {
	in := entries("mallory", "alice", "Zed", "bob", "carol")
	ranges := Plan(in, 2)

	var names []string
	for _, r := range ranges {
		for _, e := range r.Entries {
			names = append(names, e.BaseName())
		}
	}
	s.Equal([]string{"alice", "bob", "carol", "mallory", "zed"}, names)
	s.Equal("alice-journal", in[1].Name, "input must not be reordered")
}

func (s *PlanSuite) TestPlanWithZeroContainers() {
	ranges := Plan(numbered(3), 0)
	s.Require().Len(ranges, 1)
	s.Len(ranges[0].Entries, 3)
}

func (s *PlanSuite) TestRangeNames() {
	ranges := Plan(entries("alice", "bob", "mallory", "nina", "oscar", "zed"), 2)
	s.Equal("Journals (A-M)", ranges[0].ContainerName("Journals", 2))
	s.Equal("Journals (N-Z)", ranges[1].ContainerName("Journals", 2))
	s.Equal("Journals", ranges[0].ContainerName("Journals", 1))
}

func (s *PlanSuite) TestParseRangeName() {
	first, last, ok := ParseRangeName("Journals", RangeName("Journals", "A", "M"))
	s.True(ok)
	s.Equal("A", first)
	s.Equal("M", last)

	for _, name := range []string{"Journals", "Journals (A)", "Journals (-M)", "Notes (A-M)", "Journals (A-M"} {
		_, _, ok := ParseRangeName("Journals", name)
		s.False(ok, name)
	}
}

func (s *PlanSuite) TestIsContainerName() {
	s.True(IsContainerName("Journals", "Journals"))
	s.True(IsContainerName("Journals", "Journals (N-Z)"))
	s.False(IsContainerName("Journals", "Journals2"))
	s.False(IsContainerName("Journals", "g1-werewolf"))
}

func (s *PlanSuite) TestSortEntriesBreaksTiesByID() {
	in := []Entry{
		{ChannelID: "c2", Name: "alice-journal"},
		{ChannelID: "c1", Name: "Alice-journal"},
	}
	SortEntries(in)
	s.Equal(model.ChannelID("c1"), in[0].ChannelID)
}
