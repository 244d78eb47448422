// Package tally counts a day's votes into a ranked report
package tally

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/mcoot/wolfbot/internal/model"
)

// Voter is one member who voted for a target
type Voter struct {
	ID   model.MemberID
	Name string
}

// Result is the count for one target
type Result struct {
	TargetID   model.MemberID
	TargetName string
	Count      int
	Voters     []Voter
	// Eligible is true when Count reaches the elimination threshold
	Eligible bool
}

// Report is the ranked outcome of a day's voting
type Report struct {
	DayNumber int
	Threshold int
	Results   []Result
}

// Eligible returns the results that reached the threshold, in rank order
func (r Report) Eligible() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Eligible {
			out = append(out, res)
		}
	}
	return out
}

// TotalVotes returns the number of votes counted
func (r Report) TotalVotes() int {
	n := 0
	for _, res := range r.Results {
		n += res.Count
	}
	return n
}

// Leader returns the top ranked result, if any votes were cast
func (r Report) Leader() (Result, bool) {
	if len(r.Results) == 0 {
		return Result{}, false
	}
	return r.Results[0], true
}

// Summary renders the report as the plain text posted to the voting channel
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Day %d voting results\n", r.DayNumber)
	if len(r.Results) == 0 {
		b.WriteString("No votes were cast.")
		return b.String()
	}
	for _, res := range r.Results {
		names := make([]string, len(res.Voters))
		for i, v := range res.Voters {
			names[i] = v.Name
		}
		noun := "votes"
		if res.Count == 1 {
			noun = "vote"
		}
		fmt.Fprintf(&b, "%s: %d %s (%s)", res.TargetName, res.Count, noun, strings.Join(names, ", "))
		if res.Eligible {
			b.WriteString(" [threshold reached]")
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Tally counts votes for one day. names resolves member ids to display
// names; unknown ids fall back to the id. The output depends only on the
// set of votes, not their order.
func Tally(day int, votes []*model.Vote, names map[model.MemberID]string, threshold int) Report {
	nameOf := func(id model.MemberID) string {
		if n, ok := names[id]; ok && n != "" {
			return n
		}
		return string(id)
	}

	byTarget := make(map[model.MemberID]*Result)
	for _, v := range votes {
		if v.DayNumber != day {
			continue
		}
		res, ok := byTarget[v.TargetID]
		if !ok {
			res = &Result{TargetID: v.TargetID, TargetName: nameOf(v.TargetID)}
			byTarget[v.TargetID] = res
		}
		res.Count++
		res.Voters = append(res.Voters, Voter{ID: v.VoterID, Name: nameOf(v.VoterID)})
	}

	report := Report{DayNumber: day, Threshold: threshold}
	for _, res := range byTarget {
		slices.SortFunc(res.Voters, func(a, b Voter) int {
			return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
		})
		res.Eligible = threshold > 0 && res.Count >= threshold
		report.Results = append(report.Results, *res)
	}
	slices.SortFunc(report.Results, func(a, b Result) int {
		return cmp.Or(
			cmp.Compare(b.Count, a.Count),
			cmp.Compare(a.TargetName, b.TargetName),
			cmp.Compare(a.TargetID, b.TargetID),
		)
	})
	return report
}
