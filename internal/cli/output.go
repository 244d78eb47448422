package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/mcoot/wolfbot/internal/api/response"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		_, _ = fmt.Fprintln(o.w, string(data))
	} else {
		_, _ = fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(o.w, format, args...)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case response.Session:
		o.printSession(v)
	case response.Game:
		o.printGame(v)
	case response.Player:
		o.printPlayer(v)
	case response.Transition:
		o.printTransition(v)
	case response.Tally:
		o.printTally(v)
	case response.AuxChannel:
		o.printAuxChannel(v)
	case response.Journal:
		o.printJournal(v)
	case response.Rebalance:
		o.printRebalance(v)
	case response.Health:
		o.printf("Status: %s\n", v.Status)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printSession(s response.Session) {
	role := "player"
	if s.Moderator {
		role = "moderator"
	}
	o.printf("Member: %s (%s)\n", s.MemberID, role)
	o.printf("Expires: %s\n", s.ExpiresAt.Format("2006-01-02 15:04"))
	o.printf("Token: %s\n", s.Token)
}

func (o *Output) printGame(g response.Game) {
	title := fmt.Sprintf("Game %d", g.Number)
	if g.Name != "" {
		title = fmt.Sprintf("%s Game %d", g.Name, g.Number)
	}
	o.printf("%s (%s)\n", title, g.ID)
	o.printf("State: %s\n", g.State)
	o.printf("Votes to hang: %d\n", g.VotesToHang)
	if g.Lockdown {
		o.printf("Lockdown: on\n")
	}

	if len(g.Channels) > 0 {
		slots := make([]string, 0, len(g.Channels))
		for slot := range g.Channels {
			slots = append(slots, slot)
		}
		slices.Sort(slots)
		o.printf("Channels:\n")
		for _, slot := range slots {
			o.printf("  %s: %s\n", slot, g.Channels[slot])
		}
	}

	o.printf("Players (%d):\n", len(g.Players))
	for _, p := range g.Players {
		o.printf("  - %s (%s) %s\n", p.DisplayName, p.MemberID, p.Status)
	}

	for _, c := range g.AuxChannels {
		o.printf("Extra channel: %s %s\n", c.Name, c.ChannelID)
	}
}

func (o *Output) printPlayer(p response.Player) {
	o.printf("Player: %s (%s)\n", p.DisplayName, p.MemberID)
	o.printf("Status: %s\n", p.Status)
}

func (o *Output) printTransition(t response.Transition) {
	if t.From == t.To {
		o.printf("State: %s\n", t.To)
	} else {
		o.printf("State: %s -> %s\n", t.From, t.To)
	}
	if t.Tally != nil {
		o.printTally(*t.Tally)
	}
	o.printf("Channels synced: %d\n", t.Sync.Synced)
	if t.Sync.Failed > 0 || len(t.Sync.Errors) > 0 {
		o.printf("Failed: %d (run resync to retry)\n", t.Sync.Failed)
		for _, e := range t.Sync.Errors {
			o.printf("  ! %s\n", e)
		}
	}
}

func (o *Output) printTally(t response.Tally) {
	o.printf("Day %d votes (threshold %d):\n", t.DayNumber, t.Threshold)
	if len(t.Results) == 0 {
		o.printf("  no votes\n")
		return
	}
	for _, r := range t.Results {
		mark := ""
		if r.Eligible {
			mark = " *"
		}
		o.printf("  %s: %d (%s)%s\n", r.TargetName, r.Count, strings.Join(r.Voters, ", "), mark)
	}
}

func (o *Output) printAuxChannel(c response.AuxChannel) {
	o.printf("Channel: %s (%s)\n", c.Name, c.ChannelID)
	o.printf("Open at dawn: %t, open at dusk: %t\n", c.OpenAtDawn, c.OpenAtDusk)
	if len(c.Invited) > 0 {
		o.printf("Invited: %s\n", strings.Join(c.Invited, ", "))
	}
}

func (o *Output) printJournal(j response.Journal) {
	o.printf("Journal: %s for %s (%s)\n", j.ChannelID, j.DisplayName, j.MemberID)
}

func (o *Output) printRebalance(r response.Rebalance) {
	o.printf("Rebalance %s: %d journals in %d containers\n", r.RunID, r.Journals, r.Containers)
	o.printf("Moved: %d, created: %d, renamed: %d, deleted: %d\n", r.Moved, r.Created, r.Renamed, r.Deleted)
	if r.Healed > 0 {
		o.printf("Healed overlays on %d channels\n", r.Healed)
	}
	if len(r.Unconfirmed) > 0 {
		o.printf("Unconfirmed moves: %s\n", strings.Join(r.Unconfirmed, ", "))
	}
	for _, f := range r.Failures {
		o.printf("  ! %s\n", f)
	}
}
