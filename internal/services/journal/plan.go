package journal

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mcoot/wolfbot/internal/model"
)

// Entry is a journal channel as seen by the planner
type Entry struct {
	ChannelID model.ChannelID
	Name      string
	ParentID  model.ChannelID
}

// BaseName is the sort key of the entry
func (e Entry) BaseName() string {
	return model.JournalBaseName(e.Name)
}

// Range is one container's share of the sorted journals
type Range struct {
	Index   int
	Entries []Entry
}

// First returns the upper-cased first letter of the range's first journal
func (r Range) First() string {
	if len(r.Entries) == 0 {
		return ""
	}
	return initial(r.Entries[0].BaseName())
}

// Last returns the upper-cased first letter of the range's last journal
func (r Range) Last() string {
	if len(r.Entries) == 0 {
		return ""
	}
	return initial(r.Entries[len(r.Entries)-1].BaseName())
}

// ContainerName returns the name a range's container should carry. A
// single range keeps the bare base name.
func (r Range) ContainerName(base string, total int) string {
	if total <= 1 {
		return base
	}
	return RangeName(base, r.First(), r.Last())
}

// RangeName formats a lettered container name, e.g. "Journals (A-M)"
func RangeName(base, first, last string) string {
	return fmt.Sprintf("%s (%s-%s)", base, first, last)
}

// ParseRangeName extracts the letters from a name built by RangeName
func ParseRangeName(base, name string) (first, last string, ok bool) {
	inner, found := strings.CutPrefix(name, base+" (")
	if !found {
		return "", "", false
	}
	inner, found = strings.CutSuffix(inner, ")")
	if !found {
		return "", "", false
	}
	first, last, found = strings.Cut(inner, "-")
	if !found || first == "" || last == "" {
		return "", "", false
	}
	return first, last, true
}

// IsContainerName reports whether a container name belongs to the journal set
func IsContainerName(base, name string) bool {
	if name == base {
		return true
	}
	_, _, ok := ParseRangeName(base, name)
	return ok
}

// SortEntries orders entries by base name, then channel id
func SortEntries(entries []Entry) {
	slices.SortStableFunc(entries, compareEntries)
}

func compareEntries(a, b Entry) int {
	return cmp.Or(cmp.Compare(a.BaseName(), b.BaseName()), cmp.Compare(a.ChannelID, b.ChannelID))
}

// ContainerCount returns the number of containers n journals need. Reaching
// capacity forces a split into at least two. The count never drops below
// current.
func ContainerCount(n, capacity, current int) int {
	k := 1
	if n >= capacity {
		k = max(2, (n+capacity-1)/capacity)
	}
	return max(k, current, 1)
}

// Plan sorts the entries and splits them into k contiguous ranges of near
// equal size, earlier ranges taking the remainder.
func Plan(entries []Entry, k int) []Range {
	sorted := slices.Clone(entries)
	SortEntries(sorted)

	k = max(k, 1)
	n := len(sorted)
	ranges := make([]Range, k)
	start := 0
	for i := range ranges {
		size := n / k
		if i < n%k {
			size++
		}
		ranges[i] = Range{Index: i, Entries: sorted[start : start+size]}
		start += size
	}
	return ranges
}

func initial(s string) string {
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return "?"
	}
	return string(unicode.ToUpper(r))
}
