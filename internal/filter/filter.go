// Package filter derives the visible subset of a ledger snapshot from a
// session-scoped filter state. Apply is pure: same snapshot and state in,
// same subsequence out, original ordering preserved.
package filter

import (
	"kharcha/internal/core"
)

// CategoryAll matches every record regardless of category.
const CategoryAll = "All"

// State holds the transient filter selection. Start and End are pointers to
// distinguish "not set" from a real date; both bounds are inclusive.
type State struct {
	Category string
	Start    *core.Date
	End      *core.Date
}

// Apply returns the records matching the state, in snapshot order. A nil or
// empty state (category All, no bounds) returns the snapshot unchanged.
func Apply(snap core.Snapshot, st State) core.Snapshot {
	out := make(core.Snapshot, 0, len(snap))
	for _, e := range snap {
		if !matches(e, st) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matches(e core.Expense, st State) bool {
	if st.Category != "" && st.Category != CategoryAll && e.Category != st.Category {
		return false
	}
	if st.Start != nil && e.OccurredOn.Before(st.Start.Time) {
		return false
	}
	if st.End != nil && e.OccurredOn.After(st.End.Time) {
		return false
	}
	return true
}
