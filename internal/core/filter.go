package core

import "strings"

// AllOption is the sidebar choice that disables a filter.
const AllOption = "(Todas)"

// Filters holds the sidebar selection. Empty or AllOption means unset.
type Filters struct {
	Priority string
	Status   string
}

func isSet(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != AllOption
}

// Active reports whether at least one filter is set.
func (f Filters) Active() bool {
	return isSet(f.Priority) || isSet(f.Status)
}

// Match reports whether r passes every set filter.
func (f Filters) Match(r Record) bool {
	if isSet(f.Priority) && r.Priority != strings.TrimSpace(f.Priority) {
		return false
	}
	if isSet(f.Status) && r.Status != strings.TrimSpace(f.Status) {
		return false
	}
	return true
}

// Filter returns the records of t matching f, in order. Positions of the
// result point back to the rows of t's source table, so filtering twice
// with the same selection yields the same table.
func Filter(t Table, f Filters) Table {
	out := Table{
		Records:   make([]Record, 0, t.Len()),
		Positions: make([]int, 0, t.Len()),
		Missing:   t.Missing,
	}
	for i, r := range t.Records {
		if !f.Match(r) {
			continue
		}
		out.Records = append(out.Records, r)
		out.Positions = append(out.Positions, t.Position(i))
	}
	return out
}

// Options lists the distinct non-empty values of a column, first-seen
// order, for the sidebar selects.
func Options(t Table, value func(Record) string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range t.Records {
		v := value(r)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
