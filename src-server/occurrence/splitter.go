package occurrence

import "time"

// Slice is one concrete occurrence interval. Never persisted; recomputed
// on every query.
type Slice struct {
	Start time.Time
	End   time.Time
}

// SplitByLocalDay slices an interval into one slice per local calendar day
// in loc. Concatenated slices reconstruct the input exactly; every interior
// boundary sits on a local midnight. An interval that doesn't start strictly
// before it ends comes back unsplit.
func SplitByLocalDay(start, end time.Time, loc *time.Location) []Slice {
	if !start.Before(end) {
		return []Slice{{Start: start, End: end}}
	}

	slices := make([]Slice, 0, 1)
	cursor := start
	for cursor.Before(end) {
		local := cursor.In(loc)
		nextMidnight := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
		if !nextMidnight.Before(end) {
			slices = append(slices, Slice{Start: cursor, End: end})
			break
		}
		slices = append(slices, Slice{Start: cursor, End: nextMidnight})
		cursor = nextMidnight
	}
	return slices
}
