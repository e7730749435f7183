package occurrence

import (
	"sort"
	"time"
)

// Hard bound on generated candidates per expansion. A rule/window combination
// that reaches it stops silently with whatever was produced so far; the
// second return value of Expand reports that the result is incomplete.
const maxCandidates = 5000

const localDateLayout = "2006-01-02"

// Expand turns a seed event plus its recurrence rule into the concrete
// occurrences whose intervals overlap [windowFrom, windowTo). The result is
// ordered by start and deduplicated by start instant. Occurrences whose
// local start date (in loc) is in exceptions are dropped, and no occurrence
// starts at or after min(windowTo, rule.Until).
func Expand(
	seedStart, seedEnd time.Time,
	rule Rule,
	exceptions map[string]struct{},
	windowFrom, windowTo time.Time,
	loc *time.Location,
) ([]Slice, bool) {
	if !seedStart.Before(seedEnd) {
		return nil, false
	}
	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}

	limit := windowTo
	if !rule.Until.IsZero() && rule.Until.Before(limit) {
		limit = rule.Until
	}

	seedLocal := seedStart.In(loc)
	duration := seedEnd.Sub(seedStart)
	cursor := alignCursor(seedLocal, rule, interval, windowFrom, loc)

	var (
		out       []Slice
		seen      = make(map[int64]struct{})
		generated int
		truncated bool
	)

loop:
	for cursor.Before(limit) {
		var candidates []time.Time
		switch rule.Freq {
		case FreqDaily:
			candidates = dailyCandidates(cursor)
		case FreqWeekly:
			candidates = weeklyCandidates(cursor, rule.ByDay)
		case FreqMonthly:
			candidates = monthlyCandidates(cursor, rule, loc)
		case FreqYearly:
			candidates = yearlyCandidates(cursor, rule, loc)
		default:
			break loop
		}

		for _, occStart := range candidates {
			generated++
			if generated > maxCandidates {
				truncated = true
				break loop
			}
			if occStart.Before(seedStart) {
				continue
			}
			if !occStart.Before(limit) {
				continue
			}
			occEnd := occStart.Add(duration)
			if !occStart.Before(windowTo) || !occEnd.After(windowFrom) {
				continue
			}
			if _, excluded := exceptions[occStart.In(loc).Format(localDateLayout)]; excluded {
				continue
			}
			key := occStart.UnixNano()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, Slice{Start: occStart, End: occEnd})
		}

		cursor = step(cursor, rule.Freq, interval)
	}

	return out, truncated
}

// alignCursor jumps the tick cursor from the seed anchor to the first tick
// at or before windowFrom, without iterating tick by tick. MONTHLY and
// YEARLY ticks are anchored at the first day of the month/year, and WEEKLY
// ticks with an explicit byDay at Monday of the seed's week, all at the
// seed's wall-clock time, so the loop's termination check never lands a
// tick past candidates that fall earlier in the tick's own month or week.
func alignCursor(seedLocal time.Time, rule Rule, interval int, windowFrom time.Time, loc *time.Location) time.Time {
	freq := rule.Freq
	fromLocal := windowFrom.In(loc)

	at := func(ticks int) time.Time {
		switch freq {
		case FreqWeekly:
			anchor := seedLocal
			if len(rule.ByDay) > 0 {
				anchor = seedLocal.AddDate(0, 0, -daysSinceMonday(seedLocal.Weekday()))
			}
			return anchor.AddDate(0, 0, ticks*interval*7)
		case FreqMonthly:
			anchor := time.Date(seedLocal.Year(), seedLocal.Month(), 1,
				seedLocal.Hour(), seedLocal.Minute(), seedLocal.Second(), 0, loc)
			return anchor.AddDate(0, ticks*interval, 0)
		case FreqYearly:
			anchor := time.Date(seedLocal.Year(), time.January, 1,
				seedLocal.Hour(), seedLocal.Minute(), seedLocal.Second(), 0, loc)
			return anchor.AddDate(ticks*interval, 0, 0)
		default:
			return seedLocal.AddDate(0, 0, ticks*interval)
		}
	}

	var ticks int
	switch freq {
	case FreqDaily:
		if days := wholeDaysBetween(seedLocal, fromLocal); days > 0 {
			ticks = days / interval
		}
	case FreqWeekly:
		if days := wholeDaysBetween(seedLocal, fromLocal); days > 0 {
			ticks = days / (interval * 7)
		}
	case FreqMonthly:
		months := (fromLocal.Year()-seedLocal.Year())*12 +
			int(fromLocal.Month()) - int(seedLocal.Month())
		if months > 0 {
			ticks = months / interval
		}
	case FreqYearly:
		if years := fromLocal.Year() - seedLocal.Year(); years > 0 {
			ticks = years / interval
		}
	}

	cursor := at(ticks)
	for cursor.After(windowFrom) && ticks > 0 {
		ticks--
		cursor = at(ticks)
	}
	return cursor
}

func step(cursor time.Time, freq Frequency, interval int) time.Time {
	switch freq {
	case FreqWeekly:
		return cursor.AddDate(0, 0, interval*7)
	case FreqMonthly:
		return cursor.AddDate(0, interval, 0)
	case FreqYearly:
		return cursor.AddDate(interval, 0, 0)
	default:
		return cursor.AddDate(0, 0, interval)
	}
}

func dailyCandidates(tick time.Time) []time.Time {
	return []time.Time{tick}
}

// weeklyCandidates resolves byDay against the tick's ISO week (Monday
// anchored). An empty byDay falls back to the tick itself, i.e. the seed's
// weekday. Ordinal prefixes carry no meaning for weekly rules; only the
// trailing weekday code is consulted.
func weeklyCandidates(tick time.Time, byDay []string) []time.Time {
	if len(byDay) == 0 {
		return []time.Time{tick}
	}

	monday := tick.AddDate(0, 0, -daysSinceMonday(tick.Weekday()))
	offsetSet := make(map[int]struct{}, len(byDay))
	for _, token := range byDay {
		parsed, ok := parseWeekdayToken(token)
		if !ok {
			continue
		}
		offsetSet[daysSinceMonday(parsed.weekday)] = struct{}{}
	}

	offsets := make([]int, 0, len(offsetSet))
	for off := range offsetSet {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)

	out := make([]time.Time, 0, len(offsets))
	for _, off := range offsets {
		out = append(out, monday.AddDate(0, 0, off))
	}
	return out
}

func monthlyCandidates(tick time.Time, rule Rule, loc *time.Location) []time.Time {
	return datesInMonth(tick.Year(), tick.Month(), tick, rule, loc)
}

// yearlyCandidates applies the monthly resolution to every month in byMonth
// for the tick's year.
func yearlyCandidates(tick time.Time, rule Rule, loc *time.Location) []time.Time {
	months := append([]time.Month(nil), rule.ByMonth...)
	sort.Slice(months, func(i, j int) bool { return months[i] < months[j] })

	var out []time.Time
	for _, month := range months {
		out = append(out, datesInMonth(tick.Year(), month, tick, rule, loc)...)
	}
	return out
}

// datesInMonth resolves the union of byMonthday and ordinal byDay dates
// within one month, at ref's wall-clock time. Positive monthdays clamp to
// the month's length, negative ones count from the end (-1 = last day) and
// clamp at the 1st.
func datesInMonth(year int, month time.Month, ref time.Time, rule Rule, loc *time.Location) []time.Time {
	dim := daysInMonth(year, month)

	daySet := make(map[int]struct{})
	for _, d := range rule.ByMonthday {
		switch {
		case d > 0:
			if d > dim {
				d = dim
			}
			daySet[d] = struct{}{}
		case d < 0:
			day := dim + d + 1
			if day < 1 {
				day = 1
			}
			daySet[day] = struct{}{}
		}
	}
	for _, token := range rule.ByDay {
		parsed, ok := parseWeekdayToken(token)
		if !ok || parsed.ordinal == 0 {
			// monthly byDay entries need an ordinal; anything else is skipped
			continue
		}
		if day, ok := resolveOrdinalWeekday(year, month, parsed, loc); ok {
			daySet[day] = struct{}{}
		}
	}

	days := make([]int, 0, len(daySet))
	for d := range daySet {
		days = append(days, d)
	}
	sort.Ints(days)

	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		out = append(out, time.Date(year, month, d,
			ref.Hour(), ref.Minute(), ref.Second(), 0, loc))
	}
	return out
}

// resolveOrdinalWeekday returns the day of month for "nth weekday" tokens.
// A positive ordinal counts from the 1st, a negative one from the month's
// last such weekday. Returns false when the nth occurrence doesn't exist.
func resolveOrdinalWeekday(year int, month time.Month, token weekdayToken, loc *time.Location) (int, bool) {
	dim := daysInMonth(year, month)
	if token.ordinal > 0 {
		firstWeekday := time.Date(year, month, 1, 0, 0, 0, 0, loc).Weekday()
		first := 1 + (int(token.weekday)-int(firstWeekday)+7)%7
		day := first + (token.ordinal-1)*7
		if day > dim {
			return 0, false
		}
		return day, true
	}
	lastWeekday := time.Date(year, month, dim, 0, 0, 0, 0, loc).Weekday()
	last := dim - (int(lastWeekday)-int(token.weekday)+7)%7
	day := last - (-token.ordinal-1)*7
	if day < 1 {
		return 0, false
	}
	return day, true
}

func daysSinceMonday(weekday time.Weekday) int {
	return (int(weekday) - int(time.Monday) + 7) % 7
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// wholeDaysBetween counts calendar days from a's local date to b's.
func wholeDaysBetween(a, b time.Time) int {
	aDay := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bDay := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bDay.Sub(aDay) / (24 * time.Hour))
}
