package occurrence_test

import (
	"testing"
	"time"

	"moim/src-server/occurrence"
)

func seoul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

func localDates(slices []occurrence.Slice, loc *time.Location) []string {
	dates := make([]string, 0, len(slices))
	for _, slice := range slices {
		dates = append(dates, slice.Start.In(loc).Format("2006-01-02"))
	}
	return dates
}

func TestExpandDailyAlignedWindow(t *testing.T) {
	loc := seoul(t)
	seedStart := time.Date(2024, 1, 1, 10, 0, 0, 0, loc)
	seedEnd := seedStart.Add(time.Hour)
	rule := occurrence.Rule{Freq: occurrence.FreqDaily, Interval: 1}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	to := time.Date(2024, 1, 8, 0, 0, 0, 0, loc)
	slices, truncated := occurrence.Expand(seedStart, seedEnd, rule, nil, from, to, loc)
	if truncated {
		t.Error("tiny window should not truncate")
	}
	if len(slices) != 7 {
		t.Fatalf("expected 7 occurrences for a 7-day window, got %d", len(slices))
	}
	for i, slice := range slices {
		local := slice.Start.In(loc)
		if local.Hour() != 10 || local.Minute() != 0 {
			t.Error("occurrence should keep the seed's wall-clock time", local)
		}
		if i > 0 {
			prev := slices[i-1].Start.In(loc)
			if local.Sub(prev) != 24*time.Hour {
				t.Error("daily occurrences should be 24h apart in local wall time", prev, local)
			}
		}
	}
}

func TestExpandBiweeklyWithUntil(t *testing.T) {
	loc := seoul(t)
	seedStart := time.Date(2024, 1, 1, 10, 0, 0, 0, loc)
	seedEnd := time.Date(2024, 1, 1, 11, 0, 0, 0, loc)
	rule := occurrence.Rule{
		Freq:     occurrence.FreqWeekly,
		Interval: 2,
		Until:    time.Date(2024, 3, 1, 0, 0, 0, 0, loc),
	}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, loc)
	slices, _ := occurrence.Expand(seedStart, seedEnd, rule, nil, from, to, loc)

	want := []string{"2024-01-01", "2024-01-15", "2024-01-29"}
	got := localDates(slices, loc)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("occurrence %d: expected %s, got %s", i, want[i], got[i])
		}
		local := slices[i].Start.In(loc)
		endLocal := slices[i].End.In(loc)
		if local.Hour() != 10 || endLocal.Hour() != 11 {
			t.Error("occurrence should run 10:00-11:00 local", local, endLocal)
		}
	}
}

func TestExpandExceptionRemovesSingleDate(t *testing.T) {
	loc := seoul(t)
	seedStart := time.Date(2024, 1, 1, 10, 0, 0, 0, loc)
	seedEnd := time.Date(2024, 1, 1, 11, 0, 0, 0, loc)
	rule := occurrence.Rule{
		Freq:     occurrence.FreqWeekly,
		Interval: 2,
		Until:    time.Date(2024, 3, 1, 0, 0, 0, 0, loc),
	}
	exceptions := map[string]struct{}{"2024-01-15": {}}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, loc)
	slices, _ := occurrence.Expand(seedStart, seedEnd, rule, exceptions, from, to, loc)

	want := []string{"2024-01-01", "2024-01-29"}
	got := localDates(slices, loc)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for _, date := range got {
		if date == "2024-01-15" {
			t.Error("excepted date should never appear")
		}
	}
}

func TestExpandWeeklyByDayFiltersWeekdays(t *testing.T) {
	loc := seoul(t)
	seedStart := time.Date(2024, 1, 1, 9, 0, 0, 0, loc) // a Monday
	seedEnd := seedStart.Add(30 * time.Minute)
	rule := occurrence.Rule{
		Freq:     occurrence.FreqWeekly,
		Interval: 1,
		ByDay:    []string{"MO", "WE", "FR"},
	}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	to := time.Date(2024, 1, 22, 0, 0, 0, 0, loc)
	slices, _ := occurrence.Expand(seedStart, seedEnd, rule, nil, from, to, loc)
	if len(slices) != 9 {
		t.Fatalf("expected 9 occurrences over 3 weeks, got %d", len(slices))
	}
	for _, slice := range slices {
		switch slice.Start.In(loc).Weekday() {
		case time.Monday, time.Wednesday, time.Friday:
		default:
			t.Error("occurrence on unexpected weekday", slice.Start.In(loc))
		}
	}
}

// Ordinal prefixes on weekly byDay tokens are accepted but only the weekday
// code is consulted. Lenient on purpose; keep the behavior pinned down.
func TestExpandWeeklyByDayIgnoresOrdinalPrefix(t *testing.T) {
	loc := seoul(t)
	seedStart := time.Date(2024, 1, 1, 9, 0, 0, 0, loc)
	seedEnd := seedStart.Add(time.Hour)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	to := time.Date(2024, 1, 29, 0, 0, 0, 0, loc)

	plain, _ := occurrence.Expand(seedStart, seedEnd,
		occurrence.Rule{Freq: occurrence.FreqWeekly, Interval: 1, ByDay: []string{"TU"}},
		nil, from, to, loc)
	prefixed, _ := occurrence.Expand(seedStart, seedEnd,
		occurrence.Rule{Freq: occurrence.FreqWeekly, Interval: 1, ByDay: []string{"2TU"}},
		nil, from, to, loc)

	if len(plain) != len(prefixed) {
		t.Fatalf("prefixed token should behave like the bare weekday: %d vs %d", len(plain), len(prefixed))
	}
	for i := range plain {
		if !plain[i].Start.Equal(prefixed[i].Start) {
			t.Error("prefixed token produced a different occurrence", i)
		}
	}
}

func TestExpandMonthlyClampsLongMonthday(t *testing.T) {
	loc := seoul(t)
	seedStart := time.Date(2024, 3, 31, 14, 0, 0, 0, loc)
	seedEnd := seedStart.Add(time.Hour)
	rule := occurrence.Rule{
		Freq:       occurrence.FreqMonthly,
		Interval:   1,
		ByMonthday: []int{31},
	}

	// April has 30 days
	from := time.Date(2024, 4, 1, 0, 0, 0, 0, loc)
	to := time.Date(2024, 5, 1, 0, 0, 0, 0, loc)
	slices, _ := occurrence.Expand(seedStart, seedEnd, rule, nil, from, to, loc)
	if len(slices) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(slices))
	}
	if got := slices[0].Start.In(loc).Day(); got != 30 {
		t.Errorf("day 31 should clamp to 30 in April, got %d", got)
	}
}

func TestExpandMonthlyNegativeMonthdayIsLastDay(t *testing.T) {
	loc := seoul(t)
	seedStart := time.Date(2024, 1, 31, 8, 0, 0, 0, loc)
	seedEnd := seedStart.Add(time.Hour)
	rule := occurrence.Rule{
		Freq:       occurrence.FreqMonthly,
		Interval:   1,
		ByMonthday: []int{-1},
	}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	to := time.Date(2024, 5, 1, 0, 0, 0, 0, loc)
	slices, _ := occurrence.Expand(seedStart, seedEnd, rule, nil, from, to, loc)

	want := []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}
	got := localDates(slices, loc)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("occurrence %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestExpandMonthlyOrdinalWeekday(t *testing.T) {
	loc := seoul(t)
	seedStart := time.Date(2024, 1, 9, 19, 0, 0, 0, loc) // 2nd Tuesday of Jan 2024
	seedEnd := seedStart.Add(time.Hour)
	rule := occurrence.Rule{
		Freq:     occurrence.FreqMonthly,
		Interval: 1,
		ByDay:    []string{"2TU"},
	}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	to := time.Date(2024, 4, 1, 0, 0, 0, 0, loc)
	slices, _ := occurrence.Expand(seedStart, seedEnd, rule, nil, from, to, loc)

	want := []string{"2024-01-09", "2024-02-13", "2024-03-12"}
	got := localDates(slices, loc)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("occurrence %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestExpandMonthlyLastFriday(t *testing.T) {
	loc := seoul(t)
	seedStart := time.Date(2024, 1, 26, 18, 0, 0, 0, loc) // last Friday of Jan 2024
	seedEnd := seedStart.Add(2 * time.Hour)
	rule := occurrence.Rule{
		Freq:     occurrence.FreqMonthly,
		Interval: 1,
		ByDay:    []string{"-1FR"},
	}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	to := time.Date(2024, 4, 1, 0, 0, 0, 0, loc)
	slices, _ := occurrence.Expand(seedStart, seedEnd, rule, nil, from, to, loc)

	want := []string{"2024-01-26", "2024-02-23", "2024-03-29"}
	got := localDates(slices, loc)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("occurrence %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestExpandYearlyLeapDayClampsInNonLeapYear(t *testing.T) {
	loc := seoul(t)
	seedStart := time.Date(2020, 2, 29, 12, 0, 0, 0, loc)
	seedEnd := seedStart.Add(time.Hour)
	rule := occurrence.Rule{
		Freq:       occurrence.FreqYearly,
		Interval:   1,
		ByMonth:    []time.Month{time.February},
		ByMonthday: []int{29},
	}

	from := time.Date(2023, 1, 1, 0, 0, 0, 0, loc)
	to := time.Date(2023, 12, 31, 0, 0, 0, 0, loc)
	slices, _ := occurrence.Expand(seedStart, seedEnd, rule, nil, from, to, loc)
	if len(slices) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(slices))
	}
	if got := localDates(slices, loc)[0]; got != "2023-02-28" {
		t.Errorf("Feb 29 should clamp to Feb 28 in a non-leap year, got %s", got)
	}
}

func TestExpandDeduplicatesByStartInstant(t *testing.T) {
	loc := seoul(t)
	seedStart := time.Date(2024, 1, 31, 10, 0, 0, 0, loc)
	seedEnd := seedStart.Add(time.Hour)
	// day 31 and day -1 resolve to the same date in a 31-day month
	rule := occurrence.Rule{
		Freq:       occurrence.FreqMonthly,
		Interval:   1,
		ByMonthday: []int{31, -1},
	}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, loc)
	slices, _ := occurrence.Expand(seedStart, seedEnd, rule, nil, from, to, loc)
	if len(slices) != 1 {
		t.Fatalf("expected deduplicated single occurrence, got %d", len(slices))
	}

	seen := make(map[int64]struct{})
	for _, slice := range slices {
		key := slice.Start.UnixNano()
		if _, dup := seen[key]; dup {
			t.Error("two occurrences share a start instant", slice.Start)
		}
		seen[key] = struct{}{}
	}
}

func TestExpandInvertedSeedIsEmpty(t *testing.T) {
	loc := seoul(t)
	seedStart := time.Date(2024, 1, 1, 11, 0, 0, 0, loc)
	seedEnd := time.Date(2024, 1, 1, 10, 0, 0, 0, loc)
	rule := occurrence.Rule{Freq: occurrence.FreqDaily, Interval: 1}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, loc)
	slices, truncated := occurrence.Expand(seedStart, seedEnd, rule, nil, from, to, loc)
	if len(slices) != 0 || truncated {
		t.Error("inverted seed interval should produce nothing", slices)
	}
}

func TestExpandCandidateCap(t *testing.T) {
	loc := seoul(t)
	seedStart := time.Date(2000, 1, 1, 10, 0, 0, 0, loc)
	seedEnd := seedStart.Add(time.Hour)
	rule := occurrence.Rule{Freq: occurrence.FreqDaily, Interval: 1}

	from := time.Date(2000, 1, 1, 0, 0, 0, 0, loc)
	to := from.AddDate(20, 0, 0)
	slices, truncated := occurrence.Expand(seedStart, seedEnd, rule, nil, from, to, loc)
	if !truncated {
		t.Error("a 20-year daily window should hit the candidate cap")
	}
	if len(slices) != 5000 {
		t.Errorf("expected exactly 5000 occurrences at the cap, got %d", len(slices))
	}
}

func TestExpandSkipsUnparseableTokens(t *testing.T) {
	loc := seoul(t)
	seedStart := time.Date(2024, 1, 1, 9, 0, 0, 0, loc)
	seedEnd := seedStart.Add(time.Hour)
	rule := occurrence.Rule{
		Freq:     occurrence.FreqWeekly,
		Interval: 1,
		ByDay:    []string{"XX", "MO", "99ZZ"},
	}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	to := time.Date(2024, 1, 15, 0, 0, 0, 0, loc)
	slices, _ := occurrence.Expand(seedStart, seedEnd, rule, nil, from, to, loc)
	if len(slices) != 2 {
		t.Fatalf("bad tokens should be skipped, not fatal: got %d occurrences", len(slices))
	}
	for _, slice := range slices {
		if slice.Start.In(loc).Weekday() != time.Monday {
			t.Error("only the parseable MO token should contribute", slice.Start.In(loc))
		}
	}
}

func TestExpandWindowFarAfterSeed(t *testing.T) {
	loc := seoul(t)
	// seed years before the query window; alignment has to jump, not walk
	seedStart := time.Date(2000, 1, 3, 10, 0, 0, 0, loc) // a Monday
	seedEnd := seedStart.Add(time.Hour)
	rule := occurrence.Rule{Freq: occurrence.FreqWeekly, Interval: 2}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, loc)
	slices, truncated := occurrence.Expand(seedStart, seedEnd, rule, nil, from, to, loc)
	if truncated {
		t.Error("one-month window should not truncate")
	}
	if len(slices) != 3 {
		t.Fatalf("expected 3 biweekly occurrences in January 2024, got %d", len(slices))
	}
	for _, slice := range slices {
		local := slice.Start.In(loc)
		if local.Weekday() != time.Monday || local.Hour() != 10 {
			t.Error("occurrence should keep seed weekday and wall-clock time", local)
		}
	}
}
