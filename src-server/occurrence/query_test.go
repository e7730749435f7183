package occurrence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"moim/src-server/occurrence"
)

type fakeStore struct {
	users     map[string]struct{}
	accepted  map[string][]string // userID -> calendarIDs
	schedules []occurrence.Schedule
}

func (f *fakeStore) Exists(_ context.Context, memberID string) (bool, error) {
	_, ok := f.users[memberID]
	return ok, nil
}

func (f *fakeStore) IsAcceptedMember(_ context.Context, calendarID, memberID string) (bool, error) {
	for _, id := range f.accepted[memberID] {
		if id == calendarID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListAcceptedCalendarIDs(_ context.Context, memberID string) ([]string, error) {
	return f.accepted[memberID], nil
}

func (f *fakeStore) FindNonRecurringOverlapping(_ context.Context, calendarIDs []string, from, to time.Time) ([]occurrence.Schedule, error) {
	var out []occurrence.Schedule
	for _, schedule := range f.schedules {
		if schedule.Recurring || !inCalendars(schedule.CalendarID, calendarIDs) {
			continue
		}
		if schedule.StartUTC.Before(to) && schedule.EndUTC.After(from) {
			out = append(out, schedule)
		}
	}
	return out, nil
}

func (f *fakeStore) FindRecurringCandidates(_ context.Context, calendarIDs []string, before time.Time) ([]occurrence.Schedule, error) {
	var out []occurrence.Schedule
	for _, schedule := range f.schedules {
		if !schedule.Recurring || !inCalendars(schedule.CalendarID, calendarIDs) {
			continue
		}
		if schedule.StartUTC.Before(before) {
			out = append(out, schedule)
		}
	}
	return out, nil
}

func inCalendars(calendarID string, calendarIDs []string) bool {
	for _, id := range calendarIDs {
		if id == calendarID {
			return true
		}
	}
	return false
}

func newTestService(t *testing.T, store *fakeStore) *occurrence.Service {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatal(err)
	}
	return occurrence.NewService(store, store, store, loc)
}

func TestGetOccurrencesUnknownViewer(t *testing.T) {
	svc := newTestService(t, &fakeStore{users: map[string]struct{}{}})

	_, err := svc.GetOccurrences(context.Background(), "ghost", "",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, occurrence.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetOccurrencesForbiddenCalendar(t *testing.T) {
	svc := newTestService(t, &fakeStore{
		users:    map[string]struct{}{"alice": {}},
		accepted: map[string][]string{"alice": {"cal-1"}},
	})

	_, err := svc.GetOccurrences(context.Background(), "alice", "cal-2",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, occurrence.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestGetOccurrencesInvalidWindow(t *testing.T) {
	svc := newTestService(t, &fakeStore{users: map[string]struct{}{"alice": {}}})

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.GetOccurrences(context.Background(), "alice", "", at, at); !errors.Is(err, occurrence.ErrValidation) {
		t.Errorf("expected ErrValidation on empty window, got %v", err)
	}
}

func TestGetOccurrencesNoCalendars(t *testing.T) {
	svc := newTestService(t, &fakeStore{
		users:    map[string]struct{}{"alice": {}},
		accepted: map[string][]string{},
	})

	result, err := svc.GetOccurrences(context.Background(), "alice", "",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Days) != 0 {
		t.Errorf("expected no days, got %d", len(result.Days))
	}
}

func TestGetOccurrencesBucketsByLocalDay(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Seoul")

	// late evening local time: 23:00 Jan 1st and 01:00 Jan 2nd, both within
	// one UTC day but two local ones
	store := &fakeStore{
		users:    map[string]struct{}{"alice": {}},
		accepted: map[string][]string{"alice": {"cal-1"}},
		schedules: []occurrence.Schedule{
			{
				ID:         "sched-late",
				CalendarID: "cal-1",
				Title:      "late meeting",
				StartUTC:   time.Date(2024, 1, 1, 23, 0, 0, 0, loc).UTC(),
				EndUTC:     time.Date(2024, 1, 1, 23, 30, 0, 0, loc).UTC(),
			},
			{
				ID:         "sched-early",
				CalendarID: "cal-1",
				Title:      "early meeting",
				StartUTC:   time.Date(2024, 1, 2, 1, 0, 0, 0, loc).UTC(),
				EndUTC:     time.Date(2024, 1, 2, 1, 30, 0, 0, loc).UTC(),
			},
		},
	}
	svc := newTestService(t, store)

	result, err := svc.GetOccurrences(context.Background(), "alice", "cal-1",
		time.Date(2024, 1, 1, 0, 0, 0, 0, loc).UTC(),
		time.Date(2024, 1, 3, 0, 0, 0, 0, loc).UTC())
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Days) != 2 {
		t.Fatalf("expected 2 day buckets, got %d", len(result.Days))
	}
	if result.Days[0].Date != "2024-01-01" || result.Days[1].Date != "2024-01-02" {
		t.Errorf("unexpected bucket dates: %s, %s", result.Days[0].Date, result.Days[1].Date)
	}
	if result.Days[0].Items[0].ScheduleID != "sched-late" {
		t.Errorf("expected sched-late on the first day, got %s", result.Days[0].Items[0].ScheduleID)
	}
}

func TestGetOccurrencesMergesRecurringAndPlain(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Seoul")

	store := &fakeStore{
		users:    map[string]struct{}{"alice": {}},
		accepted: map[string][]string{"alice": {"cal-1"}},
		schedules: []occurrence.Schedule{
			{
				ID:         "sched-plain",
				CalendarID: "cal-1",
				Title:      "one-off",
				StartUTC:   time.Date(2024, 1, 2, 14, 0, 0, 0, loc).UTC(),
				EndUTC:     time.Date(2024, 1, 2, 15, 0, 0, 0, loc).UTC(),
			},
			{
				ID:         "sched-daily",
				CalendarID: "cal-1",
				Title:      "standup",
				StartUTC:   time.Date(2024, 1, 1, 9, 0, 0, 0, loc).UTC(),
				EndUTC:     time.Date(2024, 1, 1, 9, 15, 0, 0, loc).UTC(),
				Recurring:  true,
				Rule:       &occurrence.Rule{Freq: occurrence.FreqDaily, Interval: 1},
				Exceptions: []string{"2024-01-03"},
			},
		},
	}
	svc := newTestService(t, store)

	result, err := svc.GetOccurrences(context.Background(), "alice", "",
		time.Date(2024, 1, 1, 0, 0, 0, 0, loc).UTC(),
		time.Date(2024, 1, 5, 0, 0, 0, 0, loc).UTC())
	if err != nil {
		t.Fatal(err)
	}

	// standup on Jan 1, 2, 4 (3rd excluded) plus the one-off on Jan 2
	total := 0
	for _, day := range result.Days {
		total += len(day.Items)
	}
	if total != 4 {
		t.Fatalf("expected 4 items, got %d", total)
	}
	if len(result.Days) != 3 {
		t.Fatalf("expected 3 day buckets, got %d", len(result.Days))
	}

	jan2 := result.Days[1]
	if jan2.Date != "2024-01-02" || len(jan2.Items) != 2 {
		t.Fatalf("expected 2 items on 2024-01-02, got %d on %s", len(jan2.Items), jan2.Date)
	}
	// items within a day sort by start; standup at 09:00 before one-off at 14:00
	if jan2.Items[0].ScheduleID != "sched-daily" || jan2.Items[1].ScheduleID != "sched-plain" {
		t.Errorf("unexpected intra-day order: %s, %s", jan2.Items[0].ScheduleID, jan2.Items[1].ScheduleID)
	}

	for _, day := range result.Days {
		if day.Date == "2024-01-03" {
			t.Error("excluded date 2024-01-03 should not produce a bucket")
		}
	}
}

func TestGetOccurrencesOccurrenceIDStable(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Seoul")

	store := &fakeStore{
		users:    map[string]struct{}{"alice": {}},
		accepted: map[string][]string{"alice": {"cal-1"}},
		schedules: []occurrence.Schedule{{
			ID:         "sched-1",
			CalendarID: "cal-1",
			Title:      "weekly",
			StartUTC:   time.Date(2024, 1, 1, 10, 0, 0, 0, loc).UTC(),
			EndUTC:     time.Date(2024, 1, 1, 11, 0, 0, 0, loc).UTC(),
			Recurring:  true,
			Rule:       &occurrence.Rule{Freq: occurrence.FreqWeekly, Interval: 1},
		}},
	}
	svc := newTestService(t, store)

	window := [2]time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, loc).UTC(),
		time.Date(2024, 1, 15, 0, 0, 0, 0, loc).UTC(),
	}
	first, err := svc.GetOccurrences(context.Background(), "alice", "", window[0], window[1])
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.GetOccurrences(context.Background(), "alice", "", window[0], window[1])
	if err != nil {
		t.Fatal(err)
	}

	if len(first.Days) != 2 {
		t.Fatalf("expected 2 day buckets, got %d", len(first.Days))
	}
	for i := range first.Days {
		if first.Days[i].Items[0].OccurrenceID != second.Days[i].Items[0].OccurrenceID {
			t.Errorf("occurrence IDs differ between identical queries")
		}
	}
	want := "sched-1@" + time.Date(2024, 1, 1, 10, 0, 0, 0, loc).UTC().Format(time.RFC3339)
	if got := first.Days[0].Items[0].OccurrenceID; got != want {
		t.Errorf("occurrence ID = %s, want %s", got, want)
	}
}
