package occurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("invalid input")
)

// Schedule is the engine's read-only view of a stored schedule. Recurring
// ones carry their rule and the ordered local-date exceptions.
type Schedule struct {
	ID         string
	CalendarID string
	Title      string
	Theme      string
	StartUTC   time.Time
	EndUTC     time.Time
	Recurring  bool
	Rule       *Rule
	Exceptions []string // local dates, "2006-01-02"
}

type ScheduleStore interface {
	// non-recurring schedules whose stored interval overlaps [from, to)
	FindNonRecurringOverlapping(ctx context.Context, calendarIDs []string, from, to time.Time) ([]Schedule, error)
	// recurring schedules anchored before the window's upper bound; a loose
	// pre-filter, exact filtering happens in Expand
	FindRecurringCandidates(ctx context.Context, calendarIDs []string, before time.Time) ([]Schedule, error)
}

type MembershipStore interface {
	IsAcceptedMember(ctx context.Context, calendarID, memberID string) (bool, error)
	ListAcceptedCalendarIDs(ctx context.Context, memberID string) ([]string, error)
}

type MemberStore interface {
	Exists(ctx context.Context, memberID string) (bool, error)
}

// Item is one concrete occurrence in a query response.
type Item struct {
	OccurrenceID string    `json:"occurrenceId"`
	ScheduleID   string    `json:"scheduleId"`
	CalendarID   string    `json:"calendarId"`
	Title        string    `json:"title"`
	Theme        string    `json:"theme"`
	StartAtUTC   time.Time `json:"startAtUtc"`
	EndAtUTC     time.Time `json:"endAtUtc"`
	Recurring    bool      `json:"recurring"`
}

// DayBucket groups the items whose start falls on one local calendar date.
// Buckets are ordered chronologically; a Go map can't carry that, hence the
// explicit slice.
type DayBucket struct {
	Date  string `json:"date"`
	Items []Item `json:"items"`
}

type Result struct {
	CalendarID    string      `json:"calendarId,omitempty"`
	WindowFromUTC time.Time   `json:"windowFromUtc"`
	WindowToUTC   time.Time   `json:"windowToUtc"`
	Days          []DayBucket `json:"days"`
}

// Service resolves which calendars a viewer can see, loads candidate
// schedules and turns them into day-bucketed occurrences. Stateless; safe
// for concurrent use.
type Service struct {
	schedules   ScheduleStore
	members     MemberStore
	memberships MembershipStore
	loc         *time.Location

	// OnTruncation, when set, is called once per schedule whose expansion
	// hit the candidate cap.
	OnTruncation func(scheduleID string)
}

func NewService(schedules ScheduleStore, members MemberStore, memberships MembershipStore, loc *time.Location) *Service {
	return &Service{
		schedules:   schedules,
		members:     members,
		memberships: memberships,
		loc:         loc,
	}
}

// GetOccurrences computes every occurrence visible to viewerID in
// [from, to). calendarID narrows the query to one calendar (which the
// viewer must be an accepted member of); blank means every calendar with an
// accepted membership.
func (s *Service) GetOccurrences(ctx context.Context, viewerID, calendarID string, from, to time.Time) (*Result, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("GetOccurrences: window from must be before to: %w", ErrValidation)
	}

	exists, err := s.members.Exists(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("GetOccurrences: can't look up viewer: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("GetOccurrences: viewer %s: %w", viewerID, ErrNotFound)
	}

	var calendarIDs []string
	if calendarID != "" {
		accepted, err := s.memberships.IsAcceptedMember(ctx, calendarID, viewerID)
		if err != nil {
			return nil, fmt.Errorf("GetOccurrences: can't check membership: %w", err)
		}
		if !accepted {
			return nil, fmt.Errorf("GetOccurrences: calendar %s: %w", calendarID, ErrForbidden)
		}
		calendarIDs = []string{calendarID}
	} else {
		calendarIDs, err = s.memberships.ListAcceptedCalendarIDs(ctx, viewerID)
		if err != nil {
			return nil, fmt.Errorf("GetOccurrences: can't list calendars: %w", err)
		}
	}

	result := &Result{
		CalendarID:    calendarID,
		WindowFromUTC: from.UTC(),
		WindowToUTC:   to.UTC(),
		Days:          []DayBucket{},
	}
	if len(calendarIDs) == 0 {
		return result, nil
	}

	var items []Item

	plain, err := s.schedules.FindNonRecurringOverlapping(ctx, calendarIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("GetOccurrences: can't load schedules: %w", err)
	}
	for _, schedule := range plain {
		for _, slice := range SplitByLocalDay(schedule.StartUTC, schedule.EndUTC, s.loc) {
			items = append(items, newItem(schedule, slice))
		}
	}

	recurring, err := s.schedules.FindRecurringCandidates(ctx, calendarIDs, to)
	if err != nil {
		return nil, fmt.Errorf("GetOccurrences: can't load recurring schedules: %w", err)
	}
	for _, schedule := range recurring {
		if schedule.Rule == nil {
			slog.Warn("recurring schedule has no rule", "schedule", schedule.ID)
			continue
		}
		exceptions := make(map[string]struct{}, len(schedule.Exceptions))
		for _, date := range schedule.Exceptions {
			exceptions[date] = struct{}{}
		}
		slices, truncated := Expand(schedule.StartUTC, schedule.EndUTC, *schedule.Rule, exceptions, from, to, s.loc)
		if truncated {
			slog.Warn("occurrence expansion hit the candidate cap, result is incomplete",
				"schedule", schedule.ID, "cap", maxCandidates)
			if s.OnTruncation != nil {
				s.OnTruncation(schedule.ID)
			}
		}
		for _, slice := range slices {
			items = append(items, newItem(schedule, slice))
		}
	}

	// stable keeps emission order on equal starts, so the response is
	// deterministic regardless of storage iteration order
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].StartAtUTC.Before(items[j].StartAtUTC)
	})

	bucketIdx := make(map[string]int)
	for _, item := range items {
		date := item.StartAtUTC.In(s.loc).Format(localDateLayout)
		idx, ok := bucketIdx[date]
		if !ok {
			idx = len(result.Days)
			bucketIdx[date] = idx
			result.Days = append(result.Days, DayBucket{Date: date})
		}
		result.Days[idx].Items = append(result.Days[idx].Items, item)
	}

	return result, nil
}

func newItem(schedule Schedule, slice Slice) Item {
	startUTC := slice.Start.UTC()
	return Item{
		OccurrenceID: schedule.ID + "@" + startUTC.Format(time.RFC3339),
		ScheduleID:   schedule.ID,
		CalendarID:   schedule.CalendarID,
		Title:        schedule.Title,
		Theme:        schedule.Theme,
		StartAtUTC:   startUTC,
		EndAtUTC:     slice.End.UTC(),
		Recurring:    schedule.Recurring,
	}
}
