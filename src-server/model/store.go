package model

import (
	"context"
	"fmt"
	"time"

	"moim/src-server/occurrence"

	"github.com/uptrace/bun"
)

// Store adapts the database to the read interfaces the occurrence engine
// consumes. Read-only; no write side effects.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

var (
	_ occurrence.ScheduleStore   = (*Store)(nil)
	_ occurrence.MembershipStore = (*Store)(nil)
	_ occurrence.MemberStore     = (*Store)(nil)
)

func (s *Store) Exists(ctx context.Context, memberID string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*User)(nil)).
		Where("id = ?", memberID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("(*Store).Exists: %w", err)
	}
	return exists, nil
}

func (s *Store) IsAcceptedMember(ctx context.Context, calendarID, memberID string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*CalendarMember)(nil)).
		Where("calendar_id = ?", calendarID).
		Where("user_id = ?", memberID).
		Where("status = ?", MEMBERSHIP_STATUS_ACCEPTED).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("(*Store).IsAcceptedMember: %w", err)
	}
	return exists, nil
}

func (s *Store) ListAcceptedCalendarIDs(ctx context.Context, memberID string) ([]string, error) {
	calendarIDs := []string{}
	if err := s.db.NewSelect().
		Model((*CalendarMember)(nil)).
		Column("calendar_id").
		Where("user_id = ?", memberID).
		Where("status = ?", MEMBERSHIP_STATUS_ACCEPTED).
		Scan(ctx, &calendarIDs); err != nil {
		return nil, fmt.Errorf("(*Store).ListAcceptedCalendarIDs: %w", err)
	}
	return calendarIDs, nil
}

func (s *Store) FindNonRecurringOverlapping(ctx context.Context, calendarIDs []string, from, to time.Time) ([]occurrence.Schedule, error) {
	scheduleModels := make([]Schedule, 0)
	if err := s.db.NewSelect().
		Model(&scheduleModels).
		Where("calendar_id IN (?)", bun.In(calendarIDs)).
		Where("recurring = ?", false).
		Where("start_date < ?", to.UTC().Unix()).
		Where("end_date > ?", from.UTC().Unix()).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("(*Store).FindNonRecurringOverlapping: %w", err)
	}

	out := make([]occurrence.Schedule, 0, len(scheduleModels))
	for i := range scheduleModels {
		out = append(out, toEngineSchedule(&scheduleModels[i]))
	}
	return out, nil
}

// FindRecurringCandidates is a loose pre-filter on the anchor start; a rule
// anchored long before the window can still produce in-window occurrences,
// so exact filtering stays in the expander.
func (s *Store) FindRecurringCandidates(ctx context.Context, calendarIDs []string, before time.Time) ([]occurrence.Schedule, error) {
	scheduleModels := make([]Schedule, 0)
	if err := s.db.NewSelect().
		Model(&scheduleModels).
		Where("schedule.calendar_id IN (?)", bun.In(calendarIDs)).
		Where("schedule.recurring = ?", true).
		Where("schedule.start_date < ?", before.UTC().Unix()).
		Relation("Rule").
		Relation("Exceptions", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("date ASC")
		}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("(*Store).FindRecurringCandidates: %w", err)
	}

	out := make([]occurrence.Schedule, 0, len(scheduleModels))
	for i := range scheduleModels {
		out = append(out, toEngineSchedule(&scheduleModels[i]))
	}
	return out, nil
}

func toEngineSchedule(s *Schedule) occurrence.Schedule {
	engine := occurrence.Schedule{
		ID:         s.ID,
		CalendarID: s.CalendarID,
		Title:      s.Title,
		Theme:      s.Theme,
		StartUTC:   time.Unix(s.StartUnixUTC, 0).UTC(),
		EndUTC:     time.Unix(s.EndUnixUTC, 0).UTC(),
		Recurring:  s.Recurring,
	}
	if s.Rule != nil {
		rule := s.Rule.ToRule()
		engine.Rule = &rule
	}
	for _, exception := range s.Exceptions {
		engine.Exceptions = append(engine.Exceptions, exception.Date)
	}
	return engine
}
