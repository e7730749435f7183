package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
)

type ScheduleIDCtxKeyType string

const ScheduleIDCtxKey ScheduleIDCtxKeyType = "schedule-id"

type Schedule struct {
	bun.BaseModel `bun:"table:schedules"`

	ID         string `bun:"id,pk,notnull"`          // required
	CalendarID string `bun:"calendar_id,notnull"`    // required
	Title      string `bun:"title,notnull"`          // required
	Theme      string `bun:"theme"`

	StartUnixUTC int64 `bun:"start_date,notnull"` // required
	EndUnixUTC   int64 `bun:"end_date,notnull"`   // required
	Recurring    bool  `bun:"recurring"`

	CreatedAtUnixUTC int64 `bun:"created_at,notnull"`
	UpdatedAtUnixUTC int64 `bun:"updated_at"`
	Sequence         int   `bun:"sequence"`

	Calendar   *Calendar              `bun:"rel:belongs-to,join:calendar_id=id"`
	Rule       *RecurrenceRule        `bun:"rel:has-one,join:id=schedule_id"`
	Exceptions []*RecurrenceException `bun:"rel:has-many,join:id=schedule_id"`
	Expenses   []*Expense             `bun:"rel:has-many,join:id=schedule_id"`
}

func (s *Schedule) Upsert(ctx context.Context, db bun.IDB) error {
	switch {
	case s.ID == "":
		return fmt.Errorf("(*Schedule).Upsert: schedule id is blank")
	case s.CalendarID == "":
		return fmt.Errorf("(*Schedule).Upsert: calendar id is blank")
	case s.Title == "":
		return fmt.Errorf("(*Schedule).Upsert: title is blank")
	case s.StartUnixUTC == 0:
		return fmt.Errorf("(*Schedule).Upsert: start date is blank")
	case s.EndUnixUTC == 0:
		return fmt.Errorf("(*Schedule).Upsert: end date is blank")
	case s.StartUnixUTC >= s.EndUnixUTC:
		return fmt.Errorf("(*Schedule).Upsert: start date must be before end date")
	}
	if s.CreatedAtUnixUTC == 0 {
		s.CreatedAtUnixUTC = time.Now().UTC().Unix()
	}

	calendarExists, err := db.NewSelect().
		Model((*Calendar)(nil)).
		Where("id = ?", s.CalendarID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("(*Schedule).Upsert: %w", err)
	}
	if !calendarExists {
		return fmt.Errorf("(*Schedule).Upsert: calendar id not found")
	}

	exists, err := db.NewSelect().
		Model((*Schedule)(nil)).
		Where("id = ?", s.ID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("(*Schedule).Upsert: %w", err)
	}

	switch exists {
	case true:
		s.UpdatedAtUnixUTC = time.Now().UTC().Unix()
		s.Sequence++
		if _, err := db.NewUpdate().
			Model(s).
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("(*Schedule).Upsert: %w", err)
		}
	case false:
		if _, err := db.NewInsert().
			Model(s).
			Exec(ctx); err != nil {
			return fmt.Errorf("(*Schedule).Upsert: %w", err)
		}
	}

	return nil
}

var _ bun.AfterDeleteHook = (*Schedule)(nil)

// Cleanup the recurrence rule, its exceptions and the expenses
func (s *Schedule) AfterDelete(ctx context.Context, query *bun.DeleteQuery) error {
	if query.DB() == nil {
		return fmt.Errorf("(*Schedule).AfterDelete: db is nil")
	}

	scheduleID, ok := ctx.Value(ScheduleIDCtxKey).(string)
	if !ok || scheduleID == "" {
		return fmt.Errorf("(*Schedule).AfterDelete: schedule id is missing from context")
	}

	if _, err := query.DB().NewDelete().
		Model((*RecurrenceRule)(nil)).
		Where("schedule_id = ?", scheduleID).
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Schedule).AfterDelete: can't delete recurrence rule: %w", err)
	}

	if _, err := query.DB().NewDelete().
		Model((*RecurrenceException)(nil)).
		Where("schedule_id = ?", scheduleID).
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Schedule).AfterDelete: can't delete exceptions: %w", err)
	}

	expenseIDs := []string{}
	if err := query.DB().NewSelect().
		Model((*Expense)(nil)).
		Column("id").
		Where("schedule_id = ?", scheduleID).
		Scan(ctx, &expenseIDs); err != nil {
		slog.Warn("(*Schedule).AfterDelete: can't get expense ids", "error", err)
	}
	for _, expenseID := range expenseIDs {
		if _, err := query.DB().NewDelete().
			Model((*Expense)(nil)).
			Where("id = ?", expenseID).
			Exec(context.WithValue(ctx, ExpenseIDCtxKey, expenseID)); err != nil {
			return fmt.Errorf("(*Schedule).AfterDelete: can't delete expense: %w", err)
		}
	}

	return nil
}
