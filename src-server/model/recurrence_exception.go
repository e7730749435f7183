package model

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// RecurrenceException excludes one local calendar date from a recurring
// schedule's generated occurrences. A pure exclusion filter; removing one
// brings the occurrence back.
type RecurrenceException struct {
	bun.BaseModel `bun:"table:recurrence_exceptions"`

	ScheduleID string `bun:"schedule_id,pk,notnull"` // required
	Date       string `bun:"date,pk,notnull"`        // local date, "2006-01-02"
}

func (e *RecurrenceException) Insert(ctx context.Context, db bun.IDB) error {
	switch {
	case e.ScheduleID == "":
		return fmt.Errorf("(*RecurrenceException).Insert: schedule id is blank")
	case e.Date == "":
		return fmt.Errorf("(*RecurrenceException).Insert: date is blank")
	}
	if _, err := time.Parse("2006-01-02", e.Date); err != nil {
		return fmt.Errorf("(*RecurrenceException).Insert: invalid date: %w", err)
	}

	ruleExists, err := db.NewSelect().
		Model((*RecurrenceRule)(nil)).
		Where("schedule_id = ?", e.ScheduleID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("(*RecurrenceException).Insert: %w", err)
	}
	if !ruleExists {
		return fmt.Errorf("(*RecurrenceException).Insert: schedule has no recurrence rule")
	}

	if _, err := db.
		NewInsert().
		Model(e).
		On("CONFLICT (schedule_id, date) DO NOTHING").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*RecurrenceException).Insert: %w", err)
	}

	return nil
}

func (e *RecurrenceException) Delete(ctx context.Context, db bun.IDB) error {
	if _, err := db.
		NewDelete().
		Model((*RecurrenceException)(nil)).
		Where("schedule_id = ?", e.ScheduleID).
		Where("date = ?", e.Date).
		Exec(ctx); err != nil {
		return fmt.Errorf("(*RecurrenceException).Delete: %w", err)
	}
	return nil
}
