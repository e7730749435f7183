package model

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
)

type CalendarIDCtxKeyType string

const CalendarIDCtxKey CalendarIDCtxKeyType = "calendar-id"

type Calendar struct {
	bun.BaseModel `bun:"table:calendars"`

	ID      string `bun:"id,pk,notnull"`   // required
	Name    string `bun:"name,notnull"`    // required
	Theme   string `bun:"theme"`
	OwnerID string `bun:"owner_id,notnull"` // required

	CreatedAtUnixUTC int64 `bun:"created_at,notnull"`

	Members   []*CalendarMember `bun:"rel:has-many,join:id=calendar_id"`
	Schedules []*Schedule       `bun:"rel:has-many,join:id=calendar_id"`
}

func (c *Calendar) Upsert(ctx context.Context, db bun.IDB) error {
	switch {
	case c.ID == "":
		return fmt.Errorf("(*Calendar).Upsert: calendar id is blank")
	case c.Name == "":
		return fmt.Errorf("(*Calendar).Upsert: name is blank")
	case c.OwnerID == "":
		return fmt.Errorf("(*Calendar).Upsert: owner id is blank")
	}

	if _, err := db.
		NewInsert().
		Model(c).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("theme = EXCLUDED.theme").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Calendar).Upsert: %w", err)
	}

	return nil
}

var _ bun.AfterDeleteHook = (*Calendar)(nil)

// Cleanup memberships and schedules
func (c *Calendar) AfterDelete(ctx context.Context, query *bun.DeleteQuery) error {
	if query.DB() == nil {
		return fmt.Errorf("(*Calendar).AfterDelete: db is nil")
	}

	calendarID, ok := ctx.Value(CalendarIDCtxKey).(string)
	if !ok || calendarID == "" {
		return fmt.Errorf("(*Calendar).AfterDelete: calendar id is missing from context")
	}

	if _, err := query.DB().NewDelete().
		Model((*CalendarMember)(nil)).
		Where("calendar_id = ?", calendarID).
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Calendar).AfterDelete: can't delete members: %w", err)
	}

	scheduleIDs := []string{}
	if err := query.DB().NewSelect().
		Model((*Schedule)(nil)).
		Column("id").
		Where("calendar_id = ?", calendarID).
		Scan(ctx, &scheduleIDs); err != nil {
		slog.Warn("(*Calendar).AfterDelete: can't get schedule ids", "error", err)
	}
	for _, scheduleID := range scheduleIDs {
		if _, err := query.DB().NewDelete().
			Model((*Schedule)(nil)).
			Where("id = ?", scheduleID).
			Exec(context.WithValue(ctx, ScheduleIDCtxKey, scheduleID)); err != nil {
			return fmt.Errorf("(*Calendar).AfterDelete: can't delete schedule: %w", err)
		}
	}

	return nil
}
