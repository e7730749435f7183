package model

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type MembershipStatus string

const (
	MEMBERSHIP_STATUS_INVITED  = MembershipStatus("INVITED")
	MEMBERSHIP_STATUS_ACCEPTED = MembershipStatus("ACCEPTED")
	MEMBERSHIP_STATUS_DECLINED = MembershipStatus("DECLINED")
)

type CalendarMember struct {
	bun.BaseModel `bun:"table:calendar_members"`

	CalendarID string           `bun:"calendar_id,pk,notnull"` // required
	UserID     string           `bun:"user_id,pk,notnull"`     // required
	Status     MembershipStatus `bun:"status,notnull,type:varchar"`

	InvitedAtUnixUTC   int64 `bun:"invited_at,notnull"`
	RespondedAtUnixUTC int64 `bun:"responded_at"`

	Calendar *Calendar `bun:"rel:belongs-to,join:calendar_id=id"`
}

func (m *CalendarMember) Upsert(ctx context.Context, db bun.IDB) error {
	switch {
	case m.CalendarID == "":
		return fmt.Errorf("(*CalendarMember).Upsert: calendar id is blank")
	case m.UserID == "":
		return fmt.Errorf("(*CalendarMember).Upsert: user id is blank")
	}
	switch m.Status {
	case MEMBERSHIP_STATUS_INVITED, MEMBERSHIP_STATUS_ACCEPTED, MEMBERSHIP_STATUS_DECLINED:
	default:
		return fmt.Errorf("(*CalendarMember).Upsert: invalid status %q", m.Status)
	}
	if m.InvitedAtUnixUTC == 0 {
		m.InvitedAtUnixUTC = time.Now().UTC().Unix()
	}

	if _, err := db.
		NewInsert().
		Model(m).
		On("CONFLICT (calendar_id, user_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("responded_at = EXCLUDED.responded_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*CalendarMember).Upsert: %w", err)
	}

	return nil
}

// Respond flips an INVITED membership to ACCEPTED or DECLINED.
func (m *CalendarMember) Respond(ctx context.Context, db bun.IDB, accept bool) error {
	if m.Status != MEMBERSHIP_STATUS_INVITED {
		return fmt.Errorf("(*CalendarMember).Respond: membership is not pending")
	}
	m.Status = MEMBERSHIP_STATUS_DECLINED
	if accept {
		m.Status = MEMBERSHIP_STATUS_ACCEPTED
	}
	m.RespondedAtUnixUTC = time.Now().UTC().Unix()
	return m.Upsert(ctx, db)
}
