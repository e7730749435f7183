package model

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type NotificationKind string

const (
	NOTIFICATION_KIND_UPCOMING = NotificationKind("UPCOMING_OCCURRENCE")
	NOTIFICATION_KIND_INVITE   = NotificationKind("CALENDAR_INVITE")
	NOTIFICATION_KIND_EXPENSE  = NotificationKind("EXPENSE_ADDED")
)

type Notification struct {
	bun.BaseModel `bun:"table:notifications"`

	ID     string           `bun:"id,pk,notnull"`     // required
	UserID string           `bun:"user_id,notnull"`   // required
	Kind   NotificationKind `bun:"kind,notnull,type:varchar"`
	Body   string           `bun:"body,notnull"`

	// identity of the occurrence this notification was generated for, used
	// to avoid notifying twice for the same occurrence
	OccurrenceID string `bun:"occurrence_id"`

	Read             bool  `bun:"read"`
	CreatedAtUnixUTC int64 `bun:"created_at,notnull"`
}

func (n *Notification) Insert(ctx context.Context, db bun.IDB) error {
	switch {
	case n.ID == "":
		return fmt.Errorf("(*Notification).Insert: notification id is blank")
	case n.UserID == "":
		return fmt.Errorf("(*Notification).Insert: user id is blank")
	case n.Body == "":
		return fmt.Errorf("(*Notification).Insert: body is blank")
	}
	switch n.Kind {
	case NOTIFICATION_KIND_UPCOMING, NOTIFICATION_KIND_INVITE, NOTIFICATION_KIND_EXPENSE:
	default:
		return fmt.Errorf("(*Notification).Insert: invalid kind %q", n.Kind)
	}
	if n.CreatedAtUnixUTC == 0 {
		n.CreatedAtUnixUTC = time.Now().UTC().Unix()
	}

	if _, err := db.
		NewInsert().
		Model(n).
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Notification).Insert: %w", err)
	}

	return nil
}
