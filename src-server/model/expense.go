package model

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type ExpenseIDCtxKeyType string

const ExpenseIDCtxKey ExpenseIDCtxKeyType = "expense-id"

type Expense struct {
	bun.BaseModel `bun:"table:expenses"`

	ID         string `bun:"id,pk,notnull"`        // required
	ScheduleID string `bun:"schedule_id,notnull"`  // required
	PayerID    string `bun:"payer_id,notnull"`     // required
	Amount     int64  `bun:"amount,notnull"`       // minor currency units
	Memo       string `bun:"memo"`

	CreatedAtUnixUTC int64 `bun:"created_at,notnull"`

	Schedule    *Schedule     `bun:"rel:belongs-to,join:schedule_id=id"`
	Attachments []*Attachment `bun:"rel:has-many,join:id=expense_id"`
}

func (e *Expense) Upsert(ctx context.Context, db bun.IDB) error {
	switch {
	case e.ID == "":
		return fmt.Errorf("(*Expense).Upsert: expense id is blank")
	case e.ScheduleID == "":
		return fmt.Errorf("(*Expense).Upsert: schedule id is blank")
	case e.PayerID == "":
		return fmt.Errorf("(*Expense).Upsert: payer id is blank")
	case e.Amount <= 0:
		return fmt.Errorf("(*Expense).Upsert: amount must be positive")
	}
	if e.CreatedAtUnixUTC == 0 {
		e.CreatedAtUnixUTC = time.Now().UTC().Unix()
	}

	scheduleExists, err := db.NewSelect().
		Model((*Schedule)(nil)).
		Where("id = ?", e.ScheduleID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("(*Expense).Upsert: %w", err)
	}
	if !scheduleExists {
		return fmt.Errorf("(*Expense).Upsert: schedule id not found")
	}

	if _, err := db.
		NewInsert().
		Model(e).
		On("CONFLICT (id) DO UPDATE").
		Set("payer_id = EXCLUDED.payer_id").
		Set("amount = EXCLUDED.amount").
		Set("memo = EXCLUDED.memo").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Expense).Upsert: %w", err)
	}

	return nil
}

var _ bun.AfterDeleteHook = (*Expense)(nil)

// Cleanup receipt attachments
func (e *Expense) AfterDelete(ctx context.Context, query *bun.DeleteQuery) error {
	if query.DB() == nil {
		return fmt.Errorf("(*Expense).AfterDelete: db is nil")
	}

	expenseID, ok := ctx.Value(ExpenseIDCtxKey).(string)
	if !ok || expenseID == "" {
		return fmt.Errorf("(*Expense).AfterDelete: expense id is missing from context")
	}

	if _, err := query.DB().NewDelete().
		Model((*Attachment)(nil)).
		Where("expense_id = ?", expenseID).
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Expense).AfterDelete: can't delete attachments: %w", err)
	}

	return nil
}
