package model

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Attachment is a receipt image stored on disk under its content hash.
type Attachment struct {
	bun.BaseModel `bun:"table:attachments"`

	ID        string `bun:"id,pk,notnull"`        // required
	ExpenseID string `bun:"expense_id,notnull"`   // required
	FileName  string `bun:"file_name,notnull"`    // required
	Sha256    string `bun:"sha256,notnull"`       // required
	SizeBytes int64  `bun:"size_bytes,notnull"`

	CreatedAtUnixUTC int64 `bun:"created_at,notnull"`
}

func (a *Attachment) Insert(ctx context.Context, db bun.IDB) error {
	switch {
	case a.ID == "":
		return fmt.Errorf("(*Attachment).Insert: attachment id is blank")
	case a.ExpenseID == "":
		return fmt.Errorf("(*Attachment).Insert: expense id is blank")
	case a.FileName == "":
		return fmt.Errorf("(*Attachment).Insert: file name is blank")
	case a.Sha256 == "":
		return fmt.Errorf("(*Attachment).Insert: sha256 is blank")
	}
	if a.CreatedAtUnixUTC == 0 {
		a.CreatedAtUnixUTC = time.Now().UTC().Unix()
	}

	if _, err := db.
		NewInsert().
		Model(a).
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Attachment).Insert: %w", err)
	}

	return nil
}
