package model

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"moim/src-server/occurrence"

	"github.com/uptrace/bun"
)

// RecurrenceRule is the persisted form of a schedule's recurrence. One per
// schedule; mutated by full replacement of its fields. The list fields are
// stored as comma-separated values.
type RecurrenceRule struct {
	bun.BaseModel `bun:"table:recurrence_rules"`

	ScheduleID    string `bun:"schedule_id,pk,notnull"` // required
	Freq          string `bun:"freq,notnull"`           // required
	IntervalCount int    `bun:"interval_count,notnull"` // required
	ByDay         string `bun:"by_day"`
	ByMonthday    string `bun:"by_monthday"`
	ByMonth       string `bun:"by_month"`
	UntilUnixUTC  int64  `bun:"until_date"`
}

// Validate enforces the write-time rule invariants. The expander assumes it
// only ever sees rules that passed this.
func (r *RecurrenceRule) Validate() error {
	if r.ScheduleID == "" {
		return fmt.Errorf("(*RecurrenceRule).Validate: schedule id is blank")
	}
	if r.IntervalCount < 1 {
		return fmt.Errorf("(*RecurrenceRule).Validate: interval count must be at least 1")
	}

	byDay := splitCSV(r.ByDay)
	byMonthday, err := splitCSVInts(r.ByMonthday)
	if err != nil {
		return fmt.Errorf("(*RecurrenceRule).Validate: invalid by_monthday: %w", err)
	}
	byMonth, err := splitCSVInts(r.ByMonth)
	if err != nil {
		return fmt.Errorf("(*RecurrenceRule).Validate: invalid by_month: %w", err)
	}

	for _, d := range byMonthday {
		if d == 0 || d > 31 || d < -31 {
			return fmt.Errorf("(*RecurrenceRule).Validate: monthday %d out of range", d)
		}
	}
	for _, m := range byMonth {
		if m < 1 || m > 12 {
			return fmt.Errorf("(*RecurrenceRule).Validate: month %d out of range", m)
		}
	}

	switch occurrence.Frequency(r.Freq) {
	case occurrence.FreqDaily, occurrence.FreqWeekly:
	case occurrence.FreqMonthly:
		if len(byDay) == 0 && len(byMonthday) == 0 {
			return fmt.Errorf("(*RecurrenceRule).Validate: MONTHLY needs byDay or byMonthday")
		}
	case occurrence.FreqYearly:
		if len(byMonth) == 0 {
			return fmt.Errorf("(*RecurrenceRule).Validate: YEARLY needs byMonth")
		}
		if len(byDay) == 0 && len(byMonthday) == 0 {
			return fmt.Errorf("(*RecurrenceRule).Validate: YEARLY needs byDay or byMonthday")
		}
	default:
		return fmt.Errorf("(*RecurrenceRule).Validate: invalid freq %q", r.Freq)
	}

	return nil
}

// Upsert replaces the schedule's rule wholesale.
func (r *RecurrenceRule) Upsert(ctx context.Context, db bun.IDB) error {
	if err := r.Validate(); err != nil {
		return err
	}

	scheduleExists, err := db.NewSelect().
		Model((*Schedule)(nil)).
		Where("id = ?", r.ScheduleID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("(*RecurrenceRule).Upsert: %w", err)
	}
	if !scheduleExists {
		return fmt.Errorf("(*RecurrenceRule).Upsert: schedule id not found")
	}

	if _, err := db.
		NewInsert().
		Model(r).
		On("CONFLICT (schedule_id) DO UPDATE").
		Set("freq = EXCLUDED.freq").
		Set("interval_count = EXCLUDED.interval_count").
		Set("by_day = EXCLUDED.by_day").
		Set("by_monthday = EXCLUDED.by_monthday").
		Set("by_month = EXCLUDED.by_month").
		Set("until_date = EXCLUDED.until_date").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*RecurrenceRule).Upsert: %w", err)
	}

	return nil
}

// ToRule converts the persisted row into the expander's value type.
func (r *RecurrenceRule) ToRule() occurrence.Rule {
	rule := occurrence.Rule{
		Freq:     occurrence.Frequency(r.Freq),
		Interval: r.IntervalCount,
		ByDay:    splitCSV(r.ByDay),
	}
	if days, err := splitCSVInts(r.ByMonthday); err == nil {
		rule.ByMonthday = days
	}
	if months, err := splitCSVInts(r.ByMonth); err == nil {
		for _, m := range months {
			rule.ByMonth = append(rule.ByMonth, time.Month(m))
		}
	}
	if r.UntilUnixUTC != 0 {
		rule.Until = time.Unix(r.UntilUnixUTC, 0).UTC()
	}
	return rule
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func splitCSVInts(s string) ([]int, error) {
	parts := splitCSV(s)
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", part)
		}
		out = append(out, n)
	}
	return out, nil
}
