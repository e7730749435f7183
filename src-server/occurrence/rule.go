package occurrence

import (
	"strconv"
	"time"
)

type Frequency string

const (
	FreqDaily   Frequency = "DAILY"
	FreqWeekly  Frequency = "WEEKLY"
	FreqMonthly Frequency = "MONTHLY"
	FreqYearly  Frequency = "YEARLY"
)

// Rule is the in-memory form of a recurrence rule, already validated at
// write time. The expander only reads it.
type Rule struct {
	Freq       Frequency
	Interval   int
	ByDay      []string // weekday tokens, e.g. "MO", "2TU", "-1FR"
	ByMonthday []int
	ByMonth    []time.Month
	Until      time.Time // zero value = unbounded
}

var weekdayCodes = map[string]time.Weekday{
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
	"SU": time.Sunday,
}

type weekdayToken struct {
	// 0 means no ordinal prefix; otherwise in [-5,-1] or [1,5]
	ordinal int
	weekday time.Weekday
}

// parseWeekdayToken splits a byDay token into its optional ordinal prefix
// and the trailing two-letter weekday code. Returns false for anything it
// can't make sense of; callers skip those instead of failing the expansion.
func parseWeekdayToken(token string) (weekdayToken, bool) {
	if len(token) < 2 {
		return weekdayToken{}, false
	}
	code := token[len(token)-2:]
	weekday, ok := weekdayCodes[code]
	if !ok {
		return weekdayToken{}, false
	}
	prefix := token[:len(token)-2]
	if prefix == "" {
		return weekdayToken{weekday: weekday}, true
	}
	ordinal, err := strconv.Atoi(prefix)
	if err != nil {
		return weekdayToken{}, false
	}
	if ordinal == 0 || ordinal > 5 || ordinal < -5 {
		return weekdayToken{}, false
	}
	return weekdayToken{ordinal: ordinal, weekday: weekday}, true
}
