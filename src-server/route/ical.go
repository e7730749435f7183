package route

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"moim/src-server/model"
	"moim/src-server/occurrence"
	"moim/src-server/utils"

	ical "github.com/arran4/golang-ical"
	"github.com/xyedo/rrule"
)

var rruleFreqs = map[occurrence.Frequency]rrule.Frequency{
	occurrence.FreqDaily:   rrule.DAILY,
	occurrence.FreqWeekly:  rrule.WEEKLY,
	occurrence.FreqMonthly: rrule.MONTHLY,
	occurrence.FreqYearly:  rrule.YEARLY,
}

var rruleWeekdays = map[string]rrule.Weekday{
	"MO": rrule.MO,
	"TU": rrule.TU,
	"WE": rrule.WE,
	"TH": rrule.TH,
	"FR": rrule.FR,
	"SA": rrule.SA,
	"SU": rrule.SU,
}

// toRRuleString renders a stored recurrence rule as an RFC 5545 RRULE value.
func toRRuleString(rule *occurrence.Rule) (string, error) {
	freq, ok := rruleFreqs[rule.Freq]
	if !ok {
		return "", fmt.Errorf("toRRuleString: unknown freq %q", rule.Freq)
	}
	option := rrule.ROption{
		Freq:       freq,
		Interval:   rule.Interval,
		Bymonthday: rule.ByMonthday,
	}
	for _, token := range rule.ByDay {
		if len(token) < 2 {
			continue
		}
		weekday, ok := rruleWeekdays[token[len(token)-2:]]
		if !ok {
			continue
		}
		if prefix := token[:len(token)-2]; prefix != "" {
			ordinal, err := strconv.Atoi(prefix)
			if err != nil {
				continue
			}
			weekday = weekday.Nth(ordinal)
		}
		option.Byweekday = append(option.Byweekday, weekday)
	}
	for _, month := range rule.ByMonth {
		option.Bymonth = append(option.Bymonth, int(month))
	}
	if !rule.Until.IsZero() {
		option.Until = rule.Until.UTC()
	}
	rendered, err := rrule.NewRRule(option)
	if err != nil {
		return "", fmt.Errorf("toRRuleString: %w", err)
	}
	return rendered.String(), nil
}

func Ical(muxer *http.ServeMux, as *utils.AppState) {
	// export a calendar's schedules as an .ics feed
	muxer.HandleFunc("GET /calendar/{id}/ical", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			calendarModel := new(model.Calendar)
			if err := as.BunDB.
				NewSelect().
				Model(calendarModel).
				Where("id = ?", r.PathValue("id")).
				Scan(r.Context()); err != nil {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("Calendar not found"))
				return
			}
			if !requireAcceptedMember(w, r, as, calendarModel.ID, sessionModel.UserID) {
				return
			}

			var scheduleModels []model.Schedule
			if err := as.BunDB.
				NewSelect().
				Model(&scheduleModels).
				Where("schedule.calendar_id = ?", calendarModel.ID).
				Relation("Rule").
				Relation("Exceptions").
				Scan(r.Context()); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't load schedules"))
				return
			}

			loc := as.Config.GetLocation()
			cal := ical.NewCalendar()
			cal.SetMethod(ical.MethodPublish)
			cal.SetProductId("-//moim//calendar//EN")
			cal.SetXWRCalName(calendarModel.Name)

			for _, scheduleModel := range scheduleModels {
				event := cal.AddEvent(scheduleModel.ID)
				event.SetDtStampTime(time.Now().UTC())
				event.SetStartAt(time.Unix(scheduleModel.StartUnixUTC, 0).UTC())
				event.SetEndAt(time.Unix(scheduleModel.EndUnixUTC, 0).UTC())
				event.SetSummary(scheduleModel.Title)
				event.SetProperty(ical.ComponentPropertySequence, strconv.Itoa(scheduleModel.Sequence))

				if !scheduleModel.Recurring || scheduleModel.Rule == nil {
					continue
				}
				engineRule := scheduleModel.Rule.ToRule()
				rruleStr, err := toRRuleString(&engineRule)
				if err != nil {
					slog.Warn("skipping rrule on export", "scheduleID", scheduleModel.ID, "error", err)
					continue
				}
				event.AddRrule(rruleStr)
				for _, exception := range scheduleModel.Exceptions {
					// excluded dates are stored as local dates; pin them to
					// the schedule's local wall-clock start
					date, err := time.ParseInLocation("2006-01-02", exception.Date, loc)
					if err != nil {
						continue
					}
					start := time.Unix(scheduleModel.StartUnixUTC, 0).In(loc)
					exdate := time.Date(
						date.Year(), date.Month(), date.Day(),
						start.Hour(), start.Minute(), start.Second(), 0, loc,
					)
					event.AddExdate(exdate.UTC().Format("20060102T150405Z"))
				}
			}

			w.Header().Set("Content-Type", "text/calendar")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", calendarModel.Name+".ics"))
			w.Write([]byte(cal.Serialize()))
		}))
}
