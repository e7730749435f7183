package route

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"moim/src-server/model"
	"moim/src-server/utils"

	"github.com/google/uuid"
)

// requireAcceptedMember loads the schedule's calendar and checks the viewer
// has an accepted membership on it. Writes the error response itself and
// returns nil when the caller should bail.
func requireAcceptedMember(w http.ResponseWriter, r *http.Request, as *utils.AppState, calendarID, userID string) bool {
	exists, err := as.BunDB.
		NewSelect().
		Model((*model.CalendarMember)(nil)).
		Where("calendar_id = ?", calendarID).
		Where("user_id = ?", userID).
		Where("status = ?", model.MEMBERSHIP_STATUS_ACCEPTED).
		Exists(r.Context())
	switch {
	case err != nil:
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Can't check membership"))
		return false
	case !exists:
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("You are not a member of this calendar"))
		return false
	}
	return true
}

func Schedule(muxer *http.ServeMux, as *utils.AppState) {
	type CreateScheduleReqBody struct {
		CalendarID   string `json:"calendarId"`
		Title        string `json:"title"`
		Theme        string `json:"theme"`
		StartUnixUTC int64  `json:"startUnixUTC"`
		EndUnixUTC   int64  `json:"endUnixUTC"`
		Recurring    bool   `json:"recurring"`
	}

	// create a schedule, the success response is the schedule ID
	muxer.HandleFunc("POST /schedule/create", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			var reqBody CreateScheduleReqBody
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}
			if !requireAcceptedMember(w, r, as, reqBody.CalendarID, sessionModel.UserID) {
				return
			}

			scheduleModel := model.Schedule{
				ID:           uuid.NewString(),
				CalendarID:   reqBody.CalendarID,
				Title:        utils.CleanupString(reqBody.Title),
				Theme:        reqBody.Theme,
				StartUnixUTC: reqBody.StartUnixUTC,
				EndUnixUTC:   reqBody.EndUnixUTC,
				Recurring:    reqBody.Recurring,
			}
			startTimer := time.Now()
			if err := scheduleModel.Upsert(r.Context(), as.BunDB); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Can't create schedule"))
				slog.Error("can't create schedule", "error", err)
				return
			}
			as.MetricChans.DatabaseWrite <- float64(time.Since(startTimer).Microseconds())

			w.WriteHeader(http.StatusOK)
			w.Write([]byte(scheduleModel.ID))
		}))

	type QuickAddReqBody struct {
		CalendarID string `json:"calendarId"`
		Text       string `json:"text"`
	}

	// create a schedule from natural language, e.g. "lunch tomorrow at 1pm";
	// a parse miss is a 422, not a server error
	muxer.HandleFunc("POST /schedule/quick-add", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			var reqBody QuickAddReqBody
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}
			if reqBody.Text == "" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide some text"))
				return
			}
			if !requireAcceptedMember(w, r, as, reqBody.CalendarID, sessionModel.UserID) {
				return
			}

			now := time.Now().In(as.Config.GetLocation())
			parsed, err := as.When.Parse(reqBody.Text, now)
			if err != nil || parsed == nil {
				w.WriteHeader(http.StatusUnprocessableEntity)
				w.Write([]byte("Can't find a date in that text"))
				return
			}

			title := utils.CleanupString(reqBody.Text[:parsed.Index] + reqBody.Text[parsed.Index+len(parsed.Text):])
			if title == "" {
				title = "Untitled"
			}
			scheduleModel := model.Schedule{
				ID:           uuid.NewString(),
				CalendarID:   reqBody.CalendarID,
				Title:        title,
				StartUnixUTC: parsed.Time.UTC().Unix(),
				EndUnixUTC:   parsed.Time.Add(time.Hour).UTC().Unix(),
			}
			if err := scheduleModel.Upsert(r.Context(), as.BunDB); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't create schedule"))
				slog.Error("can't create schedule from text", "error", err)
				return
			}

			w.WriteHeader(http.StatusOK)
			w.Write([]byte(scheduleModel.ID))
		}))

	type ModifyScheduleReqBody struct {
		ID string `json:"id"`
		CreateScheduleReqBody
	}

	// modify an existing schedule
	muxer.HandleFunc("POST /schedule/modify", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			var reqBody ModifyScheduleReqBody
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}

			scheduleModel := new(model.Schedule)
			if err := as.BunDB.
				NewSelect().
				Model(scheduleModel).
				Where("id = ?", reqBody.ID).
				Scan(r.Context()); err != nil {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("Schedule not found"))
				return
			}
			if !requireAcceptedMember(w, r, as, scheduleModel.CalendarID, sessionModel.UserID) {
				return
			}

			scheduleModel.Title = utils.CleanupString(reqBody.Title)
			scheduleModel.Theme = reqBody.Theme
			scheduleModel.StartUnixUTC = reqBody.StartUnixUTC
			scheduleModel.EndUnixUTC = reqBody.EndUnixUTC
			scheduleModel.Recurring = reqBody.Recurring
			if err := scheduleModel.Upsert(r.Context(), as.BunDB); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Can't modify schedule"))
				return
			}

			w.WriteHeader(http.StatusOK)
			w.Write([]byte(scheduleModel.ID))
		}))

	// delete a schedule along with its rule, exceptions and expenses
	muxer.HandleFunc("DELETE /schedule/{id}", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			scheduleModel := new(model.Schedule)
			if err := as.BunDB.
				NewSelect().
				Model(scheduleModel).
				Where("id = ?", r.PathValue("id")).
				Scan(r.Context()); err != nil {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("Schedule not found"))
				return
			}
			if !requireAcceptedMember(w, r, as, scheduleModel.CalendarID, sessionModel.UserID) {
				return
			}

			if _, err := as.BunDB.
				NewDelete().
				Model((*model.Schedule)(nil)).
				Where("id = ?", scheduleModel.ID).
				Exec(context.WithValue(r.Context(), model.ScheduleIDCtxKey, scheduleModel.ID)); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't delete schedule"))
				return
			}

			w.WriteHeader(http.StatusOK)
		}))

	type PutRuleReqBody struct {
		ScheduleID    string `json:"scheduleId"`
		Freq          string `json:"freq"`
		IntervalCount int    `json:"intervalCount"`
		ByDay         string `json:"byDay"`
		ByMonthday    string `json:"byMonthday"`
		ByMonth       string `json:"byMonth"`
		UntilUnixUTC  int64  `json:"untilUnixUTC"`
	}

	// replace a schedule's recurrence rule wholesale
	muxer.HandleFunc("PUT /schedule/rule", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			var reqBody PutRuleReqBody
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}

			scheduleModel := new(model.Schedule)
			if err := as.BunDB.
				NewSelect().
				Model(scheduleModel).
				Where("id = ?", reqBody.ScheduleID).
				Scan(r.Context()); err != nil {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("Schedule not found"))
				return
			}
			if !requireAcceptedMember(w, r, as, scheduleModel.CalendarID, sessionModel.UserID) {
				return
			}

			ruleModel := model.RecurrenceRule{
				ScheduleID:    scheduleModel.ID,
				Freq:          reqBody.Freq,
				IntervalCount: reqBody.IntervalCount,
				ByDay:         reqBody.ByDay,
				ByMonthday:    reqBody.ByMonthday,
				ByMonth:       reqBody.ByMonth,
				UntilUnixUTC:  reqBody.UntilUnixUTC,
			}
			if err := ruleModel.Upsert(r.Context(), as.BunDB); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(err.Error()))
				return
			}

			if !scheduleModel.Recurring {
				scheduleModel.Recurring = true
				if err := scheduleModel.Upsert(r.Context(), as.BunDB); err != nil {
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte("Can't flag schedule as recurring"))
					return
				}
			}

			w.WriteHeader(http.StatusOK)
		}))

	type ExceptionReqBody struct {
		ScheduleID string `json:"scheduleId"`
		Date       string `json:"date"` // local date, e.g. "2024-01-15"
	}

	// exclude one local date from a recurring schedule
	muxer.HandleFunc("POST /schedule/exception", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			var reqBody ExceptionReqBody
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}

			scheduleModel := new(model.Schedule)
			if err := as.BunDB.
				NewSelect().
				Model(scheduleModel).
				Where("id = ?", reqBody.ScheduleID).
				Scan(r.Context()); err != nil {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("Schedule not found"))
				return
			}
			if !requireAcceptedMember(w, r, as, scheduleModel.CalendarID, sessionModel.UserID) {
				return
			}

			exceptionModel := model.RecurrenceException{
				ScheduleID: reqBody.ScheduleID,
				Date:       reqBody.Date,
			}
			if err := exceptionModel.Insert(r.Context(), as.BunDB); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(err.Error()))
				return
			}

			w.WriteHeader(http.StatusOK)
		}))

	// bring an excluded date back
	muxer.HandleFunc("DELETE /schedule/exception", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			var reqBody ExceptionReqBody
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}

			scheduleModel := new(model.Schedule)
			if err := as.BunDB.
				NewSelect().
				Model(scheduleModel).
				Where("id = ?", reqBody.ScheduleID).
				Scan(r.Context()); err != nil {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("Schedule not found"))
				return
			}
			if !requireAcceptedMember(w, r, as, scheduleModel.CalendarID, sessionModel.UserID) {
				return
			}

			exceptionModel := model.RecurrenceException{
				ScheduleID: reqBody.ScheduleID,
				Date:       reqBody.Date,
			}
			if err := exceptionModel.Delete(r.Context(), as.BunDB); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't remove exception"))
				return
			}

			w.WriteHeader(http.StatusOK)
		}))
}
