package route

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"moim/src-server/jwt"
	"moim/src-server/model"
	"moim/src-server/occurrence"
	"moim/src-server/utils"

	"github.com/google/uuid"
)

func Calendar(muxer *http.ServeMux, as *utils.AppState, occurrences *occurrence.Service) {
	type CreateCalendarReqBody struct {
		Name  string `json:"name"`
		Theme string `json:"theme"`
	}

	// create a calendar; the creator becomes its first accepted member
	muxer.HandleFunc("POST /calendar/create", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			var reqBody CreateCalendarReqBody
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}
			if reqBody.Name == "" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide a calendar name"))
				return
			}

			calendarModel := model.Calendar{
				ID:               uuid.NewString(),
				Name:             utils.CleanupString(reqBody.Name),
				Theme:            reqBody.Theme,
				OwnerID:          sessionModel.UserID,
				CreatedAtUnixUTC: time.Now().UTC().Unix(),
			}
			if err := calendarModel.Upsert(r.Context(), as.BunDB); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't create calendar"))
				slog.Error("can't create calendar", "error", err)
				return
			}
			memberModel := model.CalendarMember{
				CalendarID:         calendarModel.ID,
				UserID:             sessionModel.UserID,
				Status:             model.MEMBERSHIP_STATUS_ACCEPTED,
				InvitedAtUnixUTC:   time.Now().UTC().Unix(),
				RespondedAtUnixUTC: time.Now().UTC().Unix(),
			}
			if err := memberModel.Upsert(r.Context(), as.BunDB); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't create membership"))
				return
			}

			w.WriteHeader(http.StatusOK)
			w.Write([]byte(calendarModel.ID))
		}))

	type ListCalendarsRespBody struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Theme   string `json:"theme"`
		OwnerID string `json:"ownerId"`
		Status  string `json:"status"`
	}

	// list every calendar the caller has a membership on, pending invites
	// included
	muxer.HandleFunc("GET /calendar/list", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			var memberModels []model.CalendarMember
			if err := as.BunDB.
				NewSelect().
				Model(&memberModels).
				Relation("Calendar").
				Where("calendar_member.user_id = ?", sessionModel.UserID).
				Where("calendar_member.status != ?", model.MEMBERSHIP_STATUS_DECLINED).
				Scan(r.Context()); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't list calendars"))
				return
			}

			respBody := make([]ListCalendarsRespBody, 0, len(memberModels))
			for _, memberModel := range memberModels {
				if memberModel.Calendar == nil {
					continue
				}
				respBody = append(respBody, ListCalendarsRespBody{
					ID:      memberModel.Calendar.ID,
					Name:    memberModel.Calendar.Name,
					Theme:   memberModel.Calendar.Theme,
					OwnerID: memberModel.Calendar.OwnerID,
					Status:  string(memberModel.Status),
				})
			}
			resp, err := json.Marshal(respBody)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't marshal response"))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(resp)
		}))

	// delete a calendar; owner only
	muxer.HandleFunc("DELETE /calendar/{id}", AuthMiddleware(as,
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
			if calendarModel.OwnerID != sessionModel.UserID {
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte("Only the owner can delete a calendar"))
				return
			}

			if _, err := as.BunDB.
				NewDelete().
				Model((*model.Calendar)(nil)).
				Where("id = ?", calendarModel.ID).
				Exec(context.WithValue(r.Context(), model.CalendarIDCtxKey, calendarModel.ID)); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't delete calendar"))
				slog.Error("can't delete calendar", "error", err)
				return
			}

			w.WriteHeader(http.StatusOK)
		}))

	type InviteReqBody struct {
		CalendarID string `json:"calendarId"`
		UserID     string `json:"userId"`
	}

	// invite a user; the success response is a signed invite token the
	// invitee presents back to /calendar/respond-invite
	muxer.HandleFunc("POST /calendar/invite", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			var reqBody InviteReqBody
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}
			if reqBody.CalendarID == "" || reqBody.UserID == "" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide a calendar ID and user ID"))
				return
			}

			// only accepted members can invite
			inviterModel := new(model.CalendarMember)
			if err := as.BunDB.
				NewSelect().
				Model(inviterModel).
				Where("calendar_id = ?", reqBody.CalendarID).
				Where("user_id = ?", sessionModel.UserID).
				Where("status = ?", model.MEMBERSHIP_STATUS_ACCEPTED).
				Scan(r.Context()); err != nil {
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte("You are not a member of this calendar"))
				return
			}

			inviteeExists, err := as.BunDB.
				NewSelect().
				Model((*model.User)(nil)).
				Where("id = ?", reqBody.UserID).
				Exists(r.Context())
			switch {
			case err != nil:
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't check if user exists"))
				return
			case !inviteeExists:
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("User not found"))
				return
			}

			memberModel := model.CalendarMember{
				CalendarID:       reqBody.CalendarID,
				UserID:           reqBody.UserID,
				Status:           model.MEMBERSHIP_STATUS_INVITED,
				InvitedAtUnixUTC: time.Now().UTC().Unix(),
			}
			if err := memberModel.Upsert(r.Context(), as.BunDB); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't create invite"))
				return
			}

			notificationModel := model.Notification{
				ID:     uuid.NewString(),
				UserID: reqBody.UserID,
				Kind:   model.NOTIFICATION_KIND_INVITE,
				Body:   "You've been invited to a shared calendar",
			}
			if err := notificationModel.Insert(r.Context(), as.BunDB); err != nil {
				slog.Warn("can't create invite notification", "error", err)
			}

			inviteToken, err := jwt.Encode(jwt.Payload{
				CalendarID: reqBody.CalendarID,
				InviteeID:  reqBody.UserID,
				IssuedAt:   time.Now().UTC().Unix(),
			}, as.Config.GetJWTSecret())
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't sign invite token"))
				return
			}

			w.WriteHeader(http.StatusOK)
			w.Write([]byte(inviteToken))
		}))

	type RespondInviteReqBody struct {
		Token  string `json:"token"`
		Accept bool   `json:"accept"`
	}

	// accept or decline an invite
	muxer.HandleFunc("POST /calendar/respond-invite", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			var reqBody RespondInviteReqBody
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}

			payload, err := jwt.Decode(reqBody.Token, as.Config.GetJWTSecret())
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid invite token"))
				return
			}
			if payload.Expired(as.Config.GetJWTExpire()) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invite token expired"))
				return
			}
			if payload.InviteeID != sessionModel.UserID {
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte("This invite is not for you"))
				return
			}

			memberModel := new(model.CalendarMember)
			if err := as.BunDB.
				NewSelect().
				Model(memberModel).
				Where("calendar_id = ?", payload.CalendarID).
				Where("user_id = ?", sessionModel.UserID).
				Scan(r.Context()); err != nil {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("Invite not found"))
				return
			}
			if err := memberModel.Respond(r.Context(), as.BunDB, reqBody.Accept); err != nil {
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte("Invite was already answered"))
				return
			}

			w.WriteHeader(http.StatusOK)
		}))

	type GetOccurrencesReqBody struct {
		CalendarID  string `json:"calendarId,omitempty"`
		FromUnixUTC int64  `json:"fromUnixUTC"`
		ToUnixUTC   int64  `json:"toUnixUTC"`
	}

	// get all occurrences in a date range, bucketed by local date; an empty
	// calendarId means every calendar the viewer is an accepted member of
	muxer.HandleFunc("POST /calendar/occurrences", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			var reqBody GetOccurrencesReqBody
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}
			if reqBody.FromUnixUTC == 0 || reqBody.ToUnixUTC == 0 {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide a start date and end date"))
				return
			}

			startTimer := time.Now()
			result, err := occurrences.GetOccurrences(
				r.Context(),
				sessionModel.UserID,
				reqBody.CalendarID,
				time.Unix(reqBody.FromUnixUTC, 0).UTC(),
				time.Unix(reqBody.ToUnixUTC, 0).UTC(),
			)
			as.MetricChans.OccurrenceExpand <- float64(time.Since(startTimer).Microseconds())
			switch {
			case errors.Is(err, occurrence.ErrValidation):
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Start date must be before end date"))
				return
			case errors.Is(err, occurrence.ErrNotFound):
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("Viewer not found"))
				return
			case errors.Is(err, occurrence.ErrForbidden):
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte("You are not a member of this calendar"))
				return
			case err != nil:
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't compute occurrences"))
				slog.Error("can't compute occurrences", "error", err)
				return
			}

			respBodyJson, err := json.Marshal(result)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't marshal response body"))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(respBodyJson)
		}))
}
