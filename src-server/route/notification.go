package route

import (
	"encoding/json"
	"net/http"

	"moim/src-server/model"
	"moim/src-server/utils"
)

func Notification(muxer *http.ServeMux, as *utils.AppState) {
	type ListNotificationsRespBody struct {
		ID               string `json:"id"`
		Kind             string `json:"kind"`
		Body             string `json:"body"`
		Read             bool   `json:"read"`
		CreatedAtUnixUTC int64  `json:"createdAtUnixUTC"`
	}

	// list the caller's notifications, newest first
	muxer.HandleFunc("GET /notification/list", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			var notificationModels []model.Notification
			if err := as.BunDB.
				NewSelect().
				Model(&notificationModels).
				Where("user_id = ?", sessionModel.UserID).
				Order("created_at DESC").
				Limit(100).
				Scan(r.Context()); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't list notifications"))
				return
			}

			respBody := make([]ListNotificationsRespBody, 0, len(notificationModels))
			for _, notificationModel := range notificationModels {
				respBody = append(respBody, ListNotificationsRespBody{
					ID:               notificationModel.ID,
					Kind:             string(notificationModel.Kind),
					Body:             notificationModel.Body,
					Read:             notificationModel.Read,
					CreatedAtUnixUTC: notificationModel.CreatedAtUnixUTC,
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

	// mark one notification as read; caller must own it
	muxer.HandleFunc("POST /notification/{id}/read", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			result, err := as.BunDB.
				NewUpdate().
				Model((*model.Notification)(nil)).
				Set("read = ?", true).
				Where("id = ?", r.PathValue("id")).
				Where("user_id = ?", sessionModel.UserID).
				Exec(r.Context())
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't mark notification as read"))
				return
			}
			if affected, err := result.RowsAffected(); err == nil && affected == 0 {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("Notification not found"))
				return
			}

			w.WriteHeader(http.StatusOK)
		}))
}
