package route

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"moim/src-server/model"
	"moim/src-server/utils"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func Auth(muxer *http.ServeMux, as *utils.AppState) {
	type CredentialsReqBody struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	// create a new account, the success response is the user ID
	muxer.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		var reqBody CredentialsReqBody
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Invalid request body"))
			return
		}
		if reqBody.Username == "" || reqBody.Password == "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Please provide a username and password"))
			return
		}

		exists, err := as.BunDB.
			NewSelect().
			Model((*model.User)(nil)).
			Where("username = ?", reqBody.Username).
			Exists(r.Context())
		switch {
		case err != nil:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't check if username is taken"))
			return
		case exists:
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte("Username is taken"))
			return
		}

		passwordHash, err := bcrypt.GenerateFromPassword([]byte(reqBody.Password), bcrypt.DefaultCost)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't hash password"))
			return
		}

		userModel := model.User{
			ID:               uuid.NewString(),
			Username:         reqBody.Username,
			PasswordHash:     string(passwordHash),
			CreatedAtUnixUTC: time.Now().UTC().Unix(),
		}
		if err := userModel.Upsert(r.Context(), as.BunDB); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't create user"))
			slog.Error("can't create user", "error", err)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(userModel.ID))
	})

	// exchange credentials for a session-secret cookie
	muxer.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var reqBody CredentialsReqBody
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Invalid request body"))
			return
		}

		userModel := new(model.User)
		if err := as.BunDB.
			NewSelect().
			Model(userModel).
			Where("username = ?", reqBody.Username).
			Scan(r.Context()); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Wrong username or password"))
			return
		}
		if err := bcrypt.CompareHashAndPassword(
			[]byte(userModel.PasswordHash),
			[]byte(reqBody.Password)); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Wrong username or password"))
			return
		}

		sessionModel := model.Session{
			Secret:           uuid.NewString(),
			UserID:           userModel.ID,
			CreatedAtUnixUTC: time.Now().UTC().Unix(),
		}
		if _, err := as.BunDB.
			NewInsert().
			Model(&sessionModel).
			Exec(r.Context()); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't create session"))
			slog.Error("can't create session", "error", err)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     SessionSecretCookieName,
			Value:    sessionModel.Secret,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(userModel.ID))
	})

	// drop the current session
	muxer.HandleFunc("POST /auth/logout", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			if _, err := as.BunDB.
				NewDelete().
				Model((*model.Session)(nil)).
				Where("secret = ?", sessionModel.Secret).
				Exec(r.Context()); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't delete session"))
				return
			}

			http.SetCookie(w, &http.Cookie{
				Name:   SessionSecretCookieName,
				Value:  "",
				Path:   "/",
				MaxAge: -1,
			})
			w.WriteHeader(http.StatusOK)
		}))
}
