package route

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"moim/src-server/model"
	"moim/src-server/utils"

	"github.com/google/uuid"
)

func Expense(muxer *http.ServeMux, as *utils.AppState) {
	type CreateExpenseReqBody struct {
		ScheduleID string `json:"scheduleId"`
		Amount     int64  `json:"amount"` // minor currency units
		Memo       string `json:"memo"`
	}

	// record an expense against a schedule, paid by the caller
	muxer.HandleFunc("POST /expense/create", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			var reqBody CreateExpenseReqBody
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

			expenseModel := model.Expense{
				ID:         uuid.NewString(),
				ScheduleID: reqBody.ScheduleID,
				PayerID:    sessionModel.UserID,
				Amount:     reqBody.Amount,
				Memo:       reqBody.Memo,
			}
			startTimer := time.Now()
			if err := expenseModel.Upsert(r.Context(), as.BunDB); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(err.Error()))
				return
			}
			as.MetricChans.DatabaseWrite <- float64(time.Since(startTimer).Microseconds())

			w.WriteHeader(http.StatusOK)
			w.Write([]byte(expenseModel.ID))
		}))

	// delete an expense along with its attachments; payer only
	muxer.HandleFunc("DELETE /expense/{id}", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			expenseModel := new(model.Expense)
			if err := as.BunDB.
				NewSelect().
				Model(expenseModel).
				Where("id = ?", r.PathValue("id")).
				Scan(r.Context()); err != nil {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("Expense not found"))
				return
			}
			if expenseModel.PayerID != sessionModel.UserID {
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte("Only the payer can delete an expense"))
				return
			}

			if _, err := as.BunDB.
				NewDelete().
				Model((*model.Expense)(nil)).
				Where("id = ?", expenseModel.ID).
				Exec(context.WithValue(r.Context(), model.ExpenseIDCtxKey, expenseModel.ID)); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't delete expense"))
				return
			}

			w.WriteHeader(http.StatusOK)
		}))

	type ListExpensesRespBody struct {
		ID               string `json:"id"`
		PayerID          string `json:"payerId"`
		Amount           int64  `json:"amount"`
		Memo             string `json:"memo"`
		CreatedAtUnixUTC int64  `json:"createdAtUnixUTC"`
	}

	// list all expenses recorded against a schedule
	muxer.HandleFunc("GET /expense/by-schedule/{scheduleID}", AuthMiddleware(as,
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
				Where("id = ?", r.PathValue("scheduleID")).
				Scan(r.Context()); err != nil {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("Schedule not found"))
				return
			}
			if !requireAcceptedMember(w, r, as, scheduleModel.CalendarID, sessionModel.UserID) {
				return
			}

			var expenseModels []model.Expense
			if err := as.BunDB.
				NewSelect().
				Model(&expenseModels).
				Where("schedule_id = ?", scheduleModel.ID).
				Order("created_at ASC").
				Scan(r.Context()); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't list expenses"))
				return
			}

			respBody := make([]ListExpensesRespBody, 0, len(expenseModels))
			for _, expenseModel := range expenseModels {
				respBody = append(respBody, ListExpensesRespBody{
					ID:               expenseModel.ID,
					PayerID:          expenseModel.PayerID,
					Amount:           expenseModel.Amount,
					Memo:             expenseModel.Memo,
					CreatedAtUnixUTC: expenseModel.CreatedAtUnixUTC,
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

	type SettlementRespBody struct {
		TotalAmount int64            `json:"totalAmount"`
		PerHead     int64            `json:"perHead"`
		Balances    map[string]int64 `json:"balances"` // userID -> paid minus fair share
		Transfers   []struct {
			From   string `json:"from"`
			To     string `json:"to"`
			Amount int64  `json:"amount"`
		} `json:"transfers"`
	}

	// settle a calendar's expenses: split the total evenly across accepted
	// members, then suggest the transfers that zero everyone out
	muxer.HandleFunc("GET /expense/settlement/{calendarID}", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			calendarID := r.PathValue("calendarID")
			if !requireAcceptedMember(w, r, as, calendarID, sessionModel.UserID) {
				return
			}

			var memberModels []model.CalendarMember
			if err := as.BunDB.
				NewSelect().
				Model(&memberModels).
				Where("calendar_id = ?", calendarID).
				Where("status = ?", model.MEMBERSHIP_STATUS_ACCEPTED).
				Scan(r.Context()); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't list members"))
				return
			}

			var expenseModels []model.Expense
			if err := as.BunDB.
				NewSelect().
				Model(&expenseModels).
				Join("JOIN schedules AS schedule ON schedule.id = expense.schedule_id").
				Where("schedule.calendar_id = ?", calendarID).
				Scan(r.Context()); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't list expenses"))
				return
			}

			var respBody SettlementRespBody
			respBody.Balances = make(map[string]int64, len(memberModels))
			for _, memberModel := range memberModels {
				respBody.Balances[memberModel.UserID] = 0
			}
			for _, expenseModel := range expenseModels {
				respBody.TotalAmount += expenseModel.Amount
				respBody.Balances[expenseModel.PayerID] += expenseModel.Amount
			}
			if len(memberModels) > 0 {
				respBody.PerHead = respBody.TotalAmount / int64(len(memberModels))
			}
			for userID := range respBody.Balances {
				respBody.Balances[userID] -= respBody.PerHead
			}

			// greedy matching of largest debtor to largest creditor; the
			// rounding remainder from the integer division stays with the
			// largest creditor
			type balance struct {
				userID string
				amount int64
			}
			balances := make([]balance, 0, len(respBody.Balances))
			for userID, amount := range respBody.Balances {
				balances = append(balances, balance{userID, amount})
			}
			sort.Slice(balances, func(i, j int) bool {
				if balances[i].amount != balances[j].amount {
					return balances[i].amount < balances[j].amount
				}
				return balances[i].userID < balances[j].userID
			})
			debtor, creditor := 0, len(balances)-1
			for debtor < creditor {
				owe := -balances[debtor].amount
				due := balances[creditor].amount
				if owe <= 0 {
					debtor++
					continue
				}
				if due <= 0 {
					creditor--
					continue
				}
				amount := min(owe, due)
				respBody.Transfers = append(respBody.Transfers, struct {
					From   string `json:"from"`
					To     string `json:"to"`
					Amount int64  `json:"amount"`
				}{balances[debtor].userID, balances[creditor].userID, amount})
				balances[debtor].amount += amount
				balances[creditor].amount -= amount
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

	// attach a receipt to an expense; multipart form with a "file" part
	muxer.HandleFunc("POST /expense/{id}/attachment", AuthMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			expenseModel := new(model.Expense)
			if err := as.BunDB.
				NewSelect().
				Model(expenseModel).
				Relation("Schedule").
				Where("expense.id = ?", r.PathValue("id")).
				Scan(r.Context()); err != nil {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("Expense not found"))
				return
			}
			if !requireAcceptedMember(w, r, as, expenseModel.Schedule.CalendarID, sessionModel.UserID) {
				return
			}

			// 10 MiB cap per receipt
			if err := r.ParseMultipartForm(10 << 20); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid multipart form"))
				return
			}
			file, header, err := r.FormFile("file")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Missing file part"))
				return
			}
			defer file.Close()

			hash, err := utils.GetFileHash(file)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't hash file"))
				return
			}
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't rewind file"))
				return
			}

			attachmentModel := model.Attachment{
				ID:        uuid.NewString(),
				ExpenseID: expenseModel.ID,
				FileName:  filepath.Base(header.Filename),
				Sha256:    hash,
				SizeBytes: header.Size,
			}

			// content-addressed on disk, duplicate uploads share one file
			dstPath := filepath.Join(as.Config.GetAttachmentDir(), hash)
			if _, err := os.Stat(dstPath); os.IsNotExist(err) {
				dst, err := os.Create(dstPath)
				if err != nil {
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte("Can't store file"))
					return
				}
				if _, err := io.Copy(dst, file); err != nil {
					dst.Close()
					os.Remove(dstPath)
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte("Can't store file"))
					return
				}
				dst.Close()
			}

			if err := attachmentModel.Insert(r.Context(), as.BunDB); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(err.Error()))
				slog.Error("can't save attachment", "error", err)
				return
			}

			w.WriteHeader(http.StatusOK)
			w.Write([]byte(attachmentModel.ID))
		}))
}
