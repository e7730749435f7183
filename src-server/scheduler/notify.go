package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"moim/src-server/model"
	"moim/src-server/occurrence"
	"moim/src-server/utils"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// ReminderScheduler periodically scans every user's upcoming day and writes
// an "upcoming" notification per occurrence, deduped on the occurrence ID so
// repeated sweeps stay quiet.
type ReminderScheduler struct {
	cronEngine  *cron.Cron
	as          *utils.AppState
	occurrences *occurrence.Service
}

func NewReminderScheduler(as *utils.AppState, occurrences *occurrence.Service) *ReminderScheduler {
	return &ReminderScheduler{
		cronEngine:  cron.New(cron.WithLocation(as.Config.GetLocation())),
		as:          as,
		occurrences: occurrences,
	}
}

func (s *ReminderScheduler) Start() error {
	if _, err := s.cronEngine.AddFunc(s.as.Config.GetReminderCronSpec(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.sweep(ctx); err != nil {
			slog.Error("reminder sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("(*ReminderScheduler).Start: %w", err)
	}
	s.cronEngine.Start()

	// stop accepting ticks on app shutdown, let the running sweep drain
	gracefulShutdownChan := s.as.CreateGracefulShutdownChan()
	go func() {
		<-gracefulShutdownChan
		<-s.cronEngine.Stop().Done()
	}()

	return nil
}

func (s *ReminderScheduler) sweep(ctx context.Context) error {
	var userModels []model.User
	if err := s.as.BunDB.
		NewSelect().
		Model(&userModels).
		Scan(ctx); err != nil {
		return fmt.Errorf("(*ReminderScheduler).sweep: can't list users: %w", err)
	}

	now := time.Now().UTC()
	for _, userModel := range userModels {
		result, err := s.occurrences.GetOccurrences(ctx, userModel.ID, "", now, now.Add(24*time.Hour))
		switch {
		case errors.Is(err, occurrence.ErrNotFound):
			continue
		case err != nil:
			slog.Error("can't expand occurrences for reminder", "userID", userModel.ID, "error", err)
			continue
		}

		for _, day := range result.Days {
			for _, item := range day.Items {
				if err := s.notifyOnce(ctx, userModel.ID, item); err != nil {
					slog.Error("can't write reminder notification", "userID", userModel.ID, "occurrenceID", item.OccurrenceID, "error", err)
				}
			}
		}
	}
	return nil
}

func (s *ReminderScheduler) notifyOnce(ctx context.Context, userID string, item occurrence.Item) error {
	exists, err := s.as.BunDB.
		NewSelect().
		Model((*model.Notification)(nil)).
		Where("user_id = ?", userID).
		Where("occurrence_id = ?", item.OccurrenceID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("(*ReminderScheduler).notifyOnce: %w", err)
	}
	if exists {
		return nil
	}

	notificationModel := model.Notification{
		ID:           uuid.NewString(),
		UserID:       userID,
		Kind:         model.NOTIFICATION_KIND_UPCOMING,
		Body:         fmt.Sprintf("%s starts at %s", item.Title, item.StartAtUTC.In(s.as.Config.GetLocation()).Format("2006-01-02 15:04")),
		OccurrenceID: item.OccurrenceID,
	}
	if err := notificationModel.Insert(ctx, s.as.BunDB); err != nil {
		return fmt.Errorf("(*ReminderScheduler).notifyOnce: %w", err)
	}
	return nil
}
