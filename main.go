package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moim/src-server/metric"
	"moim/src-server/model"
	"moim/src-server/occurrence"
	"moim/src-server/route"
	"moim/src-server/scheduler"
	"moim/src-server/utils"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	if err := godotenv.Load(); err != nil {
		slog.Info(err.Error())
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.RFC1123Z,
		}),
	))
}

func main() {
	as := utils.NewAppState()

	if err := model.CreateSchema(as.BunDB); err != nil {
		slog.Error("can't create database schema", "error", err)
		os.Exit(1)
	}

	store := model.NewStore(as.BunDB)
	occurrences := occurrence.NewService(store, store, store, as.Config.GetLocation())
	occurrences.OnTruncation = func(string) {
		as.MetricChans.ExpansionTruncation <- struct{}{}
	}

	go metric.Init(as)

	reminder := scheduler.NewReminderScheduler(as, occurrences)
	if err := reminder.Start(); err != nil {
		slog.Error("can't start reminder scheduler", "error", err)
		os.Exit(1)
	}

	// http server
	go func() {
		muxer := http.NewServeMux()
		muxer.Handle("GET /metrics", promhttp.Handler())
		route.Auth(muxer, as)
		route.Calendar(muxer, as, occurrences)
		route.Schedule(muxer, as)
		route.Expense(muxer, as)
		route.Notification(muxer, as)
		route.Ical(muxer, as)
		if err := http.ListenAndServe(":"+as.Config.GetPort(), muxer); err != nil {
			slog.Error("cannot start HTTP server", "error", err)
			as.AppCloseSignalChan <- syscall.SIGTERM
		}
	}()

	slog.Info("app is now running, press Ctrl+C to exit")

	signal.Notify(as.AppCloseSignalChan, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-as.AppCloseSignalChan
	as.GracefulShutdown()

	slog.Info("Gracefully shutting down...")
}
