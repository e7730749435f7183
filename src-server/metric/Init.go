package metric

import (
	"log/slog"
	"time"

	"moim/src-server/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func databaseEmptyRead(as *utils.AppState, tickerInterval *time.Duration) {
	databaseEmptyRead := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "moim_database_empty_read_microsec",
		Help: "The latency of an empty database read in microseconds",
	})
	good := true
	if err := prometheus.Register(databaseEmptyRead); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register moim_database_empty_read_microsec metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("moim_database_empty_read_microsec metric registered")
		databaseEmptyRead.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		ticker := time.NewTicker(*tickerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gracefulShutdownCh:
				switch prometheus.Unregister(databaseEmptyRead) {
				case true:
					slog.Debug("moim_database_empty_read_microsec metric unregistered")
				case false:
					slog.Warn("moim_database_empty_read_microsec metric not registered")
				}
				return
			case <-ticker.C:
				latency, err := database(as)
				if err != nil {
					slog.Error("can't get database latency", "error", err)
					continue
				}
				databaseEmptyRead.Set(float64(latency.Microseconds()))
			}
		}
	}()
}

func databaseRead(as *utils.AppState, clearTickerInterval *time.Duration) {
	databaseRead := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "moim_database_read_microsec",
		Help: "The latency of a database read in microseconds",
	})
	good := true
	if err := prometheus.Register(databaseRead); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register moim_database_read_microsec metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("moim_database_read_microsec metric registered")
		databaseRead.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		clearTicker := time.NewTicker(*clearTickerInterval)
		defer clearTicker.Stop()
		for {
			select {
			case <-gracefulShutdownCh:
				switch prometheus.Unregister(databaseRead) {
				case true:
					slog.Debug("moim_database_read_microsec metric unregistered")
				case false:
					slog.Warn("moim_database_read_microsec metric not registered")
				}
				return
			case latency := <-as.MetricChans.DatabaseRead:
				databaseRead.Set(latency)
				clearTicker.Reset(*clearTickerInterval)
			case <-clearTicker.C:
				databaseRead.Set(0)
			}
		}
	}()
}

func databaseWrite(as *utils.AppState, clearTickerInterval *time.Duration) {
	databaseWrite := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "moim_database_write_microsec",
		Help: "The latency of a database write in microseconds",
	})
	good := true
	if err := prometheus.Register(databaseWrite); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register moim_database_write_microsec metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("moim_database_write_microsec metric registered")
		databaseWrite.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		clearTicker := time.NewTicker(*clearTickerInterval)
		defer clearTicker.Stop()
		for {
			select {
			case <-gracefulShutdownCh:
				switch prometheus.Unregister(databaseWrite) {
				case true:
					slog.Debug("moim_database_write_microsec metric unregistered")
				case false:
					slog.Warn("moim_database_write_microsec metric not registered")
				}
				return
			case latency := <-as.MetricChans.DatabaseWrite:
				databaseWrite.Set(latency)
				clearTicker.Reset(*clearTickerInterval)
			case <-clearTicker.C:
				databaseWrite.Set(0)
			}
		}
	}()
}

func occurrenceExpand(as *utils.AppState, clearTickerInterval *time.Duration) {
	occurrenceExpand := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "moim_occurrence_expand_microsec",
		Help: "The latency of an occurrence window expansion in microseconds",
	})
	good := true
	if err := prometheus.Register(occurrenceExpand); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register moim_occurrence_expand_microsec metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("moim_occurrence_expand_microsec metric registered")
		occurrenceExpand.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		clearTicker := time.NewTicker(*clearTickerInterval)
		defer clearTicker.Stop()
		for {
			select {
			case <-gracefulShutdownCh:
				switch prometheus.Unregister(occurrenceExpand) {
				case true:
					slog.Debug("moim_occurrence_expand_microsec metric unregistered")
				case false:
					slog.Warn("moim_occurrence_expand_microsec metric not registered")
				}
				return
			case latency := <-as.MetricChans.OccurrenceExpand:
				occurrenceExpand.Set(latency)
				clearTicker.Reset(*clearTickerInterval)
			case <-clearTicker.C:
				occurrenceExpand.Set(0)
			}
		}
	}()
}

func expansionTruncation(as *utils.AppState) {
	expansionTruncation := promauto.NewCounter(prometheus.CounterOpts{
		Name: "moim_occurrence_truncation_total",
		Help: "How many occurrence expansions hit the candidate cap",
	})
	if err := prometheus.Register(expansionTruncation); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register moim_occurrence_truncation_total metric", "error", err)
		}
	} else {
		slog.Debug("moim_occurrence_truncation_total metric registered")
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		for {
			select {
			case <-gracefulShutdownCh:
				switch prometheus.Unregister(expansionTruncation) {
				case true:
					slog.Debug("moim_occurrence_truncation_total metric unregistered")
				case false:
					slog.Warn("moim_occurrence_truncation_total metric not registered")
				}
				return
			case <-as.MetricChans.ExpansionTruncation:
				expansionTruncation.Inc()
			}
		}
	}()
}

func Init(as *utils.AppState) {
	tickerInterval := as.Config.GetMetricCollectionInterval()
	clearTickerInterval := as.Config.GetMetricCollectionInterval() * 2

	databaseEmptyRead(as, &tickerInterval)
	databaseRead(as, &clearTickerInterval)
	databaseWrite(as, &clearTickerInterval)
	occurrenceExpand(as, &clearTickerInterval)
	expansionTruncation(as)
}
