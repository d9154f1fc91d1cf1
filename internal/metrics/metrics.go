// Package metrics exposes Prometheus collectors for the harvest pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	recordsFoundTotal     *prometheus.CounterVec
	recordsAddedTotal     *prometheus.CounterVec
	downloadsTotal        *prometheus.CounterVec
	strategySwitchesTotal *prometheus.CounterVec
	runsTotal             *prometheus.CounterVec
	runDurationSeconds    *prometheus.HistogramVec
	requestDelaySeconds   prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		recordsFoundTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_found_total",
				Help: "Total records found while crawling, labeled by source.",
			},
			[]string{"source"},
		)

		recordsAddedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_added_total",
				Help: "Total new records merged into the dataset, labeled by source.",
			},
			[]string{"source"},
		)

		downloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_downloads_total",
				Help: "Total document download attempts, labeled by result.",
			},
			[]string{"result"},
		)

		strategySwitchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_strategy_switches_total",
				Help: "Total crawl strategy rotations, labeled by source.",
			},
			[]string{"source"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_runs_total",
				Help: "Total pipeline runs, labeled by terminal state.",
			},
			[]string{"terminal"},
		)

		runDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_run_duration_seconds",
				Help:    "Histogram of full pipeline run durations.",
				Buckets: []float64{1, 10, 60, 300, 900, 3600, 14400},
			},
			[]string{"terminal"},
		)

		requestDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_request_delay_seconds",
				Help:    "Histogram of enforced inter-request delays.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRecordsFound counts crawl findings for one source/year unit.
func ObserveRecordsFound(source string, found, added int) {
	if found > 0 {
		recordsFoundTotal.WithLabelValues(source).Add(float64(found))
	}
	if added > 0 {
		recordsAddedTotal.WithLabelValues(source).Add(float64(added))
	}
}

// ObserveDownload counts one download attempt outcome
// ("success", "failed" or "retried").
func ObserveDownload(result string) {
	downloadsTotal.WithLabelValues(result).Inc()
}

// ObserveStrategySwitch counts one strategy rotation for a source.
func ObserveStrategySwitch(source string) {
	strategySwitchesTotal.WithLabelValues(source).Inc()
}

// ObserveRun records one finished run and its duration.
func ObserveRun(terminal string, duration time.Duration) {
	runsTotal.WithLabelValues(terminal).Inc()
	runDurationSeconds.WithLabelValues(terminal).Observe(duration.Seconds())
}

// ObserveRequestDelay records one enforced inter-request wait.
func ObserveRequestDelay(delay time.Duration) {
	requestDelaySeconds.Observe(delay.Seconds())
}
