// Package telemetry holds the process-wide Prometheus metrics.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hpungsan/citelens/internal/interaction"
)

var (
	// Session metrics
	SessionsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citelens_sessions_ingested_total",
			Help: "Total number of capture sessions processed",
		},
		[]string{"mode", "completed"}, // mode: store, dry_run
	)

	EventsFed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "citelens_events_fed_total",
			Help: "Total number of raw capture events fed to the reconstructor",
		},
	)

	IngestLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "citelens_ingest_latency_seconds",
			Help:    "Capture session ingestion latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
	)

	// Warning metrics
	WarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citelens_warnings_total",
			Help: "Total number of ingestion warnings",
		},
		[]string{"kind"},
	)

	// Citation metrics
	CitationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citelens_citations_total",
			Help: "Total number of extracted citations",
		},
		[]string{"outcome"}, // outcome: matched, extra
	)
)

// RecordSession records the outcome of one processed session.
func RecordSession(mode string, events int, res *interaction.Result, completed bool, elapsed time.Duration) {
	SessionsIngested.WithLabelValues(mode, boolLabel(completed)).Inc()
	EventsFed.Add(float64(events))
	IngestLatency.Observe(elapsed.Seconds())

	for _, w := range res.Warnings {
		WarningsTotal.WithLabelValues(string(w.Kind)).Inc()
	}
	CitationsTotal.WithLabelValues("matched").Add(float64(res.Metrics.SourcesUsedCount))
	CitationsTotal.WithLabelValues("extra").Add(float64(res.Metrics.ExtraLinksCount))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
