package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry client counters and histograms.

var (
	// Ledger
	LedgerCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weeb",
		Subsystem: "ledger",
		Name:      "calls_total",
		Help:      "Total registry contract calls",
	}, []string{"method", "result"})

	LedgerRateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "weeb",
		Subsystem: "ledger",
		Name:      "rate_limit_waits_total",
		Help:      "Reads delayed by the client-side rate limiter",
	})

	ConfirmationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "weeb",
		Subsystem: "ledger",
		Name:      "confirmation_duration_seconds",
		Help:      "Time from submission to receipt",
		Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"method"})

	// Catalog
	CatalogRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weeb",
		Subsystem: "catalog",
		Name:      "refreshes_total",
		Help:      "Catalog refreshes by result (applied, stale, error, skipped)",
	}, []string{"result"})

	CatalogRefreshLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "weeb",
		Subsystem: "catalog",
		Name:      "refresh_duration_seconds",
		Help:      "Catalog refresh duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	CatalogNames = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "weeb",
		Subsystem: "catalog",
		Name:      "names",
		Help:      "Names in the last applied catalog",
	})

	// Registrar
	RegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weeb",
		Subsystem: "registrar",
		Name:      "registrations_total",
		Help:      "Register operations by outcome kind",
	}, []string{"result"})

	RecordUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weeb",
		Subsystem: "registrar",
		Name:      "record_updates_total",
		Help:      "Record update operations by result",
	}, []string{"result"})

	// Session
	SessionResetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "weeb",
		Subsystem: "session",
		Name:      "resets_total",
		Help:      "Session re-initialisations after a chain change",
	})
)

// Result turns an error into a low-cardinality label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
