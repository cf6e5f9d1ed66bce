// Package metrics exposes Prometheus instrumentation for the analysis
// pipeline.
package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service collectors. Create one per process and
// share it across components.
type Metrics struct {
	AnalysesTotal   *prometheus.CounterVec
	FallbacksTotal  *prometheus.CounterVec
	BackendDuration prometheus.Histogram
	ExtractDuration prometheus.Histogram
	HistorySize     prometheus.Gauge
	RechecksTotal   *prometheus.CounterVec
	DBConnections   *prometheus.GaugeVec
}

// New registers the collectors on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the collectors on reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AnalysesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clausecheck_analyses_total",
			Help: "Completed analyses by mode (ai or fallback).",
		}, []string{"mode"}),
		FallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clausecheck_fallbacks_total",
			Help: "Fallback activations by failure cause.",
		}, []string{"cause"}),
		BackendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "clausecheck_backend_request_seconds",
			Help:    "AI backend round-trip duration including retries.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		ExtractDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "clausecheck_extract_seconds",
			Help:    "Content stabilization duration.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		HistorySize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "clausecheck_history_entries",
			Help: "Current number of history entries.",
		}),
		RechecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clausecheck_rechecks_total",
			Help: "Background re-check tasks by outcome.",
		}, []string{"outcome"}),
		DBConnections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clausecheck_db_connections",
			Help: "Database connection pool state.",
		}, []string{"state"}),
	}
}

// ObserveBackend records one backend round trip.
func (m *Metrics) ObserveBackend(start time.Time) {
	if m == nil {
		return
	}
	m.BackendDuration.Observe(time.Since(start).Seconds())
}

// ObserveExtract records one stabilization.
func (m *Metrics) ObserveExtract(start time.Time) {
	if m == nil {
		return
	}
	m.ExtractDuration.Observe(time.Since(start).Seconds())
}

// CountAnalysis records a completed analysis.
func (m *Metrics) CountAnalysis(mode string) {
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(mode).Inc()
}

// CountFallback records a fallback activation with its cause.
func (m *Metrics) CountFallback(cause string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(cause).Inc()
}

// CountRecheck records a background re-check outcome.
func (m *Metrics) CountRecheck(outcome string) {
	if m == nil {
		return
	}
	m.RechecksTotal.WithLabelValues(outcome).Inc()
}

// SetHistorySize updates the history gauge.
func (m *Metrics) SetHistorySize(n int) {
	if m == nil {
		return
	}
	m.HistorySize.Set(float64(n))
}

// UpdateDBStats refreshes the connection pool gauges from the database.
func (m *Metrics) UpdateDBStats(db *sql.DB) {
	if m == nil || db == nil {
		return
	}
	stats := db.Stats()
	m.DBConnections.WithLabelValues("open").Set(float64(stats.OpenConnections))
	m.DBConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
	m.DBConnections.WithLabelValues("idle").Set(float64(stats.Idle))
}
