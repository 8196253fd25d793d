// Package telemetry holds the Prometheus collectors for pipeline activity.
//
// Labels never carry tenant ids or payload content.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeStored    = "stored"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
)

// Metrics is the set of pipeline collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	snapshots          *prometheus.CounterVec
	driftEvents        *prometheus.CounterVec
	runs               *prometheus.CounterVec
	metricAvailability *prometheus.CounterVec
	ledgerUpdates      *prometheus.CounterVec
	ingestDuration     prometheus.Histogram
}

// New registers the pipeline collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Labels: outcome (stored, duplicate, rejected)
		snapshots: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "pipeline",
			Name:      "snapshots_total",
			Help:      "Snapshots offered to the pipeline by outcome",
		}, []string{"outcome"}),

		// Labels: classification
		driftEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "pipeline",
			Name:      "drift_events_total",
			Help:      "Drift events stored by classification",
		}, []string{"classification"}),

		// Labels: outcome (stored, duplicate)
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "pipeline",
			Name:      "metrics_runs_total",
			Help:      "Metrics runs by outcome",
		}, []string{"outcome"}),

		// Labels: metric_key, availability (AVAILABLE, NOT_AVAILABLE)
		metricAvailability: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "metrics",
			Name:      "computed_total",
			Help:      "Computed metric records by availability",
		}, []string{"metric_key", "availability"}),

		// Labels: kind, outcome (updated, unchanged, rejected)
		ledgerUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "ledger",
			Name:      "signals_total",
			Help:      "First-occurrence signals applied to continuity ledgers",
		}, []string{"kind", "outcome"}),

		ingestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "evidence",
			Subsystem: "pipeline",
			Name:      "ingest_duration_seconds",
			Help:      "Time to ingest one snapshot end to end",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordSnapshot counts one snapshot by outcome.
func (m *Metrics) RecordSnapshot(outcome string) {
	m.snapshots.WithLabelValues(outcome).Inc()
}

// RecordDriftEvent counts one stored drift event.
func (m *Metrics) RecordDriftEvent(classification string) {
	m.driftEvents.WithLabelValues(classification).Inc()
}

// RecordRun counts one metrics run by outcome.
func (m *Metrics) RecordRun(outcome string) {
	m.runs.WithLabelValues(outcome).Inc()
}

// RecordMetric counts one metric record by availability.
func (m *Metrics) RecordMetric(metricKey, availability string) {
	m.metricAvailability.WithLabelValues(metricKey, availability).Inc()
}

// RecordLedger counts one ledger signal by outcome.
func (m *Metrics) RecordLedger(kind, outcome string) {
	m.ledgerUpdates.WithLabelValues(kind, outcome).Inc()
}

// ObserveIngest records the duration of one ingest.
func (m *Metrics) ObserveIngest(d time.Duration) {
	m.ingestDuration.Observe(d.Seconds())
}

// WriteTextfile writes the current values in the text exposition format,
// for node-exporter style collection of batch runs.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
