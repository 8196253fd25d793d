package evidence

import (
	"fmt"
	"time"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/canonical"
)

// DatasetDriftEvents names the accumulated drift history as a metric input.
const DatasetDriftEvents = "drift_events"

// Availability says whether a metric could be computed.
type Availability string

const (
	Available    Availability = "AVAILABLE"
	NotAvailable Availability = "NOT_AVAILABLE"
)

// Reason codes for unavailable metrics.
const (
	ReasonMissingDependency = "MISSING_DEPENDENCY"
	ReasonUndefinedRatio    = "UNDEFINED_RATIO"
)

// ConfidenceLabel buckets a confidence score.
type ConfidenceLabel string

const (
	ConfidenceHigh   ConfidenceLabel = "HIGH"
	ConfidenceMedium ConfidenceLabel = "MEDIUM"
	ConfidenceLow    ConfidenceLabel = "LOW"
	ConfidenceNone   ConfidenceLabel = "NONE"
)

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether Start <= t < End.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Validate rejects empty or inverted windows.
func (w Window) Validate() error {
	if !w.Start.Before(w.End) {
		return fmt.Errorf("window start %s is not before end %s",
			canonical.FormatTime(w.Start), canonical.FormatTime(w.End))
	}
	return nil
}

// MetricRecord is one metric of a run.
//
// Numerator, Denominator and Value are nil together exactly when the
// metric is NOT_AVAILABLE. A computed zero is a non-nil pointer to 0.
type MetricRecord struct {
	MetricKey              string          `json:"metric_key"`
	Numerator              *int64          `json:"numerator"`
	Denominator            *int64          `json:"denominator"`
	Value                  *float64        `json:"value"`
	Availability           Availability    `json:"availability"`
	NotAvailableReason     *string         `json:"not_available_reason"`
	ConfidenceScore        float64         `json:"confidence_score"`
	ConfidenceLabel        ConfidenceLabel `json:"confidence_label"`
	CompletenessPercentage float64         `json:"completeness_percentage"`
	Dependencies           []string        `json:"dependencies"`
	MissingDependencies    []string        `json:"missing_dependencies"`
	Bounded                bool            `json:"bounded"`
}

func (m MetricRecord) Canonical() canonical.Object {
	return canonical.Object{
		"metric_key":              canonical.String(m.MetricKey),
		"numerator":               canonical.OptionalInt(m.Numerator),
		"denominator":             canonical.OptionalInt(m.Denominator),
		"value":                   canonical.OptionalFloat(m.Value),
		"availability":            canonical.String(m.Availability),
		"not_available_reason":    canonical.OptionalString(m.NotAvailableReason),
		"confidence_score":        canonical.Float(m.ConfidenceScore),
		"confidence_label":        canonical.String(m.ConfidenceLabel),
		"completeness_percentage": canonical.Float(m.CompletenessPercentage),
		"dependencies":            canonical.Strings(m.Dependencies),
		"missing_dependencies":    canonical.Strings(m.MissingDependencies),
		"bounded":                 canonical.Bool(m.Bounded),
	}
}

// MetricsRun bundles the full metric catalogue for one tenant, cloud and
// window.
type MetricsRun struct {
	RunID                  string         `json:"run_id"`
	TenantID               string         `json:"tenant_id"`
	CloudID                string         `json:"cloud_id"`
	Window                 Window         `json:"window"`
	SnapshotID             string         `json:"snapshot_id"`
	ComputedAt             time.Time      `json:"computed_at"`
	Metrics                []MetricRecord `json:"metrics"`
	CompletenessPercentage float64        `json:"completeness_percentage"`
	MissingInputs          []string       `json:"missing_inputs"`
	HashVersion            string         `json:"hash_version,omitempty"`
	CanonicalHash          string         `json:"canonical_hash,omitempty"`
}

// Metric returns the record for key.
func (r *MetricsRun) Metric(key string) (MetricRecord, bool) {
	for _, m := range r.Metrics {
		if m.MetricKey == key {
			return m, true
		}
	}
	return MetricRecord{}, false
}

// AnyAvailable reports whether at least one metric was computed.
func (r *MetricsRun) AnyAvailable() bool {
	for _, m := range r.Metrics {
		if m.Availability == Available {
			return true
		}
	}
	return false
}

// CanonicalRecord returns the full canonical form of the run.
func (r *MetricsRun) CanonicalRecord() (canonical.Object, error) {
	metrics := make([]canonical.Value, len(r.Metrics))
	for i, m := range r.Metrics {
		metrics[i] = m.Canonical()
	}
	return canonical.Object{
		"run_id":                  canonical.String(r.RunID),
		"tenant_id":               canonical.String(r.TenantID),
		"cloud_id":                canonical.String(r.CloudID),
		"window_start":            canonical.Timestamp(r.Window.Start),
		"window_end":              canonical.Timestamp(r.Window.End),
		"snapshot_id":             canonical.String(r.SnapshotID),
		"computed_at":             canonical.Timestamp(r.ComputedAt),
		"metrics":                 canonical.NewArray(canonical.ByField("metric_key"), metrics...),
		"completeness_percentage": canonical.Float(r.CompletenessPercentage),
		"missing_inputs":          canonical.Strings(r.MissingInputs),
		"hash_version":            canonical.String(r.HashVersion),
		"canonical_hash":          canonical.String(r.CanonicalHash),
	}, nil
}

// Stamp returns the stored hash version and digest.
func (r *MetricsRun) Stamp() (string, string) { return r.HashVersion, r.CanonicalHash }

// Seal computes and stores the run digest under the current boundary.
func (r *MetricsRun) Seal() error {
	version, digest, err := seal(MetricsRunBoundary, r)
	if err != nil {
		return err
	}
	r.HashVersion, r.CanonicalHash = version, digest
	return nil
}
