// Package metrics computes the fixed catalogue of independent ratio
// metrics over one snapshot and a window of drift events.
//
// A metric whose required input is absent is NOT_AVAILABLE with every
// value null. It is never reported as zero. Metrics are never combined
// into an aggregate score.
package metrics

import (
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/canonical"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
)

type inputs struct {
	snapshot *evidence.Snapshot

	// events are the drift events inside the window. nil means the drift
	// history is unavailable.
	events []evidence.DriftEvent
}

// available reports whether dataset can be used at all.
func (in *inputs) available(dataset string) bool {
	if dataset == evidence.DatasetDriftEvents {
		return in.events != nil
	}
	return in.snapshot.Captured(evidence.ObjectType(dataset))
}

// fullyCovered reports whether dataset was captured without gaps.
func (in *inputs) fullyCovered(dataset string) bool {
	if dataset == evidence.DatasetDriftEvents {
		return in.events != nil
	}
	return in.snapshot.Coverage(dataset).CoverageStatus == evidence.CoverageAvailable
}

// ComputeMetrics evaluates the whole catalogue for one tenant, cloud and
// window.
//
// events is the accumulated drift history. A nil slice means that history
// is unavailable and the drift-based metrics become NOT_AVAILABLE; an
// empty slice is a legitimately quiet window. Only events of this tenant
// and cloud with window.Start <= to_captured_at < window.End are counted.
//
// computedAt is recorded on the run but stays outside its hash, so two
// computations over the same inputs produce the same digest.
func ComputeMetrics(tenantID, cloudID string, window evidence.Window, snapshot *evidence.Snapshot, events []evidence.DriftEvent, computedAt time.Time) (*evidence.MetricsRun, error) {
	if err := window.Validate(); err != nil {
		return nil, fault.Wrap(fault.InvalidArgument, err, "metrics window").WithTenant(tenantID)
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}
	if snapshot.TenantID != tenantID || snapshot.CloudID != cloudID {
		return nil, fault.New(fault.InvalidSnapshot, "snapshot %s does not belong to %s/%s",
			snapshot.SnapshotID, tenantID, cloudID).WithTenant(tenantID)
	}

	in := &inputs{snapshot: snapshot, events: windowEvents(tenantID, cloudID, window, events)}

	run := &evidence.MetricsRun{
		RunID:      evidence.MetricsRunID(tenantID, cloudID, window, snapshot.SnapshotID),
		TenantID:   tenantID,
		CloudID:    cloudID,
		Window:     window,
		SnapshotID: snapshot.SnapshotID,
		ComputedAt: computedAt.UTC(),
		Metrics:    make([]evidence.MetricRecord, 0, len(Catalogue)),
	}

	missing := mapset.NewThreadUnsafeSet[string]()
	available := 0
	for _, def := range Catalogue {
		rec := evaluate(def, in)
		if rec.Availability == evidence.Available {
			available++
		}
		missing.Append(rec.MissingDependencies...)
		run.Metrics = append(run.Metrics, rec)
	}
	run.CompletenessPercentage = canonical.RoundFloat(100 * float64(available) / float64(len(Catalogue)))
	run.MissingInputs = mapset.Sorted(missing)

	if err := run.Seal(); err != nil {
		return nil, fault.Wrap(fault.InvalidArgument, err, "seal metrics run").WithTenant(tenantID)
	}
	return run, nil
}

func windowEvents(tenantID, cloudID string, window evidence.Window, events []evidence.DriftEvent) []evidence.DriftEvent {
	if events == nil {
		return nil
	}
	out := make([]evidence.DriftEvent, 0, len(events))
	for _, e := range events {
		if e.TenantID != tenantID || e.CloudID != cloudID {
			continue
		}
		if window.Contains(e.ToCapturedAt) {
			out = append(out, e)
		}
	}
	return out
}

func evaluate(def Definition, in *inputs) evidence.MetricRecord {
	rec := evidence.MetricRecord{
		MetricKey:           def.Key,
		Dependencies:        def.Dependencies(),
		MissingDependencies: []string{},
		Bounded:             def.Bounded,
	}

	declared := def.Dependencies()
	covered := 0
	for _, ds := range declared {
		if in.fullyCovered(ds) {
			covered++
		}
	}
	completeness := 1.0
	if len(declared) > 0 {
		completeness = float64(covered) / float64(len(declared))
	}
	rec.CompletenessPercentage = canonical.RoundFloat(100 * completeness)

	for _, ds := range def.Required {
		if !in.available(ds) {
			rec.MissingDependencies = append(rec.MissingDependencies, ds)
		}
	}
	if len(rec.MissingDependencies) > 0 {
		for _, ds := range def.Supporting {
			if !in.available(ds) {
				rec.MissingDependencies = append(rec.MissingDependencies, ds)
			}
		}
		slices.Sort(rec.MissingDependencies)
		return unavailable(rec, evidence.ReasonMissingDependency)
	}

	missingCritical := 0
	for _, ds := range def.Supporting {
		if !in.available(ds) {
			missingCritical++
			rec.MissingDependencies = append(rec.MissingDependencies, ds)
		}
	}
	slices.Sort(rec.MissingDependencies)

	r := def.compute(in)
	if r.den == 0 {
		return unavailable(rec, evidence.ReasonUndefinedRatio)
	}
	value := canonical.RoundFloat(float64(r.num) / float64(r.den))
	rec.Numerator = &r.num
	rec.Denominator = &r.den
	rec.Value = &value
	rec.Availability = evidence.Available
	rec.ConfidenceScore = Score(completeness, missingCritical)
	rec.ConfidenceLabel = Label(rec.ConfidenceScore)
	return rec
}

func unavailable(rec evidence.MetricRecord, reason string) evidence.MetricRecord {
	rec.Numerator, rec.Denominator, rec.Value = nil, nil, nil
	rec.Availability = evidence.NotAvailable
	rec.NotAvailableReason = &reason
	rec.ConfidenceScore = 0
	rec.ConfidenceLabel = evidence.ConfidenceNone
	return rec
}
