package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/export"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s/%s %v\n", ev.Seq, ev.Step, ev.TenantID, ev.SnapshotID, ev.Changes)
	}

	return buf.String()
}

// AssertionContext provides what assertions read besides the trace.
type AssertionContext struct {
	Ctx  context.Context
	Repo *store.Evidence
}

// assertEvent checks that a stored drift event matches every non-empty
// field of the assertion.
func assertEvent(events []evidence.DriftEvent, trace []TraceEvent, a Assertion) error {
	for _, e := range events {
		if a.ObjectType != "" && string(e.ObjectType) != a.ObjectType {
			continue
		}
		if a.ObjectID != "" && e.ObjectID != a.ObjectID {
			continue
		}
		if a.ChangeType != "" && string(e.ChangeType) != a.ChangeType {
			continue
		}
		if a.Classification != "" && string(e.Classification) != a.Classification {
			continue
		}
		return nil
	}

	return &AssertionError{
		Type: AssertEvent,
		Expected: fmt.Sprintf("event %s/%s %s %s for %s",
			orAny(a.ObjectType), orAny(a.ObjectID), orAny(a.ChangeType), orAny(a.Classification), a.Tenant),
		Actual: fmt.Sprintf("not found among %d events", len(events)),
		Trace:  trace,
	}
}

// assertEventCount checks the exact number of stored events.
func assertEventCount(events []evidence.DriftEvent, trace []TraceEvent, a Assertion) error {
	if len(events) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventCount,
		Expected: fmt.Sprintf("%d events for %s", a.Count, a.Tenant),
		Actual:   fmt.Sprintf("%d events", len(events)),
		Trace:    trace,
	}
}

// assertMetric finds the run computed for a.Snapshot and compares the
// named metric.
func assertMetric(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	runs, err := actx.Repo.ListRuns(actx.Ctx, a.Tenant)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	fail := func(actual string) error {
		return &AssertionError{
			Type:     AssertMetric,
			Expected: fmt.Sprintf("%s of %s %s", a.Metric, a.Snapshot, describeExpectedMetric(a)),
			Actual:   actual,
			Trace:    trace,
		}
	}

	for _, run := range runs {
		if run.SnapshotID != a.Snapshot {
			continue
		}
		m, ok := run.Metric(a.Metric)
		if !ok {
			return fail("metric not in run")
		}
		if a.Availability != "" && string(m.Availability) != a.Availability {
			return fail(string(m.Availability))
		}
		if a.Numerator != nil && (m.Numerator == nil || *m.Numerator != *a.Numerator) {
			return fail(fmt.Sprintf("numerator %s", formatInt(m.Numerator)))
		}
		if a.Denominator != nil && (m.Denominator == nil || *m.Denominator != *a.Denominator) {
			return fail(fmt.Sprintf("denominator %s", formatInt(m.Denominator)))
		}
		if a.Value != nil && (m.Value == nil || *m.Value != *a.Value) {
			return fail(fmt.Sprintf("value %s", formatFloat(m.Value)))
		}
		return nil
	}
	return fail("no run for snapshot")
}

// assertLedger compares one ledger field, rendered canonically.
func assertLedger(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	l, err := actx.Repo.GetLedger(actx.Ctx, a.Tenant)
	switch {
	case fault.Is(err, fault.NotFound):
		l = evidence.NewLedger(a.Tenant)
	case err != nil:
		return fmt.Errorf("read ledger: %w", err)
	}

	var got evidence.Instant
	if a.Field == "earliest_governance_evidence_at" {
		got = l.EarliestGovernanceEvidenceAt()
	} else {
		got = l.Field(ledgerFieldKinds[a.Field])
	}
	if got.String() == a.Equals {
		return nil
	}
	return &AssertionError{
		Type:     AssertLedger,
		Expected: fmt.Sprintf("%s %s = %s", a.Tenant, a.Field, a.Equals),
		Actual:   got.String(),
		Trace:    trace,
	}
}

// assertVerified exports the tenant and verifies every record.
func assertVerified(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	doc, err := export.Build(actx.Ctx, actx.Repo, a.Tenant)
	if err != nil {
		return &AssertionError{
			Type:     AssertVerified,
			Expected: fmt.Sprintf("export of %s builds", a.Tenant),
			Actual:   err.Error(),
			Trace:    trace,
		}
	}
	report := export.Verify(doc)
	if len(report.Failed()) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertVerified,
		Expected: fmt.Sprintf("all %d records of %s verify", len(report.Checks), a.Tenant),
		Actual:   report.Err().Error(),
		Trace:    trace,
	}
}

var ledgerFieldKinds = map[string]evidence.EventKind{
	"first_install_detected_at":  evidence.KindInstallDetected,
	"first_snapshot_at":          evidence.KindSnapshotObserved,
	"first_drift_detected_at":    evidence.KindDriftObserved,
	"first_metrics_available_at": evidence.KindMetricsObserved,
}

func orAny(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

func describeExpectedMetric(a Assertion) string {
	parts := []string{}
	if a.Availability != "" {
		parts = append(parts, a.Availability)
	}
	if a.Numerator != nil {
		parts = append(parts, fmt.Sprintf("numerator %d", *a.Numerator))
	}
	if a.Denominator != nil {
		parts = append(parts, fmt.Sprintf("denominator %d", *a.Denominator))
	}
	if a.Value != nil {
		parts = append(parts, fmt.Sprintf("value %g", *a.Value))
	}
	if len(parts) == 0 {
		return "present"
	}
	return strings.Join(parts, ", ")
}

func formatInt(n *int64) string {
	if n == nil {
		return "null"
	}
	return fmt.Sprintf("%d", *n)
}

func formatFloat(f *float64) string {
	if f == nil {
		return "null"
	}
	return fmt.Sprintf("%g", *f)
}

// EvaluateAssertions checks all assertions against the stored evidence.
// Returns error messages for failed assertions (empty slice if all pass).
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	errs := []string{}
	events := map[string][]evidence.DriftEvent{}

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertEvent, AssertEventCount:
			list, ok := events[a.Tenant]
			if !ok {
				list, err = actx.Repo.ListEvents(actx.Ctx, a.Tenant)
				if err != nil {
					errs = append(errs, fmt.Sprintf("assertion %d: list events: %v", i, err))
					continue
				}
				events[a.Tenant] = list
			}
			if a.Type == AssertEvent {
				err = assertEvent(list, result.Trace, a)
			} else {
				err = assertEventCount(list, result.Trace, a)
			}
		case AssertMetric:
			err = assertMetric(actx, result.Trace, a)
		case AssertLedger:
			err = assertLedger(actx, result.Trace, a)
		case AssertVerified:
			err = assertVerified(actx, result.Trace, a)
		default:
			err = fmt.Errorf("unknown assertion type: %s", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}

	return errs
}
