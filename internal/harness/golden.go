package harness

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/canonical"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// Every trace event is rendered as one line of canonical JSON.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Ledgers      map[string][]string
}

// toCanonical converts one trace event to a canonical object. Empty
// fields are omitted.
func (ev TraceEvent) toCanonical() canonical.Object {
	obj := canonical.Object{
		"seq":       canonical.Int(ev.Seq),
		"step":      canonical.String(ev.Step),
		"tenant_id": canonical.String(ev.TenantID),
	}
	set := func(key, v string) {
		if v != "" {
			obj[key] = canonical.String(v)
		}
	}
	set("cloud_id", ev.CloudID)
	set("snapshot_id", ev.SnapshotID)
	set("previous_snapshot_id", ev.PreviousSnapshotID)
	set("error", ev.Error)
	if ev.Step == StepIngest && ev.Error == "" {
		obj["snapshot_stored"] = canonical.Bool(ev.SnapshotStored)
		obj["changes"] = canonical.Strings(ev.Changes)
		obj["metrics_available"] = canonical.Strings(ev.MetricsAvailable)
	}
	obj["ledger_updates"] = canonical.Strings(ev.LedgerUpdates)
	return obj
}

// Render produces the golden text: a header line, one canonical line per
// trace event, then each tenant's final ledger.
func (s *TraceSnapshot) Render() ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\n", s.ScenarioName)
	for _, ev := range s.Trace {
		line, err := canonical.Marshal(ev.toCanonical())
		if err != nil {
			return nil, fmt.Errorf("trace event %d: %w", ev.Seq, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	for _, t := range slices.Sorted(maps.Keys(s.Ledgers)) {
		fmt.Fprintf(&buf, "ledger %s:\n", t)
		for _, line := range s.Ledgers[t] {
			fmt.Fprintf(&buf, "  %s\n", line)
		}
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Ledgers:      result.Ledgers,
	}
	data, err := snapshot.Render()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
