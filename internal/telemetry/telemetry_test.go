package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.RecordSnapshot(OutcomeStored)
	m.RecordSnapshot(OutcomeStored)
	m.RecordSnapshot(OutcomeDuplicate)
	m.RecordDriftEvent("STRUCTURAL")
	m.RecordRun(OutcomeStored)
	m.RecordMetric("orphaned_workflows", "NOT_AVAILABLE")
	m.RecordLedger("snapshot_observed", OutcomeUpdated)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.snapshots.WithLabelValues(OutcomeStored)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.snapshots.WithLabelValues(OutcomeDuplicate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.driftEvents.WithLabelValues("STRUCTURAL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomeStored)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metricAvailability.WithLabelValues("orphaned_workflows", "NOT_AVAILABLE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerUpdates.WithLabelValues("snapshot_observed", OutcomeUpdated)))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordSnapshot(OutcomeStored)

	assert.Equal(t, 1, testutil.CollectAndCount(a.snapshots))
	assert.Equal(t, 0, testutil.CollectAndCount(b.snapshots))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.RecordRun(OutcomeStored)
	m.ObserveIngest(20 * time.Millisecond)

	path := filepath.Join(t.TempDir(), "evidence.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `evidence_pipeline_metrics_runs_total{outcome="stored"} 1`), text)
	assert.True(t, strings.Contains(text, "evidence_pipeline_ingest_duration_seconds_count 1"), text)
}
