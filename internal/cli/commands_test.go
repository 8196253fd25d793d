package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/export"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/metrics"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/page"
)

// execute runs the root command and returns what it wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// decodeData unmarshals the data of a JSON CLI response into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// storeArgs points a command at a fresh sqlite database under t.TempDir.
func storeArgs(t *testing.T) []string {
	t.Helper()
	return []string{"--backend", "sqlite", "--db", filepath.Join(t.TempDir(), "evidence.db"), "--log-level", "error"}
}

func with(base []string, args ...string) []string {
	return append(append([]string{}, args...), base...)
}

func TestDiff_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "diff", "testdata/a.yaml", "testdata/b.yaml")
	require.NoError(t, err)

	var res DiffResult
	decodeData(t, out, &res)
	assert.Equal(t, "acme", res.TenantID)
	assert.Equal(t, "s1", res.FromSnapshotID)
	assert.Equal(t, "s2", res.ToSnapshotID)
	require.Len(t, res.Events, 2)

	assert.Equal(t, "f2", res.Events[0].ObjectID)
	assert.Equal(t, evidence.ChangeRemoved, res.Events[0].ChangeType)
	assert.Equal(t, evidence.ClassStructural, res.Events[0].Classification)
	assert.Equal(t, "f3", res.Events[1].ObjectID)
	assert.Equal(t, evidence.ChangeAdded, res.Events[1].ChangeType)
	for _, e := range res.Events {
		assert.Equal(t, evidence.ActorUnknown, e.Actor)
		assert.NoError(t, evidence.Verify(&e))
	}
}

func TestDiff_Text(t *testing.T) {
	out, err := execute(t, "diff", "testdata/a.yaml", "testdata/b.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "acme/cloud-1: s1 -> s2")
	assert.Contains(t, out, "REMOVED")
	assert.Contains(t, out, "field/f3")
}

func TestDiff_SameSnapshotHasNoDrift(t *testing.T) {
	out, err := execute(t, "diff", "testdata/a.yaml", "testdata/a.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "No drift.")
}

func TestDiff_ForeignTenantFails(t *testing.T) {
	out, err := execute(t, "--format", "json", "diff", "testdata/a.yaml", "testdata/other-tenant.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "INVALID_SNAPSHOT")
}

func TestDiff_MissingFile(t *testing.T) {
	_, err := execute(t, "diff", "testdata/a.yaml", "testdata/nope.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMetrics_WithoutDriftHistory(t *testing.T) {
	out, err := execute(t, "--format", "json", "metrics", "testdata/b.yaml")
	require.NoError(t, err)

	var run evidence.MetricsRun
	decodeData(t, out, &run)
	assert.Equal(t, "s2", run.SnapshotID)
	assert.NoError(t, evidence.Verify(&run))

	churn, ok := run.Metric(metrics.KeyConfigChurnDensity)
	require.True(t, ok)
	assert.Equal(t, evidence.NotAvailable, churn.Availability)
	assert.Nil(t, churn.Value)
	assert.Contains(t, run.MissingInputs, evidence.DatasetDriftEvents)
}

func TestMetrics_WithDriftEvents(t *testing.T) {
	out, err := execute(t, "--format", "json", "diff", "testdata/a.yaml", "testdata/b.yaml")
	require.NoError(t, err)
	var diff DiffResult
	decodeData(t, out, &diff)

	eventsPath := filepath.Join(t.TempDir(), "events.json")
	data, err := json.Marshal(diff.Events)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(eventsPath, data, 0o644))

	out, err = execute(t, "--format", "json", "metrics", "testdata/b.yaml", "--events", eventsPath)
	require.NoError(t, err)
	var run evidence.MetricsRun
	decodeData(t, out, &run)

	churn, ok := run.Metric(metrics.KeyConfigChurnDensity)
	require.True(t, ok)
	assert.Equal(t, evidence.Available, churn.Availability)
	require.NotNil(t, churn.Numerator)
	assert.Equal(t, int64(2), *churn.Numerator)
}

func TestIngest_ThenQuery(t *testing.T) {
	db := storeArgs(t)

	out, err := execute(t, with(db, "--format", "json", "ingest", "testdata/a.yaml", "testdata/b.yaml", "testdata/other-tenant.yaml")...)
	require.NoError(t, err)
	var sum IngestSummary
	decodeData(t, out, &sum)
	assert.Equal(t, 3, sum.Snapshots)
	assert.Equal(t, 3, sum.Stored)
	assert.Equal(t, 2, sum.Events)

	// Re-ingesting stores nothing new.
	out, err = execute(t, with(db, "--format", "json", "ingest", "testdata")...)
	require.NoError(t, err)
	decodeData(t, out, &sum)
	assert.Equal(t, 3, sum.Snapshots)
	assert.Equal(t, 0, sum.Stored)
	assert.Equal(t, 0, sum.Events)

	out, err = execute(t, with(db, "--format", "json", "events", "--tenant", "acme")...)
	require.NoError(t, err)
	var events page.Result[evidence.DriftEvent]
	decodeData(t, out, &events)
	require.Len(t, events.Items, 2)
	assert.False(t, events.HasMore)
	for _, e := range events.Items {
		assert.Equal(t, "acme", e.TenantID)
	}

	out, err = execute(t, with(db, "--format", "json", "events", "--tenant", "globex")...)
	require.NoError(t, err)
	decodeData(t, out, &events)
	assert.Empty(t, events.Items)

	out, err = execute(t, with(db, "--format", "json", "runs", "--tenant", "acme")...)
	require.NoError(t, err)
	var runs page.Result[evidence.MetricsRun]
	decodeData(t, out, &runs)
	assert.Len(t, runs.Items, 2)

	out, err = execute(t, with(db, "--format", "json", "ledger", "show", "--tenant", "acme")...)
	require.NoError(t, err)
	var view struct {
		FirstSnapshotAt      string `json:"first_snapshot_at"`
		FirstDriftDetectedAt string `json:"first_drift_detected_at"`
		Earliest             string `json:"earliest_governance_evidence_at"`
	}
	decodeData(t, out, &view)
	assert.Equal(t, "2025-01-15T09:00:00.000Z", view.FirstSnapshotAt)
	assert.Equal(t, "2025-01-16T09:00:00.000Z", view.FirstDriftDetectedAt)
	assert.Equal(t, "2025-01-15T09:00:00.000Z", view.Earliest)
}

func TestEvents_Paging(t *testing.T) {
	db := storeArgs(t)
	_, err := execute(t, with(db, "ingest", "testdata/a.yaml", "testdata/b.yaml")...)
	require.NoError(t, err)

	out, err := execute(t, with(db, "--format", "json", "events", "--tenant", "acme", "--page-size", "1")...)
	require.NoError(t, err)
	var first page.Result[evidence.DriftEvent]
	decodeData(t, out, &first)
	require.Len(t, first.Items, 1)
	require.True(t, first.HasMore)
	assert.Equal(t, "f2", first.Items[0].ObjectID)

	out, err = execute(t, with(db, "--format", "json", "events", "--tenant", "acme", "--page-size", "1", "--cursor", first.NextCursor)...)
	require.NoError(t, err)
	var second page.Result[evidence.DriftEvent]
	decodeData(t, out, &second)
	require.Len(t, second.Items, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, "f3", second.Items[0].ObjectID)

	_, err = execute(t, with(db, "events", "--tenant", "acme", "--cursor", "garbage!")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLedgerInstallComesFromCapture(t *testing.T) {
	db := storeArgs(t)
	doc := `snapshot_id: s0
tenant_id: acme
cloud_id: cloud-1
captured_at: "2025-01-14T09:00:00Z"
install_detected_at: "2025-01-14T08:30:00Z"
payload:
  field: []
`
	path := filepath.Join(t.TempDir(), "installed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	_, err := execute(t, with(db, "ingest", path, "testdata/a.yaml")...)
	require.NoError(t, err)

	out, err := execute(t, with(db, "--format", "json", "ledger", "show", "--tenant", "acme")...)
	require.NoError(t, err)
	var view struct {
		FirstInstallDetectedAt string `json:"first_install_detected_at"`
		Earliest               string `json:"earliest_governance_evidence_at"`
	}
	decodeData(t, out, &view)
	assert.Equal(t, "2025-01-14T08:30:00.000Z", view.FirstInstallDetectedAt)
	assert.Equal(t, "2025-01-14T08:30:00.000Z", view.Earliest)

	// the ledger has no write command
	sub, _, err := NewRootCommand().Find([]string{"ledger", "install"})
	require.NoError(t, err)
	assert.Equal(t, "ledger", sub.Name())
	_, err = execute(t, with(db, "ledger", "install", "--tenant", "acme", "--at", "2001-01-01T00:00:00Z")...)
	require.Error(t, err)
}

func TestExportVerify(t *testing.T) {
	db := storeArgs(t)
	_, err := execute(t, with(db, "ingest", "testdata/a.yaml", "testdata/b.yaml")...)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "acme.json")
	_, err = execute(t, with(db, "export", "--tenant", "acme", "-o", path)...)
	require.NoError(t, err)

	out, err := execute(t, "verify", path)
	require.NoError(t, err)
	assert.Contains(t, out, "7 verified, 0 failed")

	f, err := os.Open(path)
	require.NoError(t, err)
	doc, err := export.Decode(f)
	f.Close()
	require.NoError(t, err)
	doc.Records[0].Canonical = strings.Replace(doc.Records[0].Canonical, "Severity", "Priority", 1)

	tampered := filepath.Join(t.TempDir(), "tampered.json")
	var buf bytes.Buffer
	require.NoError(t, export.Encode(&buf, doc))
	require.NoError(t, os.WriteFile(tampered, buf.Bytes(), 0o644))

	out, err = execute(t, "--format", "json", "verify", tampered)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	var res VerifyResult
	decodeData(t, out, &res)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 6, res.Verified)
}

func TestExport_Stdout(t *testing.T) {
	db := storeArgs(t)
	_, err := execute(t, with(db, "ingest", "testdata/a.yaml")...)
	require.NoError(t, err)

	out, err := execute(t, with(db, "export", "--tenant", "acme")...)
	require.NoError(t, err)
	doc, err := export.Decode(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "acme", doc.TenantID)
	assert.NoError(t, export.Verify(doc).Err())
}

func TestErase(t *testing.T) {
	db := storeArgs(t)
	_, err := execute(t, with(db, "ingest", "testdata")...)
	require.NoError(t, err)

	_, err = execute(t, with(db, "erase", "--tenant", "acme")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, with(db, "erase", "--tenant", "acme", "--yes")...)
	require.NoError(t, err)

	_, err = execute(t, with(db, "ledger", "show", "--tenant", "acme")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err := execute(t, with(db, "--format", "json", "ledger", "show", "--tenant", "globex")...)
	require.NoError(t, err, "other tenants survive")
	assert.Contains(t, out, "globex")
}
