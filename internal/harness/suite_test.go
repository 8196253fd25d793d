package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDir_AllScenariosPass(t *testing.T) {
	result, err := RunDir(context.Background(), "testdata/scenarios")
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalScenarios)
	assert.Equal(t, 3, result.Passed)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.Failures)
}

func TestRunDir_ReportsFailures(t *testing.T) {
	dir := t.TempDir()
	snap, err := os.ReadFile("testdata/snapshots/a.yaml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), snap, 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "failing.yaml"), []byte(
		"name: failing\ndescription: d\nsteps:\n  - ingest: a.yaml\nassertions:\n  - {type: event_count, tenant: acme, count: 3}\n",
	), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "passing.yaml"), []byte(
		"name: passing\ndescription: d\nsteps:\n  - ingest: a.yaml\nassertions:\n  - {type: verified, tenant: acme}\n",
	), 0o644))

	result, err := RunDir(context.Background(), dir)
	require.NoError(t, err)

	// a.yaml is a snapshot, not a scenario, and fails to load as one.
	assert.Equal(t, 4, result.TotalScenarios)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 3, result.Failed)
	require.Len(t, result.Failures, 3)
	assert.Contains(t, result.Failures[0].Error, "failed to load scenario")
	assert.Contains(t, result.Failures[1].Error, "failed to load scenario")
	assert.Contains(t, result.Failures[2].Error, "scenario assertions failed")
}

func TestRunDir_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunDir(ctx, "testdata/scenarios")
	assert.ErrorIs(t, err, context.Canceled)
}
