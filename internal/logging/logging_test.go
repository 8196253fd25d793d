package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, sync, err := New(Options{Level: "info", Format: FormatJSON, Output: &buf})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("ledger updated", "tenant", "tenant-a", "kind", "snapshot_observed")
	require.NoError(t, sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "ledger updated", entry["msg"])
	assert.Equal(t, "tenant-a", entry["tenant"])
	assert.Equal(t, "snapshot_observed", entry["kind"])
	assert.Equal(t, "evidence", entry["logger"])
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Options{Level: "DEBUG", Format: FormatConsole, Output: &buf})
	require.NoError(t, err)

	logger.Debug("diff computed", "events", 3)
	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "diff computed")
}

func TestRejectsBadOptions(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	assert.Error(t, err)

	_, _, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}
