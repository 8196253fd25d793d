package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
)

func TestSnapshotBuilder(t *testing.T) {
	b := NewSnapshot("tenant-a", "cloud-1", "s1", Epoch.Add(time.Hour)).
		Fields("f2", "f1").
		With(evidence.TypeWorkflow).
		Missing("project", evidence.CoverageNotAvailable, "PERMISSION_DENIED")

	s := b.Sealed()
	require.NoError(t, s.Validate())
	require.NoError(t, evidence.Verify(s))
	assert.Len(t, s.Payload[evidence.TypeField], 2)
	assert.True(t, s.Payload.Has(evidence.TypeWorkflow))
	assert.Empty(t, s.Payload[evidence.TypeWorkflow])

	// builds are independent copies
	other := b.Fields("f3").Build()
	assert.Len(t, s.Payload[evidence.TypeField], 2)
	assert.Len(t, other.Payload[evidence.TypeField], 3)
}
