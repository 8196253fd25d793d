package drift

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
)

const (
	tenant = "tenant-a"
	cloud  = "cloud-1"
)

var t0 = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

func snap(id string, at time.Time, payload evidence.Payload, missing ...evidence.MissingData) *evidence.Snapshot {
	return &evidence.Snapshot{
		SnapshotID:  id,
		TenantID:    tenant,
		CloudID:     cloud,
		CapturedAt:  at,
		Payload:     payload,
		MissingData: missing,
	}
}

func fields(ids ...string) []evidence.Object {
	objs := make([]evidence.Object, len(ids))
	for i, id := range ids {
		objs[i] = evidence.Field{ID: id}
	}
	return objs
}

func state(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

type summary struct {
	Type   evidence.ObjectType
	ID     string
	Change evidence.ChangeType
	Class  evidence.Classification
}

func summarize(events []evidence.DriftEvent) []summary {
	out := make([]summary, len(events))
	for i, e := range events {
		out[i] = summary{e.ObjectType, e.ObjectID, e.ChangeType, e.Classification}
	}
	return out
}

func TestFieldAddedAndRemoved(t *testing.T) {
	a := snap("s1", t0, evidence.Payload{evidence.TypeField: fields("field-1", "field-2")})
	b := snap("s2", t0.Add(time.Hour), evidence.Payload{evidence.TypeField: fields("field-1", "field-3")})

	events, err := ComputeDrift(tenant, cloud, a, b)
	require.NoError(t, err)
	assert.Equal(t, []summary{
		{evidence.TypeField, "field-2", evidence.ChangeRemoved, evidence.ClassStructural},
		{evidence.TypeField, "field-3", evidence.ChangeAdded, evidence.ClassStructural},
	}, summarize(events))

	assert.True(t, events[0].HasBefore())
	assert.False(t, events[0].HasAfter())
	assert.False(t, events[1].HasBefore())
	assert.True(t, events[1].HasAfter())
}

func TestAutomationRuleModified(t *testing.T) {
	author := "acct-42"
	a := snap("s1", t0, evidence.Payload{evidence.TypeAutomationRule: {
		evidence.AutomationRule{ID: "auto-1", Enabled: true, AuthorAccountID: &author},
	}})
	b := snap("s2", t0.Add(time.Hour), evidence.Payload{evidence.TypeAutomationRule: {
		evidence.AutomationRule{ID: "auto-1", Enabled: false, AuthorAccountID: &author},
	}})

	events, err := ComputeDrift(tenant, cloud, a, b)
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, evidence.ChangeModified, e.ChangeType)
	assert.Equal(t, evidence.ClassConfigChange, e.Classification)
	assert.Equal(t, true, state(t, e.BeforeState)["enabled"])
	assert.Equal(t, false, state(t, e.AfterState)["enabled"])

	// The payload names an author. The event still does not.
	assert.Equal(t, "unknown", e.Actor)
	assert.Equal(t, "none", e.ActorConfidence)
	assert.Equal(t, 100, e.CompletenessPercentage)
}

func TestWorkflowAddedIsConfigChange(t *testing.T) {
	a := snap("s1", t0, evidence.Payload{evidence.TypeWorkflow: {}})
	b := snap("s2", t0.Add(time.Hour), evidence.Payload{evidence.TypeWorkflow: {
		evidence.Workflow{ID: "wf-9", Name: "Release", Statuses: []string{"Open", "Done"}},
	}})

	events, err := ComputeDrift(tenant, cloud, a, b)
	require.NoError(t, err)
	assert.Equal(t, []summary{
		{evidence.TypeWorkflow, "wf-9", evidence.ChangeAdded, evidence.ClassConfigChange},
	}, summarize(events))
}

func TestClassificationTable(t *testing.T) {
	tests := []struct {
		objectType evidence.ObjectType
		change     evidence.ChangeType
		want       evidence.Classification
	}{
		{evidence.TypeField, evidence.ChangeAdded, evidence.ClassStructural},
		{evidence.TypeField, evidence.ChangeModified, evidence.ClassConfigChange},
		{evidence.TypeProject, evidence.ChangeRemoved, evidence.ClassStructural},
		{evidence.TypeAutomationRule, evidence.ChangeAdded, evidence.ClassStructural},
		{evidence.TypeWorkflow, evidence.ChangeRemoved, evidence.ClassConfigChange},
		{evidence.TypeScope, evidence.ChangeModified, evidence.ClassDataVisibilityChange},
	}
	for _, tt := range tests {
		got, ok := Classify(tt.objectType, tt.change)
		require.True(t, ok)
		assert.Equal(t, tt.want, got, "%s %s", tt.objectType, tt.change)
	}

	_, ok := Classify(evidence.TypeFieldUsage, evidence.ChangeAdded)
	assert.False(t, ok, "usage observations are never classified")
}

func TestFieldOrderDoesNotMatter(t *testing.T) {
	a := snap("s1", t0, evidence.Payload{evidence.TypeField: {
		evidence.Field{ID: "f1", ContextIDs: []string{"c1", "c2"}},
		evidence.Field{ID: "f2", Required: true},
	}})
	b := snap("s2", t0.Add(time.Hour), evidence.Payload{evidence.TypeField: {
		evidence.Field{ID: "f2", Required: true},
		evidence.Field{ID: "f1", ContextIDs: []string{"c2", "c1"}},
	}})

	events, err := ComputeDrift(tenant, cloud, a, b)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestDatasetMissingOnOneSideIsScopeChange(t *testing.T) {
	a := snap("s1", t0, evidence.Payload{
		evidence.TypeField:    fields("f1"),
		evidence.TypeWorkflow: {evidence.Workflow{ID: "wf-1"}},
	})
	b := snap("s2", t0.Add(time.Hour), evidence.Payload{
		evidence.TypeField: fields("f1"),
	}, evidence.MissingData{
		DatasetName:    "workflow",
		CoverageStatus: evidence.CoverageNotAvailable,
		ReasonCode:     "PERMISSION_DENIED",
		RetryCount:     3,
	})

	events, err := ComputeDrift(tenant, cloud, a, b)
	require.NoError(t, err)
	require.Equal(t, []summary{
		{evidence.TypeScope, "workflow", evidence.ChangeModified, evidence.ClassDataVisibilityChange},
	}, summarize(events), "the workflow must not be reported as removed")

	e := events[0]
	require.NotNil(t, e.MissingDataReference)
	assert.Equal(t, []string{"workflow"}, e.MissingDataReference.DatasetKeys)
	assert.Equal(t, []string{"PERMISSION_DENIED"}, e.MissingDataReference.ReasonCodes)
	assert.Equal(t, "AVAILABLE", state(t, e.BeforeState)["coverage_status"])
	assert.Equal(t, "NOT_AVAILABLE", state(t, e.AfterState)["coverage_status"])
	assert.EqualValues(t, 3, state(t, e.AfterState)["retry_count"])
}

func TestPartialCoverageChange(t *testing.T) {
	a := snap("s1", t0, evidence.Payload{evidence.TypeProject: {}},
		evidence.MissingData{DatasetName: "audit_log", CoverageStatus: evidence.CoveragePartial, ReasonCode: "RATE_LIMITED"})
	b := snap("s2", t0.Add(time.Hour), evidence.Payload{evidence.TypeProject: {}},
		evidence.MissingData{DatasetName: "audit_log", CoverageStatus: evidence.CoverageNotAvailable, ReasonCode: "PERMISSION_DENIED"})

	events, err := ComputeDrift(tenant, cloud, a, b)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "audit_log", events[0].ObjectID)
	assert.Equal(t, []string{"PERMISSION_DENIED", "RATE_LIMITED"}, events[0].MissingDataReference.ReasonCodes)
}

func TestInvalidSnapshots(t *testing.T) {
	good := func() *evidence.Snapshot { return snap("s1", t0, evidence.Payload{}) }
	later := func() *evidence.Snapshot { return snap("s2", t0.Add(time.Hour), evidence.Payload{}) }

	tests := []struct {
		name string
		a, b *evidence.Snapshot
	}{
		{"missing a", nil, later()},
		{"missing b", good(), nil},
		{"malformed b", good(), snap("", t0, nil)},
		{"other tenant", good(), func() *evidence.Snapshot { s := later(); s.TenantID = "tenant-b"; return s }()},
		{"other cloud", good(), func() *evidence.Snapshot { s := later(); s.CloudID = "cloud-2"; return s }()},
		{"reversed", later(), good()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := ComputeDrift(tenant, cloud, tt.a, tt.b)
			require.Error(t, err)
			assert.True(t, fault.Is(err, fault.InvalidSnapshot), "got %v", err)
			assert.NotNil(t, events)
			assert.Empty(t, events)
		})
	}
}

func TestReversedPairNamesBothSnapshots(t *testing.T) {
	a := snap("s1", t0, evidence.Payload{})
	b := snap("s2", t0.Add(time.Hour), evidence.Payload{})

	_, err := ComputeDrift(tenant, cloud, b, a)
	require.Error(t, err)

	var fe *fault.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, fault.InvalidSnapshot, fe.Code)
	assert.Equal(t, tenant, fe.TenantID)
	assert.Equal(t, map[string]string{"from_snapshot_id": "s2", "to_snapshot_id": "s1"}, fe.Details)
}

func TestEventsAreSealed(t *testing.T) {
	a := snap("s1", t0, evidence.Payload{evidence.TypeField: fields("f1")})
	b := snap("s2", t0.Add(time.Hour), evidence.Payload{evidence.TypeField: fields("f2")})

	events, err := ComputeDrift(tenant, cloud, a, b)
	require.NoError(t, err)
	for i := range events {
		assert.Equal(t, "drift_event/v1", events[i].HashVersion)
		require.NoError(t, evidence.Verify(&events[i]))
	}
}

func genIDs() gopter.Gen {
	return gen.SliceOf(gen.Identifier()).Map(func(ids []string) []string {
		seen := make(map[string]bool, len(ids))
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
		return out
	})
}

func shuffled(objs []evidence.Object, seed uint64) []evidence.Object {
	out := append([]evidence.Object(nil), objs...)
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func TestPermutationInvariance(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("reordered identical snapshots yield no events", prop.ForAll(
		func(ids []string, seed uint64) bool {
			objs := make([]evidence.Object, len(ids))
			for i, id := range ids {
				objs[i] = evidence.Field{ID: id, ContextIDs: []string{id + "-b", id + "-a"}}
			}
			a := snap("s1", t0, evidence.Payload{evidence.TypeField: objs})
			b := snap("s2", t0.Add(time.Hour), evidence.Payload{evidence.TypeField: shuffled(objs, seed)})
			events, err := ComputeDrift(tenant, cloud, a, b)
			return err == nil && len(events) == 0
		},
		genIDs(),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}

func TestDeterminism(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("diff twice gives identical events and hashes", prop.ForAll(
		func(before, after []string, seed uint64) bool {
			a := snap("s1", t0, evidence.Payload{evidence.TypeField: fields(before...)})
			b := snap("s2", t0.Add(time.Hour), evidence.Payload{evidence.TypeField: shuffled(fields(after...), seed)})

			first, err1 := ComputeDrift(tenant, cloud, a, b)
			second, err2 := ComputeDrift(tenant, cloud, a, b)
			if err1 != nil || err2 != nil || len(first) != len(second) {
				return false
			}
			for i := range first {
				if first[i].DriftEventID != second[i].DriftEventID ||
					first[i].CanonicalHash != second[i].CanonicalHash {
					return false
				}
				if first[i].Actor != "unknown" || first[i].ActorConfidence != "none" ||
					first[i].CompletenessPercentage != 100 {
					return false
				}
			}
			return true
		},
		genIDs(),
		genIDs(),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
