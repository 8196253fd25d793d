package testutil

import (
	"time"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
)

// SnapshotBuilder assembles snapshots for tests.
type SnapshotBuilder struct {
	s evidence.Snapshot
}

// NewSnapshot starts a snapshot with an empty payload.
func NewSnapshot(tenantID, cloudID, snapshotID string, capturedAt time.Time) *SnapshotBuilder {
	return &SnapshotBuilder{s: evidence.Snapshot{
		SnapshotID: snapshotID,
		TenantID:   tenantID,
		CloudID:    cloudID,
		CapturedAt: capturedAt.UTC(),
		Payload:    evidence.Payload{},
	}}
}

// With captures objs under t. Calling it with no objects captures an
// empty dataset.
func (b *SnapshotBuilder) With(t evidence.ObjectType, objs ...evidence.Object) *SnapshotBuilder {
	b.s.Payload[t] = append(b.s.Payload[t], objs...)
	if b.s.Payload[t] == nil {
		b.s.Payload[t] = []evidence.Object{}
	}
	return b
}

// Fields captures one field per id.
func (b *SnapshotBuilder) Fields(ids ...string) *SnapshotBuilder {
	objs := make([]evidence.Object, 0, len(ids))
	for _, id := range ids {
		objs = append(objs, evidence.Field{ID: id, Name: "Field " + id, FieldType: "text"})
	}
	return b.With(evidence.TypeField, objs...)
}

// Missing declares a coverage gap.
func (b *SnapshotBuilder) Missing(dataset string, status evidence.CoverageStatus, reason string) *SnapshotBuilder {
	b.s.MissingData = append(b.s.MissingData, evidence.MissingData{
		DatasetName:    dataset,
		CoverageStatus: status,
		ReasonCode:     reason,
	})
	return b
}

// Installed marks the capture as carrying the capture side's install
// detection at at.
func (b *SnapshotBuilder) Installed(at time.Time) *SnapshotBuilder {
	at = at.UTC()
	b.s.InstallDetectedAt = &at
	return b
}

// Build returns the snapshot unsealed.
func (b *SnapshotBuilder) Build() *evidence.Snapshot {
	s := b.s
	s.Payload = make(evidence.Payload, len(b.s.Payload))
	for t, objs := range b.s.Payload {
		s.Payload[t] = append([]evidence.Object{}, objs...)
	}
	s.MissingData = append([]evidence.MissingData(nil), b.s.MissingData...)
	return &s
}

// Sealed returns the snapshot with its hash computed. It panics on an
// invalid snapshot.
func (b *SnapshotBuilder) Sealed() *evidence.Snapshot {
	s := b.Build()
	if err := s.Seal(); err != nil {
		panic(err)
	}
	return s
}
