// Package drift diffs two snapshots into classified, ordered change events.
package drift

import (
	"bytes"
	"cmp"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/canonical"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
)

// ComputeDrift compares snapshot a (earlier) with snapshot b (later) for
// one tenant and cloud.
//
// Events are sorted by (object_type, object_id, change_type) and sealed.
// On error the returned slice is empty, never nil, and no partial result
// is produced.
func ComputeDrift(tenantID, cloudID string, a, b *evidence.Snapshot) ([]evidence.DriftEvent, error) {
	if err := checkPair(tenantID, cloudID, a, b); err != nil {
		return []evidence.DriftEvent{}, err
	}

	d := &differ{tenantID: tenantID, cloudID: cloudID, a: a, b: b}
	for _, t := range evidence.ConfigTypes {
		// A dataset missing on either side is a coverage change, not a
		// removal. The scope family reports it.
		if !a.Payload.Has(t) || !b.Payload.Has(t) {
			continue
		}
		if err := d.diffType(t); err != nil {
			return []evidence.DriftEvent{}, err
		}
	}
	if err := d.diffScope(); err != nil {
		return []evidence.DriftEvent{}, err
	}

	SortEvents(d.events)
	for i := range d.events {
		if err := d.events[i].Seal(); err != nil {
			return []evidence.DriftEvent{}, fault.Wrap(fault.InvalidSnapshot, err, "seal drift event").
				WithTenant(tenantID)
		}
	}
	if d.events == nil {
		d.events = []evidence.DriftEvent{}
	}
	return d.events, nil
}

// SortEvents orders events by (object_type, object_id, change_type).
func SortEvents(events []evidence.DriftEvent) {
	slices.SortFunc(events, func(x, y evidence.DriftEvent) int {
		return cmp.Or(
			cmp.Compare(x.ObjectType, y.ObjectType),
			cmp.Compare(x.ObjectID, y.ObjectID),
			cmp.Compare(x.ChangeType, y.ChangeType),
		)
	})
}

func checkPair(tenantID, cloudID string, a, b *evidence.Snapshot) error {
	invalid := func(format string, args ...any) *fault.Error {
		return fault.New(fault.InvalidSnapshot, format, args...).WithTenant(tenantID)
	}
	if a == nil {
		return invalid("snapshot a is missing")
	}
	if b == nil {
		return invalid("snapshot b is missing")
	}
	if err := a.Validate(); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	for _, s := range []*evidence.Snapshot{a, b} {
		if s.TenantID != tenantID {
			return invalid("snapshot %s belongs to another tenant", s.SnapshotID)
		}
		if s.CloudID != cloudID {
			return invalid("snapshot %s belongs to cloud %s, not %s", s.SnapshotID, s.CloudID, cloudID)
		}
	}
	if b.CapturedAt.Before(a.CapturedAt) {
		return invalid("snapshot %s was captured before %s", b.SnapshotID, a.SnapshotID).
			With("from_snapshot_id", a.SnapshotID).
			With("to_snapshot_id", b.SnapshotID)
	}
	return nil
}

type differ struct {
	tenantID string
	cloudID  string
	a, b     *evidence.Snapshot
	events   []evidence.DriftEvent
}

func (d *differ) diffType(t evidence.ObjectType) error {
	before := d.a.Payload.Index(t)
	after := d.b.Payload.Index(t)

	idsA := mapset.NewThreadUnsafeSetFromMapKeys(before)
	idsB := mapset.NewThreadUnsafeSetFromMapKeys(after)

	for _, id := range mapset.Sorted(idsB.Difference(idsA)) {
		if err := d.emit(t, id, evidence.ChangeAdded, nil, after[id].Canonical(), nil); err != nil {
			return err
		}
	}
	for _, id := range mapset.Sorted(idsA.Difference(idsB)) {
		if err := d.emit(t, id, evidence.ChangeRemoved, before[id].Canonical(), nil, nil); err != nil {
			return err
		}
	}
	for _, id := range mapset.Sorted(idsA.Intersect(idsB)) {
		x, y := before[id].Canonical(), after[id].Canonical()
		same, err := equalCanonical(x, y)
		if err != nil {
			return fault.Wrap(fault.InvalidSnapshot, err, "canonicalize %s %s", t, id).WithTenant(d.tenantID)
		}
		if same {
			continue
		}
		if err := d.emit(t, id, evidence.ChangeModified, x, y, nil); err != nil {
			return err
		}
	}
	return nil
}

// diffScope emits one DATA_VISIBILITY_CHANGE event per dataset whose
// effective coverage status differs between the two snapshots.
func (d *differ) diffScope() error {
	datasets := mapset.NewThreadUnsafeSet(d.a.Datasets()...)
	datasets.Append(d.b.Datasets()...)

	for _, ds := range mapset.Sorted(datasets) {
		x, y := d.a.Coverage(ds), d.b.Coverage(ds)
		if x.CoverageStatus == y.CoverageStatus {
			continue
		}
		reasons := mapset.NewThreadUnsafeSet[string]()
		for _, r := range []string{x.ReasonCode, y.ReasonCode} {
			if r != "" {
				reasons.Add(r)
			}
		}
		ref := &evidence.MissingDataReference{
			DatasetKeys: []string{ds},
			ReasonCodes: mapset.Sorted(reasons),
		}
		if err := d.emit(evidence.TypeScope, ds, evidence.ChangeModified, scopeState(x), scopeState(y), ref); err != nil {
			return err
		}
	}
	return nil
}

func scopeState(m evidence.MissingData) canonical.Object {
	return canonical.Object{
		"coverage_status": canonical.String(m.CoverageStatus),
		"reason_code":     canonical.String(m.ReasonCode),
		"retry_count":     canonical.Int(m.RetryCount),
	}
}

func (d *differ) emit(t evidence.ObjectType, id string, change evidence.ChangeType, before, after canonical.Value, ref *evidence.MissingDataReference) error {
	cls, ok := Classify(t, change)
	if !ok {
		return fault.New(fault.InvalidSnapshot, "no classification for %s %s", t, change).WithTenant(d.tenantID)
	}
	beforeState, err := evidence.EncodeState(before)
	if err != nil {
		return fault.Wrap(fault.InvalidSnapshot, err, "encode before state of %s %s", t, id)
	}
	afterState, err := evidence.EncodeState(after)
	if err != nil {
		return fault.Wrap(fault.InvalidSnapshot, err, "encode after state of %s %s", t, id)
	}
	d.events = append(d.events, evidence.DriftEvent{
		DriftEventID:           evidence.DriftEventID(d.tenantID, d.cloudID, d.a.SnapshotID, d.b.SnapshotID, t, id, change),
		TenantID:               d.tenantID,
		CloudID:                d.cloudID,
		FromSnapshotID:         d.a.SnapshotID,
		ToSnapshotID:           d.b.SnapshotID,
		FromCapturedAt:         d.a.CapturedAt,
		ToCapturedAt:           d.b.CapturedAt,
		ObjectType:             t,
		ObjectID:               id,
		ChangeType:             change,
		Classification:         cls,
		BeforeState:            beforeState,
		AfterState:             afterState,
		MissingDataReference:   ref,
		Actor:                  evidence.ActorUnknown,
		ActorConfidence:        evidence.ActorConfidenceNone,
		CompletenessPercentage: evidence.EventCompleteness,
	})
	return nil
}

func equalCanonical(x, y canonical.Value) (bool, error) {
	bx, err := canonical.Marshal(x)
	if err != nil {
		return false, err
	}
	by, err := canonical.Marshal(y)
	if err != nil {
		return false, err
	}
	return bytes.Equal(bx, by), nil
}
