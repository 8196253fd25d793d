package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/tenancy"
)

// DefaultListLimit caps the per-tenant event and run indexes.
const DefaultListLimit = 10000

// EvidenceOptions configures the repository.
type EvidenceOptions struct {
	// SnapshotTTL expires stored snapshots. 0 keeps them forever.
	SnapshotTTL time.Duration

	// ListLimit bounds the event and run indexes. 0 means DefaultListLimit.
	ListLimit int
}

// Evidence stores tenant-scoped evidence records on a KV.
//
// Every write takes a fully computed, sealed record. Every read checks
// the record's tenant and recomputes its hash before returning it.
type Evidence struct {
	kv   KV
	opts EvidenceOptions
}

// NewEvidence creates a repository over kv.
func NewEvidence(kv KV, opts EvidenceOptions) *Evidence {
	if opts.ListLimit <= 0 {
		opts.ListLimit = DefaultListLimit
	}
	return &Evidence{kv: kv, opts: opts}
}

// KV returns the underlying store.
func (e *Evidence) KV() KV { return e.kv }

func notFound(tenantID, what, id string) error {
	return fault.New(fault.NotFound, "%s %s not found", what, id).WithTenant(tenantID)
}

// load reads key into v, mapping ErrNotFound to a NOT_FOUND fault.
func (e *Evidence) load(ctx context.Context, k, tenantID, what, id string, v any) error {
	data, err := e.kv.Get(ctx, k)
	if errors.Is(err, ErrNotFound) {
		return notFound(tenantID, what, id)
	}
	if err != nil {
		return fmt.Errorf("read %s %s: %w", what, id, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fault.Wrap(fault.HashVerificationFailed, err, "decode stored %s %s", what, id).WithTenant(tenantID)
	}
	return nil
}

// checked enforces tenant ownership and hash integrity of a loaded record.
func checked(ctx context.Context, tenantID, recordTenant string, r evidence.Record) error {
	if err := tenancy.Check(ctx, tenantID, recordTenant); err != nil {
		return err
	}
	if err := evidence.Verify(r); err != nil {
		var fe *fault.Error
		if errors.As(err, &fe) && fe.TenantID == "" {
			fe.TenantID = tenantID
		}
		return err
	}
	return nil
}

// writeOnce creates k with the record's JSON. A second write with the
// same digest is a no-op; a different digest is an IMMUTABILITY_VIOLATION.
func (e *Evidence) writeOnce(ctx context.Context, k, tenantID, what, id string, r evidence.Record, ttl time.Duration) (bool, error) {
	if err := evidence.Verify(r); err != nil {
		return false, err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("encode %s %s: %w", what, id, err)
	}
	created, err := e.kv.Create(ctx, k, data, ttl)
	if err != nil {
		return false, fmt.Errorf("write %s %s: %w", what, id, err)
	}
	if created {
		return true, nil
	}

	existing, err := e.kv.Get(ctx, k)
	if err != nil {
		return false, fmt.Errorf("read %s %s: %w", what, id, err)
	}
	var stored struct {
		CanonicalHash string `json:"canonical_hash"`
	}
	if err := json.Unmarshal(existing, &stored); err != nil {
		return false, fmt.Errorf("decode stored %s %s: %w", what, id, err)
	}
	if _, digest := r.Stamp(); stored.CanonicalHash != digest {
		return false, fault.New(fault.ImmutabilityViolation, "%s %s is already stored with different content", what, id).
			WithTenant(tenantID).
			With("stored_hash", stored.CanonicalHash).
			With("attempted_hash", digest)
	}
	return false, nil
}

// PutSnapshot stores a sealed snapshot once. It reports whether the
// snapshot was new.
func (e *Evidence) PutSnapshot(ctx context.Context, s *evidence.Snapshot) (bool, error) {
	if err := s.Validate(); err != nil {
		return false, err
	}
	if err := tenancy.Check(ctx, s.TenantID, s.TenantID); err != nil {
		return false, err
	}
	k, err := key(s.TenantID, kindSnapshot, s.SnapshotID)
	if err != nil {
		return false, err
	}
	return e.writeOnce(ctx, k, s.TenantID, "snapshot", s.SnapshotID, s, e.opts.SnapshotTTL)
}

// GetSnapshot returns a verified snapshot.
func (e *Evidence) GetSnapshot(ctx context.Context, tenantID, snapshotID string) (*evidence.Snapshot, error) {
	k, err := key(tenantID, kindSnapshot, snapshotID)
	if err != nil {
		return nil, err
	}
	var s evidence.Snapshot
	if err := e.load(ctx, k, tenantID, "snapshot", snapshotID, &s); err != nil {
		return nil, err
	}
	if err := checked(ctx, tenantID, s.TenantID, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSnapshots returns every live snapshot of tenantID ordered by
// captured_at, then snapshot_id.
func (e *Evidence) ListSnapshots(ctx context.Context, tenantID string) ([]*evidence.Snapshot, error) {
	prefix, err := key(tenantID, kindSnapshot)
	if err != nil {
		return nil, err
	}
	prefix += "/"
	keys, err := e.kv.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := make([]*evidence.Snapshot, 0, len(keys))
	for _, k := range keys {
		s, err := e.GetSnapshot(ctx, tenantID, strings.TrimPrefix(k, prefix))
		if fault.Is(err, fault.NotFound) {
			// expired between listing and reading
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *evidence.Snapshot) int {
		if c := a.CapturedAt.Compare(b.CapturedAt); c != 0 {
			return c
		}
		return strings.Compare(a.SnapshotID, b.SnapshotID)
	})
	return out, nil
}

// SetLatest points the cloud's latest marker at s unless a snapshot
// captured later already holds it.
func (e *Evidence) SetLatest(ctx context.Context, s *evidence.Snapshot) error {
	if err := tenancy.Check(ctx, s.TenantID, s.TenantID); err != nil {
		return err
	}
	k, err := key(s.TenantID, kindLatest, s.CloudID)
	if err != nil {
		return err
	}
	current, err := e.Latest(ctx, s.TenantID, s.CloudID)
	switch {
	case fault.Is(err, fault.NotFound):
	case err != nil:
		return err
	case current.CapturedAt.After(s.CapturedAt):
		return nil
	}
	if err := e.kv.Set(ctx, k, []byte(s.SnapshotID)); err != nil {
		return fmt.Errorf("write latest marker: %w", err)
	}
	return nil
}

// Latest returns the most recently captured snapshot of the cloud, or a
// NOT_FOUND fault when there is none.
func (e *Evidence) Latest(ctx context.Context, tenantID, cloudID string) (*evidence.Snapshot, error) {
	k, err := key(tenantID, kindLatest, cloudID)
	if err != nil {
		return nil, err
	}
	id, err := e.kv.Get(ctx, k)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound(tenantID, "latest snapshot of cloud", cloudID)
	}
	if err != nil {
		return nil, fmt.Errorf("read latest marker: %w", err)
	}
	return e.GetSnapshot(ctx, tenantID, string(id))
}

// Diff records one completed drift detection run: the pair it compared
// and the ids of the events it produced. A snapshot has drift history
// exactly when a diff ends at it.
type Diff struct {
	TenantID       string    `json:"tenant_id"`
	CloudID        string    `json:"cloud_id"`
	PairKey        string    `json:"pair_key"`
	FromSnapshotID string    `json:"from_snapshot_id"`
	ToSnapshotID   string    `json:"to_snapshot_id"`
	ToCapturedAt   time.Time `json:"to_captured_at"`
	EventIDs       []string  `json:"event_ids"`
	StoredAt       time.Time `json:"stored_at"`
}

// GetDiff returns the diff ending at snapshotID, or a NOT_FOUND fault.
func (e *Evidence) GetDiff(ctx context.Context, tenantID, snapshotID string) (*Diff, error) {
	if err := tenancy.Check(ctx, tenantID, tenantID); err != nil {
		return nil, err
	}
	k, err := key(tenantID, kindDiff, snapshotID)
	if err != nil {
		return nil, err
	}
	var d Diff
	if err := e.load(ctx, k, tenantID, "diff of snapshot", snapshotID, &d); err != nil {
		return nil, err
	}
	if err := tenancy.Check(ctx, tenantID, d.TenantID); err != nil {
		return nil, err
	}
	return &d, nil
}

// PutDiff stores the complete event set of d's snapshot pair, then d
// itself. A diff that was already stored is skipped and false is
// returned. Events are written and indexed before the diff so an
// interrupted write is retried in full.
func (e *Evidence) PutDiff(ctx context.Context, d *Diff, events []evidence.DriftEvent) (bool, error) {
	tenantID := d.TenantID
	if err := tenancy.Check(ctx, tenantID, tenantID); err != nil {
		return false, err
	}
	diffKey, err := key(tenantID, kindDiff, d.ToSnapshotID)
	if err != nil {
		return false, err
	}
	_, err = e.kv.Get(ctx, diffKey)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, ErrNotFound):
		return false, fmt.Errorf("read diff of snapshot %s: %w", d.ToSnapshotID, err)
	}

	ids := make([]string, 0, len(events))
	for _, ev := range events {
		if err := tenancy.Check(ctx, tenantID, ev.TenantID); err != nil {
			return false, err
		}
		if ev.CloudID != d.CloudID {
			return false, fault.New(fault.InvalidArgument, "drift event %s belongs to cloud %s", ev.DriftEventID, ev.CloudID).
				WithTenant(tenantID)
		}
		if err := evidence.Verify(&ev); err != nil {
			return false, err
		}
		ids = append(ids, ev.DriftEventID)
	}

	indexKey, err := key(tenantID, kindEvents)
	if err != nil {
		return false, err
	}
	at := d.StoredAt.UTC()
	for _, ev := range events {
		ev.StoredAt = &at
		k, err := key(tenantID, kindEvent, ev.DriftEventID)
		if err != nil {
			return false, err
		}
		if _, err := e.writeOnce(ctx, k, tenantID, "drift event", ev.DriftEventID, &ev, 0); err != nil {
			return false, err
		}
		// pushed even for an existing event; index drops repeats
		if err := e.kv.PushBounded(ctx, indexKey, []byte(ev.DriftEventID), e.opts.ListLimit); err != nil {
			return false, fmt.Errorf("index drift event: %w", err)
		}
	}

	rec := *d
	rec.EventIDs = ids
	rec.StoredAt = at
	rec.ToCapturedAt = d.ToCapturedAt.UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("encode diff of snapshot %s: %w", d.ToSnapshotID, err)
	}
	created, err := e.kv.Create(ctx, diffKey, data, 0)
	if err != nil {
		return false, fmt.Errorf("write diff of snapshot %s: %w", d.ToSnapshotID, err)
	}
	return created, nil
}

// DiffEvents loads the events a diff produced, in diff order.
func (e *Evidence) DiffEvents(ctx context.Context, d *Diff) ([]evidence.DriftEvent, error) {
	out := make([]evidence.DriftEvent, 0, len(d.EventIDs))
	for _, id := range d.EventIDs {
		ev, err := e.GetEvent(ctx, d.TenantID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, nil
}

// WindowEvents returns every stored drift event of the cloud whose diff
// ends inside w, ordered by capture and then diff order. It reads the
// diffs rather than the bounded index, so nothing inside the window is
// dropped.
func (e *Evidence) WindowEvents(ctx context.Context, tenantID, cloudID string, w evidence.Window) ([]evidence.DriftEvent, error) {
	if err := tenancy.Check(ctx, tenantID, tenantID); err != nil {
		return nil, err
	}
	prefix, err := key(tenantID, kindDiff)
	if err != nil {
		return nil, err
	}
	prefix += "/"
	keys, err := e.kv.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list diffs: %w", err)
	}
	diffs := make([]*Diff, 0, len(keys))
	for _, k := range keys {
		d, err := e.GetDiff(ctx, tenantID, strings.TrimPrefix(k, prefix))
		if err != nil {
			return nil, err
		}
		if d.CloudID != cloudID || d.ToCapturedAt.Before(w.Start) || !d.ToCapturedAt.Before(w.End) {
			continue
		}
		diffs = append(diffs, d)
	}
	slices.SortFunc(diffs, func(a, b *Diff) int {
		if c := a.ToCapturedAt.Compare(b.ToCapturedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ToSnapshotID, b.ToSnapshotID)
	})
	out := []evidence.DriftEvent{}
	for _, d := range diffs {
		events, err := e.DiffEvents(ctx, d)
		if err != nil {
			return nil, err
		}
		out = append(out, events...)
	}
	return out, nil
}

// GetEvent returns a verified drift event.
func (e *Evidence) GetEvent(ctx context.Context, tenantID, eventID string) (*evidence.DriftEvent, error) {
	k, err := key(tenantID, kindEvent, eventID)
	if err != nil {
		return nil, err
	}
	var ev evidence.DriftEvent
	if err := e.load(ctx, k, tenantID, "drift event", eventID, &ev); err != nil {
		return nil, err
	}
	if err := checked(ctx, tenantID, ev.TenantID, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListEvents returns the indexed drift events of tenantID in index order.
// The result is never nil. The index is bounded by ListLimit; metrics read
// WindowEvents instead.
func (e *Evidence) ListEvents(ctx context.Context, tenantID string) ([]evidence.DriftEvent, error) {
	ids, err := e.index(ctx, tenantID, kindEvents)
	if err != nil {
		return nil, err
	}
	out := make([]evidence.DriftEvent, 0, len(ids))
	for _, id := range ids {
		ev, err := e.GetEvent(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, nil
}

// index reads a bounded id list, dropping repeats.
func (e *Evidence) index(ctx context.Context, tenantID, kind string) ([]string, error) {
	if err := tenancy.Check(ctx, tenantID, tenantID); err != nil {
		return nil, err
	}
	k, err := key(tenantID, kind)
	if err != nil {
		return nil, err
	}
	raw, err := e.kv.Range(ctx, k)
	if err != nil {
		return nil, fmt.Errorf("read %s index: %w", kind, err)
	}
	seen := mapset.NewThreadUnsafeSet[string]()
	ids := make([]string, 0, len(raw))
	for _, r := range raw {
		if seen.Add(string(r)) {
			ids = append(ids, string(r))
		}
	}
	return ids, nil
}

// PutRun stores a sealed metrics run once and indexes it. Re-running the
// same inputs yields the same run id and digest and is a no-op.
func (e *Evidence) PutRun(ctx context.Context, run *evidence.MetricsRun) (bool, error) {
	if err := tenancy.Check(ctx, run.TenantID, run.TenantID); err != nil {
		return false, err
	}
	k, err := key(run.TenantID, kindRun, run.RunID)
	if err != nil {
		return false, err
	}
	created, err := e.writeOnce(ctx, k, run.TenantID, "metrics run", run.RunID, run, 0)
	if err != nil || !created {
		return false, err
	}
	indexKey, err := key(run.TenantID, kindRuns)
	if err != nil {
		return false, err
	}
	if err := e.kv.PushBounded(ctx, indexKey, []byte(run.RunID), e.opts.ListLimit); err != nil {
		return false, fmt.Errorf("index metrics run: %w", err)
	}
	return true, nil
}

// GetRun returns a verified metrics run.
func (e *Evidence) GetRun(ctx context.Context, tenantID, runID string) (*evidence.MetricsRun, error) {
	k, err := key(tenantID, kindRun, runID)
	if err != nil {
		return nil, err
	}
	var run evidence.MetricsRun
	if err := e.load(ctx, k, tenantID, "metrics run", runID, &run); err != nil {
		return nil, err
	}
	if err := checked(ctx, tenantID, run.TenantID, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the indexed metrics runs of tenantID in index order.
func (e *Evidence) ListRuns(ctx context.Context, tenantID string) ([]evidence.MetricsRun, error) {
	ids, err := e.index(ctx, tenantID, kindRuns)
	if err != nil {
		return nil, err
	}
	out := make([]evidence.MetricsRun, 0, len(ids))
	for _, id := range ids {
		run, err := e.GetRun(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, nil
}

// GetLedger returns the tenant's stored ledger without verifying it; the
// ledger service verifies on read.
func (e *Evidence) GetLedger(ctx context.Context, tenantID string) (*evidence.Ledger, error) {
	k, err := key(tenantID, kindLedger)
	if err != nil {
		return nil, err
	}
	var l evidence.Ledger
	if err := e.load(ctx, k, tenantID, "ledger", tenantID, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// PutLedger replaces the tenant's ledger row.
func (e *Evidence) PutLedger(ctx context.Context, l *evidence.Ledger) error {
	if err := tenancy.Check(ctx, l.TenantID, l.TenantID); err != nil {
		return err
	}
	if err := evidence.Verify(l); err != nil {
		return err
	}
	k, err := key(l.TenantID, kindLedger)
	if err != nil {
		return err
	}
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := e.kv.Set(ctx, k, data); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// EraseTenant deletes every record of tenantID, including its ledger.
func (e *Evidence) EraseTenant(ctx context.Context, tenantID string) error {
	if err := tenancy.Check(ctx, tenantID, tenantID); err != nil {
		return err
	}
	prefix, err := TenantPrefix(tenantID)
	if err != nil {
		return err
	}
	if err := e.kv.DeletePrefix(ctx, prefix); err != nil {
		return fmt.Errorf("erase tenant: %w", err)
	}
	return nil
}
