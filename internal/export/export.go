// Package export renders a tenant's evidence as a self-describing
// document that a third party can verify without trusting the store.
//
// Every record carries the exact canonical bytes its digest was computed
// over, so verification needs only SHA-256 and the canonicalization rules
// named in the document header.
package export

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/canonical"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/store"
)

const (
	Format        = "governance-evidence-export"
	FormatVersion = 1
	HashAlgorithm = "sha256"

	// Canonicalization summarizes the byte rules behind every digest.
	Canonicalization = "UTF-8 JSON; object keys sorted by code point; no insignificant whitespace; " +
		"strings NFC with only quote, backslash and control characters escaped; " +
		"floats rounded half-to-even to 6 digits with a decimal point and no exponent; " +
		"timestamps UTC with millisecond precision and Z suffix; arrays sorted by declared key"
)

// Kind names the record family inside a document.
type Kind string

const (
	KindSnapshot   Kind = "snapshot"
	KindDriftEvent Kind = "drift_event"
	KindMetricsRun Kind = "metrics_run"
	KindLedger     Kind = "ledger"
)

var kindRank = map[Kind]int{KindSnapshot: 0, KindDriftEvent: 1, KindMetricsRun: 2, KindLedger: 3}

// Record is one exported evidence record.
type Record struct {
	Kind          Kind            `json:"kind"`
	ID            string          `json:"id"`
	HashVersion   string          `json:"hash_version"`
	CanonicalHash string          `json:"canonical_hash"`
	Canonical     string          `json:"canonical"`
	Record        json.RawMessage `json:"record"`
}

// Document is a complete export for one tenant.
type Document struct {
	Format           string   `json:"format"`
	FormatVersion    int      `json:"format_version"`
	TenantID         string   `json:"tenant_id"`
	HashAlgorithm    string   `json:"hash_algorithm"`
	Canonicalization string   `json:"canonicalization"`
	Records          []Record `json:"records"`
}

// Build collects every stored record of tenantID. Each record is verified
// before it is exported; a record that fails verification aborts the
// export.
func Build(ctx context.Context, repo *store.Evidence, tenantID string) (*Document, error) {
	doc := &Document{
		Format:           Format,
		FormatVersion:    FormatVersion,
		TenantID:         tenantID,
		HashAlgorithm:    HashAlgorithm,
		Canonicalization: Canonicalization,
		Records:          []Record{},
	}

	snaps, err := repo.ListSnapshots(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("export snapshots: %w", err)
	}
	for _, s := range snaps {
		if err := doc.add(KindSnapshot, s.SnapshotID, s); err != nil {
			return nil, err
		}
	}

	events, err := repo.ListEvents(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("export events: %w", err)
	}
	for i := range events {
		if err := doc.add(KindDriftEvent, events[i].DriftEventID, &events[i]); err != nil {
			return nil, err
		}
	}

	runs, err := repo.ListRuns(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("export runs: %w", err)
	}
	for i := range runs {
		if err := doc.add(KindMetricsRun, runs[i].RunID, &runs[i]); err != nil {
			return nil, err
		}
	}

	l, err := repo.GetLedger(ctx, tenantID)
	switch {
	case fault.Is(err, fault.NotFound):
	case err != nil:
		return nil, fmt.Errorf("export ledger: %w", err)
	default:
		if err := doc.add(KindLedger, l.TenantID, l); err != nil {
			return nil, err
		}
	}

	slices.SortFunc(doc.Records, func(a, b Record) int {
		return cmp.Or(cmp.Compare(kindRank[a.Kind], kindRank[b.Kind]), cmp.Compare(a.ID, b.ID))
	})
	return doc, nil
}

func (d *Document) add(kind Kind, id string, r evidence.Record) error {
	if err := evidence.Verify(r); err != nil {
		return fault.Wrap(fault.HashVerificationFailed, err, "export %s %s", kind, id).WithTenant(d.TenantID)
	}
	data, err := evidence.CanonicalBytes(r)
	if err != nil {
		return fmt.Errorf("export %s %s: %w", kind, id, err)
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("export %s %s: %w", kind, id, err)
	}
	version, digest := r.Stamp()
	d.Records = append(d.Records, Record{
		Kind:          kind,
		ID:            id,
		HashVersion:   version,
		CanonicalHash: digest,
		Canonical:     string(data),
		Record:        raw,
	})
	return nil
}

// Encode writes the document as indented JSON.
func Encode(w io.Writer, d *Document) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// Decode reads a document and checks its header.
func Decode(r io.Reader) (*Document, error) {
	var d Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return nil, fault.Wrap(fault.InvalidArgument, err, "decode export document")
	}
	if d.Format != Format {
		return nil, fault.New(fault.InvalidArgument, "unsupported export format %q", d.Format)
	}
	if d.FormatVersion != FormatVersion {
		return nil, fault.New(fault.InvalidArgument, "unsupported export format_version %d", d.FormatVersion)
	}
	if d.HashAlgorithm != HashAlgorithm {
		return nil, fault.New(fault.InvalidArgument, "unsupported hash_algorithm %q", d.HashAlgorithm)
	}
	return &d, nil
}

// Check is the verification outcome of one record.
type Check struct {
	Kind Kind
	ID   string
	Err  error
}

// OK reports whether the record verified.
func (c Check) OK() bool { return c.Err == nil }

// Report collects per-record outcomes.
type Report struct {
	TenantID string
	Checks   []Check
}

// Failed returns the checks that did not verify.
func (r Report) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.OK() {
			out = append(out, c)
		}
	}
	return out
}

// Err returns the first failure, or nil when every record verified.
func (r Report) Err() error {
	for _, c := range r.Checks {
		if c.Err != nil {
			return c.Err
		}
	}
	return nil
}

// Verify checks every record of d using only the document itself.
//
// A record passes when sha256(canonical) equals canonical_hash, canonical
// is already in canonical form, the record belongs to d.TenantID, and the
// record JSON projects through its boundary to exactly canonical.
func Verify(d *Document) Report {
	rep := Report{TenantID: d.TenantID, Checks: make([]Check, 0, len(d.Records))}
	for _, rec := range d.Records {
		rep.Checks = append(rep.Checks, Check{Kind: rec.Kind, ID: rec.ID, Err: verifyRecord(d.TenantID, rec)})
	}
	return rep
}

func verifyRecord(tenantID string, rec Record) error {
	failed := func(format string, args ...any) *fault.Error {
		return fault.New(fault.HashVerificationFailed, format, args...).
			WithTenant(tenantID).
			With("kind", string(rec.Kind)).
			With("id", rec.ID)
	}

	if _, ok := evidence.Boundaries.Lookup(rec.HashVersion); !ok {
		return failed("unknown hash version %q", rec.HashVersion)
	}
	data := []byte(rec.Canonical)
	if got := canonical.DigestBytes(data); got != rec.CanonicalHash {
		return failed("digest mismatch").With("stored", rec.CanonicalHash).With("computed", got)
	}
	again, err := canonical.Canonicalize(data)
	if err != nil {
		return failed("canonical text does not parse: %v", err)
	}
	if !bytes.Equal(again, data) {
		return failed("canonical text is not in canonical form")
	}

	v, err := canonical.Parse(data)
	if err != nil {
		return failed("canonical text does not parse: %v", err)
	}
	obj, ok := v.(canonical.Object)
	if !ok {
		return failed("canonical text is not an object")
	}
	owner, _ := obj["tenant_id"].(canonical.String)
	if string(owner) != tenantID {
		return fault.New(fault.TenantIsolationViolation, "%s %s belongs to tenant %q", rec.Kind, rec.ID, string(owner)).
			WithTenant(tenantID)
	}

	typed, err := decodeRecord(rec.Kind, rec.Record)
	if err != nil {
		return failed("record JSON does not parse: %v", err)
	}
	if version, digest := typed.Stamp(); version != rec.HashVersion || digest != rec.CanonicalHash {
		return failed("record JSON carries a different hash stamp")
	}
	projected, err := evidence.CanonicalBytes(typed)
	if err != nil {
		return failed("record JSON does not fit %s: %v", rec.HashVersion, err)
	}
	if !bytes.Equal(projected, data) {
		return failed("record JSON does not match its canonical text")
	}
	return nil
}

// decodeRecord reads the record JSON of one document entry into its
// evidence type.
func decodeRecord(kind Kind, raw json.RawMessage) (evidence.Record, error) {
	var r evidence.Record
	switch kind {
	case KindSnapshot:
		r = &evidence.Snapshot{}
	case KindDriftEvent:
		r = &evidence.DriftEvent{}
	case KindMetricsRun:
		r = &evidence.MetricsRun{}
	case KindLedger:
		r = &evidence.Ledger{}
	default:
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Summary renders the document without digests, one block per record.
func Summary(w io.Writer, d *Document) error {
	if _, err := fmt.Fprintf(w, "format: %s/%d\ntenant: %s\nhash: %s\nrecords: %d\n",
		d.Format, d.FormatVersion, d.TenantID, d.HashAlgorithm, len(d.Records)); err != nil {
		return err
	}
	for _, rec := range d.Records {
		if _, err := fmt.Fprintf(w, "\n%s %s %s\n%s\n", rec.Kind, rec.ID, rec.HashVersion, rec.Canonical); err != nil {
			return err
		}
	}
	return nil
}
