// Package ledger maintains each tenant's continuity ledger: the earliest
// known instant of install, snapshot, drift and metrics evidence.
//
// Fields only move backward in time. A first-occurrence signal may fill
// an unknown field or move a known one earlier; a later value is an
// IMMUTABILITY_VIOLATION and leaves the ledger untouched.
package ledger

import (
	"time"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/canonical"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
)

// Apply applies one first-occurrence signal to l and returns the
// resulting ledger and whether anything changed.
//
// l may be nil when the tenant has no ledger yet. l itself is never
// modified; the returned ledger is a sealed copy. updatedAt is
// bookkeeping and only recorded when the ledger changed.
func Apply(l *evidence.Ledger, tenantID string, kind evidence.EventKind, observedAt, updatedAt time.Time) (*evidence.Ledger, bool, error) {
	if tenantID == "" {
		return l, false, fault.New(fault.InvalidArgument, "tenant id is empty")
	}
	if !kind.Valid() {
		return l, false, fault.New(fault.InvalidArgument, "unknown ledger event kind %q", kind).WithTenant(tenantID)
	}
	if observedAt.IsZero() {
		return l, false, fault.New(fault.InvalidArgument, "%s has no observed_at", kind).WithTenant(tenantID)
	}

	var next *evidence.Ledger
	if l == nil {
		next = evidence.NewLedger(tenantID)
	} else {
		if l.TenantID != tenantID {
			return l, false, fault.New(fault.TenantIsolationViolation, "ledger of %s applied for another tenant", l.TenantID).
				WithTenant(tenantID)
		}
		next = l.Clone()
	}

	current := next.Field(kind)
	observed := evidence.At(observedAt)
	if current.Known() {
		cur, _ := current.Time()
		obs, _ := observed.Time()
		switch {
		case obs.Equal(cur):
			return l, false, nil
		case obs.After(cur):
			return l, false, fault.New(fault.ImmutabilityViolation, "%s cannot move later", kind).
				WithTenant(tenantID).
				With("current", current.String()).
				With("attempted", observed.String())
		}
	}

	next.SetField(kind, observed)
	next.UpdatedAt = updatedAt.UTC()
	if err := next.Seal(); err != nil {
		return l, false, fault.Wrap(fault.HashNotComputed, err, "seal ledger").WithTenant(tenantID)
	}
	return next, true, nil
}

// IsCandidate reports whether observedAt would change the ledger's field
// for kind: the field is unknown or observedAt is earlier. Callers use it
// to emit only genuine first-occurrence signals.
func IsCandidate(l *evidence.Ledger, kind evidence.EventKind, observedAt time.Time) bool {
	if l == nil {
		return true
	}
	cur, ok := l.Field(kind).Time()
	if !ok {
		return true
	}
	obs, _ := evidence.At(observedAt).Time()
	return obs.Before(cur)
}

// Describe renders the ledger fields in field order, for logs and text
// output.
func Describe(l *evidence.Ledger) []string {
	lines := make([]string, 0, len(evidence.EventKinds)+1)
	for _, k := range evidence.EventKinds {
		lines = append(lines, string(k)+"="+l.Field(k).String())
	}
	return append(lines, "earliest="+l.EarliestGovernanceEvidenceAt().String())
}

// formatTime is the canonical rendering used in log attributes.
func formatTime(t time.Time) string { return canonical.FormatTime(t) }
