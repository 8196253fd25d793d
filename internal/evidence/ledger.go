package evidence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/canonical"
)

// EventKind is a first-occurrence signal the ledger accepts.
type EventKind string

const (
	KindInstallDetected  EventKind = "install_detected"
	KindSnapshotObserved EventKind = "snapshot_observed"
	KindDriftObserved    EventKind = "drift_observed"
	KindMetricsObserved  EventKind = "metrics_observed"
)

// EventKinds lists every ledger event kind in field order.
var EventKinds = []EventKind{
	KindInstallDetected,
	KindSnapshotObserved,
	KindDriftObserved,
	KindMetricsObserved,
}

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case KindInstallDetected, KindSnapshotObserved, KindDriftObserved, KindMetricsObserved:
		return true
	}
	return false
}

// NotAvailableText is the sentinel for an unknown instant.
const NotAvailableText = "NOT_AVAILABLE"

// Instant is a timestamp or the NOT_AVAILABLE sentinel. The zero value is
// NOT_AVAILABLE.
type Instant struct {
	at    time.Time
	known bool
}

// At returns a known instant truncated to canonical millisecond precision.
func At(t time.Time) Instant {
	return Instant{at: t.UTC().Truncate(time.Millisecond), known: true}
}

// Unknown returns the NOT_AVAILABLE instant.
func Unknown() Instant { return Instant{} }

// Known reports whether the instant holds a timestamp.
func (i Instant) Known() bool { return i.known }

// Time returns the timestamp and whether it is known.
func (i Instant) Time() (time.Time, bool) { return i.at, i.known }

func (i Instant) String() string {
	if !i.known {
		return NotAvailableText
	}
	return canonical.FormatTime(i.at)
}

func (i Instant) canonical() canonical.Value {
	if !i.known {
		return canonical.String(NotAvailableText)
	}
	return canonical.Timestamp(i.at)
}

func (i Instant) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.String())
}

func (i *Instant) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == NotAvailableText {
		*i = Unknown()
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("instant: %w", err)
	}
	*i = At(t)
	return nil
}

// Ledger is one tenant's record of earliest known evidence.
type Ledger struct {
	TenantID                string    `json:"tenant_id"`
	FirstInstallDetectedAt  Instant   `json:"first_install_detected_at"`
	FirstSnapshotAt         Instant   `json:"first_snapshot_at"`
	FirstDriftDetectedAt    Instant   `json:"first_drift_detected_at"`
	FirstMetricsAvailableAt Instant   `json:"first_metrics_available_at"`
	UpdatedAt               time.Time `json:"updated_at"`
	HashVersion             string    `json:"hash_version,omitempty"`
	CanonicalHash           string    `json:"canonical_hash,omitempty"`
}

// NewLedger returns an empty ledger for tenant with every field unknown.
func NewLedger(tenantID string) *Ledger {
	return &Ledger{TenantID: tenantID}
}

// Field returns the instant recorded for kind.
func (l *Ledger) Field(kind EventKind) Instant {
	if p := l.slot(kind); p != nil {
		return *p
	}
	return Unknown()
}

// SetField records v for kind. Callers enforce ordering rules.
func (l *Ledger) SetField(kind EventKind, v Instant) {
	if p := l.slot(kind); p != nil {
		*p = v
	}
}

func (l *Ledger) slot(kind EventKind) *Instant {
	switch kind {
	case KindInstallDetected:
		return &l.FirstInstallDetectedAt
	case KindSnapshotObserved:
		return &l.FirstSnapshotAt
	case KindDriftObserved:
		return &l.FirstDriftDetectedAt
	case KindMetricsObserved:
		return &l.FirstMetricsAvailableAt
	}
	return nil
}

// EarliestGovernanceEvidenceAt is the minimum of the populated fields,
// derived on every call.
func (l *Ledger) EarliestGovernanceEvidenceAt() Instant {
	earliest := Unknown()
	for _, k := range EventKinds {
		v := l.Field(k)
		if !v.known {
			continue
		}
		if !earliest.known || v.at.Before(earliest.at) {
			earliest = v
		}
	}
	return earliest
}

// CanonicalRecord returns the full canonical form of the ledger.
func (l *Ledger) CanonicalRecord() (canonical.Object, error) {
	return canonical.Object{
		"tenant_id":                  canonical.String(l.TenantID),
		"first_install_detected_at":  l.FirstInstallDetectedAt.canonical(),
		"first_snapshot_at":          l.FirstSnapshotAt.canonical(),
		"first_drift_detected_at":    l.FirstDriftDetectedAt.canonical(),
		"first_metrics_available_at": l.FirstMetricsAvailableAt.canonical(),
		"updated_at":                 canonical.Timestamp(l.UpdatedAt),
		"hash_version":               canonical.String(l.HashVersion),
		"canonical_hash":             canonical.String(l.CanonicalHash),
	}, nil
}

// Stamp returns the stored hash version and digest.
func (l *Ledger) Stamp() (string, string) { return l.HashVersion, l.CanonicalHash }

// Seal computes and stores the ledger digest under the current boundary.
func (l *Ledger) Seal() error {
	version, digest, err := seal(LedgerBoundary, l)
	if err != nil {
		return err
	}
	l.HashVersion, l.CanonicalHash = version, digest
	return nil
}

// Clone returns a copy that can be mutated independently.
func (l *Ledger) Clone() *Ledger {
	c := *l
	return &c
}

// LedgerView is the read shape of a ledger, with the derived earliest
// instant filled in.
type LedgerView struct {
	*Ledger
	EarliestGovernanceEvidenceAt Instant `json:"earliest_governance_evidence_at"`
}

// View returns the ledger with its derived field.
func (l *Ledger) View() LedgerView {
	return LedgerView{Ledger: l, EarliestGovernanceEvidenceAt: l.EarliestGovernanceEvidenceAt()}
}
