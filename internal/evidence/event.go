package evidence

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/canonical"
)

// ChangeType is the kind of difference an event records.
type ChangeType string

const (
	ChangeAdded    ChangeType = "ADDED"
	ChangeModified ChangeType = "MODIFIED"
	ChangeRemoved  ChangeType = "REMOVED"
)

// Classification groups change events into families.
type Classification string

const (
	ClassStructural           Classification = "STRUCTURAL"
	ClassConfigChange         Classification = "CONFIG_CHANGE"
	ClassDataVisibilityChange Classification = "DATA_VISIBILITY_CHANGE"
)

// Attribution constants. Drift events never name an actor.
const (
	ActorUnknown        = "unknown"
	ActorConfidenceNone = "none"
	EventCompleteness   = 100
)

// MissingDataReference summarizes the datasets behind a scope event.
type MissingDataReference struct {
	DatasetKeys []string `json:"dataset_keys"`
	ReasonCodes []string `json:"reason_codes"`
}

// DriftEvent is one classified difference between two snapshots.
//
// BeforeState and AfterState hold canonical JSON of the object state, or
// are empty when that side does not exist.
type DriftEvent struct {
	DriftEventID           string                `json:"drift_event_id"`
	TenantID               string                `json:"tenant_id"`
	CloudID                string                `json:"cloud_id"`
	FromSnapshotID         string                `json:"from_snapshot_id"`
	ToSnapshotID           string                `json:"to_snapshot_id"`
	FromCapturedAt         time.Time             `json:"from_captured_at"`
	ToCapturedAt           time.Time             `json:"to_captured_at"`
	ObjectType             ObjectType            `json:"object_type"`
	ObjectID               string                `json:"object_id"`
	ChangeType             ChangeType            `json:"change_type"`
	Classification         Classification        `json:"classification"`
	BeforeState            json.RawMessage       `json:"before_state"`
	AfterState             json.RawMessage       `json:"after_state"`
	MissingDataReference   *MissingDataReference `json:"missing_data_reference"`
	Actor                  string                `json:"actor"`
	ActorConfidence        string                `json:"actor_confidence"`
	CompletenessPercentage int                   `json:"completeness_percentage"`
	HashVersion            string                `json:"hash_version,omitempty"`
	CanonicalHash          string                `json:"canonical_hash,omitempty"`
	StoredAt               *time.Time            `json:"stored_at,omitempty"`
}

var jsonNull = []byte("null")

// stateValue parses a stored state. Empty and JSON null are both absent.
func stateValue(raw json.RawMessage) (canonical.Value, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
		return canonical.Null{}, nil
	}
	return canonical.Parse(raw)
}

// HasBefore reports whether the event carries a before state.
func (e *DriftEvent) HasBefore() bool {
	return len(e.BeforeState) > 0 && !bytes.Equal(e.BeforeState, jsonNull)
}

// HasAfter reports whether the event carries an after state.
func (e *DriftEvent) HasAfter() bool {
	return len(e.AfterState) > 0 && !bytes.Equal(e.AfterState, jsonNull)
}

func (r *MissingDataReference) canonical() canonical.Value {
	if r == nil {
		return canonical.Null{}
	}
	return canonical.Object{
		"dataset_keys": canonical.Strings(r.DatasetKeys),
		"reason_codes": canonical.Strings(r.ReasonCodes),
	}
}

// CanonicalRecord returns the full canonical form of the event.
func (e *DriftEvent) CanonicalRecord() (canonical.Object, error) {
	before, err := stateValue(e.BeforeState)
	if err != nil {
		return nil, err
	}
	after, err := stateValue(e.AfterState)
	if err != nil {
		return nil, err
	}
	var storedAt canonical.Value = canonical.Null{}
	if e.StoredAt != nil {
		storedAt = canonical.Timestamp(*e.StoredAt)
	}
	return canonical.Object{
		"drift_event_id":          canonical.String(e.DriftEventID),
		"tenant_id":               canonical.String(e.TenantID),
		"cloud_id":                canonical.String(e.CloudID),
		"from_snapshot_id":        canonical.String(e.FromSnapshotID),
		"to_snapshot_id":          canonical.String(e.ToSnapshotID),
		"from_captured_at":        canonical.Timestamp(e.FromCapturedAt),
		"to_captured_at":          canonical.Timestamp(e.ToCapturedAt),
		"object_type":             canonical.String(e.ObjectType),
		"object_id":               canonical.String(e.ObjectID),
		"change_type":             canonical.String(e.ChangeType),
		"classification":          canonical.String(e.Classification),
		"before_state":            before,
		"after_state":             after,
		"missing_data_reference":  e.MissingDataReference.canonical(),
		"actor":                   canonical.String(e.Actor),
		"actor_confidence":        canonical.String(e.ActorConfidence),
		"completeness_percentage": canonical.Int(e.CompletenessPercentage),
		"hash_version":            canonical.String(e.HashVersion),
		"canonical_hash":          canonical.String(e.CanonicalHash),
		"stored_at":               storedAt,
	}, nil
}

// Stamp returns the stored hash version and digest.
func (e *DriftEvent) Stamp() (string, string) { return e.HashVersion, e.CanonicalHash }

// Seal computes and stores the event digest under the current boundary.
func (e *DriftEvent) Seal() error {
	version, digest, err := seal(DriftEventBoundary, e)
	if err != nil {
		return err
	}
	e.HashVersion, e.CanonicalHash = version, digest
	return nil
}

// EncodeState returns the canonical JSON of an object state, or nil for
// an absent state.
func EncodeState(v canonical.Value) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if _, ok := v.(canonical.Null); ok {
		return nil, nil
	}
	data, err := canonical.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
