package evidence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/canonical"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
)

// ObjectType names one dataset of a snapshot payload.
type ObjectType string

const (
	TypeField          ObjectType = "field"
	TypeWorkflow       ObjectType = "workflow"
	TypeAutomationRule ObjectType = "automation_rule"
	TypeProject        ObjectType = "project"

	// TypeFieldUsage carries usage observations, not configuration.
	// It feeds metrics and is never diffed.
	TypeFieldUsage ObjectType = "field_usage"

	// TypeScope is the object type of data-visibility drift events.
	// It never appears in a payload.
	TypeScope ObjectType = "scope"
)

// PayloadTypes lists every object type a payload may carry, sorted.
var PayloadTypes = []ObjectType{
	TypeAutomationRule,
	TypeField,
	TypeFieldUsage,
	TypeProject,
	TypeWorkflow,
}

// ConfigTypes are the payload types compared by the drift engine, sorted.
var ConfigTypes = []ObjectType{
	TypeAutomationRule,
	TypeField,
	TypeProject,
	TypeWorkflow,
}

// Valid reports whether t may appear as a payload key.
func (t ObjectType) Valid() bool {
	return slices.Contains(PayloadTypes, t)
}

// Object is one configuration object inside a snapshot payload.
// The set of implementations is closed: Field, Workflow, AutomationRule,
// Project and FieldUsage.
type Object interface {
	ObjectType() ObjectType
	ObjectID() string
	Canonical() canonical.Object
}

// Field is a custom or system issue field.
type Field struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	FieldType  string   `json:"field_type" yaml:"field_type"`
	Required   bool     `json:"required" yaml:"required"`
	Custom     bool     `json:"custom" yaml:"custom"`
	ContextIDs []string `json:"context_ids" yaml:"context_ids"`
}

func (Field) ObjectType() ObjectType { return TypeField }
func (f Field) ObjectID() string     { return f.ID }

func (f Field) Canonical() canonical.Object {
	return canonical.Object{
		"id":          canonical.String(f.ID),
		"name":        canonical.String(f.Name),
		"field_type":  canonical.String(f.FieldType),
		"required":    canonical.Bool(f.Required),
		"custom":      canonical.Bool(f.Custom),
		"context_ids": canonical.Strings(f.ContextIDs),
	}
}

// Workflow is a status workflow.
type Workflow struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	Statuses        []string `json:"statuses" yaml:"statuses"`
	TransitionCount int64    `json:"transition_count" yaml:"transition_count"`
}

func (Workflow) ObjectType() ObjectType { return TypeWorkflow }
func (w Workflow) ObjectID() string     { return w.ID }

func (w Workflow) Canonical() canonical.Object {
	return canonical.Object{
		"id":               canonical.String(w.ID),
		"name":             canonical.String(w.Name),
		"statuses":         canonical.Strings(w.Statuses),
		"transition_count": canonical.Int(w.TransitionCount),
	}
}

// AutomationRule is an automation rule definition.
//
// AuthorAccountID is captured configuration. Nothing reads it to attribute
// a change.
type AutomationRule struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	Trigger         string   `json:"trigger" yaml:"trigger"`
	ProjectIDs      []string `json:"project_ids" yaml:"project_ids"`
	AuthorAccountID *string  `json:"author_account_id" yaml:"author_account_id"`
}

func (AutomationRule) ObjectType() ObjectType { return TypeAutomationRule }
func (r AutomationRule) ObjectID() string     { return r.ID }

func (r AutomationRule) Canonical() canonical.Object {
	return canonical.Object{
		"id":                canonical.String(r.ID),
		"name":              canonical.String(r.Name),
		"enabled":           canonical.Bool(r.Enabled),
		"trigger":           canonical.String(r.Trigger),
		"project_ids":       canonical.Strings(r.ProjectIDs),
		"author_account_id": canonical.OptionalString(r.AuthorAccountID),
	}
}

// Project is a project and the workflows it uses.
type Project struct {
	ID            string   `json:"id" yaml:"id"`
	Key           string   `json:"key" yaml:"key"`
	Name          string   `json:"name" yaml:"name"`
	LeadAccountID *string  `json:"lead_account_id" yaml:"lead_account_id"`
	WorkflowIDs   []string `json:"workflow_ids" yaml:"workflow_ids"`
}

func (Project) ObjectType() ObjectType { return TypeProject }
func (p Project) ObjectID() string     { return p.ID }

func (p Project) Canonical() canonical.Object {
	return canonical.Object{
		"id":              canonical.String(p.ID),
		"key":             canonical.String(p.Key),
		"name":            canonical.String(p.Name),
		"lead_account_id": canonical.OptionalString(p.LeadAccountID),
		"workflow_ids":    canonical.Strings(p.WorkflowIDs),
	}
}

// FieldUsage records how many issues carry a value for one field.
// ID is the field id.
type FieldUsage struct {
	ID         string `json:"id" yaml:"id"`
	IssueCount int64  `json:"issue_count" yaml:"issue_count"`
}

func (FieldUsage) ObjectType() ObjectType { return TypeFieldUsage }
func (u FieldUsage) ObjectID() string     { return u.ID }

func (u FieldUsage) Canonical() canonical.Object {
	return canonical.Object{
		"id":          canonical.String(u.ID),
		"issue_count": canonical.Int(u.IssueCount),
	}
}

// Payload maps object type to the objects captured for it.
// A missing key means the dataset was not captured; an empty slice means
// it was captured and is empty.
type Payload map[ObjectType][]Object

// UnmarshalJSON decodes each dataset into its closed variant shape.
// Unknown object types and unknown object fields are rejected.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*p = nil
		return nil
	}
	out := make(Payload, len(raw))
	for key, msg := range raw {
		t := ObjectType(key)
		objs, err := decodeObjects(t, msg)
		if err != nil {
			return fmt.Errorf("payload %q: %w", key, err)
		}
		out[t] = objs
	}
	*p = out
	return nil
}

func decodeObjects(t ObjectType, msg json.RawMessage) ([]Object, error) {
	switch t {
	case TypeField:
		return decodeStrict[Field](msg)
	case TypeWorkflow:
		return decodeStrict[Workflow](msg)
	case TypeAutomationRule:
		return decodeStrict[AutomationRule](msg)
	case TypeProject:
		return decodeStrict[Project](msg)
	case TypeFieldUsage:
		return decodeStrict[FieldUsage](msg)
	default:
		return nil, fmt.Errorf("unknown object type")
	}
}

func decodeStrict[T Object](msg json.RawMessage) ([]Object, error) {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.DisallowUnknownFields()
	var items []T
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	objs := make([]Object, len(items))
	for i, item := range items {
		objs[i] = item
	}
	return objs, nil
}

// Index returns the objects of type t keyed by id.
func (p Payload) Index(t ObjectType) map[string]Object {
	objs := p[t]
	m := make(map[string]Object, len(objs))
	for _, o := range objs {
		m[o.ObjectID()] = o
	}
	return m
}

// Has reports whether the payload carries dataset t at all.
func (p Payload) Has(t ObjectType) bool {
	_, ok := p[t]
	return ok
}

// Canonical returns the payload with every dataset sorted by object id.
func (p Payload) Canonical() canonical.Object {
	obj := make(canonical.Object, len(p))
	for t, objs := range p {
		items := make([]canonical.Value, len(objs))
		for i, o := range objs {
			items[i] = o.Canonical()
		}
		obj[string(t)] = canonical.NewArray(canonical.ByField("id"), items...)
	}
	return obj
}

// CoverageStatus describes how completely a dataset was captured.
type CoverageStatus string

const (
	CoverageAvailable    CoverageStatus = "AVAILABLE"
	CoveragePartial      CoverageStatus = "PARTIAL"
	CoverageNotAvailable CoverageStatus = "NOT_AVAILABLE"
)

// Valid reports whether s is a known coverage status.
func (s CoverageStatus) Valid() bool {
	switch s {
	case CoverageAvailable, CoveragePartial, CoverageNotAvailable:
		return true
	}
	return false
}

// MissingData declares that a dataset could not be fully captured.
type MissingData struct {
	DatasetName    string         `json:"dataset_name" yaml:"dataset_name"`
	CoverageStatus CoverageStatus `json:"coverage_status" yaml:"coverage_status"`
	ReasonCode     string         `json:"reason_code" yaml:"reason_code"`
	RetryCount     int64          `json:"retry_count" yaml:"retry_count"`
}

func (m MissingData) Canonical() canonical.Object {
	return canonical.Object{
		"dataset_name":    canonical.String(m.DatasetName),
		"coverage_status": canonical.String(m.CoverageStatus),
		"reason_code":     canonical.String(m.ReasonCode),
		"retry_count":     canonical.Int(m.RetryCount),
	}
}

// Snapshot is an immutable point-in-time capture of one cloud's
// configuration for one tenant.
//
// InstallDetectedAt is set by the capture side on the first capture after
// it detected the install. It is part of the hashed capture and is the
// only source of the install_detected ledger signal.
type Snapshot struct {
	SnapshotID        string        `json:"snapshot_id"`
	TenantID          string        `json:"tenant_id"`
	CloudID           string        `json:"cloud_id"`
	CapturedAt        time.Time     `json:"captured_at"`
	InstallDetectedAt *time.Time    `json:"install_detected_at,omitempty"`
	Payload           Payload       `json:"payload"`
	MissingData       []MissingData `json:"missing_data"`
	HashVersion       string        `json:"hash_version,omitempty"`
	CanonicalHash     string        `json:"canonical_hash,omitempty"`
}

// Validate checks the snapshot's structure.
// Returns an INVALID_SNAPSHOT error describing the first problem found.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fault.New(fault.InvalidSnapshot, "snapshot is missing")
	}
	invalid := func(format string, args ...any) error {
		return fault.New(fault.InvalidSnapshot, format, args...).
			WithTenant(s.TenantID).
			With("snapshot_id", s.SnapshotID)
	}
	switch {
	case s.SnapshotID == "":
		return invalid("snapshot_id is empty")
	case s.TenantID == "":
		return invalid("tenant_id is empty")
	case s.CloudID == "":
		return invalid("cloud_id is empty")
	case s.CapturedAt.IsZero():
		return invalid("captured_at is not set")
	case s.InstallDetectedAt != nil && s.InstallDetectedAt.IsZero():
		return invalid("install_detected_at is zero")
	case s.InstallDetectedAt != nil && s.InstallDetectedAt.After(s.CapturedAt):
		return invalid("install_detected_at is after captured_at")
	}

	for t, objs := range s.Payload {
		if !t.Valid() {
			return invalid("unknown object type %q", t)
		}
		seen := make(map[string]bool, len(objs))
		for i, o := range objs {
			if o == nil {
				return invalid("%s[%d] is null", t, i)
			}
			switch o.(type) {
			case Field, Workflow, AutomationRule, Project, FieldUsage:
			default:
				return invalid("%s[%d] has unsupported shape %T", t, i, o)
			}
			if o.ObjectType() != t {
				return invalid("%s[%d] has object type %q", t, i, o.ObjectType())
			}
			id := o.ObjectID()
			if id == "" {
				return invalid("%s[%d] has empty id", t, i)
			}
			if seen[id] {
				return invalid("%s has duplicate id %q", t, id)
			}
			seen[id] = true
		}
	}

	declared := make(map[string]bool, len(s.MissingData))
	for i, m := range s.MissingData {
		if m.DatasetName == "" {
			return invalid("missing_data[%d] has empty dataset_name", i)
		}
		if declared[m.DatasetName] {
			return invalid("missing_data declares %q twice", m.DatasetName)
		}
		declared[m.DatasetName] = true
		if !m.CoverageStatus.Valid() {
			return invalid("missing_data[%d] has unknown coverage_status %q", i, m.CoverageStatus)
		}
		if m.RetryCount < 0 {
			return invalid("missing_data[%d] has negative retry_count", i)
		}
	}
	return nil
}

// Declared returns the missing_data entry for dataset, if any.
func (s *Snapshot) Declared(dataset string) (MissingData, bool) {
	for _, m := range s.MissingData {
		if m.DatasetName == dataset {
			return m, true
		}
	}
	return MissingData{}, false
}

// Coverage returns the effective coverage of dataset.
//
// A payload dataset whose key is absent is NOT_AVAILABLE whatever
// missing_data says. Otherwise a declaration wins, and an undeclared
// dataset is AVAILABLE.
func (s *Snapshot) Coverage(dataset string) MissingData {
	m, ok := s.Declared(dataset)
	if !ok {
		m = MissingData{DatasetName: dataset, CoverageStatus: CoverageAvailable}
	}
	t := ObjectType(dataset)
	if t.Valid() && !s.Payload.Has(t) {
		m.CoverageStatus = CoverageNotAvailable
		if !ok {
			m.ReasonCode = "NOT_CAPTURED"
		}
	}
	return m
}

// Captured reports whether dataset t can be used as metric input: its key
// is present and missing_data does not mark it NOT_AVAILABLE.
func (s *Snapshot) Captured(t ObjectType) bool {
	return s.Coverage(string(t)).CoverageStatus != CoverageNotAvailable
}

// Datasets returns every dataset name this snapshot knows about: the
// payload types plus any dataset named in missing_data. Sorted.
func (s *Snapshot) Datasets() []string {
	set := make(map[string]struct{}, len(PayloadTypes)+len(s.MissingData))
	for _, t := range PayloadTypes {
		set[string(t)] = struct{}{}
	}
	for _, m := range s.MissingData {
		set[m.DatasetName] = struct{}{}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CanonicalRecord returns the full canonical form of the snapshot.
func (s *Snapshot) CanonicalRecord() (canonical.Object, error) {
	missing := make([]canonical.Value, len(s.MissingData))
	for i, m := range s.MissingData {
		missing[i] = m.Canonical()
	}
	return canonical.Object{
		"snapshot_id":         canonical.String(s.SnapshotID),
		"tenant_id":           canonical.String(s.TenantID),
		"cloud_id":            canonical.String(s.CloudID),
		"captured_at":         canonical.Timestamp(s.CapturedAt),
		"install_detected_at": canonical.OptionalTimestamp(s.InstallDetectedAt),
		"payload":             s.Payload.Canonical(),
		"missing_data":        canonical.NewArray(canonical.ByField("dataset_name"), missing...),
		"canonical_hash":      canonical.String(s.CanonicalHash),
		"hash_version":        canonical.String(s.HashVersion),
	}, nil
}

// Stamp returns the stored hash version and digest.
func (s *Snapshot) Stamp() (string, string) { return s.HashVersion, s.CanonicalHash }

// Seal computes and stores the snapshot digest under the current boundary.
func (s *Snapshot) Seal() error {
	version, digest, err := seal(SnapshotBoundary, s)
	if err != nil {
		return err
	}
	s.HashVersion, s.CanonicalHash = version, digest
	return nil
}
