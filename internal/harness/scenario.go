package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
)

// Scenario defines an end-to-end pipeline scenario.
// Scenarios feed captured snapshots through the pipeline and assert on
// the stored evidence.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Window is the metrics look-back. Zero means the pipeline default.
	Window time.Duration `yaml:"window,omitempty"`

	// Steps run in order against a fresh in-memory store.
	Steps []Step `yaml:"steps"`

	// Assertions validate the stored evidence after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one pipeline input.
type Step struct {
	// Ingest is a snapshot document path, relative to the scenario file.
	Ingest string `yaml:"ingest"`

	// ExpectError is the fault code the step must fail with. Empty means
	// the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates stored evidence.
type Assertion struct {
	// Type specifies the assertion type:
	// - "event": a stored drift event matches the given fields
	// - "event_count": the tenant has exactly Count stored drift events
	// - "metric": a metric of the run for Snapshot has the given values
	// - "ledger": a ledger field equals Equals
	// - "verified": every record of the tenant exports and verifies
	Type string `yaml:"type"`

	// Tenant scopes every assertion.
	Tenant string `yaml:"tenant"`

	// Event fields (used by event). Empty fields are not compared.
	ObjectType     string `yaml:"object_type,omitempty"`
	ObjectID       string `yaml:"object_id,omitempty"`
	ChangeType     string `yaml:"change_type,omitempty"`
	Classification string `yaml:"classification,omitempty"`

	// Count is the expected number of events (used by event_count).
	Count int `yaml:"count,omitempty"`

	// Metric fields (used by metric). Nil values are not compared.
	Snapshot     string   `yaml:"snapshot,omitempty"`
	Metric       string   `yaml:"metric,omitempty"`
	Availability string   `yaml:"availability,omitempty"`
	Numerator    *int64   `yaml:"numerator,omitempty"`
	Denominator  *int64   `yaml:"denominator,omitempty"`
	Value        *float64 `yaml:"value,omitempty"`

	// Field and Equals are used by ledger. Equals is a canonical
	// timestamp or NOT_AVAILABLE.
	Field  string `yaml:"field,omitempty"`
	Equals string `yaml:"equals,omitempty"`
}

// Assertion type constants.
const (
	AssertEvent      = "event"
	AssertEventCount = "event_count"
	AssertMetric     = "metric"
	AssertLedger     = "ledger"
	AssertVerified   = "verified"
)

// ledgerFields are the names a ledger assertion may use.
var ledgerFields = map[string]bool{
	"first_install_detected_at":       true,
	"first_snapshot_at":               true,
	"first_drift_detected_at":         true,
	"first_metrics_available_at":      true,
	"earliest_governance_evidence_at": true,
}

// LoadScenario reads and parses a scenario YAML file. Snapshot paths are
// resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, step := range scenario.Steps {
		if step.Ingest != "" && !filepath.IsAbs(step.Ingest) {
			scenario.Steps[i].Ingest = filepath.Join(base, step.Ingest)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Window < 0 {
		return fmt.Errorf("window must not be negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Ingest == "" {
			return fmt.Errorf("steps[%d]: ingest is required", i)
		}
		if _, err := os.Stat(step.Ingest); os.IsNotExist(err) {
			return fmt.Errorf("steps[%d]: snapshot file not found: %s", i, step.Ingest)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Tenant == "" {
		return fmt.Errorf("assertions[%d]: tenant is required", index)
	}

	switch a.Type {
	case AssertEvent:
		if a.ObjectType == "" && a.ObjectID == "" && a.ChangeType == "" && a.Classification == "" {
			return fmt.Errorf("assertions[%d]: event needs at least one field to match", index)
		}
	case AssertEventCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertMetric:
		if a.Snapshot == "" || a.Metric == "" {
			return fmt.Errorf("assertions[%d]: snapshot and metric are required for metric", index)
		}
		if a.Availability != "" && a.Availability != string(evidence.Available) && a.Availability != string(evidence.NotAvailable) {
			return fmt.Errorf("assertions[%d]: unknown availability %q", index, a.Availability)
		}
	case AssertLedger:
		if !ledgerFields[a.Field] {
			return fmt.Errorf("assertions[%d]: unknown ledger field %q", index, a.Field)
		}
		if a.Equals == "" {
			return fmt.Errorf("assertions[%d]: equals is required for ledger", index)
		}
	case AssertVerified:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
