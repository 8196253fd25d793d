package harness

// StepIngest is the step kind recorded in the trace.
const StepIngest = "ingest"

// TraceEvent records what one scenario step did. It carries no digests
// or generated ids, so traces compare across runs and machines.
type TraceEvent struct {
	Seq      int64  `json:"seq"`
	Step     string `json:"step"`
	TenantID string `json:"tenant_id"`

	CloudID            string `json:"cloud_id,omitempty"`
	SnapshotID         string `json:"snapshot_id,omitempty"`
	SnapshotStored     bool   `json:"snapshot_stored,omitempty"`
	PreviousSnapshotID string `json:"previous_snapshot_id,omitempty"`

	// Changes renders each drift event as "object_type/object_id CHANGE CLASSIFICATION".
	Changes []string `json:"changes,omitempty"`

	// MetricsAvailable lists the metric keys the step's run computed.
	MetricsAvailable []string `json:"metrics_available,omitempty"`

	LedgerUpdates []string `json:"ledger_updates,omitempty"`

	// Error is the fault code of a step that failed as expected.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every step behaved as expected and
	// every assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Ledgers holds the final ledger of every tenant the scenario touched,
	// rendered one field per line.
	Ledgers map[string][]string `json:"ledgers"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Ledgers: map[string][]string{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
