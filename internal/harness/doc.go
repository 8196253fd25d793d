// Package harness runs evidence scenarios end to end.
//
// A scenario ingests snapshot files into a fresh in-memory store, then
// checks the stored evidence. The trace of
// what each step did is compared against a golden file.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	window: 720h
//	steps:
//	  - ingest: ../snapshots/a.yaml
//	  - ingest: ../snapshots/a-renamed.yaml
//	    expect_error: IMMUTABILITY_VIOLATION
//	  - ingest: ../snapshots/c-installed.yaml
//	assertions:
//	  - type: event
//	    tenant: acme
//	    object_id: f2
//	    change_type: REMOVED
//	  - type: metric
//	    tenant: acme
//	    snapshot: s2
//	    metric: structural_change_share
//	    availability: AVAILABLE
//	  - type: ledger
//	    tenant: acme
//	    field: first_install_detected_at
//	    equals: "2025-01-10T00:00:00.000Z"
//
// Snapshot paths are relative to the scenario file.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - event: a stored drift event matches every given field
//   - event_count: the tenant has exactly count stored events
//   - metric: the run for a snapshot reports the given availability and values
//   - ledger: a ledger field renders as equals
//   - verified: the tenant's export verifies record by record
package harness
