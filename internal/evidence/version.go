package evidence

import "github.com/Firsttry-Solutions/Firsttry-sub006/internal/canonical"

// Hash input boundaries. Bump Version and register the new boundary
// alongside the old one whenever a field set changes.
var (
	SnapshotBoundaryV1 = canonical.Boundary{
		Name:     "snapshot",
		Version:  1,
		Fields:   []string{"snapshot_id", "tenant_id", "cloud_id", "captured_at", "payload", "missing_data"},
		Excluded: []string{"canonical_hash", "hash_version"},
		Absent:   []string{"install_detected_at"},
	}

	// SnapshotBoundaryV2 adds the capture side's install marker.
	SnapshotBoundaryV2 = canonical.Boundary{
		Name:     "snapshot",
		Version:  2,
		Fields:   []string{"snapshot_id", "tenant_id", "cloud_id", "captured_at", "install_detected_at", "payload", "missing_data"},
		Excluded: []string{"canonical_hash", "hash_version"},
	}

	DriftEventBoundaryV1 = canonical.Boundary{
		Name:    "drift_event",
		Version: 1,
		Fields: []string{
			"drift_event_id", "tenant_id", "cloud_id",
			"from_snapshot_id", "to_snapshot_id", "from_captured_at", "to_captured_at",
			"object_type", "object_id", "change_type", "classification",
			"before_state", "after_state", "missing_data_reference",
			"actor", "actor_confidence", "completeness_percentage",
		},
		Excluded: []string{"canonical_hash", "hash_version", "stored_at"},
	}

	MetricsRunBoundaryV1 = canonical.Boundary{
		Name:    "metrics_run",
		Version: 1,
		Fields: []string{
			"run_id", "tenant_id", "cloud_id", "window_start", "window_end", "snapshot_id",
			"metrics", "completeness_percentage", "missing_inputs",
		},
		Excluded: []string{"canonical_hash", "hash_version", "computed_at"},
	}

	LedgerBoundaryV1 = canonical.Boundary{
		Name:    "ledger",
		Version: 1,
		Fields: []string{
			"tenant_id",
			"first_install_detected_at", "first_snapshot_at",
			"first_drift_detected_at", "first_metrics_available_at",
		},
		Excluded: []string{"canonical_hash", "hash_version", "updated_at"},
	}
)

// Current boundaries used when sealing new records.
var (
	SnapshotBoundary   = SnapshotBoundaryV2
	DriftEventBoundary = DriftEventBoundaryV1
	MetricsRunBoundary = MetricsRunBoundaryV1
	LedgerBoundary     = LedgerBoundaryV1
)

// Boundaries resolves stored hash_version values during verification.
var Boundaries = canonical.NewRegistry(
	SnapshotBoundaryV1,
	SnapshotBoundaryV2,
	DriftEventBoundaryV1,
	MetricsRunBoundaryV1,
	LedgerBoundaryV1,
)
