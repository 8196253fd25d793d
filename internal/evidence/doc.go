// Package evidence defines the governance-evidence records: snapshots,
// drift events, metrics runs and the continuity ledger.
//
// Every record type hashes through a versioned canonical.Boundary declared
// in version.go. Records are immutable once sealed; any content change
// requires resealing, and reads verify the stored digest.
//
// Key design constraints:
//   - Snapshot payload objects are a closed set of variants keyed by ObjectType
//   - Identifiers are content-addressed (UUIDv5 / SHA-256), never counters
//   - Drift events never carry attribution: actor is always "unknown"
//   - Unavailable values are explicit (nil pointers, NOT_AVAILABLE), never zero
package evidence
