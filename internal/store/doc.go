// Package store persists governance evidence behind a small key-value
// port.
//
// The KV port offers get/set with optional time-to-live, write-once
// creation, prefix listing and deletion, and bounded lists. Three
// backends implement it:
//   - Memory: maps guarded by a mutex, for tests and one-shot CLI runs
//   - SQLite: kv and kv_list tables in WAL mode with user_version migrations
//   - Badger: an embedded LSM store with native TTL
//
// # Key layout
//
// Every key starts with the tenant: t/<tenant_id>/<kind>/<id>. Erasing a
// tenant deletes the t/<tenant_id>/ prefix and nothing else. Tenant ids
// may not contain '/', so no tenant prefix is a prefix of another.
//
// # Evidence repository
//
// Evidence layers the record types on top of KV:
//   - Snapshots are write-once; a conflicting rewrite is an IMMUTABILITY_VIOLATION
//   - Drift events are written once per diff; the diff record ending at a
//     snapshot is written last and marks that snapshot's drift as complete
//   - Metrics runs are keyed by their content-addressed run id
//   - Every read verifies the stored digest and the owning tenant
package store
