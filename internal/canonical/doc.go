// Package canonical turns structured records into a canonical byte form
// and SHA-256 digests, so identical facts always produce identical digests.
//
// This package imports nothing internal except fault; every other evidence
// package builds on it.
//
// Key constraints:
//   - Marshal is pure: same Value, same bytes
//   - Every array declares its sort key; undeclared order is rejected
//   - Each record type hashes through a versioned Boundary, and old
//     boundary versions stay registered for verification
//   - A missing leaf is an explicit Null, never an omitted key
package canonical
