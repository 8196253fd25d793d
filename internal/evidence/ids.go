package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/canonical"
)

// idNamespace scopes every UUIDv5 minted by this module.
var idNamespace = uuid.MustParse("6f1c2a4e-9b7d-5e3f-8a21-0c4d7e9b1f35")

// DomainDiffPair prefixes snapshot pair keys.
// Version suffix enables future algorithm migration.
const DomainDiffPair = "evidence/diff-pair/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + part0 + 0x00 + part1 ...)
// The null separators prevent boundary ambiguity between parts.
func hashWithDomain(domain string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write([]byte{0x00})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// PairKey is the idempotency key of one diff run. Re-running the diff for
// the same snapshot pair yields the same key.
func PairKey(tenantID, cloudID, fromSnapshotID, toSnapshotID string) string {
	return hashWithDomain(DomainDiffPair, tenantID, cloudID, fromSnapshotID, toSnapshotID)
}

// DriftEventID derives a stable event id from the event's identity.
func DriftEventID(tenantID, cloudID, fromSnapshotID, toSnapshotID string, objectType ObjectType, objectID string, change ChangeType) string {
	name := strings.Join([]string{
		"drift_event", tenantID, cloudID, fromSnapshotID, toSnapshotID,
		string(objectType), objectID, string(change),
	}, "\x00")
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

// MetricsRunID derives a stable run id from tenant, cloud, window and
// source snapshot.
func MetricsRunID(tenantID, cloudID string, window Window, snapshotID string) string {
	name := strings.Join([]string{
		"metrics_run", tenantID, cloudID,
		canonical.FormatTime(window.Start), canonical.FormatTime(window.End), snapshotID,
	}, "\x00")
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}
