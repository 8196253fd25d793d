package store

import (
	"strings"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
)

// Record kinds used as the second key segment.
const (
	kindSnapshot = "snapshot"
	kindLatest   = "latest"
	kindEvent    = "event"
	kindEvents   = "events"
	kindDiff     = "diff"
	kindRun      = "run"
	kindRuns     = "runs"
	kindLedger   = "ledger"
)

// TenantPrefix returns the key prefix owning every record of tenantID.
func TenantPrefix(tenantID string) (string, error) {
	if tenantID == "" {
		return "", fault.New(fault.InvalidArgument, "tenant id is empty")
	}
	if strings.ContainsAny(tenantID, "/\x00") {
		return "", fault.New(fault.InvalidArgument, "tenant id %q contains a reserved character", tenantID).
			WithTenant(tenantID)
	}
	return "t/" + tenantID + "/", nil
}

// key builds t/<tenant>/<kind>[/<id>].
func key(tenantID, kind string, id ...string) (string, error) {
	p, err := TenantPrefix(tenantID)
	if err != nil {
		return "", err
	}
	k := p + kind
	for _, part := range id {
		if part == "" {
			return "", fault.New(fault.InvalidArgument, "empty %s id", kind).WithTenant(tenantID)
		}
		k += "/" + part
	}
	return k, nil
}
