// Package tenancy carries the acting tenant through a context and guards
// against records crossing tenant boundaries.
package tenancy

import (
	"context"
	"sync"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
)

// ctxKey is an unexported type used as the context key for the tenant.
type ctxKey struct{}

// WithTenant returns a new context scoped to tenantID.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, tenantID)
}

// TenantFromContext retrieves the tenant from the context.
// Returns "" and false if no tenant is set.
func TenantFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Check returns a TENANT_ISOLATION_VIOLATION unless recordTenant equals
// the tenant the caller asked for, and, when the context is scoped, the
// context tenant as well.
func Check(ctx context.Context, requested, recordTenant string) error {
	if requested == "" {
		return fault.New(fault.InvalidArgument, "tenant id is empty")
	}
	if scoped, ok := TenantFromContext(ctx); ok && scoped != requested {
		return fault.New(fault.TenantIsolationViolation, "context is scoped to another tenant").
			WithTenant(requested)
	}
	if recordTenant != requested {
		return fault.New(fault.TenantIsolationViolation, "record belongs to another tenant").
			WithTenant(requested)
	}
	return nil
}

// Locks serializes work per tenant while letting different tenants run
// in parallel.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the tenant's lock and returns its release function.
func (l *Locks) Lock(tenantID string) func() {
	l.mu.Lock()
	m, ok := l.locks[tenantID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[tenantID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
