// Package fault defines the error kinds surfaced by the evidence pipeline.
//
// Failures are either localized (one metric unavailable) or fatal and
// explicit. Fatal kinds are returned as *Error so callers can branch on
// Code with errors.As instead of matching message text.
package fault

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code categorizes pipeline errors.
type Code string

const (
	// InvalidSnapshot indicates a diff input is missing or structurally invalid.
	InvalidSnapshot Code = "INVALID_SNAPSHOT"

	// MissingDependency indicates a metric's required dataset is absent.
	MissingDependency Code = "MISSING_DEPENDENCY"

	// HashVerificationFailed indicates a recomputed digest differs from the stored one.
	HashVerificationFailed Code = "HASH_VERIFICATION_FAILED"

	// HashNotComputed indicates a record has no stored digest yet.
	HashNotComputed Code = "HASH_NOT_COMPUTED"

	// ImmutabilityViolation indicates an attempt to move a first-occurrence
	// timestamp later or to rewrite a write-once record.
	ImmutabilityViolation Code = "IMMUTABILITY_VIOLATION"

	// TenantIsolationViolation indicates a read or write crossed tenants.
	TenantIsolationViolation Code = "TENANT_ISOLATION_VIOLATION"

	// UnsortedArray indicates an array entered a hash boundary without a sort key.
	UnsortedArray Code = "UNSORTED_ARRAY"

	// InvalidArgument indicates a caller supplied an unusable argument.
	InvalidArgument Code = "INVALID_ARGUMENT"

	// NotFound indicates a requested record does not exist.
	NotFound Code = "NOT_FOUND"
)

// Error is a coded pipeline error with structured diagnostics.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// TenantID identifies the affected tenant, when known.
	TenantID string

	// Details contains additional context.
	Details map[string]string

	// Err is an optional underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.TenantID != "" {
		fmt.Fprintf(&b, " (tenant=%s)", e.TenantID)
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + e.Details[k]
		}
		b.WriteString(" [")
		b.WriteString(strings.Join(parts, " "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around an underlying cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithTenant sets the tenant on the error and returns it.
func (e *Error) WithTenant(tenantID string) *Error {
	e.TenantID = tenantID
	return e
}

// With adds a detail key and returns the error.
func (e *Error) With(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// Is reports whether err carries the given code.
// Uses errors.As to handle wrapped errors.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
