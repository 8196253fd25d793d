package canonical

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Boundary declares exactly which fields of a record enter its digest.
//
// Boundaries are versioned. A change to the rules for a record type is a
// new Boundary with a higher Version; the old one stays registered so
// digests computed under it remain verifiable.
type Boundary struct {
	// Name is the record type, e.g. "drift_event".
	Name string

	// Version increments whenever Fields or Excluded change.
	Version int

	// Fields are the included field names. Every one must be present.
	Fields []string

	// Excluded are fields a record may carry that never enter the digest,
	// such as the stored hash and storage bookkeeping.
	Excluded []string

	// Absent are fields a later version added. A record checked under
	// this version may carry them only as null, and they never enter the
	// digest.
	Absent []string
}

// ID returns the versioned identifier stored alongside each digest.
func (b Boundary) ID() string {
	return fmt.Sprintf("%s/v%d", b.Name, b.Version)
}

// Project returns the subset of rec inside the boundary.
//
// A missing included field is an error: omission and null are not
// interchangeable. A field that is neither included nor excluded is an
// error too, so new fields cannot slip in or out silently. An Absent
// field holding anything but null is rejected.
func (b Boundary) Project(rec Object) (Object, error) {
	out := make(Object, len(b.Fields))
	var missing []string
	for _, f := range b.Fields {
		v, ok := rec[f]
		if !ok {
			missing = append(missing, f)
			continue
		}
		out[f] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s: fields omitted from hash input: %s", b.ID(), strings.Join(missing, ", "))
	}

	var unknown []string
	for k, v := range rec {
		if slices.Contains(b.Fields, k) || slices.Contains(b.Excluded, k) {
			continue
		}
		if _, null := v.(Null); null && slices.Contains(b.Absent, k) {
			continue
		}
		unknown = append(unknown, k)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%s: fields outside declared boundary: %s", b.ID(), strings.Join(unknown, ", "))
	}
	return out, nil
}

// Registry resolves stored boundary ids to their Boundary.
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]Boundary
}

// NewRegistry creates a registry holding the given boundaries.
func NewRegistry(bs ...Boundary) *Registry {
	r := &Registry{byID: make(map[string]Boundary, len(bs))}
	for _, b := range bs {
		r.byID[b.ID()] = b
	}
	return r
}

// Register adds a boundary. Registering an id twice with different
// fields is a programming error and panics.
func (r *Registry) Register(b Boundary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byID[b.ID()]; ok {
		if !slices.Equal(prev.Fields, b.Fields) || !slices.Equal(prev.Excluded, b.Excluded) || !slices.Equal(prev.Absent, b.Absent) {
			panic(fmt.Sprintf("canonical: boundary %s registered with different fields", b.ID()))
		}
		return
	}
	r.byID[b.ID()] = b
}

// Lookup returns the boundary for a stored id.
func (r *Registry) Lookup(id string) (Boundary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[id]
	return b, ok
}
