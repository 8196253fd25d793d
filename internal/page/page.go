// Package page gives stable, cursor-based access to event and metrics-run
// collections.
//
// Every collection has one fixed total order. Paging a static collection
// visits each item exactly once: no gaps and no overlaps.
package page

import (
	"cmp"
	"encoding/base64"
	"slices"
	"strings"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
)

// Order is the fixed sort of one collection.
type Order[T any] struct {
	// Name identifies the order inside cursors.
	Name string

	// Compare must be a total order over the collection.
	Compare func(a, b T) int

	// ID returns the item's unique identity.
	ID func(T) string
}

// Events orders drift events newest first: to_captured_at desc, then
// object_type, object_id, change_type and drift_event_id ascending.
var Events = Order[evidence.DriftEvent]{
	Name: "events",
	Compare: func(a, b evidence.DriftEvent) int {
		return cmp.Or(
			b.ToCapturedAt.Compare(a.ToCapturedAt),
			cmp.Compare(a.ObjectType, b.ObjectType),
			cmp.Compare(a.ObjectID, b.ObjectID),
			cmp.Compare(a.ChangeType, b.ChangeType),
			cmp.Compare(a.DriftEventID, b.DriftEventID),
		)
	},
	ID: func(e evidence.DriftEvent) string { return e.DriftEventID },
}

// Runs orders metrics runs newest first: computed_at desc, then run_id.
var Runs = Order[evidence.MetricsRun]{
	Name: "runs",
	Compare: func(a, b evidence.MetricsRun) int {
		return cmp.Or(
			b.ComputedAt.Compare(a.ComputedAt),
			cmp.Compare(a.RunID, b.RunID),
		)
	},
	ID: func(r evidence.MetricsRun) string { return r.RunID },
}

// Result is one page.
type Result[T any] struct {
	Items   []T  `json:"items"`
	HasMore bool `json:"has_more"`

	// NextCursor resumes after the last item; empty when HasMore is false.
	NextCursor string `json:"next_cursor,omitempty"`
}

// Page returns page index (zero-based) of size items. Requesting beyond
// the last page returns no items and HasMore=false.
func Page[T any](items []T, order Order[T], index, size int) (Result[T], error) {
	if index < 0 {
		return Result[T]{}, fault.New(fault.InvalidArgument, "page index %d is negative", index)
	}
	if size <= 0 {
		return Result[T]{}, fault.New(fault.InvalidArgument, "page size %d is not positive", size)
	}
	sorted := sortedCopy(items, order)
	if index > len(sorted)/size {
		return Result[T]{Items: []T{}}, nil
	}
	return slice(sorted, order, index*size, size), nil
}

// After returns up to size items following the item named by cursor. An
// empty cursor starts at the beginning.
func After[T any](items []T, order Order[T], cursor string, size int) (Result[T], error) {
	if size <= 0 {
		return Result[T]{}, fault.New(fault.InvalidArgument, "page size %d is not positive", size)
	}
	sorted := sortedCopy(items, order)
	if cursor == "" {
		return slice(sorted, order, 0, size), nil
	}
	id, err := decodeCursor(order, cursor)
	if err != nil {
		return Result[T]{}, err
	}
	pos := slices.IndexFunc(sorted, func(item T) bool { return order.ID(item) == id })
	if pos < 0 {
		return Result[T]{}, fault.New(fault.InvalidArgument, "cursor does not match any %s item", order.Name)
	}
	return slice(sorted, order, pos+1, size), nil
}

func sortedCopy[T any](items []T, order Order[T]) []T {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, order.Compare)
	return sorted
}

func slice[T any](sorted []T, order Order[T], start, size int) Result[T] {
	if start >= len(sorted) {
		return Result[T]{Items: []T{}}
	}
	end := min(start+size, len(sorted))
	res := Result[T]{Items: sorted[start:end:end], HasMore: end < len(sorted)}
	if res.HasMore {
		res.NextCursor = encodeCursor(order, order.ID(sorted[end-1]))
	}
	return res
}

func encodeCursor[T any](order Order[T], id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(order.Name + "\x00" + id))
}

func decodeCursor[T any](order Order[T], cursor string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fault.Wrap(fault.InvalidArgument, err, "malformed cursor")
	}
	name, id, ok := strings.Cut(string(raw), "\x00")
	if !ok || name != order.Name || id == "" {
		return "", fault.New(fault.InvalidArgument, "cursor is not a %s cursor", order.Name)
	}
	return id, nil
}
