package canonical

import (
	"slices"
	"time"
)

// Value is a sealed interface over the values that may enter a hash
// boundary. Only Null, Bool, Int, Float, String, Timestamp, Array and
// Object implement it.
type Value interface {
	canonicalValue()
}

// Null is an explicit null. A field that is unavailable is carried as
// Null, never by leaving it out of its Object.
type Null struct{}

func (Null) canonicalValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) canonicalValue() {}

// Int is an integer value, emitted with no decimal point or exponent.
type Int int64

func (Int) canonicalValue() {}

// Float is a floating value, emitted with a decimal point and at most
// FloatDigits fractional digits.
type Float float64

func (Float) canonicalValue() {}

// String is a string value. It is NFC-normalized when encoded.
type String string

func (String) canonicalValue() {}

// Timestamp is an instant, emitted as UTC ISO-8601 with millisecond
// precision and a literal Z suffix.
type Timestamp time.Time

func (Timestamp) canonicalValue() {}

// Time returns the underlying time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// Array is an ordered collection with a declared sort key. Encoding an
// Array whose Order is the zero value fails with UNSORTED_ARRAY.
type Array struct {
	Order Order
	Items []Value
}

func (Array) canonicalValue() {}

// Object is a mapping of string keys to values.
// Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) canonicalValue() {}

// orderKind selects how an Array is sorted before encoding.
type orderKind int

const (
	orderUnset orderKind = iota
	orderByField
	orderByValue
	orderPreserved
)

// Order is the declared sort key of an Array.
type Order struct {
	kind  orderKind
	field string
}

// ByField orders object elements by the named scalar field. Ties are
// broken by the elements' full canonical encoding.
func ByField(name string) Order {
	return Order{kind: orderByField, field: name}
}

// ByValue orders elements by their own value.
func ByValue() Order {
	return Order{kind: orderByValue}
}

// preserved marks arrays decoded from bytes that were already canonical.
func preserved() Order {
	return Order{kind: orderPreserved}
}

// IsSet reports whether the order declares a sort key.
func (o Order) IsSet() bool {
	return o.kind != orderUnset
}

// Field returns the sort field for ByField orders.
func (o Order) Field() string {
	return o.field
}

// NewArray creates an Array with the given order.
func NewArray(order Order, items ...Value) Array {
	if items == nil {
		items = []Value{}
	}
	return Array{Order: order, Items: items}
}

// Strings creates a ByValue array of strings.
func Strings(ss []string) Array {
	items := make([]Value, len(ss))
	for i, s := range ss {
		items[i] = String(s)
	}
	return NewArray(ByValue(), items...)
}

// OptionalString returns Null for nil and String otherwise.
func OptionalString(s *string) Value {
	if s == nil {
		return Null{}
	}
	return String(*s)
}

// OptionalInt returns Null for nil and Int otherwise.
func OptionalInt(n *int64) Value {
	if n == nil {
		return Null{}
	}
	return Int(*n)
}

// OptionalFloat returns Null for nil and Float otherwise.
func OptionalFloat(f *float64) Value {
	if f == nil {
		return Null{}
	}
	return Float(*f)
}

// OptionalTimestamp returns Null for nil and Timestamp otherwise.
func OptionalTimestamp(t *time.Time) Value {
	if t == nil {
		return Null{}
	}
	return Timestamp(*t)
}

// SortedKeys returns the object's keys in ascending code point order.
// Go string comparison on UTF-8 bytes matches code point order.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
