package canonical

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/text/unicode/norm"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
)

// FloatDigits is the maximum number of fractional digits a Float keeps.
const FloatDigits = 6

// TimestampLayout is the canonical timestamp form.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// floatContext rounds half-to-even. Precision only has to cover the
// integer digits of a float64 plus FloatDigits.
var floatContext = func() *apd.Context {
	c := apd.BaseContext.WithPrecision(64)
	c.Rounding = apd.RoundHalfEven
	return c
}()

// Marshal produces the canonical byte form of v.
// CRITICAL: This is the ONLY serialization that may feed a digest.
//
// Rules:
//  1. Object keys sorted by code point, no insignificant whitespace
//  2. Strings NFC-normalized, no HTML escaping
//  3. Int without decimal point, leading zeros or exponent
//  4. Float with a decimal point, half-to-even at FloatDigits, no exponent
//  5. Timestamp as UTC with millisecond precision and a Z suffix
//  6. Arrays sorted by their declared key; undeclared order is rejected
func Marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("nil value: use canonical.Null for an explicit null")
	case Null:
		buf.WriteString("null")
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Float:
		s, err := FormatFloat(float64(val))
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case String:
		writeString(buf, string(val))
	case Timestamp:
		writeString(buf, FormatTime(time.Time(val)))
	case Array:
		return encodeArray(buf, val)
	case Object:
		return encodeObject(buf, val)
	default:
		return fmt.Errorf("unsupported canonical value: %T", v)
	}
	return nil
}

// FormatTime renders t in the canonical timestamp form.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// FormatFloat renders f rounded half-to-even to FloatDigits fractional
// digits, without exponent and with at least one fractional digit.
func FormatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("non-finite float is not canonical: %v", f)
	}

	d := new(apd.Decimal)
	if _, err := d.SetFloat64(f); err != nil {
		return "", fmt.Errorf("float %v: %w", f, err)
	}
	if d.Exponent < -FloatDigits {
		if _, err := floatContext.Quantize(d, d, -FloatDigits); err != nil {
			return "", fmt.Errorf("round float %v: %w", f, err)
		}
	}
	d.Reduce(d)
	if d.IsZero() {
		d.Negative = false
	}

	s := d.Text('f')
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s, nil
}

// RoundFloat returns f after canonical rounding, so stored values equal
// what the digest saw.
func RoundFloat(f float64) float64 {
	s, err := FormatFloat(f)
	if err != nil {
		return f
	}
	r, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return f
	}
	return r
}

// writeString writes a JSON string literal.
// Only quote, backslash and control characters (U+0000-U+001F) are escaped;
// <, >, &, U+2028 and U+2029 are emitted literally.
func writeString(buf *bytes.Buffer, s string) {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	s = norm.NFC.String(s)

	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			buf.WriteString(`\"`)
		case c == '\\':
			buf.WriteString(`\\`)
		case c == '\b':
			buf.WriteString(`\b`)
		case c == '\f':
			buf.WriteString(`\f`)
		case c == '\n':
			buf.WriteString(`\n`)
		case c == '\r':
			buf.WriteString(`\r`)
		case c == '\t':
			buf.WriteString(`\t`)
		case c < 0x20:
			fmt.Fprintf(buf, `\u%04x`, c)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte('"')
}

func encodeObject(buf *bytes.Buffer, obj Object) error {
	type member struct {
		key string
		raw string
		val Value
	}
	members := make([]member, 0, len(obj))
	for k, v := range obj {
		members = append(members, member{key: norm.NFC.String(k), raw: k, val: v})
	}
	slices.SortFunc(members, func(a, b member) int {
		return cmp.Or(strings.Compare(a.key, b.key), strings.Compare(a.raw, b.raw))
	})
	for i := 1; i < len(members); i++ {
		if members[i].key == members[i-1].key {
			return fault.New(fault.InvalidArgument, "object keys %q and %q are equal after NFC normalization",
				members[i-1].raw, members[i].raw)
		}
	}

	buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, m.key)
		buf.WriteByte(':')
		if err := encode(buf, m.val); err != nil {
			return fmt.Errorf("value for key %q: %w", m.key, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeArray(buf *bytes.Buffer, arr Array) error {
	if !arr.Order.IsSet() {
		return fault.New(fault.UnsortedArray, "array of %d elements has no declared sort key", len(arr.Items))
	}

	type element struct {
		val  Value
		data []byte
	}
	elems := make([]element, len(arr.Items))
	for i, item := range arr.Items {
		data, err := Marshal(item)
		if err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
		elems[i] = element{val: item, data: data}
	}

	switch arr.Order.kind {
	case orderByField:
		field := arr.Order.field
		for i, e := range elems {
			obj, ok := e.val.(Object)
			if !ok {
				return fault.New(fault.UnsortedArray, "array[%d]: sort key %q requires object elements, got %T", i, field, e.val)
			}
			key, ok := obj[field]
			if !ok || !isScalar(key) {
				return fault.New(fault.UnsortedArray, "array[%d]: sort key %q missing or not scalar", i, field)
			}
		}
		slices.SortStableFunc(elems, func(a, b element) int {
			if c := compareScalar(a.val.(Object)[field], b.val.(Object)[field]); c != 0 {
				return c
			}
			return bytes.Compare(a.data, b.data)
		})
	case orderByValue:
		slices.SortStableFunc(elems, func(a, b element) int {
			if isScalar(a.val) && isScalar(b.val) {
				if c := compareScalar(a.val, b.val); c != 0 {
					return c
				}
			}
			return bytes.Compare(a.data, b.data)
		})
	case orderPreserved:
		// Already in canonical order.
	}

	buf.WriteByte('[')
	for i, e := range elems {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(e.data)
	}
	buf.WriteByte(']')
	return nil
}

func isScalar(v Value) bool {
	switch v.(type) {
	case Null, Bool, Int, Float, String, Timestamp:
		return true
	}
	return false
}

// scalarRank groups scalar kinds so mixed-kind arrays still sort totally.
func scalarRank(v Value) int {
	switch v.(type) {
	case Null:
		return 0
	case Bool:
		return 1
	case Int, Float:
		return 2
	case Timestamp:
		return 3
	default:
		return 4
	}
}

// compareScalar orders scalars naturally: numbers numerically, instants
// chronologically, strings by code point.
func compareScalar(a, b Value) int {
	ra, rb := scalarRank(a), scalarRank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case Bool:
		bv := bool(b.(Bool))
		switch {
		case bool(av) == bv:
			return 0
		case !bool(av):
			return -1
		default:
			return 1
		}
	case Int, Float:
		fa, fb := numeric(a), numeric(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case Timestamp:
		return time.Time(av).Compare(time.Time(b.(Timestamp)))
	case String:
		return strings.Compare(norm.NFC.String(string(av)), norm.NFC.String(string(b.(String))))
	}
	return 0
}

func numeric(v Value) float64 {
	switch n := v.(type) {
	case Int:
		return float64(n)
	case Float:
		return float64(n)
	}
	return 0
}
