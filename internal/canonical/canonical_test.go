package canonical

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
)

func TestMarshalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"null", Null{}, "null"},
		{"true", Bool(true), "true"},
		{"false", Bool(false), "false"},
		{"int", Int(42), "42"},
		{"negative int", Int(-100), "-100"},
		{"zero", Int(0), "0"},
		{"string", String("hello"), `"hello"`},
		{"empty object", Object{}, "{}"},
		{"empty array", NewArray(ByValue()), "[]"},
		{"float keeps a decimal point", Float(2), "2.0"},
		{"float trailing zeros trimmed", Float(1.50), "1.5"},
		{"float ratio", Float(0.4), "0.4"},
		{"negative float", Float(-2.5), "-2.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalNullAndSortedKeys(t *testing.T) {
	result, err := Marshal(Object{"b": Float(1.50), "a": Null{}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":null,"b":1.5}`, string(result))
}

func TestCanonicalizeText(t *testing.T) {
	result, err := Canonicalize([]byte(`{"b":1.50,"a":null}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":null,"b":1.5}`, string(result))
}

func TestMarshalNestedSortedKeys(t *testing.T) {
	obj := Object{
		"z": Object{"b": Int(1), "a": Int(2)},
		"a": Int(3),
	}
	result, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestFormatFloatRounding(t *testing.T) {
	tests := []struct {
		in       float64
		expected string
	}{
		{0.1234565, "0.123456"},
		{0.1234575, "0.123458"},
		{0.0000001, "0.0"},
		{-0.0000001, "0.0"},
		{123.456, "123.456"},
		{1e21, "1000000000000000000000.0"},
		{0.6666666666666666, "0.666667"},
	}
	for _, tt := range tests {
		s, err := FormatFloat(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, s, "FormatFloat(%v)", tt.in)
	}
}

func TestFormatFloatRejectsNonFinite(t *testing.T) {
	_, err := Marshal(Float(math.NaN()))
	assert.Error(t, err)

	_, err = Marshal(Float(math.Inf(1)))
	assert.Error(t, err)
}

func TestMarshalTimestamp(t *testing.T) {
	zone := time.FixedZone("plus2", 2*60*60)
	ts := time.Date(2025, 1, 15, 9, 0, 0, 123456789, zone)

	result, err := Marshal(Timestamp(ts))
	require.NoError(t, err)
	assert.Equal(t, `"2025-01-15T07:00:00.123Z"`, string(result))
}

func TestMarshalStrings(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"html is literal", "<a & b>", `"<a & b>"`},
		{"quote and backslash", `a"b\c`, `"a\"b\\c"`},
		{"control characters", "a\nb\x01", `"a\nb\u0001"`},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
		{"nfc normalized", "e\u0301", "\"\u00e9\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Marshal(String(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalObjectKeysNormalized(t *testing.T) {
	out, err := Marshal(Object{"caf\u0065\u0301": Int(1)})
	require.NoError(t, err)
	assert.Equal(t, "{\"caf\u00e9\":1}", string(out))

	_, err = Marshal(Object{"caf\u00e9": Int(1), "caf\u0065\u0301": Int(2)})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.InvalidArgument))
	assert.Contains(t, err.Error(), "NFC")
}

func TestMarshalRejectsUnsortedArray(t *testing.T) {
	_, err := Marshal(Object{"items": Array{Items: []Value{Int(1)}}})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.UnsortedArray))
}

func TestMarshalArrayByField(t *testing.T) {
	arr := NewArray(ByField("metric_key"),
		Object{"metric_key": String("b"), "v": Int(1)},
		Object{"metric_key": String("a"), "v": Int(2)},
	)
	result, err := Marshal(arr)
	require.NoError(t, err)
	assert.Equal(t, `[{"metric_key":"a","v":2},{"metric_key":"b","v":1}]`, string(result))
}

func TestMarshalArrayByFieldRequiresKey(t *testing.T) {
	arr := NewArray(ByField("id"), Object{"name": String("x")})
	_, err := Marshal(arr)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.UnsortedArray))
}

func TestMarshalArrayByValueNumeric(t *testing.T) {
	result, err := Marshal(NewArray(ByValue(), Int(10), Int(9), Int(-1)))
	require.NoError(t, err)
	assert.Equal(t, `[-1,9,10]`, string(result))
}

func TestMarshalArrayInsertionOrderIrrelevant(t *testing.T) {
	a := Strings([]string{"open", "done", "review"})
	b := Strings([]string{"review", "open", "done"})

	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestMarshalRejectsNil(t *testing.T) {
	_, err := Marshal(Object{"a": nil})
	assert.Error(t, err)
}

func TestDigestShape(t *testing.T) {
	d := MustDigest(Object{"a": Int(1)})
	assert.Len(t, d, 64)
	assert.Regexp(t, `^[0-9a-f]{64}$`, d)
	// sha256 of {"a":1}
	assert.Equal(t, "015abd7f5cc57a2dd94b7590f04ad8084273905ee33ec5cebeae62276a97f862", d)
}

func TestParseRejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`{"a":1} {}`))
	assert.Error(t, err)
}

func TestCanonicalizeIdempotentProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("canonicalize(canonical) == canonical", prop.ForAll(
		func(strs map[string]string, nums map[string]int64, f float64) bool {
			obj := Object{"ratio": Float(f)}
			inner := Object{}
			for k, v := range strs {
				inner[k] = String(v)
			}
			for k, v := range nums {
				obj["n_"+k] = Int(v)
			}
			obj["inner"] = inner
			obj["list"] = Strings([]string{"b", "a", "c"})

			first, err := Marshal(obj)
			if err != nil {
				return false
			}
			second, err := Canonicalize(first)
			if err != nil {
				return false
			}
			return string(first) == string(second)
		},
		gen.MapOf(gen.AlphaString(), gen.AlphaString()),
		gen.MapOf(gen.Identifier(), gen.Int64()),
		gen.Float64Range(-1e6, 1e6),
	))

	properties.TestingRun(t)
}

func TestFloatRoundingIdempotentProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("rounded floats re-round to themselves", prop.ForAll(
		func(f float64) bool {
			first, err := FormatFloat(f)
			if err != nil {
				return false
			}
			second, err := FormatFloat(RoundFloat(f))
			if err != nil {
				return false
			}
			return first == second
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.TestingRun(t)
}
