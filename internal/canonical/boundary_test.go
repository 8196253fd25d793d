package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
)

var testBoundary = Boundary{
	Name:     "widget",
	Version:  1,
	Fields:   []string{"id", "size", "note"},
	Excluded: []string{"canonical_hash", "stored_at"},
}

func TestBoundaryID(t *testing.T) {
	assert.Equal(t, "widget/v1", testBoundary.ID())
}

func TestBoundaryProjectDropsExcluded(t *testing.T) {
	rec := Object{
		"id":             String("w-1"),
		"size":           Int(3),
		"note":           Null{},
		"canonical_hash": String("abc"),
		"stored_at":      String("2025-01-01T00:00:00.000Z"),
	}
	out, err := testBoundary.Project(rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "note", "size"}, out.SortedKeys())
}

func TestBoundaryProjectOmissionIsNotNull(t *testing.T) {
	withNull := Object{"id": String("w-1"), "size": Int(3), "note": Null{}}
	omitted := Object{"id": String("w-1"), "size": Int(3)}

	_, err := testBoundary.Project(withNull)
	require.NoError(t, err)

	_, err = testBoundary.Project(omitted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "note")
}

func TestBoundaryProjectRejectsUndeclaredField(t *testing.T) {
	rec := Object{"id": String("w-1"), "size": Int(3), "note": Null{}, "color": String("red")}
	_, err := testBoundary.Project(rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "color")
}

func TestBoundaryProjectAbsentFieldMustBeNull(t *testing.T) {
	b := testBoundary
	b.Absent = []string{"colour"}

	out, err := b.Project(Object{"id": String("w-1"), "size": Int(3), "note": Null{}, "colour": Null{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "note", "size"}, out.SortedKeys())

	_, err = b.Project(Object{"id": String("w-1"), "size": Int(3), "note": Null{}, "colour": String("red")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

func TestVerify(t *testing.T) {
	rec := Object{"id": String("w-1"), "size": Int(3), "note": Null{}}
	_, digest, err := Seal(testBoundary, rec)
	require.NoError(t, err)

	t.Run("matching digest", func(t *testing.T) {
		assert.NoError(t, Verify(testBoundary, rec, digest))
	})

	t.Run("excluded fields do not matter", func(t *testing.T) {
		withHash := Object{"id": String("w-1"), "size": Int(3), "note": Null{}, "canonical_hash": String(digest)}
		assert.NoError(t, Verify(testBoundary, withHash, digest))
	})

	t.Run("not computed", func(t *testing.T) {
		err := Verify(testBoundary, rec, "")
		assert.True(t, fault.Is(err, fault.HashNotComputed))
		assert.False(t, fault.Is(err, fault.HashVerificationFailed))
	})

	t.Run("tampered content", func(t *testing.T) {
		tampered := Object{"id": String("w-1"), "size": Int(4), "note": Null{}}
		err := Verify(testBoundary, tampered, digest)
		assert.True(t, fault.Is(err, fault.HashVerificationFailed))
	})
}

func TestRegistryKeepsOldVersions(t *testing.T) {
	v2 := testBoundary
	v2.Version = 2
	v2.Fields = []string{"id", "size"}

	r := NewRegistry(testBoundary)
	r.Register(v2)

	b1, ok := r.Lookup("widget/v1")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "size", "note"}, b1.Fields)

	b2, ok := r.Lookup("widget/v2")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "size"}, b2.Fields)

	_, ok = r.Lookup("widget/v3")
	assert.False(t, ok)
}

func TestRegistryConflictingRegistrationPanics(t *testing.T) {
	r := NewRegistry(testBoundary)
	conflicting := testBoundary
	conflicting.Fields = []string{"id"}
	assert.Panics(t, func() { r.Register(conflicting) })
}
