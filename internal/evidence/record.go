package evidence

import (
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/canonical"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
)

// Record is any hashed evidence record.
type Record interface {
	// CanonicalRecord returns every field of the record in canonical form,
	// including the excluded ones.
	CanonicalRecord() (canonical.Object, error)

	// Stamp returns the stored hash_version and canonical_hash.
	Stamp() (version, digest string)
}

func seal(b canonical.Boundary, r Record) (string, string, error) {
	rec, err := r.CanonicalRecord()
	if err != nil {
		return "", "", err
	}
	_, digest, err := canonical.Seal(b, rec)
	if err != nil {
		return "", "", err
	}
	return b.ID(), digest, nil
}

func boundaryFor(r Record) (canonical.Boundary, string, error) {
	version, digest := r.Stamp()
	if digest == "" {
		return canonical.Boundary{}, "", fault.New(fault.HashNotComputed, "record has no stored digest")
	}
	b, ok := Boundaries.Lookup(version)
	if !ok {
		return canonical.Boundary{}, "", fault.New(fault.HashVerificationFailed, "unknown hash version %q", version)
	}
	return b, digest, nil
}

// Verify recomputes r's digest from its live field values under the
// boundary version it was sealed with.
func Verify(r Record) error {
	b, digest, err := boundaryFor(r)
	if err != nil {
		return err
	}
	rec, err := r.CanonicalRecord()
	if err != nil {
		return err
	}
	return canonical.Verify(b, rec, digest)
}

// CanonicalBytes returns the hash input of r under its stored boundary
// version: the exact bytes whose SHA-256 is the stored digest.
func CanonicalBytes(r Record) ([]byte, error) {
	b, _, err := boundaryFor(r)
	if err != nil {
		return nil, err
	}
	rec, err := r.CanonicalRecord()
	if err != nil {
		return nil, err
	}
	data, _, err := canonical.Seal(b, rec)
	return data, err
}
