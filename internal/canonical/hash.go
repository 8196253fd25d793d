package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
)

// DigestBytes returns the lowercase hex SHA-256 of canonical bytes.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Digest returns sha256_hex(Marshal(v)), a 64-character lowercase string.
func Digest(v Value) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return DigestBytes(data), nil
}

// Seal projects rec through b and returns its canonical bytes and digest.
func Seal(b Boundary, rec Object) ([]byte, string, error) {
	projected, err := b.Project(rec)
	if err != nil {
		return nil, "", err
	}
	data, err := Marshal(projected)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", b.ID(), err)
	}
	return data, DigestBytes(data), nil
}

// Verify recomputes the digest of rec from its live field values and
// compares it with stored.
//
// Returns a HASH_NOT_COMPUTED error when stored is empty and a
// HASH_VERIFICATION_FAILED error on mismatch or when rec no longer fits
// the boundary it was sealed under.
func Verify(b Boundary, rec Object, stored string) error {
	if stored == "" {
		return fault.New(fault.HashNotComputed, "%s record has no stored digest", b.ID())
	}
	_, digest, err := Seal(b, rec)
	if err != nil {
		return fault.Wrap(fault.HashVerificationFailed, err, "%s record does not fit its boundary", b.ID())
	}
	if digest != stored {
		return fault.New(fault.HashVerificationFailed, "%s digest mismatch", b.ID()).
			With("stored", stored).
			With("computed", digest)
	}
	return nil
}

// MustDigest is like Digest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDigest(v Value) string {
	d, err := Digest(v)
	if err != nil {
		panic(err)
	}
	return d
}
