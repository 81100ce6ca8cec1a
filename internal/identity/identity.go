// Package identity computes content identities for workspace files.
//
// An identity is a BLAKE3 digest of a file's bytes. Two files with
// identical content always produce the same identity regardless of
// path, timestamp, or origin; it is the sole deduplication key across
// the cache and the remote service. The digest space is treated as
// collision-free.
package identity

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// Size is the digest length in bytes.
const Size = 32

// Identity is a 32-byte BLAKE3 digest of file content.
type Identity [Size]byte

// String returns the canonical lowercase hex form used in logs, the
// cache, and the wire protocol.
func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the zero value.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// Parse decodes a 64-character hex string into an Identity.
func Parse(raw string) (Identity, error) {
	var id Identity
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return id, fmt.Errorf("parsing content identity: %w", err)
	}
	if len(decoded) != Size {
		return id, fmt.Errorf("content identity is %d bytes, want %d", len(decoded), Size)
	}
	copy(id[:], decoded)
	return id, nil
}

// HashBytes computes the identity of an in-memory byte sequence.
func HashBytes(data []byte) Identity {
	var id Identity
	sum := blake3.Sum256(data)
	copy(id[:], sum[:])
	return id
}

// HashReader streams r through the hasher and returns the identity and
// the number of bytes consumed. Content larger than memory never needs
// full buffering.
func HashReader(r io.Reader) (Identity, int64, error) {
	var id Identity
	h := blake3.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return id, n, err
	}
	copy(id[:], h.Sum(nil))
	return id, n, nil
}
