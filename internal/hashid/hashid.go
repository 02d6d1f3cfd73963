// Package hashid defines Ori's 32-byte content-address: the SHA-256 digest
// of an object's canonical bytes. It is the type every other package in
// this module keys its maps and file paths on.
package hashid

import (
	"bytes"
	"encoding/hex"
	"fmt"

	sha256simd "github.com/minio/sha256-simd"

	"github.com/ori-fs/ori/internal/orierr"
)

// Size is the digest length in bytes.
const Size = 32

// HashId is a content address. The zero value is the empty hash: the
// sentinel used for "no parent", "no graft", and an empty HEAD.
type HashId [Size]byte

// Empty is the zero HashId, exported for readability at call sites.
var Empty HashId

// Sum computes the HashId of data: SHA-256 over the raw bytes. Every
// object's hash is defined as Sum(canonical bytes of the object), never
// over the on-disk (possibly compressed) framing.
func Sum(data []byte) HashId {
	// sha256-simd picks the fastest available backend (SHA extensions,
	// AVX2, or the portable Go implementation) transparently; it is the
	// same digest algorithm go-multihash uses under SHA2_256, just called
	// directly instead of through the multihash envelope since HashId has
	// no need for multihash's type-prefix framing.
	return sha256simd.Sum256(data)
}

// IsEmpty reports whether h is the zero hash.
func (h HashId) IsEmpty() bool {
	return h == Empty
}

// Hex returns the lowercase hex encoding of h.
func (h HashId) Hex() string {
	return hex.EncodeToString(h[:])
}

// String implements fmt.Stringer so HashId prints as hex in logs and %v.
func (h HashId) String() string {
	return h.Hex()
}

// FromHex parses a 64-character lowercase or uppercase hex string into a
// HashId. It returns an error wrapping the decode failure on anything that
// isn't exactly Size bytes of hex.
func FromHex(s string) (HashId, error) {
	var h HashId
	if len(s) != Size*2 {
		return h, orierr.New(orierr.Malformed, fmt.Sprintf("hashid: malformed hex length %d, want %d", len(s), Size*2))
	}
	n, err := hex.Decode(h[:], []byte(s))
	if err != nil {
		return HashId{}, orierr.Wrap(orierr.Malformed, "hashid: malformed hex", err)
	}
	if n != Size {
		return HashId{}, orierr.New(orierr.Malformed, fmt.Sprintf("hashid: malformed hex: decoded %d bytes, want %d", n, Size))
	}
	return h, nil
}

// Equal reports whether h and o name the same object.
func (h HashId) Equal(o HashId) bool {
	return h == o
}

// Less defines a stable total order over HashId, used to make BackRef
// indexes and Tree entry sets deterministic wherever ordering matters
// beyond name order.
func (h HashId) Less(o HashId) bool {
	return bytes.Compare(h[:], o[:]) < 0
}

// Bytes returns the raw 32 bytes of h. The caller must not mutate the
// returned slice's backing array through code that assumes it aliases h;
// it is a fresh copy.
func (h HashId) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, h[:])
	return out
}

// ShardDir and ShardName split a hash into the two path components the
// Store uses: a two-character shard directory and the remaining hex
// digits as the file name within it.
func (h HashId) ShardDir() string {
	return h.Hex()[:2]
}

func (h HashId) ShardName() string {
	return h.Hex()[2:]
}
