// Package objfile implements the on-disk framing of a single immutable
// Ori object: a 4-byte type tag, a compression flag, the payload, and a
// trailing index of back-references. It operates on byte slices rather
// than open files; internal/store owns the atomic create/rename dance and
// the directory sharding.
package objfile

import (
	"encoding/binary"
	"fmt"

	"github.com/ori-fs/ori/internal/hashid"
	"github.com/ori-fs/ori/internal/orierr"
)

// Type identifies what kind of object a file holds.
type Type uint8

const (
	TypeCommit Type = iota
	TypeTree
	TypeBlob
	TypeLargeBlob
	TypePurged
)

func (t Type) String() string {
	switch t {
	case TypeCommit:
		return "Commit"
	case TypeTree:
		return "Tree"
	case TypeBlob:
		return "Blob"
	case TypeLargeBlob:
		return "LargeBlob"
	case TypePurged:
		return "Purged"
	default:
		return "Unknown"
	}
}

var tagBytes = map[Type][4]byte{
	TypeCommit:    {'C', 'M', 'M', 'T'},
	TypeTree:      {'T', 'R', 'E', 'E'},
	TypeBlob:      {'B', 'L', 'O', 'B'},
	TypeLargeBlob: {'L', 'G', 'B', 'L'},
	TypePurged:    {'P', 'U', 'R', 'G'},
}

var tagToType = func() map[[4]byte]Type {
	m := make(map[[4]byte]Type, len(tagBytes))
	for t, tag := range tagBytes {
		m[tag] = t
	}
	return m
}()

// HdrSize is the size in bytes of the type-tag plus compression-flag
// prefix, matching the reference implementation's ORI_OBJECT_HDRSIZE.
const HdrSize = 5

// payloadLenSize is the width of the payload-length field this port adds
// immediately after the compression flag so a Blob's opaque payload — which
// carries no self-delimiting structure of its own — can be told apart from
// the trailing BackRef index without re-parsing the payload.
const payloadLenSize = 8

// Role classifies a BackRef edge.
type Role uint8

const (
	RoleRef    Role = 0
	RolePurged Role = 1
)

// BackRef is a recorded incoming edge: fromHash names an object that
// refers to the object this index belongs to, in the given role.
type BackRef struct {
	From hashid.HashId
	Role Role
}

const backRefSize = hashid.Size + 1

// Record is the decoded form of an object file: everything needed to
// reconstruct its bytes or inspect its metadata.
type Record struct {
	Type       Type
	Compressed bool
	Payload    []byte // always the decompressed canonical bytes
	BackRefs   []BackRef
}

// Encode serializes rec to its on-disk form. If rec.Compressed is true,
// compress must produce the stored payload bytes from rec.Payload (see
// internal/store, which decides when compression is worthwhile and owns
// the codec).
func Encode(rec Record, compress func([]byte) ([]byte, error)) ([]byte, error) {
	tag, ok := tagBytes[rec.Type]
	if !ok {
		return nil, fmt.Errorf("objfile: unknown type %v", rec.Type)
	}

	stored := rec.Payload
	if rec.Compressed {
		var err error
		stored, err = compress(rec.Payload)
		if err != nil {
			return nil, fmt.Errorf("objfile: compress: %w", err)
		}
	}

	out := make([]byte, 0, HdrSize+payloadLenSize+len(stored)+4+len(rec.BackRefs)*backRefSize)
	out = append(out, tag[:]...)
	if rec.Compressed {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	var lenBuf [payloadLenSize]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(stored)))
	out = append(out, lenBuf[:]...)
	out = append(out, stored...)
	out = appendBackRefIndex(out, rec.BackRefs)
	return out, nil
}

func appendBackRefIndex(out []byte, refs []BackRef) []byte {
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(refs)))
	out = append(out, countBuf[:]...)
	for _, r := range refs {
		out = append(out, r.From.Bytes()...)
		out = append(out, byte(r.Role))
	}
	return out
}

// Decode parses the on-disk form produced by Encode. decompress must
// invert whatever compress was passed to Encode.
func Decode(data []byte, decompress func([]byte) ([]byte, error)) (Record, error) {
	if len(data) < HdrSize+payloadLenSize {
		return Record{}, orierr.New(orierr.Malformed, "objfile: truncated header")
	}
	var tag [4]byte
	copy(tag[:], data[:4])
	typ, ok := tagToType[tag]
	if !ok {
		return Record{}, orierr.New(orierr.Malformed, fmt.Sprintf("objfile: unknown tag %q", tag))
	}
	compressed := data[4] != 0
	payloadLen := binary.BigEndian.Uint64(data[5 : 5+payloadLenSize])

	start := HdrSize + payloadLenSize
	end := start + int(payloadLen)
	if end < start || end > len(data) {
		return Record{}, orierr.New(orierr.Malformed, "objfile: payload length out of range")
	}
	stored := data[start:end]

	payload := stored
	if compressed {
		var err error
		payload, err = decompress(stored)
		if err != nil {
			return Record{}, orierr.Wrap(orierr.Malformed, "objfile: decompress", err)
		}
	}

	refs, err := decodeBackRefIndex(data[end:])
	if err != nil {
		return Record{}, err
	}

	return Record{Type: typ, Compressed: compressed, Payload: payload, BackRefs: refs}, nil
}

func decodeBackRefIndex(data []byte) ([]BackRef, error) {
	if len(data) < 4 {
		return nil, orierr.New(orierr.Malformed, "objfile: truncated backref index")
	}
	count := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	want := int(count) * backRefSize
	if len(data) != want {
		return nil, orierr.New(orierr.Malformed, "objfile: backref index length mismatch")
	}
	refs := make([]BackRef, count)
	for i := range refs {
		off := i * backRefSize
		var h hashid.HashId
		copy(h[:], data[off:off+hashid.Size])
		refs[i] = BackRef{From: h, Role: Role(data[off+hashid.Size])}
	}
	return refs, nil
}

// PeekType reads just the type tag, without validating or decoding the
// rest of the record. It is the basis of Store.typeOf.
func PeekType(data []byte) (Type, error) {
	if len(data) < 4 {
		return 0, orierr.New(orierr.Malformed, "objfile: truncated header")
	}
	var tag [4]byte
	copy(tag[:], data[:4])
	typ, ok := tagToType[tag]
	if !ok {
		return 0, orierr.New(orierr.Malformed, fmt.Sprintf("objfile: unknown tag %q", tag))
	}
	return typ, nil
}

// Purge rewrites data in place into a Purged tombstone: empty payload,
// uncompressed, with the existing BackRef index preserved verbatim. Only
// a Blob record may be purged.
func Purge(data []byte) ([]byte, error) {
	rec, err := Decode(data, passthrough)
	if err != nil {
		return nil, err
	}
	if rec.Type != TypeBlob {
		return nil, orierr.New(orierr.WrongType, "objfile: purge requires a Blob")
	}
	rec.Type = TypePurged
	rec.Compressed = false
	rec.Payload = nil
	return Encode(rec, passthrough)
}

// ReplaceBackRefs rewrites only the trailing index region of data,
// leaving the tag, compression flag, and payload untouched.
func ReplaceBackRefs(data []byte, refs []BackRef) ([]byte, error) {
	if len(data) < HdrSize+payloadLenSize {
		return nil, orierr.New(orierr.Malformed, "objfile: truncated header")
	}
	payloadLen := binary.BigEndian.Uint64(data[5 : 5+payloadLenSize])
	end := HdrSize + payloadLenSize + int(payloadLen)
	if end > len(data) {
		return nil, orierr.New(orierr.Malformed, "objfile: payload length out of range")
	}
	out := make([]byte, end, end+4+len(refs)*backRefSize)
	copy(out, data[:end])
	return appendBackRefIndex(out, refs), nil
}

func passthrough(b []byte) ([]byte, error) { return b, nil }
