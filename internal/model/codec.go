package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/ori-fs/ori/internal/hashid"
	"github.com/ori-fs/ori/internal/orierr"
)

// writer accumulates canonical bytes. Its write* helpers mirror the
// reference implementation's strwstream: a hash is 32 raw bytes, an
// integer is its fixed-width little-endian form, and a "pstr" (length-
// prefixed string) is a uint32 length followed by the raw bytes.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) writeHash(h hashid.HashId) {
	w.buf.Write(h.Bytes())
}

func (w *writer) writeUint8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *writer) writeUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) writeUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) writeUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) writeInt64(v int64) {
	w.writeUint64(uint64(v))
}

func (w *writer) writePStr(s string) {
	w.writeUint32(uint32(len(s)))
	w.buf.WriteString(s)
}

// reader consumes canonical bytes written by writer, failing with
// orierr.Malformed on any short buffer.
type reader struct {
	data []byte
	pos  int
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) need(n int) error {
	if r.pos+n > len(r.data) {
		return orierr.New(orierr.Malformed, "model: truncated canonical bytes")
	}
	return nil
}

func (r *reader) readHash() (hashid.HashId, error) {
	if err := r.need(hashid.Size); err != nil {
		return hashid.HashId{}, err
	}
	var h hashid.HashId
	copy(h[:], r.data[r.pos:r.pos+hashid.Size])
	r.pos += hashid.Size
	return h, nil
}

func (r *reader) readUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) readUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos : r.pos+2])
	r.pos += 2
	return v, nil
}

func (r *reader) readUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) readUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) readInt64() (int64, error) {
	v, err := r.readUint64()
	return int64(v), err
}

func (r *reader) readPStr() (string, error) {
	n, err := r.readUint32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *reader) remaining() []byte {
	return r.data[r.pos:]
}

// EncodeCommit produces c's canonical bytes. Its SHA-256 is c's HashId.
func EncodeCommit(c Commit) ([]byte, error) {
	if c.GraftRepo == "" && (c.GraftPath != "" || !c.GraftCommitHash.IsEmpty()) {
		return nil, orierr.New(orierr.Malformed, "model: graft path/commit set without graft repo")
	}

	w := &writer{}
	w.writeHash(c.TreeHash)

	parentCount := uint8(1)
	if c.HasSecondParent() {
		parentCount = 2
	}
	w.writeUint8(parentCount)
	w.writeHash(c.Parent1)
	if parentCount == 2 {
		w.writeHash(c.Parent2)
	}

	w.writePStr(c.User)
	w.writeInt64(c.Timestamp.UTC().Unix())
	w.writePStr(c.SnapshotName)
	w.writePStr(c.GraftRepo)
	w.writePStr(c.GraftPath)
	w.writeHash(c.GraftCommitHash)
	w.writePStr(c.Message)

	return w.buf.Bytes(), nil
}

// DecodeCommit is the inverse of EncodeCommit.
func DecodeCommit(data []byte) (Commit, error) {
	r := newReader(data)
	var c Commit
	var err error

	if c.TreeHash, err = r.readHash(); err != nil {
		return Commit{}, err
	}
	parentCount, err := r.readUint8()
	if err != nil {
		return Commit{}, err
	}
	if parentCount != 1 && parentCount != 2 {
		return Commit{}, orierr.New(orierr.Malformed, fmt.Sprintf("model: invalid parent count %d", parentCount))
	}
	if c.Parent1, err = r.readHash(); err != nil {
		return Commit{}, err
	}
	if parentCount == 2 {
		if c.Parent2, err = r.readHash(); err != nil {
			return Commit{}, err
		}
	}

	if c.User, err = r.readPStr(); err != nil {
		return Commit{}, err
	}
	ts, err := r.readInt64()
	if err != nil {
		return Commit{}, err
	}
	c.Timestamp = time.Unix(ts, 0).UTC()
	if c.SnapshotName, err = r.readPStr(); err != nil {
		return Commit{}, err
	}
	if c.GraftRepo, err = r.readPStr(); err != nil {
		return Commit{}, err
	}
	if c.GraftPath, err = r.readPStr(); err != nil {
		return Commit{}, err
	}
	if c.GraftCommitHash, err = r.readHash(); err != nil {
		return Commit{}, err
	}
	if c.Message, err = r.readPStr(); err != nil {
		return Commit{}, err
	}
	if len(r.remaining()) != 0 {
		return Commit{}, orierr.New(orierr.Malformed, "model: trailing bytes after commit")
	}
	if c.GraftRepo == "" && (c.GraftPath != "" || !c.GraftCommitHash.IsEmpty()) {
		return Commit{}, orierr.New(orierr.Malformed, "model: graft path/commit set without graft repo")
	}
	return c, nil
}

const (
	attrTagString uint8 = iota
	attrTagUint
	attrTagTime
)

func writeAttrMap(w *writer, attrs AttrMap) {
	names := make([]string, 0, len(attrs))
	for n := range attrs {
		names = append(names, string(n))
	}
	sort.Strings(names)

	w.writeUint32(uint32(len(names)))
	for _, name := range names {
		v := attrs[AttrName(name)]
		w.writePStr(name)
		switch v.Kind {
		case AttrKindString:
			w.writeUint8(attrTagString)
			w.writePStr(v.Str)
		case AttrKindUint:
			w.writeUint8(attrTagUint)
			w.writeUint64(v.UInt)
		case AttrKindTime:
			w.writeUint8(attrTagTime)
			w.writeInt64(v.Time.UTC().Unix())
		default:
			panic(fmt.Sprintf("model: unknown attribute kind %d", v.Kind))
		}
	}
}

func readAttrMap(r *reader) (AttrMap, error) {
	count, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	attrs := make(AttrMap, count)
	prevName := ""
	for i := uint32(0); i < count; i++ {
		name, err := r.readPStr()
		if err != nil {
			return nil, err
		}
		if i > 0 && name <= prevName {
			return nil, orierr.New(orierr.Malformed, "model: attribute names out of order or duplicated")
		}
		prevName = name

		tag, err := r.readUint8()
		if err != nil {
			return nil, err
		}
		var v AttrValue
		switch tag {
		case attrTagString:
			s, err := r.readPStr()
			if err != nil {
				return nil, err
			}
			v = StringAttr(s)
		case attrTagUint:
			u, err := r.readUint64()
			if err != nil {
				return nil, err
			}
			v = UintAttr(u)
		case attrTagTime:
			ts, err := r.readInt64()
			if err != nil {
				return nil, err
			}
			v = TimeAttr(time.Unix(ts, 0).UTC())
		default:
			return nil, orierr.New(orierr.Malformed, fmt.Sprintf("model: unknown attribute tag %d", tag))
		}
		attrs[AttrName(name)] = v
	}
	return attrs, nil
}

// EncodeTree produces t's canonical bytes, always in name order
// regardless of t.Entries' input order.
func EncodeTree(t Tree) ([]byte, error) {
	entries := append([]TreeEntry(nil), t.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	for i := 1; i < len(entries); i++ {
		if entries[i].Name == entries[i-1].Name {
			return nil, orierr.New(orierr.Malformed, fmt.Sprintf("model: duplicate tree entry name %q", entries[i].Name))
		}
	}

	w := &writer{}
	w.writeUint32(uint32(len(entries)))
	for _, e := range entries {
		w.writeUint8(uint8(e.Type))
		w.writeUint16(e.Mode)
		w.writePStr(e.Name)
		w.writeHash(e.Hash)
		writeAttrMap(w, e.Attrs)
	}
	return w.buf.Bytes(), nil
}

// DecodeTree is the inverse of EncodeTree.
func DecodeTree(data []byte) (Tree, error) {
	r := newReader(data)
	count, err := r.readUint32()
	if err != nil {
		return Tree{}, err
	}
	entries := make([]TreeEntry, count)
	prevName := ""
	for i := uint32(0); i < count; i++ {
		typTag, err := r.readUint8()
		if err != nil {
			return Tree{}, err
		}
		if typTag > uint8(EntryTree) {
			return Tree{}, orierr.New(orierr.Malformed, fmt.Sprintf("model: unknown entry type %d", typTag))
		}
		mode, err := r.readUint16()
		if err != nil {
			return Tree{}, err
		}
		name, err := r.readPStr()
		if err != nil {
			return Tree{}, err
		}
		if i > 0 && name <= prevName {
			return Tree{}, orierr.New(orierr.Malformed, "model: tree entries out of order or duplicated")
		}
		prevName = name
		hash, err := r.readHash()
		if err != nil {
			return Tree{}, err
		}
		attrs, err := readAttrMap(r)
		if err != nil {
			return Tree{}, err
		}
		entries[i] = TreeEntry{Type: EntryType(typTag), Mode: mode, Name: name, Hash: hash, Attrs: attrs}
	}
	if len(r.remaining()) != 0 {
		return Tree{}, orierr.New(orierr.Malformed, "model: trailing bytes after tree")
	}
	return Tree{Entries: entries}, nil
}

// EncodeLargeBlob produces lb's canonical bytes.
func EncodeLargeBlob(lb LargeBlob) ([]byte, error) {
	w := &writer{}
	w.writeUint32(uint32(len(lb.Fragments)))
	for _, f := range lb.Fragments {
		w.writeUint64(f.Offset)
		w.writeUint64(f.Length)
		w.writeHash(f.ChunkHash)
	}
	return w.buf.Bytes(), nil
}

// DecodeLargeBlob is the inverse of EncodeLargeBlob.
func DecodeLargeBlob(data []byte) (LargeBlob, error) {
	r := newReader(data)
	count, err := r.readUint32()
	if err != nil {
		return LargeBlob{}, err
	}
	frags := make([]Fragment, count)
	for i := uint32(0); i < count; i++ {
		offset, err := r.readUint64()
		if err != nil {
			return LargeBlob{}, err
		}
		length, err := r.readUint64()
		if err != nil {
			return LargeBlob{}, err
		}
		hash, err := r.readHash()
		if err != nil {
			return LargeBlob{}, err
		}
		frags[i] = Fragment{Offset: offset, Length: length, ChunkHash: hash}
	}
	if len(r.remaining()) != 0 {
		return LargeBlob{}, orierr.New(orierr.Malformed, "model: trailing bytes after large blob")
	}
	return LargeBlob{Fragments: frags}, nil
}
