// Package model defines Ori's three object types — Commit, Tree, and
// LargeBlob — and their canonical binary encodings. A canonical encoding
// is deterministic byte-for-byte for equal values, because every
// object's HashId is SHA-256 of exactly these bytes, never of the
// on-disk (possibly compressed) framing internal/objfile wraps them in.
package model

import (
	"time"

	"github.com/ori-fs/ori/internal/hashid"
)

// EntryType classifies what a TreeEntry points at.
type EntryType uint8

const (
	EntryBlob EntryType = iota
	EntryLargeBlob
	EntryTree
)

// AttrName is one of the fixed attribute keys a TreeEntry's AttrMap may
// carry. The set is closed: encode/decode never need an escape hatch for
// an unknown attribute.
type AttrName string

const (
	AttrUsername AttrName = "USERNAME"
	AttrPerms    AttrName = "PERMS"
	AttrFilesize AttrName = "FILESIZE"
	AttrMtime    AttrName = "MTIME"
	AttrCtime    AttrName = "CTIME"
)

// AttrValue is a tagged union over the value kinds AttrMap entries can
// hold: a string, an unsigned integer, or a timestamp. Exactly one of
// Str/UInt/Time is meaningful, selected by Kind.
type AttrValue struct {
	Kind AttrKind
	Str  string
	UInt uint64
	Time time.Time
}

// AttrKind is the type tag for an AttrValue.
type AttrKind uint8

const (
	AttrKindString AttrKind = iota
	AttrKindUint
	AttrKindTime
)

func StringAttr(s string) AttrValue { return AttrValue{Kind: AttrKindString, Str: s} }
func UintAttr(v uint64) AttrValue   { return AttrValue{Kind: AttrKindUint, UInt: v} }
func TimeAttr(t time.Time) AttrValue {
	return AttrValue{Kind: AttrKindTime, Time: t}
}

// AttrMap is the collection of attributes on a TreeEntry; the codec
// writes it sorted by name.
type AttrMap map[AttrName]AttrValue

// TreeEntry is one directory record.
type TreeEntry struct {
	Type  EntryType
	Mode  uint16
	Name  string
	Hash  hashid.HashId
	Attrs AttrMap
}

// Tree is an ordered mapping from directory-entry name to TreeEntry. Its
// canonical encoding always visits entries in name order, which is what
// makes two trees with the same contents hash identically regardless of
// insertion order.
type Tree struct {
	Entries []TreeEntry
}

// Commit links a Tree into the repository's history.
type Commit struct {
	TreeHash        hashid.HashId
	Parent1         hashid.HashId
	Parent2         hashid.HashId // empty means single-parent
	User            string
	Timestamp       time.Time
	SnapshotName    string
	GraftRepo       string
	GraftPath       string
	GraftCommitHash hashid.HashId
	Message         string
}

// HasSecondParent reports whether this is a merge commit.
func (c Commit) HasSecondParent() bool {
	return !c.Parent2.IsEmpty()
}

// IsGraft reports whether this commit records a graft's provenance.
func (c Commit) IsGraft() bool {
	return c.GraftRepo != ""
}

// Fragment is one piece of a LargeBlob: a byte range of the logical file
// and the HashId of the Blob object holding that range's content.
type Fragment struct {
	Offset    uint64
	Length    uint64
	ChunkHash hashid.HashId
}

// LargeBlob is a logical file too large to address as a single Blob: an
// ordered list of fragments whose concatenation reconstructs the file.
type LargeBlob struct {
	Fragments []Fragment
}

// Size returns the logical size of the reconstructed file.
func (lb LargeBlob) Size() uint64 {
	var total uint64
	for _, f := range lb.Fragments {
		total += f.Length
	}
	return total
}
