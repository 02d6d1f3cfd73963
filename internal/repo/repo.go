// Package repo implements Repo, the high-level facade over a single
// Ori repository: the object Store, HEAD management, and the
// commit/tree/blob operations every other package (Overlay, the CLI,
// replication) builds on.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ori-fs/ori/internal/bytestream"
	"github.com/ori-fs/ori/internal/chunk"
	"github.com/ori-fs/ori/internal/hashid"
	"github.com/ori-fs/ori/internal/model"
	"github.com/ori-fs/ori/internal/objfile"
	"github.com/ori-fs/ori/internal/orierr"
	"github.com/ori-fs/ori/internal/store"
)

// Version is the literal contents of .ori/version for repositories
// created by this implementation.
const Version = "ORI1.0"

const (
	dirName      = ".ori"
	objsDirName  = "objs"
	tmpDirName   = "tmp"
	versionFile  = "version"
	idFile       = "id"
	headFile     = "HEAD"
	logFile      = "ori.log"
	dirstateFile = "dirstate"
)

// Repo is an open Ori repository: an immutable uuid, a format version,
// and a mutable HEAD pointer, backed by a content-addressed Store.
type Repo struct {
	root    string
	oriDir  string
	tmpDir  string
	store   *store.Store
	uuid    string
	version string
}

// RootDir returns the repository's working-tree root (the parent of
// .ori), used by the mount adapter's /.ori_control file.
func (r *Repo) RootDir() string { return r.root }

// OriDir returns the repository's .ori metadata directory.
func (r *Repo) OriDir() string { return r.oriDir }

// TmpDir returns the repository's .ori/tmp staging directory, shared by
// the Store and by the Overlay's spill files.
func (r *Repo) TmpDir() string { return r.tmpDir }

// LogPath returns the path to .ori/ori.log.
func (r *Repo) LogPath() string { return filepath.Join(r.oriDir, logFile) }

// DirstatePath returns the path to .ori/dirstate.
func (r *Repo) DirstatePath() string { return filepath.Join(r.oriDir, dirstateFile) }

// UUID returns the repository's immutable identifier.
func (r *Repo) UUID() string { return r.uuid }

// Version returns the repository's format version string.
func (r *Repo) Version() string { return r.version }

// Init creates a new repository at root: .ori/, .ori/objs/, .ori/tmp/,
// a fresh .ori/id, .ori/version, and an empty-HEAD .ori/HEAD.
func Init(root string) (*Repo, error) {
	oriDir := filepath.Join(root, dirName)
	if _, err := os.Stat(oriDir); err == nil {
		return nil, orierr.New(orierr.Exists, fmt.Sprintf("repo: %s already initialized", root))
	}

	for _, dir := range []string{oriDir, filepath.Join(oriDir, objsDirName), filepath.Join(oriDir, tmpDirName)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("repo: create %s: %w", dir, err)
		}
	}

	id := uuid.NewString()
	idPath := filepath.Join(oriDir, idFile)
	if err := os.WriteFile(idPath, []byte(id), 0440); err != nil {
		return nil, fmt.Errorf("repo: write id: %w", err)
	}

	if err := os.WriteFile(filepath.Join(oriDir, versionFile), []byte(Version), 0644); err != nil {
		return nil, fmt.Errorf("repo: write version: %w", err)
	}

	r := &Repo{
		root:    root,
		oriDir:  oriDir,
		tmpDir:  filepath.Join(oriDir, tmpDirName),
		store:   store.Open(filepath.Join(oriDir, objsDirName), filepath.Join(oriDir, tmpDirName)),
		uuid:    id,
		version: Version,
	}
	if err := r.UpdateHead(hashid.Empty); err != nil {
		return nil, err
	}
	return r, nil
}

// Open opens an existing repository rooted at root.
func Open(root string) (*Repo, error) {
	oriDir := filepath.Join(root, dirName)
	if _, err := os.Stat(oriDir); err != nil {
		return nil, orierr.New(orierr.NotFound, fmt.Sprintf("repo: no repository at %s", root))
	}

	idBytes, err := os.ReadFile(filepath.Join(oriDir, idFile))
	if err != nil {
		return nil, fmt.Errorf("repo: read id: %w", err)
	}
	versionBytes, err := os.ReadFile(filepath.Join(oriDir, versionFile))
	if err != nil {
		return nil, fmt.Errorf("repo: read version: %w", err)
	}

	return &Repo{
		root:    root,
		oriDir:  oriDir,
		tmpDir:  filepath.Join(oriDir, tmpDirName),
		store:   store.Open(filepath.Join(oriDir, objsDirName), filepath.Join(oriDir, tmpDirName)),
		uuid:    strings.TrimSpace(string(idBytes)),
		version: strings.TrimSpace(string(versionBytes)),
	}, nil
}

// Head returns the current HEAD commit hash, or the empty hash if the
// repository has no commits yet.
func (r *Repo) Head() (hashid.HashId, error) {
	data, err := os.ReadFile(filepath.Join(r.oriDir, headFile))
	if err != nil {
		return hashid.HashId{}, fmt.Errorf("repo: read HEAD: %w", err)
	}
	line := strings.TrimSpace(string(data))
	if line == "" {
		return hashid.Empty, nil
	}
	return hashid.FromHex(line)
}

// UpdateHead atomically rewrites .ori/HEAD to h, via write-to-temp then
// rename so a crash mid-write never leaves a truncated HEAD file.
func (r *Repo) UpdateHead(h hashid.HashId) error {
	path := filepath.Join(r.oriDir, headFile)
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".head-*")
	if err != nil {
		return fmt.Errorf("repo: create HEAD temp: %w", err)
	}
	tmp := f.Name()
	line := h.Hex() + "\n"
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("repo: write HEAD temp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("repo: fsync HEAD temp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("repo: close HEAD temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("repo: rename HEAD temp: %w", err)
	}
	return nil
}

// AddFile reads the file at path and stores it: as a single Blob if its
// size is at or below chunk.LargeBlobThreshold, otherwise as a
// content-defined-chunked LargeBlob whose fragments are each stored as
// an ordinary Blob.
func (r *Repo) AddFile(path string) (hashid.HashId, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return hashid.HashId{}, fmt.Errorf("repo: read %s: %w", path, err)
	}
	return r.AddFileBytes(data)
}

// AddFileBytes is AddFile's content-addressed core, split out so the
// Overlay can hash spill-file content without round-tripping through a
// path.
func (r *Repo) AddFileBytes(data []byte) (hashid.HashId, error) {
	if len(data) <= chunk.LargeBlobThreshold {
		return r.store.PutBytes(objfile.TypeBlob, data)
	}

	frags := chunk.Split(data)
	lb := model.LargeBlob{Fragments: make([]model.Fragment, len(frags))}
	for i, f := range frags {
		chunkHash, err := r.store.PutBytes(objfile.TypeBlob, f.Data)
		if err != nil {
			return hashid.HashId{}, fmt.Errorf("repo: store fragment: %w", err)
		}
		lb.Fragments[i] = model.Fragment{Offset: uint64(f.Offset), Length: uint64(len(f.Data)), ChunkHash: chunkHash}
	}

	encoded, err := model.EncodeLargeBlob(lb)
	if err != nil {
		return hashid.HashId{}, fmt.Errorf("repo: encode large blob: %w", err)
	}
	lbHash, err := r.store.PutBytes(objfile.TypeLargeBlob, encoded)
	if err != nil {
		return hashid.HashId{}, fmt.Errorf("repo: store large blob: %w", err)
	}
	for _, f := range lb.Fragments {
		if err := r.store.AddBackref(f.ChunkHash, lbHash, objfile.RoleRef); err != nil {
			return hashid.HashId{}, fmt.Errorf("repo: backref fragment: %w", err)
		}
	}
	return lbHash, nil
}

// HashContent computes the hash AddFileBytes would assign data, without
// writing anything to the Store. The working-tree scanner (status,
// commit) uses this to detect a modified file by comparing it against
// a Tree entry's recorded hash, without paying for a store round trip
// on every unchanged file.
func (r *Repo) HashContent(data []byte) (hashid.HashId, error) {
	if len(data) <= chunk.LargeBlobThreshold {
		return hashid.Sum(data), nil
	}
	frags := chunk.Split(data)
	lb := model.LargeBlob{Fragments: make([]model.Fragment, len(frags))}
	for i, f := range frags {
		lb.Fragments[i] = model.Fragment{Offset: uint64(f.Offset), Length: uint64(len(f.Data)), ChunkHash: hashid.Sum(f.Data)}
	}
	encoded, err := model.EncodeLargeBlob(lb)
	if err != nil {
		return hashid.HashId{}, fmt.Errorf("repo: encode large blob: %w", err)
	}
	return hashid.Sum(encoded), nil
}

// AddTree stores tree and records a BackRef from tree's hash to every
// entry it names.
func (r *Repo) AddTree(tree model.Tree) (hashid.HashId, error) {
	encoded, err := model.EncodeTree(tree)
	if err != nil {
		return hashid.HashId{}, fmt.Errorf("repo: encode tree: %w", err)
	}
	h, err := r.store.PutBytes(objfile.TypeTree, encoded)
	if err != nil {
		return hashid.HashId{}, fmt.Errorf("repo: store tree: %w", err)
	}
	for _, e := range tree.Entries {
		if err := r.store.AddBackref(e.Hash, h, objfile.RoleRef); err != nil {
			return hashid.HashId{}, fmt.Errorf("repo: backref tree entry %s: %w", e.Name, err)
		}
	}
	return h, nil
}

// AddCommit stores c and records a BackRef from its hash to its tree,
// each parent, and its graft commit (if any).
func (r *Repo) AddCommit(c model.Commit) (hashid.HashId, error) {
	if c.TreeHash.Equal(c.Parent1) || c.TreeHash.Equal(c.Parent2) {
		return hashid.HashId{}, orierr.New(orierr.Malformed, "repo: commit tree hash collides with a parent")
	}
	encoded, err := model.EncodeCommit(c)
	if err != nil {
		return hashid.HashId{}, fmt.Errorf("repo: encode commit: %w", err)
	}
	h, err := r.store.PutBytes(objfile.TypeCommit, encoded)
	if err != nil {
		return hashid.HashId{}, fmt.Errorf("repo: store commit: %w", err)
	}
	if h.Equal(c.Parent1) || h.Equal(c.Parent2) {
		return hashid.HashId{}, orierr.New(orierr.Malformed, "repo: commit hash collides with its own parent")
	}

	targets := []hashid.HashId{c.TreeHash, c.Parent1}
	if c.HasSecondParent() {
		targets = append(targets, c.Parent2)
	}
	if c.IsGraft() {
		targets = append(targets, c.GraftCommitHash)
	}
	for _, t := range targets {
		if t.IsEmpty() {
			continue
		}
		if err := r.store.AddBackref(t, h, objfile.RoleRef); err != nil {
			return hashid.HashId{}, fmt.Errorf("repo: backref commit target: %w", err)
		}
	}
	return h, nil
}

// GetBlob fetches h's raw bytes, failing WrongType if h names something
// other than a Blob.
func (r *Repo) GetBlob(h hashid.HashId) ([]byte, error) {
	stream, err := r.store.Get(h, objfile.TypeBlob)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	return bytestream.ReadAll(stream)
}

// GetLargeBlob fetches and decodes h's LargeBlob descriptor.
func (r *Repo) GetLargeBlob(h hashid.HashId) (model.LargeBlob, error) {
	stream, err := r.store.Get(h, objfile.TypeLargeBlob)
	if err != nil {
		return model.LargeBlob{}, err
	}
	defer stream.Close()
	data, err := bytestream.ReadAll(stream)
	if err != nil {
		return model.LargeBlob{}, err
	}
	return model.DecodeLargeBlob(data)
}

// GetLargeBlobContent reassembles the full logical file named by a
// LargeBlob descriptor, fetching each fragment's Blob from the Store.
func (r *Repo) GetLargeBlobContent(lb model.LargeBlob) ([]byte, error) {
	out := make([]byte, lb.Size())
	for _, f := range lb.Fragments {
		data, err := r.GetBlob(f.ChunkHash)
		if err != nil {
			return nil, fmt.Errorf("repo: fetch fragment %s: %w", f.ChunkHash, err)
		}
		if uint64(len(data)) != f.Length {
			return nil, orierr.New(orierr.IntegrityError, fmt.Sprintf("repo: fragment %s length mismatch", f.ChunkHash))
		}
		copy(out[f.Offset:f.Offset+f.Length], data)
	}
	return out, nil
}

// GetLargeBlobRange reassembles only the portion of a LargeBlob's logical
// content that overlaps [offset, offset+length), fetching just the
// fragments that cover the requested range instead of the whole file.
// It is the shallow/none cache modes' read path.
func (r *Repo) GetLargeBlobRange(lb model.LargeBlob, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, orierr.New(orierr.InvalidArgument, "repo: negative offset or length")
	}
	size := int64(lb.Size())
	if offset >= size || length == 0 {
		return nil, nil
	}
	end := offset + length
	if end > size {
		end = size
	}
	out := make([]byte, end-offset)
	for _, f := range lb.Fragments {
		fStart := int64(f.Offset)
		fEnd := fStart + int64(f.Length)
		if fEnd <= offset || fStart >= end {
			continue
		}
		data, err := r.GetBlob(f.ChunkHash)
		if err != nil {
			return nil, fmt.Errorf("repo: fetch fragment %s: %w", f.ChunkHash, err)
		}
		if uint64(len(data)) != f.Length {
			return nil, orierr.New(orierr.IntegrityError, fmt.Sprintf("repo: fragment %s length mismatch", f.ChunkHash))
		}
		copyStart := fStart
		if copyStart < offset {
			copyStart = offset
		}
		copyEnd := fEnd
		if copyEnd > end {
			copyEnd = end
		}
		copy(out[copyStart-offset:copyEnd-offset], data[copyStart-fStart:copyEnd-fStart])
	}
	return out, nil
}

// Purge replaces a Blob's content with a tombstone, refusing anything
// that isn't a plain Blob: LargeBlobs, Trees, and Commits purge via their
// constituent fragments instead of directly.
func (r *Repo) Purge(h hashid.HashId) error {
	typ, err := r.store.TypeOf(h)
	if err != nil {
		return err
	}
	if typ != objfile.TypeBlob {
		return orierr.New(orierr.WrongType, fmt.Sprintf("repo: %s is not a blob", h))
	}
	return r.store.Purge(h)
}

// GetTree fetches and decodes h's Tree.
func (r *Repo) GetTree(h hashid.HashId) (model.Tree, error) {
	stream, err := r.store.Get(h, objfile.TypeTree)
	if err != nil {
		return model.Tree{}, err
	}
	defer stream.Close()
	data, err := bytestream.ReadAll(stream)
	if err != nil {
		return model.Tree{}, err
	}
	return model.DecodeTree(data)
}

// GetCommit fetches and decodes h's Commit.
func (r *Repo) GetCommit(h hashid.HashId) (model.Commit, error) {
	stream, err := r.store.Get(h, objfile.TypeCommit)
	if err != nil {
		return model.Commit{}, err
	}
	defer stream.Close()
	data, err := bytestream.ReadAll(stream)
	if err != nil {
		return model.Commit{}, err
	}
	return model.DecodeCommit(data)
}

// ListSnapshots enumerates every reachable Commit with a non-empty
// SnapshotName, keyed by name, by walking the history from HEAD.
func (r *Repo) ListSnapshots() (map[string]hashid.HashId, error) {
	head, err := r.Head()
	if err != nil {
		return nil, err
	}
	out := make(map[string]hashid.HashId)
	seen := make(map[hashid.HashId]bool)
	queue := []hashid.HashId{head}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h.IsEmpty() || seen[h] {
			continue
		}
		seen[h] = true
		c, err := r.GetCommit(h)
		if err != nil {
			return nil, err
		}
		if c.SnapshotName != "" {
			out[c.SnapshotName] = h
		}
		if !c.Parent1.IsEmpty() {
			queue = append(queue, c.Parent1)
		}
		if c.HasSecondParent() {
			queue = append(queue, c.Parent2)
		}
	}
	return out, nil
}

// The methods below form the narrow read contract replication's Pull
// walks against, satisfied structurally by *Repo without repo importing
// the replication package: HasObject/GetObjectBytes/TypeOf/ListHeads for
// reading, and InsertRaw for writing a fetched object under its expected
// hash.

// HasObject reports whether h is present in the local Store.
func (r *Repo) HasObject(h hashid.HashId) bool {
	return r.store.HasObject(h)
}

// ListObjects returns every hash currently in the local Store, for the
// CLI's `listobj` command and refcount's full-repository scan.
func (r *Repo) ListObjects() ([]hashid.HashId, error) {
	return r.store.ListObjects()
}

// GetObjectBytes returns h's on-disk payload bytes together with its
// type tag, for a remote peer (or the local Pull caller) to ship
// verbatim; it does not type-check against an expected tag the way
// GetBlob/GetTree/GetCommit do.
func (r *Repo) GetObjectBytes(h hashid.HashId) (objfile.Type, []byte, error) {
	rec, err := r.store.GetRaw(h)
	if err != nil {
		return 0, nil, err
	}
	return rec.Type, rec.Payload, nil
}

// TypeOf reads h's type tag without decoding its payload.
func (r *Repo) TypeOf(h hashid.HashId) (objfile.Type, error) {
	return r.store.TypeOf(h)
}

// ListHeads returns the repository's HEAD as a single-element slice, or
// an empty slice for a repository with no commits yet. A slice result
// (rather than a single hash) keeps the read contract uniform with
// future multi-head support without a breaking signature change.
func (r *Repo) ListHeads() ([]hashid.HashId, error) {
	h, err := r.Head()
	if err != nil {
		return nil, err
	}
	if h.IsEmpty() {
		return nil, nil
	}
	return []hashid.HashId{h}, nil
}

// InsertRaw stores payload under typ and returns its hash, which the
// caller (replication's Pull) must compare against the hash it expected
// to receive; a mismatch means the remote peer sent corrupt data.
func (r *Repo) InsertRaw(typ objfile.Type, payload []byte) (hashid.HashId, error) {
	return r.store.PutBytes(typ, payload)
}

// AddBackref exposes the Store's BackRef maintenance for callers (Pull,
// graft's import) that insert objects out of the addFile/addTree/addCommit
// path and must still keep the index symmetric.
func (r *Repo) AddBackref(target, from hashid.HashId, role objfile.Role) error {
	return r.store.AddBackref(target, from, role)
}
