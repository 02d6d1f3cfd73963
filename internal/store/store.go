// Package store implements Ori's content-addressed object store: the
// directory-sharded on-disk layout, atomic insertion, and the operations
// that layer back-references and purging on top of internal/objfile's
// framing.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/ori-fs/ori/internal/bytestream"
	"github.com/ori-fs/ori/internal/hashid"
	"github.com/ori-fs/ori/internal/objfile"
	"github.com/ori-fs/ori/internal/orierr"
)

// CompressThreshold is the payload size at or above which PutBytes compresses
// before writing. Below it the framing overhead of compression isn't
// worth paying.
const CompressThreshold = 4096

// Store is a directory-sharded collection of immutable object files
// rooted at objsDir, staged through tmpDir before each atomic rename.
type Store struct {
	objsDir string
	tmpDir  string
}

// Open returns a Store rooted at objsDir, staging new objects through
// tmpDir. Both directories must already exist; internal/repo creates them
// as part of initializing a repository's .ori layout.
func Open(objsDir, tmpDir string) *Store {
	return &Store{objsDir: objsDir, tmpDir: tmpDir}
}

func (s *Store) objPath(h hashid.HashId) string {
	return filepath.Join(s.objsDir, h.ShardDir(), h.ShardName())
}

// HasObject reports whether h is present in the store.
func (s *Store) HasObject(h hashid.HashId) bool {
	_, err := os.Stat(s.objPath(h))
	return err == nil
}

// PutBytes computes the hash of payload, and if an object with that hash
// isn't already present, stores it under the given type and returns the
// hash either way. A new object starts with an empty BackRef index;
// callers add edges separately via AddBackref as its referrers are
// stored (a commit referencing a tree, a tree referencing a blob, and so
// on).
func (s *Store) PutBytes(typ objfile.Type, payload []byte) (hashid.HashId, error) {
	h := hashid.Sum(payload)
	if s.HasObject(h) {
		return h, nil
	}

	compress := len(payload) >= CompressThreshold && typ != objfile.TypePurged
	data, err := objfile.Encode(objfile.Record{
		Type:       typ,
		Compressed: compress,
		Payload:    payload,
	}, zstdCompress)
	if err != nil {
		return hashid.HashId{}, fmt.Errorf("store: encode %s: %w", h, err)
	}

	path := s.objPath(h)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return hashid.HashId{}, fmt.Errorf("store: mkdir shard: %w", err)
	}
	if err := s.stageAndRename(path, data); err != nil {
		return hashid.HashId{}, err
	}
	return h, nil
}

// stageAndRename writes data to a temp file under tmpDir and renames it
// into place at path, mirroring the reference implementation's
// stage-then-link insertion so a crash mid-write never leaves a partial
// object visible under its final name.
func (s *Store) stageAndRename(path string, data []byte) (err error) {
	f, err := os.CreateTemp(s.tmpDir, ".obj-*")
	if err != nil {
		return fmt.Errorf("store: create staging file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()
	if _, err = f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("store: write staging file: %w", err)
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("store: fsync staging file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("store: close staging file: %w", err)
	}
	if err = os.Chmod(tmp, 0444); err != nil {
		return fmt.Errorf("store: chmod staging file: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: rename into place: %w", err)
	}
	return nil
}

// Get opens h and returns a stream over its decompressed payload, after
// validating the on-disk tag matches typ (WrongType otherwise).
func (s *Store) Get(h hashid.HashId, typ objfile.Type) (bytestream.Stream, error) {
	rec, err := s.readRecord(h)
	if err != nil {
		return nil, err
	}
	if rec.Type != typ {
		return nil, orierr.New(orierr.WrongType, fmt.Sprintf("store: %s is %s, want %s", h, rec.Type, typ))
	}
	return bytestream.NewMemoryStream(rec.Payload), nil
}

// GetRaw opens h without a type check, for callers (verify, catobj) that
// need to inspect whatever is there.
func (s *Store) GetRaw(h hashid.HashId) (objfile.Record, error) {
	return s.readRecord(h)
}

func (s *Store) readRecord(h hashid.HashId) (objfile.Record, error) {
	data, err := os.ReadFile(s.objPath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return objfile.Record{}, orierr.New(orierr.NotFound, fmt.Sprintf("store: %s not found", h))
		}
		return objfile.Record{}, fmt.Errorf("store: read %s: %w", h, err)
	}
	rec, err := objfile.Decode(data, zstdDecompress)
	if err != nil {
		return objfile.Record{}, fmt.Errorf("store: decode %s: %w", h, err)
	}
	return rec, nil
}

// TypeOf reads just the type tag of h.
func (s *Store) TypeOf(h hashid.HashId) (objfile.Type, error) {
	f, err := os.Open(s.objPath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, orierr.New(orierr.NotFound, fmt.Sprintf("store: %s not found", h))
		}
		return 0, fmt.Errorf("store: open %s: %w", h, err)
	}
	defer f.Close()
	var buf [4]byte
	if _, err := f.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("store: read tag of %s: %w", h, err)
	}
	return objfile.PeekType(buf[:])
}

// ListObjects walks the shard directories and returns every hash present.
func (s *Store) ListObjects() ([]hashid.HashId, error) {
	var out []hashid.HashId
	shards, err := os.ReadDir(s.objsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: list shards: %w", err)
	}
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.objsDir, shard.Name()))
		if err != nil {
			return nil, fmt.Errorf("store: list shard %s: %w", shard.Name(), err)
		}
		for _, e := range entries {
			h, err := hashid.FromHex(shard.Name() + e.Name())
			if err != nil {
				continue
			}
			out = append(out, h)
		}
	}
	return out, nil
}

// Purge rewrites h's on-disk record into a tombstone. Only a Blob may be
// purged; its BackRefs are preserved.
func (s *Store) Purge(h hashid.HashId) error {
	path := s.objPath(h)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return orierr.New(orierr.NotFound, fmt.Sprintf("store: %s not found", h))
		}
		return fmt.Errorf("store: read %s: %w", h, err)
	}
	purged, err := objfile.Purge(data)
	if err != nil {
		return err
	}
	return safeWrite(path, purged, 0444)
}

// GetRefs returns the BackRef index of h.
func (s *Store) GetRefs(h hashid.HashId) ([]objfile.BackRef, error) {
	rec, err := s.readRecordRaw(h)
	if err != nil {
		return nil, err
	}
	return rec.BackRefs, nil
}

// readRecordRaw decodes h without decompressing the payload's internal
// structure any further than objfile already does; kept distinct from
// readRecord only for readability at call sites that only want BackRefs.
func (s *Store) readRecordRaw(h hashid.HashId) (objfile.Record, error) {
	return s.readRecord(h)
}

// AddBackref appends a BackRef edge {from, role} to h's trailing index.
// It is not safe for concurrent use on the same h: the index is read,
// extended and rewritten without a lock, here or in internal/repo.
func (s *Store) AddBackref(h hashid.HashId, from hashid.HashId, role objfile.Role) error {
	refs, err := s.GetRefs(h)
	if err != nil {
		return err
	}
	for _, r := range refs {
		if r.From == from && r.Role == role {
			return nil
		}
	}
	refs = append(refs, objfile.BackRef{From: from, Role: role})
	return s.rewriteBackRefs(h, refs)
}

// ClearMetadata empties h's BackRef index, used by rebuildrefs before
// replaying the full DAG walk.
func (s *Store) ClearMetadata(h hashid.HashId) error {
	return s.rewriteBackRefs(h, nil)
}

func (s *Store) rewriteBackRefs(h hashid.HashId, refs []objfile.BackRef) error {
	path := s.objPath(h)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return orierr.New(orierr.NotFound, fmt.Sprintf("store: %s not found", h))
		}
		return fmt.Errorf("store: read %s: %w", h, err)
	}
	updated, err := objfile.ReplaceBackRefs(data, refs)
	if err != nil {
		return err
	}
	return safeWrite(path, updated, 0444)
}

func zstdCompress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func zstdDecompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
