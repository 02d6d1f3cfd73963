package overlay

import (
	"os"
	"time"

	"github.com/ori-fs/ori/internal/chunk"
	"github.com/ori-fs/ori/internal/hashid"
	"github.com/ori-fs/ori/internal/model"
	"github.com/ori-fs/ori/internal/objfile"
)

// Commit traverses the overlay bottom-up, hashes every Dirty file's
// content, builds the Tree chain over it, and records a new Commit
// whose parent is the overlay's base. On success it advances the Repo's
// HEAD, rebases the overlay onto the new commit (everything becomes
// Committed with fresh hashes, spill files are released), and truncates
// the journal.
func (o *Overlay) Commit(message, user string) (hashid.HashId, error) {
	o.nsLock.Lock()
	defer o.nsLock.Unlock()

	rootHash, err := o.commitDirLocked("/")
	if err != nil {
		return hashid.Empty, err
	}

	c := model.Commit{
		TreeHash:  rootHash,
		Parent1:   o.base,
		User:      user,
		Timestamp: time.Now().UTC(),
		Message:   message,
	}
	h, err := o.repo.AddCommit(c)
	if err != nil {
		return hashid.Empty, err
	}
	if err := o.repo.UpdateHead(h); err != nil {
		return hashid.Empty, err
	}
	o.base = h

	if err := o.journal.Truncate(); err != nil {
		return h, err
	}
	return h, nil
}

// commitDirLocked hashes dirPath's current children into a Tree and
// returns its hash, recursing into subdirectories first so a directory
// is only written once every entry it names is durable. Callers must
// hold nsLock for writing.
func (o *Overlay) commitDirLocked(dirPath string) (hashid.HashId, error) {
	dir := o.entries[dirPath]
	if dir.State == StateCommitted && !dir.Hash.IsEmpty() && len(dir.children) == 0 {
		// Never expanded since it was loaded: its committed tree is unchanged.
		return dir.Hash, nil
	}
	tree := model.Tree{Entries: make([]model.TreeEntry, 0, len(dir.children))}

	for name := range dir.children {
		childPath := joinPath(dirPath, name)
		child := o.entries[childPath]

		var entry model.TreeEntry
		switch child.Kind {
		case KindDir:
			childHash, err := o.commitDirLocked(childPath)
			if err != nil {
				return hashid.Empty, err
			}
			entry = model.TreeEntry{Type: model.EntryTree, Mode: uint16(child.Stat.Mode), Name: name, Hash: childHash}
		case KindReg:
			h, isLarge, err := o.commitFileLocked(child)
			if err != nil {
				return hashid.Empty, err
			}
			typ := model.EntryBlob
			if isLarge {
				typ = model.EntryLargeBlob
			}
			entry = model.TreeEntry{Type: typ, Mode: uint16(child.Stat.Mode), Name: name, Hash: h}
		case KindSymlink:
			h, err := o.repo.AddFileBytes([]byte(child.Link))
			if err != nil {
				return hashid.Empty, err
			}
			entry = model.TreeEntry{Type: model.EntryBlob, Mode: uint16(child.Stat.Mode) | symlinkModeBit, Name: name, Hash: h}
		}
		entry.Attrs = attrsFor(child.Stat)
		tree.Entries = append(tree.Entries, entry)

		child.Hash = entry.Hash
		child.State = StateCommitted
		child.Path, child.f = closeSpill(child)
	}

	h, err := o.repo.AddTree(tree)
	if err != nil {
		return hashid.Empty, err
	}
	dir.Hash = h
	dir.State = StateCommitted
	return h, nil
}

// commitFileLocked returns child's content's hash, reading from its
// spill file if one is materialized and reusing its existing hash
// unchanged otherwise (an unmodified Committed file costs nothing to
// re-commit).
func (o *Overlay) commitFileLocked(child *FileInfo) (hashid.HashId, bool, error) {
	if child.State == StateCommitted || child.Path == "" {
		typ, err := o.repo.TypeOf(child.Hash)
		if err != nil {
			return child.Hash, false, nil
		}
		return child.Hash, typ == objfile.TypeLargeBlob, nil
	}
	data, err := os.ReadFile(child.Path)
	if err != nil {
		return hashid.Empty, false, err
	}
	h, err := o.repo.AddFileBytes(data)
	if err != nil {
		return hashid.Empty, false, err
	}
	return h, len(data) > chunk.LargeBlobThreshold, nil
}

func closeSpill(fi *FileInfo) (string, *os.File) {
	if fi.f != nil {
		fi.f.Close()
	}
	if fi.Path != "" {
		os.Remove(fi.Path)
	}
	return "", nil
}

func attrsFor(st StatInfo) model.AttrMap {
	return model.AttrMap{
		model.AttrPerms:    model.UintAttr(uint64(st.Mode)),
		model.AttrFilesize: model.UintAttr(uint64(st.Size)),
		model.AttrMtime:    model.TimeAttr(st.Mtime),
		model.AttrCtime:    model.TimeAttr(st.Ctime),
	}
}
