package overlay

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/ori-fs/ori/internal/objfile"
	"github.com/ori-fs/ori/internal/orierr"
)

// addEntryLocked inserts a freshly allocated FileInfo for name inside
// parentPath, marking the parent dirty. Callers must hold nsLock for
// writing and have already validated parentPath exists and name is free.
func (o *Overlay) addEntryLocked(parentPath, name string, fi *FileInfo) {
	parent := o.entries[parentPath]
	parent.children[name] = true
	parent.State = StateDirty
	now := time.Now().UTC()
	fi.Stat.Mtime = now
	fi.Stat.Ctime = now
	o.entries[joinPath(parentPath, name)] = fi
}

func (o *Overlay) checkNewEntry(path string) (parent string, name string, err error) {
	parent = parentPath(path)
	name = baseName(path)
	if name == "" {
		return "", "", orierr.New(orierr.InvalidArgument, "overlay: empty name")
	}
	if _, exists := o.entries[path]; exists {
		return "", "", orierr.New(orierr.Exists, "overlay: "+path+" already exists")
	}
	parentInfo, ok := o.entries[parent]
	if !ok {
		return "", "", orierr.New(orierr.NotFound, "overlay: parent "+parent+" not found")
	}
	if parentInfo.Kind != KindDir {
		return "", "", orierr.New(orierr.WrongType, "overlay: parent "+parent+" is not a directory")
	}
	return parent, name, nil
}

// AddFile creates a new empty regular file at path in the Dirty state.
func (o *Overlay) AddFile(path string, mode uint32) (*FileInfo, error) {
	o.nsLock.Lock()
	defer o.nsLock.Unlock()
	parentPath, _, err := o.checkNewEntry(path)
	if err != nil {
		return nil, err
	}
	if _, err := o.lookupDirLocked(parentPath); err != nil {
		return nil, err
	}
	fi := &FileInfo{ID: o.allocID(), Kind: KindReg, Stat: StatInfo{Mode: mode}, State: StateDirty}
	o.addEntryLocked(parentPath, baseName(path), fi)
	o.journal.Append("addFile", path)
	return fi, nil
}

// AddDir creates a new empty directory at path in the Dirty state.
func (o *Overlay) AddDir(path string, mode uint32) (*FileInfo, error) {
	o.nsLock.Lock()
	defer o.nsLock.Unlock()
	parentPath, _, err := o.checkNewEntry(path)
	if err != nil {
		return nil, err
	}
	if _, err := o.lookupDirLocked(parentPath); err != nil {
		return nil, err
	}
	fi := &FileInfo{ID: o.allocID(), Kind: KindDir, Stat: StatInfo{Mode: mode}, State: StateDirty, children: make(map[string]bool)}
	o.addEntryLocked(parentPath, baseName(path), fi)
	o.journal.Append("addDir", path)
	return fi, nil
}

// AddSymlink creates a new symlink at path pointing at target.
func (o *Overlay) AddSymlink(path, target string) (*FileInfo, error) {
	o.nsLock.Lock()
	defer o.nsLock.Unlock()
	parentPath, _, err := o.checkNewEntry(path)
	if err != nil {
		return nil, err
	}
	if _, err := o.lookupDirLocked(parentPath); err != nil {
		return nil, err
	}
	fi := &FileInfo{ID: o.allocID(), Kind: KindSymlink, Stat: StatInfo{Mode: 0777}, Link: target, State: StateDirty}
	o.addEntryLocked(parentPath, baseName(path), fi)
	o.journal.Append("addSymlink", path+" -> "+target)
	return fi, nil
}

// spillPath returns the on-disk path a FileInfo's spill file lives at.
func (o *Overlay) spillPath(fi *FileInfo) string {
	return o.spillDir + "/" + strconv.FormatUint(fi.ID, 10)
}

// materializeLocked streams fi's committed content into a fresh spill
// file, so subsequent writes and pread-style reads operate on a local
// file instead of the Store. Callers must hold nsLock for writing.
func (o *Overlay) materializeLocked(fi *FileInfo) error {
	if fi.Path != "" {
		return nil
	}
	path := o.spillPath(fi)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if !fi.Hash.IsEmpty() {
		data, err := o.readCommittedLocked(fi)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return err
		}
	}
	fi.Path = path
	fi.f = f
	return nil
}

func (o *Overlay) readCommittedLocked(fi *FileInfo) ([]byte, error) {
	typ, err := o.repo.TypeOf(fi.Hash)
	if err != nil {
		return nil, err
	}
	switch typ {
	case objfile.TypeLargeBlob:
		lb, err := o.repo.GetLargeBlob(fi.Hash)
		if err != nil {
			return nil, err
		}
		return o.repo.GetLargeBlobContent(lb)
	default:
		return o.repo.GetBlob(fi.Hash)
	}
}

// OpenFile resolves path to its FileInfo and, for a writing open of a
// still-Committed file, materializes a spill file. It returns a file
// handle number the caller threads through ReadFile/WriteFile/Release.
func (o *Overlay) OpenFile(path string, writing, trunc bool) (*FileInfo, uint64, error) {
	o.nsLock.Lock()
	defer o.nsLock.Unlock()
	fi, ok := o.entries[path]
	if !ok {
		return nil, 0, orierr.New(orierr.NotFound, "overlay: "+path+" not found")
	}
	if fi.Kind != KindReg {
		return nil, 0, orierr.New(orierr.WrongType, "overlay: "+path+" is not a regular file")
	}
	if writing {
		if fi.Path == "" {
			if err := o.materializeLocked(fi); err != nil {
				return nil, 0, err
			}
		}
		if trunc {
			if err := fi.f.Truncate(0); err != nil {
				return nil, 0, err
			}
			fi.Stat.Size = 0
		}
		fi.State = StateDirty
	} else {
		switch o.cache {
		case CacheDeep:
			if fi.Path == "" && !fi.Hash.IsEmpty() {
				if err := o.materializeLocked(fi); err != nil {
					return nil, 0, err
				}
			}
		case CacheNone:
			if fi.Path != "" && fi.State == StateCommitted {
				if fi.f != nil {
					fi.f.Close()
				}
				os.Remove(fi.Path)
				fi.Path, fi.f = "", nil
			}
		}
	}
	fi.mu.Lock()
	fi.refs++
	fi.mu.Unlock()
	fh := fi.ID
	o.handles[fh] = fi
	return fi, fh, nil
}

// ReadFile reads size bytes at offset from fi, preferring the spill
// file if one is materialized and otherwise streaming straight from the
// Store, per the spec's pread-or-getBlob dispatch.
func (o *Overlay) ReadFile(fi *FileInfo, size int, offset int64) ([]byte, error) {
	o.nsLock.RLock()
	spillPath := fi.Path
	hash := fi.Hash
	o.nsLock.RUnlock()

	if spillPath != "" {
		f, err := os.Open(spillPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		buf := make([]byte, size)
		n, err := f.ReadAt(buf, offset)
		if err != nil && err != io.EOF {
			return nil, err
		}
		return buf[:n], nil
	}

	if hash.IsEmpty() {
		return nil, nil
	}

	o.nsLock.RLock()
	cache := o.cache
	o.nsLock.RUnlock()
	if cache != CacheDeep {
		typ, err := o.repo.TypeOf(hash)
		if err != nil {
			return nil, err
		}
		if typ == objfile.TypeLargeBlob {
			lb, err := o.repo.GetLargeBlob(hash)
			if err != nil {
				return nil, err
			}
			return o.repo.GetLargeBlobRange(lb, offset, int64(size))
		}
	}

	data, err := o.readCommittedLocked(fi)
	if err != nil {
		return nil, err
	}
	if offset >= int64(len(data)) {
		return nil, nil
	}
	end := offset + int64(size)
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[offset:end], nil
}

// WriteFile always targets the materialized spill file; writing to a
// still-Committed file is a caller error (OpenFile(writing=true) must
// run first).
func (o *Overlay) WriteFile(fi *FileInfo, data []byte, offset int64) (int, error) {
	o.nsLock.Lock()
	defer o.nsLock.Unlock()
	if fi.Path == "" {
		return 0, orierr.New(orierr.InvalidArgument, "overlay: write to a file that was not opened for writing")
	}
	n, err := fi.f.WriteAt(data, offset)
	if err != nil {
		return n, err
	}
	if end := offset + int64(n); end > fi.Stat.Size {
		fi.Stat.Size = end
	}
	fi.Stat.Mtime = time.Now().UTC()
	fi.State = StateDirty
	return n, nil
}

// Truncate resizes fi's spill file, materializing one first if fi is
// still Committed.
func (o *Overlay) Truncate(fi *FileInfo, size int64) error {
	o.nsLock.Lock()
	defer o.nsLock.Unlock()
	if fi.Path == "" {
		if err := o.materializeLocked(fi); err != nil {
			return err
		}
	}
	if err := fi.f.Truncate(size); err != nil {
		return err
	}
	fi.Stat.Size = size
	fi.Stat.Mtime = time.Now().UTC()
	fi.State = StateDirty
	return nil
}

// Release drops a handle opened by OpenFile, decrementing fi's refcount
// so unlocked bulk I/O in flight against it can finish safely.
func (o *Overlay) Release(fh uint64) {
	o.nsLock.Lock()
	fi, ok := o.handles[fh]
	delete(o.handles, fh)
	o.nsLock.Unlock()
	if !ok {
		return
	}
	fi.mu.Lock()
	fi.refs--
	fi.mu.Unlock()
}

// Chmod updates a file's permission bits and marks it Dirty.
func (o *Overlay) Chmod(path string, mode uint32) error {
	o.nsLock.Lock()
	defer o.nsLock.Unlock()
	fi, ok := o.entries[path]
	if !ok {
		return orierr.New(orierr.NotFound, "overlay: "+path+" not found")
	}
	fi.Stat.Mode = mode
	fi.Stat.Ctime = time.Now().UTC()
	fi.State = StateDirty
	return nil
}

// Chown updates a file's owning uid/gid and marks it Dirty.
func (o *Overlay) Chown(path string, uid, gid uint32) error {
	o.nsLock.Lock()
	defer o.nsLock.Unlock()
	fi, ok := o.entries[path]
	if !ok {
		return orierr.New(orierr.NotFound, "overlay: "+path+" not found")
	}
	fi.Stat.UID = uid
	fi.Stat.GID = gid
	fi.Stat.Ctime = time.Now().UTC()
	fi.State = StateDirty
	return nil
}

// Utimens sets a file's mtime and marks it Dirty.
func (o *Overlay) Utimens(path string, mtime time.Time) error {
	o.nsLock.Lock()
	defer o.nsLock.Unlock()
	fi, ok := o.entries[path]
	if !ok {
		return orierr.New(orierr.NotFound, "overlay: "+path+" not found")
	}
	fi.Stat.Mtime = mtime
	o.entries[path].State = StateDirty
	return nil
}

// Rename moves an entry from one path to another within the overlay
// namespace. Renaming a directory is refused with InvalidArgument: this
// core never re-keys an entire dirty subtree's path-indexed state.
func (o *Overlay) Rename(from, to string) error {
	o.nsLock.Lock()
	defer o.nsLock.Unlock()
	fi, ok := o.entries[from]
	if !ok {
		return orierr.New(orierr.NotFound, "overlay: "+from+" not found")
	}
	if fi.Kind == KindDir {
		return orierr.New(orierr.InvalidArgument, "overlay: directory rename is not supported")
	}
	if _, exists := o.entries[to]; exists {
		return orierr.New(orierr.Exists, "overlay: "+to+" already exists")
	}
	toParentPath, toName, err := o.checkNewEntry(to)
	if err != nil {
		return err
	}
	fromParent := o.entries[parentPath(from)]
	delete(fromParent.children, baseName(from))
	fromParent.State = StateDirty

	delete(o.entries, from)
	o.entries[to] = fi
	o.addEntryLocked(toParentPath, toName, fi)
	o.journal.Append("rename", from+" -> "+to)
	return nil
}

// Unlink removes a regular file or symlink from the namespace.
func (o *Overlay) Unlink(path string) error {
	o.nsLock.Lock()
	defer o.nsLock.Unlock()
	fi, ok := o.entries[path]
	if !ok {
		return orierr.New(orierr.NotFound, "overlay: "+path+" not found")
	}
	if fi.Kind == KindDir {
		return orierr.New(orierr.WrongType, "overlay: "+path+" is a directory")
	}
	parent := o.entries[parentPath(path)]
	delete(parent.children, baseName(path))
	parent.State = StateDirty
	delete(o.entries, path)
	if fi.Path != "" {
		if fi.f != nil {
			fi.f.Close()
		}
		os.Remove(fi.Path)
	}
	o.journal.Append("unlink", path)
	return nil
}

// RmDir removes an empty directory from the namespace, failing NotEmpty
// if it still has entries.
func (o *Overlay) RmDir(path string) error {
	o.nsLock.Lock()
	defer o.nsLock.Unlock()
	if path == "/" {
		return orierr.New(orierr.InvalidArgument, "overlay: cannot remove the root")
	}
	fi, err := o.lookupDirLocked(path)
	if err != nil {
		return err
	}
	if len(fi.children) > 0 {
		return orierr.New(orierr.NotEmpty, "overlay: "+path+" is not empty")
	}
	parent := o.entries[parentPath(path)]
	delete(parent.children, baseName(path))
	parent.State = StateDirty
	delete(o.entries, path)
	o.journal.Append("rmDir", path)
	return nil
}
