// Package overlay implements the live working-set the mount adapter
// presents over a repository's committed snapshot: a mutable in-memory
// namespace, a spill area for dirty content, and the commit pipeline
// that folds the namespace back into new Store objects.
package overlay

import (
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ori-fs/ori/internal/hashid"
	"github.com/ori-fs/ori/internal/model"
	"github.com/ori-fs/ori/internal/orierr"
	"github.com/ori-fs/ori/internal/repo"
)

// symlinkModeBit marks a Tree entry as a symlink rather than a regular
// file: both are stored as a Blob/LargeBlob entry, the difference is
// purely in the file-type bits of Mode, the same way POSIX overloads
// st_mode. A symlink's Blob content is its target path string.
const symlinkModeBit = uint16(syscall.S_IFLNK)

// Kind distinguishes the three POSIX entry types Ori supports.
type Kind uint8

const (
	KindReg Kind = iota
	KindDir
	KindSymlink
)

// State is where a FileInfo's content currently lives relative to the
// last commit, per the state machine in the SPEC_FULL Overlay section:
// Dirty until a commit, Committed right after, Dirty again on the next
// mutation.
type State uint8

const (
	StateDirty State = iota
	StateCommitted
)

// StatInfo carries the subset of POSIX metadata the mount adapter needs
// back out of a getattr call.
type StatInfo struct {
	Mode  uint32
	Size  int64
	Mtime time.Time
	Ctime time.Time
	UID   uint32
	GID   uint32
	NLink uint32
}

// FileInfo is one overlay namespace entry, for a regular file, directory,
// or symlink. A regular file's content lives in its spill file (Path/f)
// once one has been materialized (by a writing open, or by a read-only
// open under CacheDeep); a file with no spill file reads straight from
// the Store via Hash.
type FileInfo struct {
	ID    uint64
	Kind  Kind
	Stat  StatInfo
	Link  string // symlink target
	Path  string // spill file path; empty if Committed with no local copy
	Hash  hashid.HashId
	State State

	mu   sync.Mutex
	f    *os.File
	refs int

	children map[string]bool // directory only: child names, for readdir/rmdir
}

// FileAttr is a point-in-time snapshot of a FileInfo's externally
// visible fields, without its embedded mutex or open handle, so callers
// can hold and copy it freely after the namespace lock is released.
type FileAttr struct {
	ID    uint64
	Kind  Kind
	Stat  StatInfo
	Link  string
	Path  string
	Hash  hashid.HashId
	State State
}

// Attr snapshots fi's externally visible fields without its embedded
// mutex, so callers across package boundaries (the mount adapter) can
// copy and hold the result freely.
func (fi *FileInfo) Attr() FileAttr {
	return FileAttr{
		ID:    fi.ID,
		Kind:  fi.Kind,
		Stat:  fi.Stat,
		Link:  fi.Link,
		Path:  fi.Path,
		Hash:  fi.Hash,
		State: fi.State,
	}
}

// Overlay is the mutable working set layered over repo's last committed
// HEAD. Every externally visible operation takes nsLock: readers take
// the read lock, mutators the write lock, per the single-global-lock
// design the mount adapter's callbacks rely on.
type Overlay struct {
	nsLock sync.RWMutex

	repo     *repo.Repo
	base     hashid.HashId // last committed HEAD
	spillDir string
	cache    CacheMode

	nextID  uint64
	entries map[string]*FileInfo // path -> info, "/" is the root
	handles map[uint64]*FileInfo // fh -> info

	journal *Journal
}

// Open builds an Overlay over repo's current HEAD with the default
// (deep) cache mode, materializing the root directory's FileInfo from
// the committed tree (or an empty root if there are no commits yet).
func Open(r *repo.Repo, mode JournalMode) (*Overlay, error) {
	return OpenWithCache(r, mode, CacheDeep)
}

// OpenWithCache is Open with an explicit CacheMode, for the mount
// adapter's `cache=` option.
func OpenWithCache(r *repo.Repo, mode JournalMode, cache CacheMode) (*Overlay, error) {
	spillDir := filepath.Join(r.TmpDir(), "overlay")
	if err := os.MkdirAll(spillDir, 0700); err != nil {
		return nil, err
	}
	j, err := OpenJournal(filepath.Join(r.OriDir(), "journal"), mode)
	if err != nil {
		return nil, err
	}

	head, err := r.Head()
	if err != nil {
		return nil, err
	}

	o := &Overlay{
		repo:     r,
		base:     head,
		spillDir: spillDir,
		cache:    cache,
		entries:  make(map[string]*FileInfo),
		handles:  make(map[uint64]*FileInfo),
		journal:  j,
	}
	o.entries["/"] = &FileInfo{
		ID:       o.allocID(),
		Kind:     KindDir,
		Stat:     StatInfo{Mode: 0755},
		State:    StateCommitted,
		children: make(map[string]bool),
	}
	if !head.IsEmpty() {
		c, err := r.GetCommit(head)
		if err != nil {
			return nil, err
		}
		o.entries["/"].Hash = c.TreeHash
		if err := o.populateDir("/", c.TreeHash); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// RepoRoot returns the underlying repository's working-tree root, for
// the mount adapter's /.ori_control file.
func (o *Overlay) RepoRoot() string {
	return o.repo.RootDir()
}

// ListSnapshots passes through to the repository's snapshot index, for
// the mount adapter's /.snapshot readdir.
func (o *Overlay) ListSnapshots() (map[string]hashid.HashId, error) {
	return o.repo.ListSnapshots()
}

func (o *Overlay) allocID() uint64 {
	o.nextID++
	return o.nextID
}

// populateDir lazily fills in the placeholder FileInfo entries for one
// committed directory's children, without recursing: children below a
// directory are only materialized the first time that directory's
// contents are needed, keeping Open cheap for a large working tree.
func (o *Overlay) populateDir(dirPath string, treeHash hashid.HashId) error {
	tree, err := o.repo.GetTree(treeHash)
	if err != nil {
		return err
	}
	parent := o.entries[dirPath]
	for _, e := range tree.Entries {
		childPath := joinPath(dirPath, e.Name)
		if _, ok := o.entries[childPath]; ok {
			continue
		}
		fi := &FileInfo{
			ID:    o.allocID(),
			Stat:  StatInfo{Mode: uint32(e.Mode)},
			Hash:  e.Hash,
			State: StateCommitted,
		}
		switch e.Type {
		case model.EntryTree:
			fi.Kind = KindDir
			fi.children = make(map[string]bool)
		case model.EntryBlob, model.EntryLargeBlob:
			if e.Mode&symlinkModeBit == symlinkModeBit {
				fi.Kind = KindSymlink
				target, err := o.repo.GetBlob(e.Hash)
				if err != nil {
					return err
				}
				fi.Link = string(target)
			} else {
				fi.Kind = KindReg
			}
		}
		applyAttrs(&fi.Stat, e.Attrs)
		o.entries[childPath] = fi
		parent.children[e.Name] = true
	}
	return nil
}

func applyAttrs(st *StatInfo, attrs model.AttrMap) {
	if v, ok := attrs[model.AttrPerms]; ok {
		st.Mode = uint32(v.UInt)
	}
	if v, ok := attrs[model.AttrFilesize]; ok {
		st.Size = int64(v.UInt)
	}
	if v, ok := attrs[model.AttrMtime]; ok {
		st.Mtime = v.Time
	}
	if v, ok := attrs[model.AttrCtime]; ok {
		st.Ctime = v.Time
	}
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

func parentPath(path string) string {
	i := len(path) - 1
	for i > 0 && path[i] != '/' {
		i--
	}
	if i == 0 {
		return "/"
	}
	return path[:i]
}

func baseName(path string) string {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	return path[i+1:]
}

// lookupDirLocked resolves a directory's FileInfo, lazily expanding its
// committed children if they haven't been materialized yet. Callers must
// hold nsLock.
func (o *Overlay) lookupDirLocked(path string) (*FileInfo, error) {
	fi, ok := o.entries[path]
	if !ok {
		return nil, orierr.New(orierr.NotFound, "overlay: "+path+" not found")
	}
	if fi.Kind != KindDir {
		return nil, orierr.New(orierr.WrongType, "overlay: "+path+" is not a directory")
	}
	if fi.State == StateCommitted && !fi.Hash.IsEmpty() && len(fi.children) == 0 {
		if err := o.populateDir(path, fi.Hash); err != nil {
			return nil, err
		}
	}
	return fi, nil
}

// Stat returns a lock-free snapshot of path's attributes, for getattr.
func (o *Overlay) Stat(path string) (FileAttr, error) {
	o.nsLock.RLock()
	defer o.nsLock.RUnlock()
	fi, ok := o.entries[path]
	if !ok {
		return FileAttr{}, orierr.New(orierr.NotFound, "overlay: "+path+" not found")
	}
	return fi.Attr(), nil
}

// Readdir lists the names directly inside path.
func (o *Overlay) Readdir(path string) ([]string, error) {
	o.nsLock.RLock()
	defer o.nsLock.RUnlock()
	dir, err := o.lookupDirLocked(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(dir.children))
	for name := range dir.children {
		names = append(names, name)
	}
	return names, nil
}
