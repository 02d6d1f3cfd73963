package repo

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/ori-fs/ori/internal/hashid"
	"github.com/ori-fs/ori/internal/model"
	"github.com/ori-fs/ori/internal/objfile"
	"github.com/ori-fs/ori/internal/orierr"
)

// symlinkModeBit marks a Tree entry as a symlink, mirroring
// internal/overlay's convention of the same name: Ori's Tree model has
// no dedicated symlink EntryType, so the bit rides on Mode instead.
const symlinkModeBit = uint16(syscall.S_IFLNK)

// WorkStatus classifies one path's difference between the working
// directory and HEAD's tree, for the `status` command.
type WorkStatus uint8

const (
	StatusAdded WorkStatus = iota
	StatusModified
	StatusDeleted
)

func (s WorkStatus) String() string {
	switch s {
	case StatusAdded:
		return "added"
	case StatusModified:
		return "modified"
	case StatusDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// StatusEntry is one line of `status` output.
type StatusEntry struct {
	Path   string
	Status WorkStatus
}

// WorkingStatus compares the working directory against HEAD's tree,
// skipping .ori itself. With no commits yet, every file on disk is
// Added.
func (r *Repo) WorkingStatus() ([]StatusEntry, error) {
	root, err := r.headTree()
	if err != nil {
		return nil, err
	}
	var out []StatusEntry
	if err := r.diffDir(r.root, "", root, &out); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (r *Repo) headTree() (model.Tree, error) {
	head, err := r.Head()
	if err != nil {
		return model.Tree{}, err
	}
	if head.IsEmpty() {
		return model.Tree{}, nil
	}
	c, err := r.GetCommit(head)
	if err != nil {
		return model.Tree{}, err
	}
	return r.GetTree(c.TreeHash)
}

func joinLogical(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// diffDir recursively compares osDir (logically rooted at logicalDir)
// against tree, appending one StatusEntry per changed file. Unlike a
// typical directory diff it never reports a directory itself as
// added/deleted, only the files underneath it, matching the reference
// tool's file-level status granularity.
func (r *Repo) diffDir(osDir, logicalDir string, tree model.Tree, out *[]StatusEntry) error {
	diskEntries, err := os.ReadDir(osDir)
	if err != nil {
		return fmt.Errorf("repo: read %s: %w", osDir, err)
	}
	diskByName := make(map[string]os.DirEntry, len(diskEntries))
	for _, e := range diskEntries {
		if logicalDir == "" && e.Name() == dirName {
			continue
		}
		diskByName[e.Name()] = e
	}
	treeByName := make(map[string]model.TreeEntry, len(tree.Entries))
	for _, te := range tree.Entries {
		treeByName[te.Name] = te
	}

	names := make(map[string]bool, len(diskByName)+len(treeByName))
	for n := range diskByName {
		names[n] = true
	}
	for n := range treeByName {
		names[n] = true
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		lp := joinLogical(logicalDir, name)
		full := filepath.Join(osDir, name)
		de, onDisk := diskByName[name]
		te, inTree := treeByName[name]

		switch {
		case onDisk && !inTree:
			if err := r.walkAdded(full, lp, de, out); err != nil {
				return err
			}
		case !onDisk && inTree:
			r.walkDeleted(lp, te, out)
		default:
			info, err := de.Info()
			if err != nil {
				return err
			}
			isDir := info.IsDir()
			wasDir := te.Type == model.EntryTree
			if isDir != wasDir {
				r.walkDeleted(lp, te, out)
				if err := r.walkAdded(full, lp, de, out); err != nil {
					return err
				}
				continue
			}
			if isDir {
				childTree, err := r.GetTree(te.Hash)
				if err != nil {
					return err
				}
				if err := r.diffDir(full, lp, childTree, out); err != nil {
					return err
				}
				continue
			}
			h, err := r.hashPath(full, info)
			if err != nil {
				return err
			}
			if !h.Equal(te.Hash) {
				*out = append(*out, StatusEntry{Path: lp, Status: StatusModified})
			}
		}
	}
	return nil
}

func (r *Repo) walkAdded(full, logical string, de os.DirEntry, out *[]StatusEntry) error {
	info, err := de.Info()
	if err != nil {
		return err
	}
	if !info.IsDir() {
		*out = append(*out, StatusEntry{Path: logical, Status: StatusAdded})
		return nil
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return fmt.Errorf("repo: read %s: %w", full, err)
	}
	for _, e := range entries {
		if err := r.walkAdded(filepath.Join(full, e.Name()), joinLogical(logical, e.Name()), e, out); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) walkDeleted(logical string, te model.TreeEntry, out *[]StatusEntry) {
	if te.Type != model.EntryTree {
		*out = append(*out, StatusEntry{Path: logical, Status: StatusDeleted})
		return
	}
	tree, err := r.GetTree(te.Hash)
	if err != nil {
		*out = append(*out, StatusEntry{Path: logical, Status: StatusDeleted})
		return
	}
	for _, child := range tree.Entries {
		r.walkDeleted(joinLogical(logical, child.Name), child, out)
	}
}

// hashPath computes the hash a commit would assign the file or symlink
// at full, without reading its content into the Store.
func (r *Repo) hashPath(full string, info fs.FileInfo) (hashid.HashId, error) {
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(full)
		if err != nil {
			return hashid.HashId{}, err
		}
		return r.HashContent([]byte(target))
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return hashid.HashId{}, err
	}
	return r.HashContent(data)
}

// CommitWorkingTree walks the working directory bottom-up, storing
// every changed file and folding the result into a new Commit whose
// parent is the current HEAD. It is the CLI's `commit` command's core,
// the working-directory analogue of Overlay.Commit.
func (r *Repo) CommitWorkingTree(message, user string) (hashid.HashId, error) {
	rootHash, err := r.commitWorkingDir(r.root, "")
	if err != nil {
		return hashid.HashId{}, err
	}
	head, err := r.Head()
	if err != nil {
		return hashid.HashId{}, err
	}
	c := model.Commit{
		TreeHash:  rootHash,
		Parent1:   head,
		User:      user,
		Timestamp: time.Now().UTC(),
		Message:   message,
	}
	h, err := r.AddCommit(c)
	if err != nil {
		return hashid.HashId{}, err
	}
	if err := r.UpdateHead(h); err != nil {
		return hashid.HashId{}, err
	}
	return h, nil
}

func (r *Repo) commitWorkingDir(osDir, logicalDir string) (hashid.HashId, error) {
	diskEntries, err := os.ReadDir(osDir)
	if err != nil {
		return hashid.HashId{}, fmt.Errorf("repo: read %s: %w", osDir, err)
	}

	tree := model.Tree{Entries: make([]model.TreeEntry, 0, len(diskEntries))}
	for _, de := range diskEntries {
		if logicalDir == "" && de.Name() == dirName {
			continue
		}
		full := filepath.Join(osDir, de.Name())
		info, err := de.Info()
		if err != nil {
			return hashid.HashId{}, err
		}

		var entry model.TreeEntry
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(full)
			if err != nil {
				return hashid.HashId{}, err
			}
			h, err := r.AddFileBytes([]byte(target))
			if err != nil {
				return hashid.HashId{}, err
			}
			entry = model.TreeEntry{Type: model.EntryBlob, Mode: uint16(info.Mode().Perm()) | symlinkModeBit, Name: de.Name(), Hash: h}
		case info.IsDir():
			childHash, err := r.commitWorkingDir(full, joinLogical(logicalDir, de.Name()))
			if err != nil {
				return hashid.HashId{}, err
			}
			entry = model.TreeEntry{Type: model.EntryTree, Mode: uint16(info.Mode().Perm()), Name: de.Name(), Hash: childHash}
		default:
			data, err := os.ReadFile(full)
			if err != nil {
				return hashid.HashId{}, err
			}
			h, err := r.AddFileBytes(data)
			if err != nil {
				return hashid.HashId{}, err
			}
			typ, err := r.TypeOf(h)
			if err != nil {
				return hashid.HashId{}, err
			}
			entryType := model.EntryBlob
			if typ == objfile.TypeLargeBlob {
				entryType = model.EntryLargeBlob
			}
			entry = model.TreeEntry{Type: entryType, Mode: uint16(info.Mode().Perm()), Name: de.Name(), Hash: h}
		}
		entry.Attrs = model.AttrMap{
			model.AttrPerms:    model.UintAttr(uint64(entry.Mode)),
			model.AttrFilesize: model.UintAttr(uint64(info.Size())),
			model.AttrMtime:    model.TimeAttr(info.ModTime().UTC()),
			model.AttrCtime:    model.TimeAttr(info.ModTime().UTC()),
		}
		tree.Entries = append(tree.Entries, entry)
	}

	return r.AddTree(tree)
}

// CheckoutResult reports which paths a checkout skipped because their
// Blob was purged, per the reference tool's "Object has been purged."
// behavior: those paths fail individually, not the whole checkout.
type CheckoutResult struct {
	PurgedPaths []string
}

// CheckoutCommit replaces the working directory's contents (except
// .ori) with h's tree, then advances HEAD to h.
func (r *Repo) CheckoutCommit(h hashid.HashId) (CheckoutResult, error) {
	c, err := r.GetCommit(h)
	if err != nil {
		return CheckoutResult{}, err
	}
	tree, err := r.GetTree(c.TreeHash)
	if err != nil {
		return CheckoutResult{}, err
	}

	var res CheckoutResult
	if err := r.clearWorkingDir(r.root); err != nil {
		return res, err
	}
	if err := r.checkoutDir(r.root, "", tree, &res); err != nil {
		return res, err
	}
	if err := r.UpdateHead(h); err != nil {
		return res, err
	}
	return res, nil
}

func (r *Repo) clearWorkingDir(osDir string) error {
	entries, err := os.ReadDir(osDir)
	if err != nil {
		return fmt.Errorf("repo: read %s: %w", osDir, err)
	}
	for _, e := range entries {
		if osDir == r.root && e.Name() == dirName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(osDir, e.Name())); err != nil {
			return fmt.Errorf("repo: remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (r *Repo) checkoutDir(osDir, logicalDir string, tree model.Tree, res *CheckoutResult) error {
	for _, e := range tree.Entries {
		full := filepath.Join(osDir, e.Name)
		lp := joinLogical(logicalDir, e.Name)
		switch e.Type {
		case model.EntryTree:
			if err := os.MkdirAll(full, 0755); err != nil {
				return err
			}
			childTree, err := r.GetTree(e.Hash)
			if err != nil {
				return err
			}
			if err := r.checkoutDir(full, lp, childTree, res); err != nil {
				return err
			}
		default:
			data, err := r.readEntryContent(e)
			if err != nil {
				if orierr.Is(err, orierr.IntegrityError) {
					res.PurgedPaths = append(res.PurgedPaths, lp)
					continue
				}
				return err
			}
			if e.Mode&symlinkModeBit == symlinkModeBit {
				if err := os.Symlink(string(data), full); err != nil {
					return err
				}
				continue
			}
			if err := os.WriteFile(full, data, os.FileMode(e.Mode)&0777); err != nil {
				return err
			}
		}
	}
	return nil
}

// readEntryContent fetches e's content, translating a Purged object
// into an IntegrityError the caller treats as a per-path skip rather
// than a hard failure.
func (r *Repo) readEntryContent(e model.TreeEntry) ([]byte, error) {
	typ, err := r.TypeOf(e.Hash)
	if err != nil {
		return nil, err
	}
	switch typ {
	case objfile.TypePurged:
		return nil, orierr.New(orierr.IntegrityError, fmt.Sprintf("repo: %s has been purged", e.Hash))
	case objfile.TypeLargeBlob:
		lb, err := r.GetLargeBlob(e.Hash)
		if err != nil {
			return nil, err
		}
		return r.GetLargeBlobContent(lb)
	default:
		return r.GetBlob(e.Hash)
	}
}
