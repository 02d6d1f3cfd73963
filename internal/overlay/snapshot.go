package overlay

import (
	"strings"

	"github.com/ori-fs/ori/internal/model"
	"github.com/ori-fs/ori/internal/orierr"
)

// SnapshotView is a read-only walk over one named snapshot's committed
// tree, used to serve /.snapshot/<name>/... in the mount adapter. Unlike
// Overlay it holds no namespace map and no dirty state: it keeps only the
// root tree, read once at open, and every lookup below it re-reads the
// Store.
type SnapshotView struct {
	o    *Overlay
	root model.Tree
}

// OpenSnapshot resolves name via ListSnapshots and returns a view over
// its root tree.
func (o *Overlay) OpenSnapshot(name string) (*SnapshotView, error) {
	snaps, err := o.repo.ListSnapshots()
	if err != nil {
		return nil, err
	}
	h, ok := snaps[name]
	if !ok {
		return nil, orierr.New(orierr.NotFound, "overlay: no snapshot named "+name)
	}
	c, err := o.repo.GetCommit(h)
	if err != nil {
		return nil, err
	}
	root, err := o.repo.GetTree(c.TreeHash)
	if err != nil {
		return nil, err
	}
	return &SnapshotView{o: o, root: root}, nil
}

// Lookup resolves rest (a "/"-joined path, possibly empty for the
// snapshot's root) to its TreeEntry.
func (s *SnapshotView) Lookup(rest string) (model.TreeEntry, error) {
	parts := splitSnapshotPath(rest)
	if len(parts) == 0 {
		return model.TreeEntry{Type: model.EntryTree}, nil
	}
	tree := s.root
	var entry model.TreeEntry
	for i, name := range parts {
		found := false
		for _, e := range tree.Entries {
			if e.Name == name {
				entry, found = e, true
				break
			}
		}
		if !found {
			return model.TreeEntry{}, orierr.New(orierr.NotFound, "overlay: "+rest+" not found in snapshot")
		}
		if i < len(parts)-1 {
			if entry.Type != model.EntryTree {
				return model.TreeEntry{}, orierr.New(orierr.WrongType, "overlay: "+name+" is not a directory")
			}
			t, err := s.o.repo.GetTree(entry.Hash)
			if err != nil {
				return model.TreeEntry{}, err
			}
			tree = t
		}
	}
	return entry, nil
}

// Readdir lists the entries of the directory at rest.
func (s *SnapshotView) Readdir(rest string) ([]model.TreeEntry, error) {
	parts := splitSnapshotPath(rest)
	tree := s.root
	if len(parts) > 0 {
		entry, err := s.Lookup(rest)
		if err != nil {
			return nil, err
		}
		if entry.Type != model.EntryTree {
			return nil, orierr.New(orierr.WrongType, "overlay: "+rest+" is not a directory")
		}
		tree, err = s.o.repo.GetTree(entry.Hash)
		if err != nil {
			return nil, err
		}
	}
	return tree.Entries, nil
}

// ReadFile streams the Blob/LargeBlob content named by rest. Writes into
// a snapshot view are refused by the mount adapter before they ever
// reach here: SnapshotView has no write path at all.
func (s *SnapshotView) ReadFile(rest string) ([]byte, error) {
	entry, err := s.Lookup(rest)
	if err != nil {
		return nil, err
	}
	switch entry.Type {
	case model.EntryLargeBlob:
		lb, err := s.o.repo.GetLargeBlob(entry.Hash)
		if err != nil {
			return nil, err
		}
		return s.o.repo.GetLargeBlobContent(lb)
	case model.EntryBlob:
		return s.o.repo.GetBlob(entry.Hash)
	default:
		return nil, orierr.New(orierr.WrongType, "overlay: "+rest+" is not a file")
	}
}

func splitSnapshotPath(rest string) []string {
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
