package repo

import (
	"fmt"
	"strings"
	"time"

	"github.com/ori-fs/ori/internal/hashid"
	"github.com/ori-fs/ori/internal/model"
	"github.com/ori-fs/ori/internal/objfile"
	"github.com/ori-fs/ori/internal/orierr"
)

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// lookupPath resolves path inside the tree rooted at root, walking one
// tree per path component. The final component's entry is returned
// unresolved: the caller decides whether to expect a Tree, Blob, or
// LargeBlob there.
func (r *Repo) lookupPath(root hashid.HashId, path string) (model.TreeEntry, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return model.TreeEntry{}, orierr.New(orierr.InvalidArgument, "repo: empty path")
	}
	current := root
	var entry model.TreeEntry
	for i, name := range parts {
		tree, err := r.GetTree(current)
		if err != nil {
			return model.TreeEntry{}, err
		}
		found := false
		for _, e := range tree.Entries {
			if e.Name == name {
				entry = e
				found = true
				break
			}
		}
		if !found {
			return model.TreeEntry{}, orierr.New(orierr.NotFound, fmt.Sprintf("repo: %q not found", name))
		}
		if i < len(parts)-1 {
			if entry.Type != model.EntryTree {
				return model.TreeEntry{}, orierr.New(orierr.WrongType, fmt.Sprintf("repo: %q is not a directory", name))
			}
			current = entry.Hash
		}
	}
	return entry, nil
}

// importClosure copies h and everything it transitively refers to from
// src into r, preserving hashes and rebuilding the destination's BackRef
// edges as it goes. Objects already present in r are left untouched.
func (r *Repo) importClosure(src *Repo, h hashid.HashId) error {
	if h.IsEmpty() || r.HasObject(h) {
		return nil
	}
	typ, payload, err := src.GetObjectBytes(h)
	if err != nil {
		return fmt.Errorf("repo: graft: read %s from source: %w", h, err)
	}
	got, err := r.InsertRaw(typ, payload)
	if err != nil {
		return fmt.Errorf("repo: graft: insert %s: %w", h, err)
	}
	if got != h {
		return orierr.New(orierr.IntegrityError, fmt.Sprintf("repo: graft: source object %s re-hashed to %s on import", h, got))
	}
	targets, err := r.outgoingEdges(h, typ, payload)
	if err != nil {
		return fmt.Errorf("repo: graft: decode %s: %w", h, err)
	}
	for _, t := range targets {
		if err := r.importClosure(src, t); err != nil {
			return err
		}
		if err := r.AddBackref(t, h, objfile.RoleRef); err != nil {
			return fmt.Errorf("repo: graft: backref %s -> %s: %w", h, t, err)
		}
	}
	return nil
}

// graftTreeWithEntry returns the hash of a tree equal to the one rooted
// at treeHash except that the path named by parts now resolves to leaf.
// Intermediate directories along parts are created if they don't
// already exist; treeHash may be hashid.Empty for a path with no
// existing tree at all.
func (r *Repo) graftTreeWithEntry(treeHash hashid.HashId, parts []string, leaf model.TreeEntry) (hashid.HashId, error) {
	var tree model.Tree
	if !treeHash.IsEmpty() {
		t, err := r.GetTree(treeHash)
		if err != nil {
			return hashid.Empty, err
		}
		tree = t
	}

	name := parts[0]
	idx := -1
	for i, e := range tree.Entries {
		if e.Name == name {
			idx = i
			break
		}
	}

	var newEntry model.TreeEntry
	if len(parts) == 1 {
		newEntry = leaf
		newEntry.Name = name
	} else {
		var childHash hashid.HashId
		mode := uint16(0755)
		if idx >= 0 {
			if tree.Entries[idx].Type != model.EntryTree {
				return hashid.Empty, orierr.New(orierr.WrongType, fmt.Sprintf("repo: %q is not a directory", name))
			}
			childHash = tree.Entries[idx].Hash
			mode = tree.Entries[idx].Mode
		}
		newChildHash, err := r.graftTreeWithEntry(childHash, parts[1:], leaf)
		if err != nil {
			return hashid.Empty, err
		}
		newEntry = model.TreeEntry{Type: model.EntryTree, Mode: mode, Name: name, Hash: newChildHash}
	}

	if idx >= 0 {
		tree.Entries[idx] = newEntry
	} else {
		tree.Entries = append(tree.Entries, newEntry)
	}
	return r.AddTree(tree)
}

// GraftSubtree copies the subtree rooted at srcPath in srcRepo's current
// HEAD into dstPath in r's working tree, importing every object that
// path transitively references plus the closure of the source HEAD
// commit (which the new commit references as GraftCommitHash), and
// records a new Commit on r whose GraftRepo/GraftPath/GraftCommitHash
// fields carry the provenance.
func (r *Repo) GraftSubtree(srcRepo *Repo, srcPath, dstPath string) (hashid.HashId, error) {
	srcHead, err := srcRepo.Head()
	if err != nil {
		return hashid.Empty, err
	}
	if srcHead.IsEmpty() {
		return hashid.Empty, orierr.New(orierr.NotFound, "repo: graft: source repository has no commits")
	}
	srcCommit, err := srcRepo.GetCommit(srcHead)
	if err != nil {
		return hashid.Empty, err
	}
	leaf, err := srcRepo.lookupPath(srcCommit.TreeHash, srcPath)
	if err != nil {
		return hashid.Empty, fmt.Errorf("repo: graft: resolve %q: %w", srcPath, err)
	}

	if err := r.importClosure(srcRepo, leaf.Hash); err != nil {
		return hashid.Empty, err
	}
	if err := r.importClosure(srcRepo, srcHead); err != nil {
		return hashid.Empty, err
	}

	dstHead, err := r.Head()
	if err != nil {
		return hashid.Empty, err
	}
	var baseTree hashid.HashId
	if !dstHead.IsEmpty() {
		dstCommit, err := r.GetCommit(dstHead)
		if err != nil {
			return hashid.Empty, err
		}
		baseTree = dstCommit.TreeHash
	}

	parts := splitPath(dstPath)
	if len(parts) == 0 {
		return hashid.Empty, orierr.New(orierr.InvalidArgument, "repo: graft: empty destination path")
	}
	newRoot, err := r.graftTreeWithEntry(baseTree, parts, leaf)
	if err != nil {
		return hashid.Empty, err
	}

	commit := model.Commit{
		TreeHash:        newRoot,
		Parent1:         dstHead,
		Timestamp:       time.Now().UTC(),
		GraftRepo:       srcRepo.UUID(),
		GraftPath:       srcPath,
		GraftCommitHash: srcHead,
		Message:         fmt.Sprintf("graft %s from %s", srcPath, srcRepo.UUID()),
	}
	h, err := r.AddCommit(commit)
	if err != nil {
		return hashid.Empty, err
	}
	if err := r.UpdateHead(h); err != nil {
		return hashid.Empty, err
	}
	return h, nil
}
