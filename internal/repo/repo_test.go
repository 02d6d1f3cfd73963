package repo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ori-fs/ori/internal/hashid"
	"github.com/ori-fs/ori/internal/model"
	"github.com/ori-fs/ori/internal/objfile"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return r
}

func TestInitThenOpen(t *testing.T) {
	root := t.TempDir()
	r, err := Init(root)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if r.UUID() == "" {
		t.Fatal("Init should assign a UUID")
	}

	if _, err := Init(root); err == nil {
		t.Fatal("Init should refuse an already-initialized root")
	}

	opened, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened.UUID() != r.UUID() {
		t.Fatalf("UUID mismatch: %s vs %s", opened.UUID(), r.UUID())
	}
	head, err := opened.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if !head.IsEmpty() {
		t.Fatal("a fresh repository should have an empty HEAD")
	}
}

func TestOpenMissingRepoFails(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("Open should fail on a directory with no .ori")
	}
}

func TestAddFileSmallIsBlob(t *testing.T) {
	r := newTestRepo(t)
	h, err := r.AddFileBytes([]byte("hello world"))
	if err != nil {
		t.Fatalf("AddFileBytes: %v", err)
	}
	typ, err := r.TypeOf(h)
	if err != nil {
		t.Fatalf("TypeOf: %v", err)
	}
	if typ != objfile.TypeBlob {
		t.Fatalf("type = %v, want Blob", typ)
	}
	got, err := r.GetBlob(h)
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("GetBlob = %q", got)
	}
}

func TestAddFileLargeIsLargeBlob(t *testing.T) {
	r := newTestRepo(t)
	data := make([]byte, 3*256*1024+37)
	for i := range data {
		data[i] = byte(i)
	}
	h, err := r.AddFileBytes(data)
	if err != nil {
		t.Fatalf("AddFileBytes: %v", err)
	}
	typ, err := r.TypeOf(h)
	if err != nil {
		t.Fatalf("TypeOf: %v", err)
	}
	if typ != objfile.TypeLargeBlob {
		t.Fatalf("type = %v, want LargeBlob", typ)
	}
	lb, err := r.GetLargeBlob(h)
	if err != nil {
		t.Fatalf("GetLargeBlob: %v", err)
	}
	got, err := r.GetLargeBlobContent(lb)
	if err != nil {
		t.Fatalf("GetLargeBlobContent: %v", err)
	}
	if len(got) != len(data) {
		t.Fatalf("reassembled length = %d, want %d", len(got), len(data))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("reassembled content differs at byte %d", i)
		}
	}
	for _, f := range lb.Fragments {
		refs, err := r.GetRefs(f.ChunkHash)
		if err != nil {
			t.Fatalf("GetRefs(fragment): %v", err)
		}
		if !hasRefFrom(refs, h) {
			t.Fatalf("fragment %s missing backref from large blob %s", f.ChunkHash, h)
		}
	}
}

func hasRefFrom(refs []objfile.BackRef, from hashid.HashId) bool {
	for _, r := range refs {
		if r.From == from {
			return true
		}
	}
	return false
}

func TestAddTreeAndCommitRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	blobHash, err := r.AddFileBytes([]byte("file contents"))
	if err != nil {
		t.Fatalf("AddFileBytes: %v", err)
	}
	tree := model.Tree{Entries: []model.TreeEntry{
		{Type: model.EntryBlob, Mode: 0644, Name: "a.txt", Hash: blobHash},
	}}
	treeHash, err := r.AddTree(tree)
	if err != nil {
		t.Fatalf("AddTree: %v", err)
	}
	commit := model.Commit{
		TreeHash:  treeHash,
		User:      "ken",
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Message:   "first",
	}
	commitHash, err := r.AddCommit(commit)
	if err != nil {
		t.Fatalf("AddCommit: %v", err)
	}
	if err := r.UpdateHead(commitHash); err != nil {
		t.Fatalf("UpdateHead: %v", err)
	}

	head, err := r.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head != commitHash {
		t.Fatalf("Head = %s, want %s", head, commitHash)
	}

	got, err := r.GetCommit(commitHash)
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	if got.TreeHash != treeHash || got.Message != "first" {
		t.Fatalf("commit round trip mismatch: %+v", got)
	}

	gotTree, err := r.GetTree(treeHash)
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	if len(gotTree.Entries) != 1 || gotTree.Entries[0].Hash != blobHash {
		t.Fatalf("tree round trip mismatch: %+v", gotTree)
	}

	refs, err := r.GetRefs(treeHash)
	if err != nil {
		t.Fatalf("GetRefs(tree): %v", err)
	}
	if !hasRefFrom(refs, commitHash) {
		t.Fatal("tree should carry a backref from its commit")
	}
}

func TestAddCommitRejectsTreeParentCollision(t *testing.T) {
	r := newTestRepo(t)
	h, err := r.AddFileBytes([]byte("x"))
	if err != nil {
		t.Fatalf("AddFileBytes: %v", err)
	}
	tree := model.Tree{Entries: []model.TreeEntry{{Type: model.EntryBlob, Name: "x", Hash: h}}}
	treeHash, err := r.AddTree(tree)
	if err != nil {
		t.Fatalf("AddTree: %v", err)
	}
	_, err = r.AddCommit(model.Commit{TreeHash: treeHash, Parent1: treeHash})
	if err == nil {
		t.Fatal("AddCommit should reject a tree hash that collides with a parent")
	}
}

func commitChain(t *testing.T, r *Repo, n int) []hashid.HashId {
	t.Helper()
	var hashes []hashid.HashId
	var parent hashid.HashId
	for i := 0; i < n; i++ {
		blobHash, err := r.AddFileBytes([]byte{byte(i)})
		if err != nil {
			t.Fatalf("AddFileBytes: %v", err)
		}
		treeHash, err := r.AddTree(model.Tree{Entries: []model.TreeEntry{
			{Type: model.EntryBlob, Name: "f", Hash: blobHash},
		}})
		if err != nil {
			t.Fatalf("AddTree: %v", err)
		}
		c := model.Commit{TreeHash: treeHash, Parent1: parent, SnapshotName: "", Message: "c"}
		h, err := r.AddCommit(c)
		if err != nil {
			t.Fatalf("AddCommit: %v", err)
		}
		if err := r.UpdateHead(h); err != nil {
			t.Fatalf("UpdateHead: %v", err)
		}
		parent = h
		hashes = append(hashes, h)
	}
	return hashes
}

func TestComputeRefCountsMatchesRebuildRefs(t *testing.T) {
	r := newTestRepo(t)
	commitChain(t, r, 3)

	before, err := r.ComputeRefCounts()
	if err != nil {
		t.Fatalf("ComputeRefCounts: %v", err)
	}
	if err := r.RebuildRefs(); err != nil {
		t.Fatalf("RebuildRefs: %v", err)
	}
	after, err := r.ComputeRefCounts()
	if err != nil {
		t.Fatalf("ComputeRefCounts after rebuild: %v", err)
	}

	if len(before) != len(after) {
		t.Fatalf("object count changed across rebuild: %d vs %d", len(before), len(after))
	}
	for h, fromSet := range before {
		rebuilt, ok := after[h]
		if !ok {
			t.Fatalf("object %s missing after rebuild", h)
		}
		if len(fromSet) != len(rebuilt) {
			t.Fatalf("%s: backref set size changed: %v vs %v", h, fromSet, rebuilt)
		}
		for from := range fromSet {
			if !rebuilt[from] {
				t.Fatalf("%s: missing backref from %s after rebuild", h, from)
			}
		}
	}
}

func TestVerifyReportsOKThenPurged(t *testing.T) {
	r := newTestRepo(t)
	h, err := r.AddFileBytes([]byte("purgeable"))
	if err != nil {
		t.Fatalf("AddFileBytes: %v", err)
	}

	statuses, err := r.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if statuses[h] != VerifyOK {
		t.Fatalf("status before purge = %v, want OK", statuses[h])
	}

	path := filepath.Join(r.OriDir(), objsDirName, h.ShardDir(), h.ShardName())
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read object file: %v", err)
	}
	purged, err := objfile.Purge(data)
	if err != nil {
		t.Fatalf("objfile.Purge: %v", err)
	}
	if err := os.WriteFile(path, purged, 0444); err != nil {
		t.Fatalf("write purged object: %v", err)
	}

	statuses, err = r.Verify()
	if err != nil {
		t.Fatalf("Verify after purge: %v", err)
	}
	if statuses[h] != VerifyPurged {
		t.Fatalf("status after purge = %v, want Purged", statuses[h])
	}
}

func TestFindLostHeads(t *testing.T) {
	r := newTestRepo(t)
	hashes := commitChain(t, r, 2)
	lost := hashes[0] // superseded by the second commit, no longer HEAD

	found, err := r.FindLostHeads()
	if err != nil {
		t.Fatalf("FindLostHeads: %v", err)
	}
	for _, h := range found {
		if h == lost {
			t.Fatalf("first commit %s has an incoming ref from the second commit and should not be lost", h)
		}
	}

	// Detach a third commit from the chain without ever making it HEAD:
	// it has no incoming Ref backref from anything, so it should surface.
	blobHash, err := r.AddFileBytes([]byte("detached"))
	if err != nil {
		t.Fatalf("AddFileBytes: %v", err)
	}
	treeHash, err := r.AddTree(model.Tree{Entries: []model.TreeEntry{
		{Type: model.EntryBlob, Name: "d", Hash: blobHash},
	}})
	if err != nil {
		t.Fatalf("AddTree: %v", err)
	}
	detached, err := r.AddCommit(model.Commit{TreeHash: treeHash, Message: "orphan"})
	if err != nil {
		t.Fatalf("AddCommit: %v", err)
	}

	found, err = r.FindLostHeads()
	if err != nil {
		t.Fatalf("FindLostHeads: %v", err)
	}
	var sawDetached bool
	for _, h := range found {
		if h == detached {
			sawDetached = true
		}
	}
	if !sawDetached {
		t.Fatalf("FindLostHeads should report the detached commit %s, got %v", detached, found)
	}
}

func TestListSnapshots(t *testing.T) {
	r := newTestRepo(t)
	treeHash, err := r.AddTree(model.Tree{})
	if err != nil {
		t.Fatalf("AddTree: %v", err)
	}
	h, err := r.AddCommit(model.Commit{TreeHash: treeHash, SnapshotName: "release-1"})
	if err != nil {
		t.Fatalf("AddCommit: %v", err)
	}
	if err := r.UpdateHead(h); err != nil {
		t.Fatalf("UpdateHead: %v", err)
	}

	snaps, err := r.ListSnapshots()
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if snaps["release-1"] != h {
		t.Fatalf("ListSnapshots = %v, want release-1 -> %s", snaps, h)
	}
}

func TestHashContentMatchesAddFileBytes(t *testing.T) {
	r := newTestRepo(t)
	small := []byte("hello world")
	want, err := r.AddFileBytes(small)
	if err != nil {
		t.Fatalf("AddFileBytes: %v", err)
	}
	got, err := r.HashContent(small)
	if err != nil {
		t.Fatalf("HashContent(small): %v", err)
	}
	if got != want {
		t.Fatalf("HashContent(small) = %s, want %s", got, want)
	}

	large := make([]byte, 3*256*1024+37)
	for i := range large {
		large[i] = byte(i * 7)
	}
	wantLarge, err := r.AddFileBytes(large)
	if err != nil {
		t.Fatalf("AddFileBytes(large): %v", err)
	}
	gotLarge, err := r.HashContent(large)
	if err != nil {
		t.Fatalf("HashContent(large): %v", err)
	}
	if gotLarge != wantLarge {
		t.Fatalf("HashContent(large) = %s, want %s", gotLarge, wantLarge)
	}
}

func TestGetLargeBlobRange(t *testing.T) {
	r := newTestRepo(t)
	data := make([]byte, 3*256*1024+37)
	for i := range data {
		data[i] = byte(i)
	}
	h, err := r.AddFileBytes(data)
	if err != nil {
		t.Fatalf("AddFileBytes: %v", err)
	}
	lb, err := r.GetLargeBlob(h)
	if err != nil {
		t.Fatalf("GetLargeBlob: %v", err)
	}

	cases := []struct {
		offset, length int64
	}{
		{0, 10},
		{256 * 1024, 100},
		{256*1024 - 5, 20},
		{int64(len(data)) - 1, 1},
		{int64(len(data)), 10},
	}
	for _, c := range cases {
		got, err := r.GetLargeBlobRange(lb, c.offset, c.length)
		if err != nil {
			t.Fatalf("GetLargeBlobRange(%d, %d): %v", c.offset, c.length, err)
		}
		end := c.offset + c.length
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		var want []byte
		if c.offset < int64(len(data)) {
			want = data[c.offset:end]
		}
		if len(got) != len(want) {
			t.Fatalf("GetLargeBlobRange(%d, %d) length = %d, want %d", c.offset, c.length, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("GetLargeBlobRange(%d, %d) differs at byte %d", c.offset, c.length, i)
			}
		}
	}
}

func TestPurgeRefusesNonBlob(t *testing.T) {
	r := newTestRepo(t)
	treeHash, err := r.AddTree(model.Tree{})
	if err != nil {
		t.Fatalf("AddTree: %v", err)
	}
	if err := r.Purge(treeHash); err == nil {
		t.Fatal("Purge should refuse a Tree object")
	}
}

func TestPurgeThenVerify(t *testing.T) {
	r := newTestRepo(t)
	h, err := r.AddFileBytes([]byte("secret"))
	if err != nil {
		t.Fatalf("AddFileBytes: %v", err)
	}
	if err := r.Purge(h); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	statuses, err := r.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if statuses[h] != VerifyPurged {
		t.Fatalf("status after Purge = %v, want Purged", statuses[h])
	}
}

func TestGraftSubtree(t *testing.T) {
	src := newTestRepo(t)
	blobHash, err := src.AddFileBytes([]byte("grafted content"))
	if err != nil {
		t.Fatalf("AddFileBytes: %v", err)
	}
	innerTree, err := src.AddTree(model.Tree{Entries: []model.TreeEntry{
		{Type: model.EntryBlob, Name: "payload.txt", Hash: blobHash},
	}})
	if err != nil {
		t.Fatalf("AddTree(inner): %v", err)
	}
	rootTree, err := src.AddTree(model.Tree{Entries: []model.TreeEntry{
		{Type: model.EntryTree, Mode: 0755, Name: "sub", Hash: innerTree},
	}})
	if err != nil {
		t.Fatalf("AddTree(root): %v", err)
	}
	srcHead, err := src.AddCommit(model.Commit{TreeHash: rootTree, Message: "source commit"})
	if err != nil {
		t.Fatalf("AddCommit: %v", err)
	}
	if err := src.UpdateHead(srcHead); err != nil {
		t.Fatalf("UpdateHead: %v", err)
	}

	dst := newTestRepo(t)
	newHead, err := dst.GraftSubtree(src, "sub", "imported/sub")
	if err != nil {
		t.Fatalf("GraftSubtree: %v", err)
	}

	dstCommit, err := dst.GetCommit(newHead)
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	if dstCommit.GraftRepo != src.UUID() || dstCommit.GraftPath != "sub" || dstCommit.GraftCommitHash != srcHead {
		t.Fatalf("graft provenance not recorded: %+v", dstCommit)
	}

	root, err := dst.GetTree(dstCommit.TreeHash)
	if err != nil {
		t.Fatalf("GetTree(root): %v", err)
	}
	if len(root.Entries) != 1 || root.Entries[0].Name != "imported" {
		t.Fatalf("unexpected destination root: %+v", root.Entries)
	}
	imported, err := dst.GetTree(root.Entries[0].Hash)
	if err != nil {
		t.Fatalf("GetTree(imported): %v", err)
	}
	if len(imported.Entries) != 1 || imported.Entries[0].Name != "sub" {
		t.Fatalf("unexpected imported dir: %+v", imported.Entries)
	}
	gotBlob, err := dst.GetBlob(blobHash)
	if err != nil {
		t.Fatalf("GetBlob after graft: %v", err)
	}
	if string(gotBlob) != "grafted content" {
		t.Fatalf("grafted blob content = %q", gotBlob)
	}
}
