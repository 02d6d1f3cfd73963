package replication

import (
	"bytes"
	"testing"

	"github.com/ori-fs/ori/internal/hashid"
	"github.com/ori-fs/ori/internal/model"
	"github.com/ori-fs/ori/internal/repo"
)

func seedRepo(t *testing.T) (*repo.Repo, hashid.HashId) {
	t.Helper()
	r, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	blobHash, err := r.AddFileBytes([]byte("hello from the source repository"))
	if err != nil {
		t.Fatalf("AddFileBytes: %v", err)
	}
	tree := model.Tree{Entries: []model.TreeEntry{
		{Type: model.EntryBlob, Mode: 0644, Name: "hello.txt", Hash: blobHash},
	}}
	treeHash, err := r.AddTree(tree)
	if err != nil {
		t.Fatalf("AddTree: %v", err)
	}
	commitHash, err := r.AddCommit(model.Commit{TreeHash: treeHash, User: "tester", Message: "first"})
	if err != nil {
		t.Fatalf("AddCommit: %v", err)
	}
	if err := r.UpdateHead(commitHash); err != nil {
		t.Fatalf("UpdateHead: %v", err)
	}
	return r, commitHash
}

func TestPullFetchesFullClosure(t *testing.T) {
	src, commitHash := seedRepo(t)
	dst, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init dst: %v", err)
	}

	head, err := Pull(src, dst)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if head != commitHash {
		t.Fatalf("Pull returned %s, want %s", head, commitHash)
	}

	dstHead, err := dst.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if dstHead != commitHash {
		t.Fatalf("dst HEAD %s, want %s", dstHead, commitHash)
	}

	c, err := dst.GetCommit(commitHash)
	if err != nil {
		t.Fatalf("GetCommit on dst: %v", err)
	}
	tree, err := dst.GetTree(c.TreeHash)
	if err != nil {
		t.Fatalf("GetTree on dst: %v", err)
	}
	if len(tree.Entries) != 1 || tree.Entries[0].Name != "hello.txt" {
		t.Fatalf("unexpected tree entries: %+v", tree.Entries)
	}
	data, err := dst.GetBlob(tree.Entries[0].Hash)
	if err != nil {
		t.Fatalf("GetBlob on dst: %v", err)
	}
	if !bytes.Equal(data, []byte("hello from the source repository")) {
		t.Fatalf("got %q", data)
	}
}

func TestPullIsIdempotent(t *testing.T) {
	src, commitHash := seedRepo(t)
	dst, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init dst: %v", err)
	}
	if _, err := Pull(src, dst); err != nil {
		t.Fatalf("first Pull: %v", err)
	}
	head, err := Pull(src, dst)
	if err != nil {
		t.Fatalf("second Pull: %v", err)
	}
	if head != commitHash {
		t.Fatalf("got %s, want %s", head, commitHash)
	}
}

func TestPullFromEmptyRepoIsNoop(t *testing.T) {
	src, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init src: %v", err)
	}
	dst, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init dst: %v", err)
	}
	head, err := Pull(src, dst)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if !head.IsEmpty() {
		t.Fatalf("expected empty head, got %s", head)
	}
}

func TestOpenLocalSatisfiesReadContract(t *testing.T) {
	src, commitHash := seedRepo(t)
	local, err := OpenLocal(src.RootDir())
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	heads, err := local.ListHeads()
	if err != nil {
		t.Fatalf("ListHeads: %v", err)
	}
	if len(heads) != 1 || heads[0] != commitHash {
		t.Fatalf("unexpected heads: %v", heads)
	}
}
