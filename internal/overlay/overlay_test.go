package overlay

import (
	"bytes"
	"testing"
	"time"

	"github.com/ori-fs/ori/internal/model"
	"github.com/ori-fs/ori/internal/repo"
)

func newTestOverlay(t *testing.T) *Overlay {
	t.Helper()
	r, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	o, err := Open(r, NoJournal)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return o
}

func writeAll(t *testing.T, o *Overlay, path string, data []byte) {
	t.Helper()
	fi, fh, err := o.OpenFile(path, true, false)
	if err != nil {
		t.Fatalf("OpenFile(%s): %v", path, err)
	}
	if _, err := o.WriteFile(fi, data, 0); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
	o.Release(fh)
}

func TestAddFileAndReaddir(t *testing.T) {
	o := newTestOverlay(t)
	if _, err := o.AddFile("/a.txt", 0644); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if _, err := o.AddDir("/sub", 0755); err != nil {
		t.Fatalf("AddDir: %v", err)
	}
	names, err := o.Readdir("/")
	if err != nil {
		t.Fatalf("Readdir: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 entries, got %v", names)
	}
}

func TestAddFileDuplicateRejected(t *testing.T) {
	o := newTestOverlay(t)
	if _, err := o.AddFile("/a.txt", 0644); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if _, err := o.AddFile("/a.txt", 0644); err == nil {
		t.Fatal("expected Exists error on duplicate AddFile")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	o := newTestOverlay(t)
	if _, err := o.AddFile("/a.txt", 0644); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	writeAll(t, o, "/a.txt", []byte("hello world"))

	fi, fh, err := o.OpenFile("/a.txt", false, false)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer o.Release(fh)
	data, err := o.ReadFile(fi, 11, 0)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(data, []byte("hello world")) {
		t.Fatalf("got %q", data)
	}
}

func TestAddSymlinkAndReadlink(t *testing.T) {
	o := newTestOverlay(t)
	fi, err := o.AddSymlink("/link", "/a.txt")
	if err != nil {
		t.Fatalf("AddSymlink: %v", err)
	}
	if fi.Kind != KindSymlink || fi.Link != "/a.txt" {
		t.Fatalf("unexpected symlink FileInfo: %+v", fi)
	}
}

func TestRenameRejectsDirectory(t *testing.T) {
	o := newTestOverlay(t)
	if _, err := o.AddDir("/d1", 0755); err != nil {
		t.Fatalf("AddDir: %v", err)
	}
	if err := o.Rename("/d1", "/d2"); err == nil {
		t.Fatal("expected InvalidArgument renaming a directory")
	}
}

func TestRenameFile(t *testing.T) {
	o := newTestOverlay(t)
	if _, err := o.AddFile("/a.txt", 0644); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := o.Rename("/a.txt", "/b.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := o.Stat("/a.txt"); err == nil {
		t.Fatal("/a.txt should no longer exist")
	}
	if _, err := o.Stat("/b.txt"); err != nil {
		t.Fatalf("Stat(/b.txt): %v", err)
	}
}

func TestUnlinkAndRmDir(t *testing.T) {
	o := newTestOverlay(t)
	if _, err := o.AddFile("/a.txt", 0644); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := o.Unlink("/a.txt"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, err := o.Stat("/a.txt"); err == nil {
		t.Fatal("/a.txt should be gone")
	}

	if _, err := o.AddDir("/d", 0755); err != nil {
		t.Fatalf("AddDir: %v", err)
	}
	if _, err := o.AddFile("/d/x", 0644); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := o.RmDir("/d"); err == nil {
		t.Fatal("expected NotEmpty removing a non-empty directory")
	}
	if err := o.Unlink("/d/x"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if err := o.RmDir("/d"); err != nil {
		t.Fatalf("RmDir: %v", err)
	}
}

func TestCommitAdvancesHead(t *testing.T) {
	o := newTestOverlay(t)
	if _, err := o.AddFile("/a.txt", 0644); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	writeAll(t, o, "/a.txt", []byte("v1"))
	if _, err := o.AddDir("/sub", 0755); err != nil {
		t.Fatalf("AddDir: %v", err)
	}

	h1, err := o.Commit("first", "tester")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if h1.IsEmpty() {
		t.Fatal("Commit should return a non-empty hash")
	}

	fi, err := o.Stat("/a.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.State != StateCommitted {
		t.Fatalf("expected /a.txt to be Committed after commit, got %v", fi.State)
	}

	head, err := o.repo.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head != h1 {
		t.Fatalf("HEAD %v does not match commit hash %v", head, h1)
	}
}

func TestCommitThenReopenPreservesTree(t *testing.T) {
	o := newTestOverlay(t)
	if _, err := o.AddFile("/a.txt", 0644); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	writeAll(t, o, "/a.txt", []byte("persisted"))
	if _, err := o.Commit("first", "tester"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	o2, err := Open(o.repo, NoJournal)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	fi, fh, err := o2.OpenFile("/a.txt", false, false)
	if err != nil {
		t.Fatalf("OpenFile after reopen: %v", err)
	}
	defer o2.Release(fh)
	data, err := o2.ReadFile(fi, 9, 0)
	if err != nil {
		t.Fatalf("ReadFile after reopen: %v", err)
	}
	if !bytes.Equal(data, []byte("persisted")) {
		t.Fatalf("got %q", data)
	}
}

func TestCommitSymlinkSurvivesReopen(t *testing.T) {
	o := newTestOverlay(t)
	if _, err := o.AddSymlink("/link", "/target"); err != nil {
		t.Fatalf("AddSymlink: %v", err)
	}
	if _, err := o.Commit("add link", "tester"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	o2, err := Open(o.repo, NoJournal)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	fi, err := o2.Stat("/link")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Kind != KindSymlink {
		t.Fatalf("expected KindSymlink after reopen, got %v", fi.Kind)
	}
	if fi.Link != "/target" {
		t.Fatalf("expected link target /target, got %q", fi.Link)
	}
}

func TestOpenSnapshotReadsCommittedContent(t *testing.T) {
	o := newTestOverlay(t)
	if _, err := o.AddFile("/a.txt", 0644); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	writeAll(t, o, "/a.txt", []byte("snap"))
	base, err := o.Commit("first", "tester")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	baseCommit, err := o.repo.GetCommit(base)
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	h, err := o.repo.AddCommit(model.Commit{
		TreeHash:     baseCommit.TreeHash,
		Parent1:      base,
		User:         "tester",
		Timestamp:    time.Now().UTC(),
		SnapshotName: "v1",
		Message:      "snapshot v1",
	})
	if err != nil {
		t.Fatalf("AddCommit: %v", err)
	}
	if err := o.repo.UpdateHead(h); err != nil {
		t.Fatalf("UpdateHead: %v", err)
	}

	view, err := o.OpenSnapshot("v1")
	if err != nil {
		t.Fatalf("OpenSnapshot: %v", err)
	}
	data, err := view.ReadFile("a.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(data, []byte("snap")) {
		t.Fatalf("got %q", data)
	}
}
