package repo

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	full := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("MkdirAll %s: %v", filepath.Dir(full), err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile %s: %v", full, err)
	}
}

func statusFor(entries []StatusEntry, path string) (WorkStatus, bool) {
	for _, e := range entries {
		if e.Path == path {
			return e.Status, true
		}
	}
	return 0, false
}

func TestWorkingStatusWithNoCommits(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r.RootDir(), "a.txt", "hello")
	writeFile(t, r.RootDir(), "sub/b.txt", "world")

	entries, err := r.WorkingStatus()
	if err != nil {
		t.Fatalf("WorkingStatus: %v", err)
	}
	if st, ok := statusFor(entries, "a.txt"); !ok || st != StatusAdded {
		t.Fatalf("a.txt status = %v, %v; want Added", st, ok)
	}
	if st, ok := statusFor(entries, "sub/b.txt"); !ok || st != StatusAdded {
		t.Fatalf("sub/b.txt status = %v, %v; want Added", st, ok)
	}
}

func TestCommitWorkingTreeThenStatusIsClean(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r.RootDir(), "a.txt", "hello")

	h, err := r.CommitWorkingTree("initial", "tester")
	if err != nil {
		t.Fatalf("CommitWorkingTree: %v", err)
	}
	head, err := r.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head != h {
		t.Fatalf("Head = %s, want %s", head, h)
	}

	entries, err := r.WorkingStatus()
	if err != nil {
		t.Fatalf("WorkingStatus: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("status after commit = %v, want empty", entries)
	}
}

func TestWorkingStatusDetectsModifyAndDelete(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r.RootDir(), "a.txt", "hello")
	writeFile(t, r.RootDir(), "b.txt", "world")
	if _, err := r.CommitWorkingTree("initial", "tester"); err != nil {
		t.Fatalf("CommitWorkingTree: %v", err)
	}

	writeFile(t, r.RootDir(), "a.txt", "hello again")
	if err := os.Remove(filepath.Join(r.RootDir(), "b.txt")); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	entries, err := r.WorkingStatus()
	if err != nil {
		t.Fatalf("WorkingStatus: %v", err)
	}
	if st, ok := statusFor(entries, "a.txt"); !ok || st != StatusModified {
		t.Fatalf("a.txt status = %v, %v; want Modified", st, ok)
	}
	if st, ok := statusFor(entries, "b.txt"); !ok || st != StatusDeleted {
		t.Fatalf("b.txt status = %v, %v; want Deleted", st, ok)
	}
}

func TestCheckoutCommitRestoresContent(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r.RootDir(), "a.txt", "version one")
	first, err := r.CommitWorkingTree("v1", "tester")
	if err != nil {
		t.Fatalf("CommitWorkingTree: %v", err)
	}

	writeFile(t, r.RootDir(), "a.txt", "version two")
	if _, err := r.CommitWorkingTree("v2", "tester"); err != nil {
		t.Fatalf("CommitWorkingTree: %v", err)
	}

	res, err := r.CheckoutCommit(first)
	if err != nil {
		t.Fatalf("CheckoutCommit: %v", err)
	}
	if len(res.PurgedPaths) != 0 {
		t.Fatalf("unexpected purged paths: %v", res.PurgedPaths)
	}
	got, err := os.ReadFile(filepath.Join(r.RootDir(), "a.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "version one" {
		t.Fatalf("a.txt content = %q, want %q", got, "version one")
	}
	head, err := r.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head != first {
		t.Fatalf("Head = %s, want %s", head, first)
	}
}

func TestCheckoutSkipsPurgedBlob(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r.RootDir(), "a.txt", "keep me")
	writeFile(t, r.RootDir(), "secret.txt", "purge me")
	h, err := r.CommitWorkingTree("v1", "tester")
	if err != nil {
		t.Fatalf("CommitWorkingTree: %v", err)
	}

	c, err := r.GetCommit(h)
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	tree, err := r.GetTree(c.TreeHash)
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	var secretHash = tree.Entries[0].Hash
	for _, e := range tree.Entries {
		if e.Name == "secret.txt" {
			secretHash = e.Hash
		}
	}
	if err := r.Purge(secretHash); err != nil {
		t.Fatalf("Purge: %v", err)
	}

	res, err := r.CheckoutCommit(h)
	if err != nil {
		t.Fatalf("CheckoutCommit: %v", err)
	}
	if len(res.PurgedPaths) != 1 || res.PurgedPaths[0] != "secret.txt" {
		t.Fatalf("PurgedPaths = %v, want [secret.txt]", res.PurgedPaths)
	}
	if _, err := os.Stat(filepath.Join(r.RootDir(), "a.txt")); err != nil {
		t.Fatalf("a.txt should still be checked out: %v", err)
	}
	if _, err := os.Stat(filepath.Join(r.RootDir(), "secret.txt")); !os.IsNotExist(err) {
		t.Fatalf("secret.txt should be absent after a skipped purge, got err=%v", err)
	}
}
