package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func chdirForTest(t *testing.T, dir string) func() {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir(%s): %v", dir, err)
	}
	return func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatalf("restore cwd %s: %v", wd, err)
		}
	}
}

func writeCmdTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll(%s): %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

func TestInitCmdCreatesRepo(t *testing.T) {
	dir := t.TempDir()

	var out bytes.Buffer
	initCmd := newInitCmd()
	initCmd.SetOut(&out)
	initCmd.SetErr(&out)
	initCmd.SetArgs([]string{dir})
	if err := initCmd.Execute(); err != nil {
		t.Fatalf("init Execute: %v\noutput:\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "initialized empty ori repository") {
		t.Fatalf("init output = %q, want to contain %q", out.String(), "initialized empty ori repository")
	}
	if _, err := os.Stat(filepath.Join(dir, ".ori")); err != nil {
		t.Fatalf("expected .ori to exist: %v", err)
	}
}

func TestStatusAndCommitCmdRoundTrip(t *testing.T) {
	dir := t.TempDir()

	initCmd := newInitCmd()
	initCmd.SetOut(&bytes.Buffer{})
	initCmd.SetArgs([]string{dir})
	if err := initCmd.Execute(); err != nil {
		t.Fatalf("init Execute: %v", err)
	}

	restore := chdirForTest(t, dir)
	defer restore()

	writeCmdTestFile(t, filepath.Join(dir, "a.txt"), "hello")

	var statusOut bytes.Buffer
	statusCmd := newStatusCmd()
	statusCmd.SetOut(&statusOut)
	if err := statusCmd.Execute(); err != nil {
		t.Fatalf("status Execute: %v\noutput:\n%s", err, statusOut.String())
	}
	if !strings.Contains(statusOut.String(), "a.txt") {
		t.Fatalf("status output = %q, want to contain %q", statusOut.String(), "a.txt")
	}

	var commitOut bytes.Buffer
	commitCmd := newCommitCmd()
	commitCmd.SetOut(&commitOut)
	commitCmd.SetArgs([]string{"first commit"})
	if err := commitCmd.Execute(); err != nil {
		t.Fatalf("commit Execute: %v\noutput:\n%s", err, commitOut.String())
	}

	var statusAfter bytes.Buffer
	statusCmd2 := newStatusCmd()
	statusCmd2.SetOut(&statusAfter)
	if err := statusCmd2.Execute(); err != nil {
		t.Fatalf("status Execute (after commit): %v", err)
	}
	if !strings.Contains(statusAfter.String(), "nothing changed") {
		t.Fatalf("status after commit = %q, want to contain %q", statusAfter.String(), "nothing changed")
	}

	var logOut bytes.Buffer
	logCmd := newLogCmd()
	logCmd.SetOut(&logOut)
	if err := logCmd.Execute(); err != nil {
		t.Fatalf("log Execute: %v", err)
	}
	if !strings.Contains(logOut.String(), "first commit") {
		t.Fatalf("log output = %q, want to contain %q", logOut.String(), "first commit")
	}
}

func TestVerifyCmdReportsNoProblemsOnFreshCommit(t *testing.T) {
	dir := t.TempDir()

	initCmd := newInitCmd()
	initCmd.SetOut(&bytes.Buffer{})
	initCmd.SetArgs([]string{dir})
	if err := initCmd.Execute(); err != nil {
		t.Fatalf("init Execute: %v", err)
	}

	restore := chdirForTest(t, dir)
	defer restore()

	writeCmdTestFile(t, filepath.Join(dir, "a.txt"), "hello")

	commitCmd := newCommitCmd()
	commitCmd.SetOut(&bytes.Buffer{})
	commitCmd.SetArgs([]string{"first commit"})
	if err := commitCmd.Execute(); err != nil {
		t.Fatalf("commit Execute: %v", err)
	}

	var verifyOut bytes.Buffer
	verifyCmd := newVerifyCmd()
	verifyCmd.SetOut(&verifyOut)
	if err := verifyCmd.Execute(); err != nil {
		t.Fatalf("verify Execute: %v\noutput:\n%s", err, verifyOut.String())
	}
	if !strings.Contains(verifyOut.String(), "0 problems") {
		t.Fatalf("verify output = %q, want to contain %q", verifyOut.String(), "0 problems")
	}
}

func TestListObjCmdListsCommittedObjects(t *testing.T) {
	dir := t.TempDir()

	initCmd := newInitCmd()
	initCmd.SetOut(&bytes.Buffer{})
	initCmd.SetArgs([]string{dir})
	if err := initCmd.Execute(); err != nil {
		t.Fatalf("init Execute: %v", err)
	}

	restore := chdirForTest(t, dir)
	defer restore()

	writeCmdTestFile(t, filepath.Join(dir, "a.txt"), "hello")

	commitCmd := newCommitCmd()
	commitCmd.SetOut(&bytes.Buffer{})
	commitCmd.SetArgs([]string{"first commit"})
	if err := commitCmd.Execute(); err != nil {
		t.Fatalf("commit Execute: %v", err)
	}

	var listOut bytes.Buffer
	listCmd := newListObjCmd()
	listCmd.SetOut(&listOut)
	if err := listCmd.Execute(); err != nil {
		t.Fatalf("listobj Execute: %v\noutput:\n%s", err, listOut.String())
	}
	lines := strings.Split(strings.TrimSpace(listOut.String()), "\n")
	if len(lines) < 3 {
		t.Fatalf("listobj output = %q, want at least 3 objects (blob, tree, commit)", listOut.String())
	}
}
