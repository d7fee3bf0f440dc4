package gitops

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "test"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	return dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCommitAndStatus(t *testing.T) {
	dir := initRepo(t)
	ctx := context.Background()

	ok, msg := Commit(ctx, dir, "empty")
	if ok || msg != "nothing to commit" {
		t.Fatalf("empty commit: ok=%v msg=%q", ok, msg)
	}

	writeFile(t, dir, "main.go", "package main\n")
	ok, hash := Commit(ctx, dir, "add main")
	if !ok {
		t.Fatalf("commit failed: %s", hash)
	}
	if len(hash) < 6 {
		t.Errorf("hash = %q", hash)
	}

	ok, status := Status(ctx, dir)
	if !ok || status != "working tree clean" {
		t.Errorf("status = %q", status)
	}
}

func TestDiff(t *testing.T) {
	dir := initRepo(t)
	ctx := context.Background()

	writeFile(t, dir, "a.txt", "one\n")
	if ok, msg := Commit(ctx, dir, "base"); !ok {
		t.Fatal(msg)
	}

	ok, diff := Diff(ctx, dir, "")
	if !ok || diff != "no changes" {
		t.Fatalf("clean diff = %q", diff)
	}

	writeFile(t, dir, "a.txt", "two\n")
	ok, diff = Diff(ctx, dir, "")
	if !ok || !strings.Contains(diff, "-one") || !strings.Contains(diff, "+two") {
		t.Errorf("diff = %q", diff)
	}
}

func TestRollback(t *testing.T) {
	dir := initRepo(t)
	ctx := context.Background()

	writeFile(t, dir, "a.txt", "one\n")
	if ok, msg := Commit(ctx, dir, "base"); !ok {
		t.Fatal(msg)
	}

	writeFile(t, dir, "a.txt", "modified\n")
	writeFile(t, dir, "untracked.txt", "junk\n")

	ok, msg := Rollback(ctx, dir)
	if !ok {
		t.Fatalf("rollback: %s", msg)
	}

	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "one\n" {
		t.Errorf("tracked file not restored: %q", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "untracked.txt")); !os.IsNotExist(err) {
		t.Error("untracked file survived rollback")
	}
}

func TestChangedFiles(t *testing.T) {
	dir := initRepo(t)
	ctx := context.Background()

	writeFile(t, dir, "main.go", "package main\n")
	writeFile(t, dir, "README.md", "hi\n")

	all, err := ChangedFiles(ctx, dir, "")
	if err != nil {
		t.Fatal(err)
	}
	slices.Sort(all)
	if !slices.Equal(all, []string{"README.md", "main.go"}) {
		t.Errorf("all = %v", all)
	}

	goOnly, err := ChangedFiles(ctx, dir, "**/*.go")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(goOnly, []string{"main.go"}) {
		t.Errorf("filtered = %v", goOnly)
	}
}

func TestBadGlob(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "x.txt", "x\n")
	if _, err := ChangedFiles(context.Background(), dir, "[unclosed"); err == nil {
		t.Fatal("expected glob error")
	}
}

func TestNotARepo(t *testing.T) {
	dir := t.TempDir()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	if ok, _ := Status(context.Background(), dir); ok {
		t.Error("status succeeded outside a repository")
	}
}
