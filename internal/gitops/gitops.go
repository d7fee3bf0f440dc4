// Package gitops runs the version-control commands the operator can trigger
// from chat. Every function returns (ok, text) where text is ready to relay
// to the operator.
package gitops

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	cmdTimeout  = 30 * time.Second
	pushTimeout = 60 * time.Second
)

func run(ctx context.Context, workspace string, timeout time.Duration, args ...string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = workspace

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return strings.TrimSpace(stdout.String()), strings.TrimSpace(stderr.String()), err
}

// Diff returns uncommitted changes. With a pattern, only paths containing it.
// Falls back to the staged diff when the working tree is clean.
func Diff(ctx context.Context, workspace, pattern string) (bool, string) {
	args := []string{"diff"}
	if pattern != "" {
		args = append(args, "*"+pattern+"*")
	}
	out, errOut, err := run(ctx, workspace, cmdTimeout, args...)
	if err != nil {
		return false, failText(errOut, err)
	}
	if out == "" {
		out, _, _ = run(ctx, workspace, cmdTimeout, "diff", "--staged")
	}
	if out == "" {
		return true, "no changes"
	}
	return true, out
}

// Status returns the short working-tree status.
func Status(ctx context.Context, workspace string) (bool, string) {
	out, errOut, err := run(ctx, workspace, cmdTimeout, "status", "--short")
	if err != nil {
		return false, failText(errOut, err)
	}
	if out == "" {
		return true, "working tree clean"
	}
	return true, out
}

// Commit stages everything and commits. Returns the short hash on success
// and "nothing to commit" when the tree is clean.
func Commit(ctx context.Context, workspace, message string) (bool, string) {
	if _, errOut, err := run(ctx, workspace, cmdTimeout, "add", "-A"); err != nil {
		return false, failText(errOut, err)
	}

	staged, _, _ := run(ctx, workspace, cmdTimeout, "status", "--porcelain")
	if staged == "" {
		return false, "nothing to commit"
	}

	if _, errOut, err := run(ctx, workspace, cmdTimeout, "commit", "-m", message); err != nil {
		return false, failText(errOut, err)
	}

	hash, _, err := run(ctx, workspace, cmdTimeout, "rev-parse", "--short", "HEAD")
	if err != nil {
		return true, "committed"
	}
	return true, hash
}

// Push pushes the current branch to its upstream.
func Push(ctx context.Context, workspace string) (bool, string) {
	if _, errOut, err := run(ctx, workspace, pushTimeout, "push"); err != nil {
		return false, failText(errOut, err)
	}
	return true, "pushed"
}

// Rollback discards uncommitted changes: checkout tracked files, clean
// untracked ones.
func Rollback(ctx context.Context, workspace string) (bool, string) {
	if _, errOut, err := run(ctx, workspace, cmdTimeout, "checkout", "."); err != nil {
		return false, failText(errOut, err)
	}
	if _, errOut, err := run(ctx, workspace, cmdTimeout, "clean", "-fd"); err != nil {
		return false, failText(errOut, err)
	}
	return true, "rolled back all changes"
}

// ChangedFiles lists paths with uncommitted changes. A non-empty glob
// (doublestar syntax, e.g. "**/*.go") filters the list.
func ChangedFiles(ctx context.Context, workspace, glob string) ([]string, error) {
	out, errOut, err := run(ctx, workspace, cmdTimeout, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git status: %s", failText(errOut, err))
	}

	var files []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		path := strings.TrimSpace(line[3:])
		// Renames are reported as "old -> new"; keep the new path.
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		if glob != "" {
			ok, gerr := doublestar.Match(glob, path)
			if gerr != nil {
				return nil, fmt.Errorf("bad glob %q: %w", glob, gerr)
			}
			if !ok {
				continue
			}
		}
		files = append(files, path)
	}
	return files, nil
}

func failText(stderr string, err error) string {
	if stderr != "" {
		return stderr
	}
	return err.Error()
}
