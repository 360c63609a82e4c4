package gitops

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/cenv/internal/cenv/domain"
)

const testRemote = "https://github.com/alice/claude-config"

func newTestGit(t *testing.T, run func(ctx context.Context, dir string, args ...string) (string, error)) *Git {
	t.Helper()
	g := New(time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	g.runGit = run
	return g
}

func TestCloneRejectsInvalidURL(t *testing.T) {
	g := newTestGit(t, func(ctx context.Context, dir string, args ...string) (string, error) {
		t.Fatal("git invoked for invalid URL")
		return "", nil
	})

	err := g.Clone("not-a-url", filepath.Join(t.TempDir(), "env"))
	var gitErr *domain.GitOperationError
	if !errors.As(err, &gitErr) || gitErr.Op != "validation" {
		t.Fatalf("Clone error = %v, want validation GitOperationError", err)
	}
}

func TestCloneStagesThenRenamesIntoTarget(t *testing.T) {
	target := filepath.Join(t.TempDir(), "env")

	var cloneDest string
	g := newTestGit(t, func(ctx context.Context, dir string, args ...string) (string, error) {
		if args[0] != "clone" {
			t.Fatalf("unexpected git args: %v", args)
		}
		cloneDest = args[len(args)-1]
		if err := os.MkdirAll(filepath.Join(cloneDest, ".git"), 0o755); err != nil {
			return "", err
		}
		return "", os.WriteFile(filepath.Join(cloneDest, "settings.json"), []byte("{}"), 0o644)
	})

	if err := g.Clone(testRemote, target); err != nil {
		t.Fatalf("Clone failed: %v", err)
	}

	if cloneDest == target {
		t.Error("clone wrote directly into the target instead of a staging sibling")
	}
	if !strings.HasPrefix(filepath.Base(cloneDest), ".tmp-env-") {
		t.Errorf("staging directory %s lacks the expected sibling name", cloneDest)
	}
	if _, err := os.Stat(filepath.Join(target, "settings.json")); err != nil {
		t.Errorf("cloned file missing from target: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, ".git")); !errors.Is(err, os.ErrNotExist) {
		t.Error(".git metadata survived the clone")
	}
	if _, err := os.Stat(cloneDest); !errors.Is(err, os.ErrNotExist) {
		t.Error("staging directory left behind")
	}
}

func TestCloneFailureLeavesNoTarget(t *testing.T) {
	target := filepath.Join(t.TempDir(), "env")

	g := newTestGit(t, func(ctx context.Context, dir string, args ...string) (string, error) {
		// Simulate a partial clone before the failure.
		dest := args[len(args)-1]
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return "", err
		}
		return "", errors.New("fatal: repository not found")
	})

	err := g.Clone(testRemote, target)
	var gitErr *domain.GitOperationError
	if !errors.As(err, &gitErr) || gitErr.Op != "clone" {
		t.Fatalf("Clone error = %v, want clone GitOperationError", err)
	}
	if !strings.Contains(gitErr.Reason, "repository not found") {
		t.Errorf("Reason = %q, want git stderr preserved", gitErr.Reason)
	}
	if _, statErr := os.Stat(target); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("target exists after failed clone")
	}
	entries, _ := os.ReadDir(filepath.Dir(target))
	if len(entries) != 0 {
		t.Errorf("staging debris left behind: %v", entries)
	}
}

func TestCloneReportsTimeout(t *testing.T) {
	target := filepath.Join(t.TempDir(), "env")

	g := newTestGit(t, func(ctx context.Context, dir string, args ...string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	g.timeout = 10 * time.Millisecond

	err := g.Clone(testRemote, target)
	var gitErr *domain.GitOperationError
	if !errors.As(err, &gitErr) {
		t.Fatalf("Clone error = %v, want GitOperationError", err)
	}
	if !strings.Contains(gitErr.Reason, "timed out") {
		t.Errorf("Reason = %q, want timeout message", gitErr.Reason)
	}
}

func TestPushNewRunsFullSequence(t *testing.T) {
	dir := t.TempDir()

	var got [][]string
	g := newTestGit(t, func(ctx context.Context, cmdDir string, args ...string) (string, error) {
		if cmdDir != dir {
			t.Errorf("git ran in %s, want %s", cmdDir, dir)
		}
		got = append(got, args)
		return "", nil
	})

	if err := g.PushNew(dir, testRemote); err != nil {
		t.Fatalf("PushNew failed: %v", err)
	}

	wantFirst := []string{"init"}
	wantLast := []string{"push", "-u", "origin", "main"}
	if len(got) != 6 {
		t.Fatalf("ran %d git commands, want 6: %v", len(got), got)
	}
	if got[0][0] != wantFirst[0] {
		t.Errorf("first command = %v, want %v", got[0], wantFirst)
	}
	if strings.Join(got[5], " ") != strings.Join(wantLast, " ") {
		t.Errorf("last command = %v, want %v", got[5], wantLast)
	}
}

func TestPushNewStopsOnFirstFailure(t *testing.T) {
	calls := 0
	g := newTestGit(t, func(ctx context.Context, dir string, args ...string) (string, error) {
		calls++
		if args[0] == "commit" {
			return "", errors.New("nothing to commit")
		}
		return "", nil
	})

	err := g.PushNew(t.TempDir(), testRemote)
	var gitErr *domain.GitOperationError
	if !errors.As(err, &gitErr) || gitErr.Op != "push" {
		t.Fatalf("PushNew error = %v, want push GitOperationError", err)
	}
	if calls != 3 {
		t.Errorf("ran %d commands before stopping, want 3", calls)
	}
}
