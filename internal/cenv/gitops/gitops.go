// Package gitops shells out to git for cloning and publishing, bounded by a
// configurable wall-clock timeout. Operations work on the real filesystem:
// the git subprocess does regardless of what the store is running on.
package gitops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/cenv/internal/cenv/domain"
	"github.com/example/cenv/internal/cenv/validator"
)

// Cloner populates a target directory from a remote repository, or fails. The
// environment store consumes this interface; Git is the default
// implementation.
type Cloner interface {
	Clone(url, target string) error
}

// Git runs git subprocesses with a timeout.
type Git struct {
	timeout time.Duration
	log     *slog.Logger

	// runGit is swapped in tests to avoid spawning real subprocesses.
	runGit func(ctx context.Context, dir string, args ...string) (string, error)
}

// New creates a Git runner with the given operation timeout.
func New(timeout time.Duration, log *slog.Logger) *Git {
	g := &Git{timeout: timeout, log: log}
	g.runGit = g.execGit
	return g
}

// Clone clones url into target. The clone lands in a temporary sibling first
// and is renamed into place after its .git metadata is stripped, so target
// never holds a partial clone. On any failure, including timeout, the
// temporary directory is removed.
func (g *Git) Clone(url, target string) error {
	if !validator.IsRemoteURL(url) {
		return &domain.GitOperationError{Op: "validation", URL: url, Reason: "invalid GitHub URL format"}
	}

	tmp := tempSibling(target)
	defer os.RemoveAll(tmp)

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	g.log.Debug("cloning repository", "url", url, "target", target)
	if _, err := g.runGit(ctx, "", "clone", "--depth", "1", url, tmp); err != nil {
		return g.wrap("clone", url, ctx, err)
	}

	if err := os.RemoveAll(filepath.Join(tmp, ".git")); err != nil {
		return &domain.GitOperationError{Op: "clone", URL: url, Reason: err.Error()}
	}
	if err := os.Rename(tmp, target); err != nil {
		return &domain.GitOperationError{Op: "clone", URL: url, Reason: err.Error()}
	}
	return nil
}

// PushNew initializes a repository in dir and pushes its contents to url as
// the main branch. Used by publish on an already-staged export directory.
func (g *Git) PushNew(dir, url string) error {
	if !validator.IsRemoteURL(url) {
		return &domain.GitOperationError{Op: "validation", URL: url, Reason: "invalid GitHub URL format"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	steps := [][]string{
		{"init"},
		{"add", "-A"},
		{"commit", "-m", "Publish Claude environment"},
		{"branch", "-M", "main"},
		{"remote", "add", "origin", url},
		{"push", "-u", "origin", "main"},
	}
	for _, args := range steps {
		if _, err := g.runGit(ctx, dir, args...); err != nil {
			return g.wrap("push", url, ctx, err)
		}
	}
	return nil
}

func (g *Git) wrap(op, url string, ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domain.GitOperationError{
			Op:     op,
			URL:    url,
			Reason: fmt.Sprintf("operation timed out after %s", g.timeout),
		}
	}
	return &domain.GitOperationError{Op: op, URL: url, Reason: err.Error()}
}

func (g *Git) execGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		reason := strings.TrimSpace(stderr.String())
		if reason == "" {
			reason = err.Error()
		}
		return "", errors.New(reason)
	}
	return stdout.String(), nil
}

func tempSibling(target string) string {
	return filepath.Join(filepath.Dir(target), fmt.Sprintf(".tmp-%s-%d", filepath.Base(target), os.Getpid()))
}
