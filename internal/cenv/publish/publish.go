// Package publish exports an environment to a GitHub repository: the
// directory is staged into a temporary copy with credential-like files
// removed and absolute paths rewritten to placeholders, then pushed.
package publish

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/example/cenv/internal/cenv/portability"
	"github.com/example/cenv/internal/cenv/storage"
)

// sensitivePatterns are filename globs that must never be published.
var sensitivePatterns = []string{
	"credentials.json",
	"credentials.*.json",
	".env",
	".env.*",
	"*.key",
	"*.pem",
	"secrets.json",
	"secrets.*.json",
	"auth.json",
	"tokens.json",
}

// sensitiveSubstrings flag sensitive content by filename alone.
var sensitiveSubstrings = []string{
	"secret",
	"token",
	"password",
	"apikey",
	"api_key",
}

// IsSensitiveFile reports whether a file name (not a path) should be excluded
// from publishing.
func IsSensitiveFile(filename string) bool {
	lower := strings.ToLower(filename)
	for _, pattern := range sensitivePatterns {
		if ok, _ := filepath.Match(pattern, lower); ok {
			return true
		}
	}
	for _, substring := range sensitiveSubstrings {
		if strings.Contains(lower, substring) {
			return true
		}
	}
	return false
}

// Pusher pushes a staged directory to a remote repository.
type Pusher interface {
	PushNew(dir, url string) error
}

// Publisher stages and pushes environment exports.
type Publisher struct {
	st     *storage.Storage
	pusher Pusher
	log    *slog.Logger
}

// New creates a Publisher over the given filesystem.
func New(fs afero.Fs, pusher Pusher, log *slog.Logger) *Publisher {
	return &Publisher{st: storage.New(fs), pusher: pusher, log: log}
}

// Stage copies envPath into a fresh staging directory under the platform temp
// dir, skipping sensitive files and substituting path placeholders in JSON
// files. It returns the staging path and portability warnings; the caller
// owns cleanup of the returned directory.
func (p *Publisher) Stage(envPath, claudeHome, userHome string) (string, []string, error) {
	staging, err := afero.TempDir(p.st.FileSystem(), "", "cenv-publish-")
	if err != nil {
		return "", nil, fmt.Errorf("create staging directory: %w", err)
	}

	var skipped []string
	if err := p.copyFiltered(envPath, staging, &skipped); err != nil {
		_ = p.st.RemoveAll(staging)
		return "", nil, err
	}
	for _, name := range skipped {
		p.log.Debug("excluded sensitive file from publish", "file", name)
	}

	warnings, err := portability.ProcessForPublish(p.st.FileSystem(), staging, claudeHome, userHome)
	if err != nil {
		_ = p.st.RemoveAll(staging)
		return "", nil, fmt.Errorf("rewrite paths for publish: %w", err)
	}
	return staging, warnings, nil
}

// Publish stages envPath and pushes it to url, cleaning up the staging copy.
// The returned warnings name absolute paths the export could not make
// portable.
func (p *Publisher) Publish(envPath, url, claudeHome, userHome string) ([]string, error) {
	staging, warnings, err := p.Stage(envPath, claudeHome, userHome)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := p.st.RemoveAll(staging); err != nil {
			p.log.Warn("failed to remove staging directory", "path", staging, "error", err)
		}
	}()

	if err := p.pusher.PushNew(staging, url); err != nil {
		return warnings, err
	}
	return warnings, nil
}

func (p *Publisher) copyFiltered(src, dst string, skipped *[]string) error {
	entries, err := p.st.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	for _, entry := range entries {
		if IsSensitiveFile(entry.Name()) {
			*skipped = append(*skipped, entry.Name())
			continue
		}
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		switch {
		case entry.Mode()&os.ModeSymlink != 0:
			// Links frequently point outside the environment; exports stay
			// self-contained without them.
			continue
		case entry.IsDir():
			if err := p.st.Mkdir(dstPath); err != nil {
				return fmt.Errorf("create %s: %w", dstPath, err)
			}
			if err := p.copyFiltered(srcPath, dstPath, skipped); err != nil {
				return err
			}
		default:
			if err := p.st.CopyFile(srcPath, dstPath, entry.Mode().Perm()); err != nil {
				return fmt.Errorf("copy %s: %w", srcPath, err)
			}
		}
	}
	return nil
}
