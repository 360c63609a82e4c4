package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Storage provides the low-level filesystem operations the environment store
// is built on: existence checks, renames, symlink primitives, and
// symlink-preserving tree copies. Symlink support is probed through afero's
// optional interfaces, which the OS filesystem implements.
type Storage struct {
	fs afero.Fs
}

// New creates a Storage over the given filesystem.
func New(fs afero.Fs) *Storage {
	return &Storage{fs: fs}
}

// FileSystem returns the underlying filesystem.
func (s *Storage) FileSystem() afero.Fs {
	return s.fs
}

// Exists checks if a path exists.
func (s *Storage) Exists(path string) (bool, error) {
	return afero.Exists(s.fs, path)
}

// DirExists checks if a path exists and is a directory.
func (s *Storage) DirExists(path string) (bool, error) {
	return afero.DirExists(s.fs, path)
}

// Mkdir creates a single directory and fails if it already exists. The
// "create if absent" semantics make it usable as a reservation step when
// concurrent callers race on the same name.
func (s *Storage) Mkdir(path string) error {
	return s.fs.Mkdir(path, 0o755)
}

// MkdirAll creates a directory along with any missing parents.
func (s *Storage) MkdirAll(path string) error {
	return s.fs.MkdirAll(path, 0o755)
}

// Rename moves a file or directory. On POSIX filesystems a same-volume rename
// is a single atomic syscall.
func (s *Storage) Rename(oldpath, newpath string) error {
	return s.fs.Rename(oldpath, newpath)
}

// Remove deletes a single file or symlink.
func (s *Storage) Remove(path string) error {
	return s.fs.Remove(path)
}

// RemoveAll deletes a path and any children.
func (s *Storage) RemoveAll(path string) error {
	return s.fs.RemoveAll(path)
}

// ReadDir reads directory contents.
func (s *Storage) ReadDir(path string) ([]os.FileInfo, error) {
	return afero.ReadDir(s.fs, path)
}

// Lstat stats a path without following symlinks, when the filesystem supports
// it, and falls back to Stat otherwise.
func (s *Storage) Lstat(path string) (os.FileInfo, error) {
	if lstater, ok := s.fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(path)
		return info, err
	}
	return s.fs.Stat(path)
}

// IsSymlink reports whether path exists and is a symbolic link.
func (s *Storage) IsSymlink(path string) (bool, error) {
	info, err := s.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode()&os.ModeSymlink != 0, nil
}

// Symlink creates a symbolic link pointing at target.
func (s *Storage) Symlink(target, link string) error {
	linker, ok := s.fs.(afero.Linker)
	if !ok {
		return fmt.Errorf("create symlink %s: %w", link, afero.ErrNoSymlink)
	}
	return linker.SymlinkIfPossible(target, link)
}

// Readlink returns the target of a symbolic link.
func (s *Storage) Readlink(link string) (string, error) {
	reader, ok := s.fs.(afero.LinkReader)
	if !ok {
		return "", fmt.Errorf("read symlink %s: %w", link, afero.ErrNoReadlink)
	}
	return reader.ReadlinkIfPossible(link)
}

// ReplaceLink atomically repoints link at target by creating a symlink at the
// temporary sibling path tmp and renaming it onto link in a single step. A
// reader polling link never observes it missing or dangling. The existing
// link, if any, is untouched until the rename lands; on failure the temporary
// link is removed and the error propagated.
func (s *Storage) ReplaceLink(target, link, tmp string) error {
	if err := s.Symlink(target, tmp); err != nil {
		return fmt.Errorf("create temporary symlink: %w", err)
	}
	if err := s.fs.Rename(tmp, link); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("replace symlink: %w", err)
	}
	return nil
}

// CopyTree recursively copies the directory at src to dst. Symbolic links are
// recreated as links pointing at their original targets, never resolved. dst
// must not exist beforehand except as an empty reserved directory.
func (s *Storage) CopyTree(src, dst string) error {
	info, err := s.Lstat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", src)
	}
	if err := s.fs.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	entries, err := afero.ReadDir(s.fs, src)
	if err != nil {
		return fmt.Errorf("read source directory: %w", err)
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		switch {
		case entry.Mode()&os.ModeSymlink != 0:
			target, err := s.Readlink(srcPath)
			if err != nil {
				return fmt.Errorf("read symlink %s: %w", srcPath, err)
			}
			if err := s.Symlink(target, dstPath); err != nil {
				return fmt.Errorf("copy symlink %s: %w", srcPath, err)
			}
		case entry.IsDir():
			if err := s.CopyTree(srcPath, dstPath); err != nil {
				return err
			}
		default:
			if err := s.CopyFile(srcPath, dstPath, entry.Mode().Perm()); err != nil {
				return fmt.Errorf("copy file %s: %w", srcPath, err)
			}
		}
	}
	return nil
}

// CopyFile copies a regular file from src to dst with the given permissions.
func (s *Storage) CopyFile(src, dst string, perm os.FileMode) (err error) {
	source, err := s.fs.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if cerr := source.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close source: %w", cerr)
		}
	}()

	dest, err := s.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	_, copyErr := io.Copy(dest, source)
	closeErr := dest.Close()
	if copyErr != nil {
		return fmt.Errorf("copy data: %w", copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close destination: %w", closeErr)
	}
	return nil
}
