// Package cenv implements the environment lifecycle: initialization,
// creation, switching, soft deletion to trash, and restoration of isolated
// Claude Code configuration directories.
package cenv

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/example/cenv/internal/cenv/config"
	"github.com/example/cenv/internal/cenv/domain"
	"github.com/example/cenv/internal/cenv/gitops"
	"github.com/example/cenv/internal/cenv/lock"
	"github.com/example/cenv/internal/cenv/paths"
	"github.com/example/cenv/internal/cenv/portability"
	"github.com/example/cenv/internal/cenv/process"
	"github.com/example/cenv/internal/cenv/storage"
	"github.com/example/cenv/internal/cenv/validator"
)

// Store owns the environment directories, the active-environment symlink, and
// the trash. All mutating operations validate user-supplied names before any
// filesystem access. Switch calls are serialized by an in-process mutex; the
// atomic-rename primitive keeps the active link consistent across processes.
type Store struct {
	st      *storage.Storage
	paths   *paths.Resolver
	cfg     config.Config
	oracle  process.Oracle
	cloner  gitops.Cloner
	log     *slog.Logger
	nowFunc func() time.Time

	switchMu sync.Mutex
}

// TrashEntry describes one soft-deleted environment.
type TrashEntry struct {
	// Name is the original environment name.
	Name string
	// BackupName is the directory name under the trash root.
	BackupName string
	// DeletedAt is the timestamp parsed from BackupName.
	DeletedAt time.Time
}

// NewStore constructs a Store over the given filesystem and path resolver.
func NewStore(fs afero.Fs, resolver *paths.Resolver, cfg config.Config, oracle process.Oracle, cloner gitops.Cloner, log *slog.Logger) (*Store, error) {
	if fs == nil {
		return nil, errors.New("filesystem cannot be nil")
	}
	if resolver == nil {
		return nil, errors.New("path resolver cannot be nil")
	}
	if oracle == nil {
		return nil, errors.New("oracle cannot be nil")
	}
	if cloner == nil {
		return nil, errors.New("cloner cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		st:      storage.New(fs),
		paths:   resolver,
		cfg:     cfg,
		oracle:  oracle,
		cloner:  cloner,
		log:     log,
		nowFunc: time.Now,
	}, nil
}

// Paths returns the path resolver the store operates on.
func (s *Store) Paths() *paths.Resolver {
	return s.paths
}

// Init migrates the pre-existing ~/.claude directory into an environment
// named "default" and points the active link at it. The sequence is guarded
// by an exclusive, non-blocking cross-process lock; a concurrent init fails
// fast with ErrInitInProgress. On any failure the original state is restored
// from a timestamped backup and the cause surfaces wrapped in
// InitializationError.
func (s *Store) Init() error {
	envsRoot := s.paths.EnvsRoot()
	if exists, err := s.st.Exists(envsRoot); err != nil {
		return err
	} else if exists {
		return domain.ErrAlreadyInitialized
	}

	activeLink := s.paths.ActiveLink()
	if isLink, err := s.st.IsSymlink(activeLink); err != nil {
		return err
	} else if isLink {
		return domain.ErrLinkAlreadyExists
	}

	initLock := lock.New(s.paths.LockFile(s.cfg.LockFileName))
	acquired, err := initLock.TryAcquire()
	if err != nil {
		return fmt.Errorf("acquire init lock: %w", err)
	}
	if !acquired {
		return domain.ErrInitInProgress
	}
	defer func() {
		if err := initLock.Release(); err != nil {
			s.log.Warn("failed to release init lock", "path", initLock.Path(), "error", err)
		}
	}()

	backup, err := s.initMigrate()
	if err != nil {
		s.unwindInit(backup)
		return &domain.InitializationError{Cause: err}
	}
	if backup != "" {
		if err := s.st.RemoveAll(backup); err != nil {
			s.log.Warn("failed to remove init backup", "path", backup, "error", err)
		}
	}
	s.log.Info("initialized cenv", "default", s.paths.EnvPath(paths.DefaultEnv))
	return nil
}

// initMigrate performs the init sequence and returns the backup path taken of
// the pre-existing config directory, if one existed.
func (s *Store) initMigrate() (backup string, err error) {
	activeLink := s.paths.ActiveLink()
	hadConfig, err := s.st.DirExists(activeLink)
	if err != nil {
		return "", err
	}

	if hadConfig {
		backup = s.paths.InitBackup(s.nowFunc())
		if err := s.st.CopyTree(activeLink, backup); err != nil {
			// The config dir is still untouched; drop the partial copy
			// rather than orphaning it.
			_ = s.st.RemoveAll(backup)
			return "", fmt.Errorf("back up existing config: %w", err)
		}
	}

	if err := s.st.MkdirAll(s.paths.EnvsRoot()); err != nil {
		return backup, fmt.Errorf("create environments root: %w", err)
	}

	defaultPath := s.paths.EnvPath(paths.DefaultEnv)
	if hadConfig {
		if err := s.moveTree(activeLink, defaultPath); err != nil {
			return backup, fmt.Errorf("migrate config into default environment: %w", err)
		}
	} else {
		if err := s.st.Mkdir(defaultPath); err != nil {
			return backup, fmt.Errorf("create default environment: %w", err)
		}
	}

	if err := s.st.Symlink(defaultPath, activeLink); err != nil {
		return backup, fmt.Errorf("create active link: %w", err)
	}
	return backup, nil
}

// unwindInit reverts a partially completed init: the environments root is
// removed wholesale (it did not exist beforehand) and the original config
// directory is restored from backup if migration already consumed it.
func (s *Store) unwindInit(backup string) {
	activeLink := s.paths.ActiveLink()
	if isLink, _ := s.st.IsSymlink(activeLink); isLink {
		_ = s.st.Remove(activeLink)
	}
	_ = s.st.RemoveAll(s.paths.EnvsRoot())
	if backup == "" {
		return
	}
	if exists, _ := s.st.Exists(activeLink); !exists {
		if err := s.moveTree(backup, activeLink); err != nil {
			s.log.Error("failed to restore config from backup", "backup", backup, "error", err)
		}
	}
}

// Create makes a new environment from an existing one or from a GitHub
// repository URL. Local copies preserve symbolic links as links; remote
// clones are staged by the cloner and have path placeholders in their JSON
// files expanded for this machine.
func (s *Store) Create(name, source string) error {
	if err := validator.ValidateName(name); err != nil {
		return err
	}
	if exists, err := s.st.DirExists(s.paths.EnvsRoot()); err != nil {
		return err
	} else if !exists {
		return domain.ErrNotInitialized
	}

	target := s.paths.EnvPath(name)
	if exists, err := s.st.Exists(target); err != nil {
		return err
	} else if exists {
		return &domain.ExistsError{Name: name}
	}

	if validator.IsRemoteURL(source) {
		return s.createFromRemote(name, source, target)
	}
	return s.createFromLocal(name, source, target)
}

func (s *Store) createFromRemote(name, url, target string) error {
	s.log.Debug("creating environment from repository", "name", name, "url", url)
	if err := s.cloner.Clone(url, target); err != nil {
		return err
	}
	if err := portability.ProcessForImport(s.st.FileSystem(), target, s.paths.ActiveLink(), s.paths.HomeDir()); err != nil {
		s.log.Warn("failed to expand path placeholders", "name", name, "error", err)
	}
	return nil
}

func (s *Store) createFromLocal(name, source, target string) error {
	sourcePath := s.paths.EnvPath(source)
	if exists, err := s.st.DirExists(sourcePath); err != nil {
		return err
	} else if !exists {
		return &domain.SourceNotFoundError{Name: source}
	}

	// Bare Mkdir reserves the name: under concurrent creates exactly one
	// caller wins and the rest observe the existing directory.
	if err := s.st.Mkdir(target); err != nil {
		if exists, _ := s.st.Exists(target); exists {
			return &domain.ExistsError{Name: name}
		}
		return err
	}
	if err := s.st.CopyTree(sourcePath, target); err != nil {
		_ = s.st.RemoveAll(target)
		return fmt.Errorf("copy environment '%s': %w", source, err)
	}
	s.log.Debug("created environment", "name", name, "source", source)
	return nil
}

// Switch repoints the active link at the named environment. The link is
// replaced in a single atomic rename, so a concurrent reader never observes
// it missing or dangling. When the oracle reports the application running and
// force is false, nothing is mutated.
func (s *Store) Switch(name string, force bool) error {
	if err := validator.ValidateName(name); err != nil {
		return err
	}
	target := s.paths.EnvPath(name)
	if exists, err := s.st.DirExists(target); err != nil {
		return err
	} else if !exists {
		return &domain.NotFoundError{Name: name}
	}

	if !force && s.oracle.Running() {
		return domain.ErrApplicationRunning
	}

	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	activeLink := s.paths.ActiveLink()
	if exists, err := s.st.Exists(activeLink); err != nil {
		return err
	} else if exists {
		isLink, err := s.st.IsSymlink(activeLink)
		if err != nil {
			return err
		}
		if !isLink {
			return &domain.SymlinkStateError{Path: activeLink}
		}
	}

	if err := s.st.ReplaceLink(target, activeLink, s.paths.TempLink()); err != nil {
		return err
	}
	s.log.Info("switched environment", "name", name)
	return nil
}

// Delete soft-deletes an environment by renaming it into the trash under a
// timestamped name. The active environment and "default" are refused.
func (s *Store) Delete(name string) error {
	if err := validator.ValidateName(name); err != nil {
		return err
	}
	envPath := s.paths.EnvPath(name)
	if exists, err := s.st.DirExists(envPath); err != nil {
		return err
	} else if !exists {
		return &domain.NotFoundError{Name: name}
	}

	// Protection wins over the active check: "default" is refused even when
	// it is also the active environment.
	if name == paths.DefaultEnv {
		return &domain.ProtectedEnvironmentError{Name: name}
	}
	current, err := s.Current()
	if err != nil {
		return err
	}
	if name == current {
		return &domain.ActiveEnvironmentError{Name: name}
	}

	if err := s.st.MkdirAll(s.paths.TrashRoot()); err != nil {
		return fmt.Errorf("create trash directory: %w", err)
	}
	backupName := name + "-" + s.nowFunc().Format(paths.TimestampLayout)
	if err := s.st.Rename(envPath, s.paths.TrashPath(backupName)); err != nil {
		return fmt.Errorf("move environment to trash: %w", err)
	}
	s.log.Info("moved environment to trash", "name", name, "backup", backupName)
	return nil
}

// Restore moves a trash entry back into the environments root under its
// original name. The backup name is validated before any filesystem access:
// both the trash lookup and the restore target are built from it, so a name
// with separators in it could otherwise address paths outside the store.
func (s *Store) Restore(backupName string) (string, error) {
	parts := strings.Split(backupName, "-")
	if len(parts) != 3 {
		return "", &domain.InvalidBackupFormatError{Name: backupName}
	}
	if _, err := time.Parse(paths.TimestampLayout, parts[1]+"-"+parts[2]); err != nil {
		return "", &domain.InvalidBackupFormatError{Name: backupName}
	}
	original := parts[0]
	if err := validator.ValidateName(original); err != nil {
		return "", err
	}

	trashPath := s.paths.TrashPath(backupName)
	if exists, err := s.st.DirExists(trashPath); err != nil {
		return "", err
	} else if !exists {
		return "", &domain.NotFoundError{Name: backupName, Kind: "backup"}
	}

	envPath := s.paths.EnvPath(original)
	if exists, err := s.st.Exists(envPath); err != nil {
		return "", err
	} else if exists {
		return "", &domain.ExistsError{Name: original}
	}

	if err := s.st.Rename(trashPath, envPath); err != nil {
		return "", fmt.Errorf("restore environment: %w", err)
	}
	s.log.Info("restored environment", "name", original, "backup", backupName)
	return original, nil
}

// List returns all environment names, sorted, excluding the trash directory.
// An uninitialized store lists nothing.
func (s *Store) List() ([]string, error) {
	entries, err := s.st.ReadDir(s.paths.EnvsRoot())
	if err != nil {
		if exists, _ := s.st.Exists(s.paths.EnvsRoot()); !exists {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == s.cfg.TrashDirName {
			continue
		}
		// Dot entries are never environments (the name grammar forbids
		// them); this hides clone staging directories left by a crash.
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ListTrash enumerates trash entries, newest first. Entries whose names do
// not end in a parseable timestamp are skipped.
//
// The positional parse is ambiguous for environment names that themselves end
// in two timestamp-shaped segments; such collisions are accepted as-is rather
// than guessed at.
func (s *Store) ListTrash() ([]TrashEntry, error) {
	entries, err := s.st.ReadDir(s.paths.TrashRoot())
	if err != nil {
		if exists, _ := s.st.Exists(s.paths.TrashRoot()); !exists {
			return nil, nil
		}
		return nil, err
	}

	var result []TrashEntry
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name, deletedAt, ok := ParseTrashName(entry.Name())
		if !ok {
			continue
		}
		result = append(result, TrashEntry{Name: name, BackupName: entry.Name(), DeletedAt: deletedAt})
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].DeletedAt.Equal(result[j].DeletedAt) {
			return result[i].DeletedAt.After(result[j].DeletedAt)
		}
		return result[i].BackupName < result[j].BackupName
	})
	return result, nil
}

// Current returns the name of the active environment, or "" when no
// environment is active. Absence is a valid state, not an error.
func (s *Store) Current() (string, error) {
	activeLink := s.paths.ActiveLink()
	isLink, err := s.st.IsSymlink(activeLink)
	if err != nil {
		return "", err
	}
	if !isLink {
		return "", nil
	}

	target, err := s.st.Readlink(activeLink)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(activeLink), target)
	}
	target = filepath.Clean(target)
	if filepath.Dir(target) != s.paths.EnvsRoot() {
		return "", nil
	}
	return filepath.Base(target), nil
}

// Exists reports whether an environment directory with the given name exists.
func (s *Store) Exists(name string) (bool, error) {
	return s.st.DirExists(s.paths.EnvPath(name))
}

// ParseTrashName splits a trash entry name into the original environment name
// and its deletion timestamp. The last two hyphen-delimited segments must form
// a YYYYMMDD-HHMMSS timestamp; anything else reports ok=false.
func ParseTrashName(backupName string) (name string, deletedAt time.Time, ok bool) {
	last := strings.LastIndex(backupName, "-")
	if last <= 0 {
		return "", time.Time{}, false
	}
	secondLast := strings.LastIndex(backupName[:last], "-")
	if secondLast <= 0 {
		return "", time.Time{}, false
	}
	ts, err := time.Parse(paths.TimestampLayout, backupName[secondLast+1:])
	if err != nil {
		return "", time.Time{}, false
	}
	return backupName[:secondLast], ts, true
}

// moveTree renames src to dst, falling back to copy-and-remove when the
// rename crosses filesystems.
func (s *Store) moveTree(src, dst string) error {
	if err := s.st.Rename(src, dst); err == nil {
		return nil
	}
	if err := s.st.CopyTree(src, dst); err != nil {
		return err
	}
	return s.st.RemoveAll(src)
}
