package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
)

// Directory and file name constants for cenv.
const (
	ClaudeDirName = ".claude"
	EnvsDirName   = ".claude-envs"
	TrashDirName  = ".trash"
	DefaultEnv    = "default"
)

// Resolver constructs cenv paths relative to a home directory.
type Resolver struct {
	homeDir string
}

// New creates a Resolver for the given home directory.
func New(homeDir string) *Resolver {
	return &Resolver{homeDir: homeDir}
}

// Resolve builds a Resolver from the CENV_HOME override or the user's home
// directory.
func Resolve() (*Resolver, error) {
	if custom := strings.TrimSpace(os.Getenv("CENV_HOME")); custom != "" {
		if !filepath.IsAbs(custom) {
			return nil, fmt.Errorf("CENV_HOME must be an absolute path: %s", custom)
		}
		return New(custom), nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}
	return New(home), nil
}

// HomeDir returns the home directory this resolver is rooted at.
func (r *Resolver) HomeDir() string {
	return r.homeDir
}

// EnvsRoot returns the directory holding all environments.
func (r *Resolver) EnvsRoot() string {
	return filepath.Join(r.homeDir, EnvsDirName)
}

// EnvPath returns the directory for a named environment.
func (r *Resolver) EnvPath(name string) string {
	return filepath.Join(r.EnvsRoot(), name)
}

// ActiveLink returns the path of the active-environment symlink.
func (r *Resolver) ActiveLink() string {
	return filepath.Join(r.homeDir, ClaudeDirName)
}

// TrashRoot returns the directory holding soft-deleted environments.
func (r *Resolver) TrashRoot() string {
	return filepath.Join(r.EnvsRoot(), TrashDirName)
}

// TrashPath returns the path of a trash entry.
func (r *Resolver) TrashPath(backupName string) string {
	return filepath.Join(r.TrashRoot(), backupName)
}

// InitBackup returns the timestamped backup location used while init migrates
// the pre-existing config directory. It is a sibling of the active link, kept
// outside the environments root so a failed unwind cannot collide with
// environment names.
func (r *Resolver) InitBackup(ts time.Time) string {
	return r.ActiveLink() + ".backup-" + ts.Format(TimestampLayout)
}

// TempLink returns a unique temporary sibling of the active link, used for the
// atomic symlink replacement during switch.
func (r *Resolver) TempLink() string {
	return fmt.Sprintf("%s.tmp-%d-%d", r.ActiveLink(), os.Getpid(), time.Now().UnixNano())
}

// LockFile returns the path of the transient init lock file in the platform
// temp directory.
func (r *Resolver) LockFile(name string) string {
	return filepath.Join(os.TempDir(), name)
}

// TimestampLayout is the second-resolution timestamp used in trash entry and
// backup names.
const TimestampLayout = "20060102-150405"
