package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Default configuration values.
const (
	DefaultGitTimeout   = 5 * time.Minute
	DefaultLogLevel     = "info"
	DefaultTrashDirName = ".trash"
	DefaultLockFileName = "cenv-init.lock"

	rcFileName = ".cenvrc"
)

// Config holds cenv settings. It is loaded once at process start and passed
// explicitly to the components that need it.
type Config struct {
	// GitTimeout bounds git clone and push operations.
	GitTimeout time.Duration
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// TrashDirName is the directory under the environments root holding
	// soft-deleted environments.
	TrashDirName string
	// LockFileName is the init lock file created in the platform temp dir.
	LockFileName string
}

// rcFile is the on-disk shape of ~/.cenvrc. The file uses plain
// `key = value` lines, which parse as TOML.
type rcFile struct {
	GitTimeout int    `toml:"git_timeout"`
	LogLevel   string `toml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		GitTimeout:   DefaultGitTimeout,
		LogLevel:     DefaultLogLevel,
		TrashDirName: DefaultTrashDirName,
		LockFileName: DefaultLockFileName,
	}
}

// Load merges configuration from ~/.cenvrc and CENV_* environment variables
// on top of the defaults. Environment variables win over the file. A missing
// or malformed file falls back to defaults rather than failing; only the
// anticipated I/O error kinds are absorbed here.
func Load(homeDir string) Config {
	cfg := Default()

	data, err := os.ReadFile(filepath.Join(homeDir, rcFileName))
	if err == nil {
		var rc rcFile
		if err := toml.Unmarshal(data, &rc); err == nil {
			if rc.GitTimeout > 0 {
				cfg.GitTimeout = time.Duration(rc.GitTimeout) * time.Second
			}
			if rc.LogLevel != "" {
				cfg.LogLevel = strings.ToLower(rc.LogLevel)
			}
		}
	}

	if v := os.Getenv("CENV_GIT_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.GitTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("CENV_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	return cfg
}
