package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors allow callers to use errors.Is() for error checking.
var (
	ErrNotInitialized     = errors.New("cenv is not initialized. Run 'cenv init' first")
	ErrAlreadyInitialized = errors.New("cenv is already initialized")
	ErrLinkAlreadyExists  = errors.New("~/.claude is already a symlink; cannot initialize safely")
	ErrInitInProgress     = errors.New("another cenv init is already in progress")
	ErrApplicationRunning = errors.New("Claude Code is currently running. Please exit Claude before performing this operation, or use --force")
)

// InvalidNameError reports a rejected environment name.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid environment name %q: %s", e.Name, e.Reason)
}

// NotFoundError reports a missing environment or trash entry.
type NotFoundError struct {
	Name string
	Kind string // "environment" or "backup"
}

func (e *NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "environment"
	}
	return fmt.Sprintf("%s '%s' does not exist", kind, e.Name)
}

// ExistsError reports a name collision on create or restore.
type ExistsError struct {
	Name string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("environment '%s' already exists", e.Name)
}

// SourceNotFoundError reports a missing source environment for create.
type SourceNotFoundError struct {
	Name string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("source environment '%s' does not exist", e.Name)
}

// ActiveEnvironmentError reports an attempt to delete the active environment.
type ActiveEnvironmentError struct {
	Name string
}

func (e *ActiveEnvironmentError) Error() string {
	return fmt.Sprintf("environment '%s' is currently active; switch to another environment before deleting it", e.Name)
}

// ProtectedEnvironmentError reports an attempt to delete a protected environment.
type ProtectedEnvironmentError struct {
	Name string
}

func (e *ProtectedEnvironmentError) Error() string {
	return fmt.Sprintf("environment '%s' is protected and cannot be deleted", e.Name)
}

// SymlinkStateError reports an active-link path occupied by something that is
// not a symlink.
type SymlinkStateError struct {
	Path string
}

func (e *SymlinkStateError) Error() string {
	return fmt.Sprintf("%s exists but is not a symlink; refusing to replace it", e.Path)
}

// InvalidBackupFormatError reports a trash entry name that does not follow the
// name-YYYYMMDD-HHMMSS shape.
type InvalidBackupFormatError struct {
	Name string
}

func (e *InvalidBackupFormatError) Error() string {
	return fmt.Sprintf("invalid backup name '%s': expected <name>-<YYYYMMDD>-<HHMMSS>", e.Name)
}

// GitOperationError reports a failed git subprocess.
type GitOperationError struct {
	Op     string
	URL    string
	Reason string
}

func (e *GitOperationError) Error() string {
	return fmt.Sprintf("git %s failed for %s: %s", e.Op, e.URL, e.Reason)
}

// InitializationError wraps the cause of a failed (and unwound) init.
type InitializationError struct {
	Cause error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialization failed: %v", e.Cause)
}

func (e *InitializationError) Unwrap() error {
	return e.Cause
}
