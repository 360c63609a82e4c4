package lock

import (
	"errors"
	"os"

	"github.com/gofrs/flock"
)

// InitLock is an exclusive, non-blocking cross-process lock guarding
// first-time initialization. Losers fail fast rather than queueing: init is a
// rare user-driven action and blocking would hide a stuck concurrent run.
//
// InitLock is not safe for concurrent use within one process; each caller
// should hold its own instance.
type InitLock struct {
	fl *flock.Flock
}

// New creates an InitLock backed by the lock file at path. The lock is not
// acquired until TryAcquire is called.
func New(path string) *InitLock {
	return &InitLock{fl: flock.New(path)}
}

// Path returns the lock file location.
func (l *InitLock) Path() string {
	return l.fl.Path()
}

// TryAcquire attempts to take the exclusive lock without blocking. It returns
// false when another process already holds it.
func (l *InitLock) TryAcquire() (bool, error) {
	return l.fl.TryLock()
}

// Release drops the lock and removes the lock file. Safe to call when the
// lock was never acquired.
func (l *InitLock) Release() error {
	if !l.fl.Locked() {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return err
	}
	if err := os.Remove(l.fl.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
