// Package runlock enforces single-instance execution with a file lock so
// overlapping cron invocations cannot double-process the backlog.
package runlock

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"scribe/internal/config"
)

// ErrAlreadyRunning signals that another process holds the run lock.
var ErrAlreadyRunning = errors.New("another scribe run is already in progress")

// Lock guards a single pipeline run.
type Lock struct {
	path string
	lock *flock.Flock
}

// New creates a lock rooted in the configured data directory.
func New(cfg *config.Config) (*Lock, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	path := filepath.Join(cfg.Paths.DataDir, "scribe.lock")
	return &Lock{path: path, lock: flock.New(path)}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock without blocking. A held lock returns
// ErrAlreadyRunning.
func (l *Lock) Acquire() error {
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	return nil
}

// Release drops the lock. Safe to call when not held.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
