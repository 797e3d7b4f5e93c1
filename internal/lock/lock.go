// Package lock provides an advisory, process-exclusive file lock used to
// stop two gardener runs from operating on the same tree concurrently.
package lock

import (
	"fmt"
	"os"

	"github.com/gofrs/flock"
)

// Lock wraps an acquired advisory file lock. Keep it open for the
// process's lifetime and call Release on shutdown.
type Lock struct {
	fl   *flock.Flock
	path string
}

// Acquire attempts to take an exclusive, non-blocking lock on path,
// creating the file if necessary. It fails immediately if another
// process already holds it rather than blocking.
func Acquire(path string) (*Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("another arborist run already holds the lock at %s", path)
	}

	if f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
		fmt.Fprintf(f, "%d\n", os.Getpid())
		f.Close()
	}

	return &Lock{fl: fl, path: path}, nil
}

// Release unlocks and removes the lock file. Safe to call on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	err := l.fl.Unlock()
	os.Remove(l.path)
	return err
}
