// Package lockfile serializes controller invocations. The scheduler may
// fire a new run before the previous one finished; two runs interleaving
// their read-decide-write sequences could each observe a stale role and
// both rewrite the unit. The loser of the lock must exit cleanly and let
// the next scheduled run retry.
package lockfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrHeld is returned by Acquire when another process holds the lock.
var ErrHeld = fmt.Errorf("lock already held by another process")

// Lock is an exclusive, non-blocking file lock.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes an exclusive flock on path without blocking. It returns
// ErrHeld if another process has it.
func Acquire(path string) (*Lock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrHeld
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	return &Lock{path: path, file: file}, nil
}

// Release drops the lock. The file itself is left in place; the flock is
// what matters, and removing it would race with a concurrent Acquire.
func (l *Lock) Release() error {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		l.file.Close()
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	return l.file.Close()
}
