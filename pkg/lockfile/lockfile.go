package lockfile

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrLocked is raised when the lock is already held by another process.
var ErrLocked = errors.New("lock already held by another process")

// Lock is an exclusive, advisory run lock backed by flock(2). The kernel
// drops the lock when the holding process exits, so a crashed run never
// leaves a stale lock behind and no PID bookkeeping is needed.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes the exclusive lock at path without blocking. The PID of the
// holder is written into the file for operator visibility only; liveness is
// the kernel's job.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	_ = f.Truncate(0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	return &Lock{path: path, file: f}, nil
}

// Release drops the lock. The file itself is left in place; removing it
// would race with a concurrent Acquire on the same path.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}
