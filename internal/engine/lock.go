package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// lockDirPermissions matches the teacher's pidfile directory permissions.
const lockDirPermissions = 0o755

// pollInterval is how often TryLockContext polls for the lock while
// waiting out LockWaitDuration.
const pollInterval = 100 * time.Millisecond

// RunLock is the process-wide exclusion primitive acquired at the start of
// Run and released at the end, including panic paths (§5). Grounded on the
// teacher's writePIDFile (pidfile.go), reimplemented on
// github.com/gofrs/flock because flock.TryLockContext expresses "bounded
// wait, default 8s" directly — the teacher's raw non-blocking
// syscall.Flock fails instantly instead of waiting out a budget.
type RunLock struct {
	fl *flock.Flock
}

// NewRunLock builds a lock at path, creating its parent directory if
// needed.
func NewRunLock(path string) (*RunLock, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, lockDirPermissions); err != nil {
		return nil, fmt.Errorf("%w: creating lock directory %s: %v", ErrLocalIO, dir, err)
	}

	return &RunLock{fl: flock.New(path)}, nil
}

// Acquire blocks until the lock is held or wait is exhausted. Returns
// ErrLock (non-fatal per §5) if the wait expires without acquiring.
func (l *RunLock) Acquire(ctx context.Context, wait time.Duration) error {
	lockCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ok, err := l.fl.TryLockContext(lockCtx, pollInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrLock
		}

		return fmt.Errorf("%w: acquiring run lock: %v", ErrLocalIO, err)
	}

	if !ok {
		return ErrLock
	}

	return nil
}

// Release unlocks, tolerating a lock that was never acquired. Safe to call
// from a deferred cleanup on any exit path, including after a panic
// recovery.
func (l *RunLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}

	return l.fl.Unlock()
}
