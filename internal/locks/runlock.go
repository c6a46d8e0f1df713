package locks

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// RunLock is an advisory lock held for the lifetime of a destructive run
// (for example a full wipe). Entity claims protect individual renders; this
// protects operations that touch the whole audio tree.
type RunLock struct {
	lock *flock.Flock
}

// AcquireRun takes the run-level lock under dir without blocking. It fails
// when another process already holds it.
func AcquireRun(dir string) (*RunLock, error) {
	lock := flock.New(filepath.Join(dir, "run.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire run lock: %w", ErrHeld)
	}
	return &RunLock{lock: lock}, nil
}

// Release drops the run-level lock.
func (r *RunLock) Release() error {
	if r == nil || r.lock == nil {
		return nil
	}
	return r.lock.Unlock()
}
