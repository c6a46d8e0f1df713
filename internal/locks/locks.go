// Package locks coordinates concurrent pipeline runs. Per-entity claims use
// exclusive-create marker files so two runs never render the same entity, and
// a run-level flock guards destructive operations like wiping the audio tree.
package locks

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"menagerie/internal/logging"
)

// ErrHeld is returned when another live run holds the claim.
var ErrHeld = errors.New("lock held by another run")

// DefaultStale is how old a marker file must be before it is presumed
// abandoned by a crashed run.
const DefaultStale = 6 * time.Hour

// Manager hands out per-entity claims backed by marker files in a shared
// directory.
type Manager struct {
	dir    string
	stale  time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// Handle represents a held claim. Release it when rendering finishes,
// successfully or not.
type Handle struct {
	path string
}

// NewManager creates a claim manager over dir. Marker files older than stale
// are treated as abandoned and seized.
func NewManager(dir string, stale time.Duration, logger *slog.Logger) *Manager {
	if stale <= 0 {
		stale = DefaultStale
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		dir:    dir,
		stale:  stale,
		logger: logging.WithComponent(logger, "locks"),
		now:    time.Now,
	}
}

// Acquire claims an entity for this run. Returns ErrHeld when another live
// run owns it. A marker older than the stale cutoff is deleted and the claim
// retried once.
func (m *Manager) Acquire(identifier string) (*Handle, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create locks dir: %w", err)
	}
	path := filepath.Join(m.dir, identifier+".lock")

	handle, err := m.tryCreate(path)
	if err == nil {
		return handle, nil
	}
	if !os.IsExist(err) {
		return nil, fmt.Errorf("acquire lock %s: %w", identifier, err)
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			// Holder released between our create and stat. Try again.
			if handle, err := m.tryCreate(path); err == nil {
				return handle, nil
			}
		}
		return nil, ErrHeld
	}
	if m.now().Sub(info.ModTime()) < m.stale {
		return nil, ErrHeld
	}

	m.logger.Warn("seizing stale lock",
		logging.String("identifier", identifier),
		logging.Duration("age", m.now().Sub(info.ModTime())))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale lock %s: %w", identifier, err)
	}
	handle, err = m.tryCreate(path)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrHeld
		}
		return nil, fmt.Errorf("acquire lock %s: %w", identifier, err)
	}
	return handle, nil
}

func (m *Manager) tryCreate(path string) (*Handle, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(file, "pid=%d acquired=%s\n", os.Getpid(), m.now().UTC().Format(time.RFC3339))
	file.Close()
	return &Handle{path: path}, nil
}

// Release removes the claim marker. Failures are logged, not returned; a
// leftover marker self-heals through the stale cutoff.
func (m *Manager) Release(handle *Handle) {
	if handle == nil {
		return
	}
	if err := os.Remove(handle.path); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("failed to release lock",
			logging.String("path", handle.path),
			logging.Error(err))
	}
}
