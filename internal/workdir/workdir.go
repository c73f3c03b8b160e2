// Package workdir manages per-job scratch directories under paths.work_dir.
//
// A running job holds a Lease on its directory. CleanStale removes directories
// that are old enough and whose lease is free, so a daemon can reclaim space
// left by crashed runs without touching a concurrent one-shot run.
package workdir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"reelforge/internal/logging"
)

// LockName is the lease file kept inside every job directory.
const LockName = ".lease"

// ErrBusy reports a directory whose lease is held elsewhere.
var ErrBusy = errors.New("work directory in use")

// Lease is an exclusively held job directory.
type Lease struct {
	Path string
	lock *flock.Flock
}

// Acquire creates dir if needed and takes its lease.
func Acquire(dir string) (*Lease, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job work dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, LockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock job work dir: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBusy, dir)
	}
	return &Lease{Path: dir, lock: lock}, nil
}

// Release drops the lease. The directory is left in place.
func (l *Lease) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}

// CleanupError pairs a directory with the error that kept it.
type CleanupError struct {
	Path  string
	Error error
}

// CleanResult lists what CleanStale did.
type CleanResult struct {
	Removed []string
	InUse   []string
	Errors  []CleanupError
}

// CleanStale removes job directories under root last modified before maxAge
// ago. Leased directories are skipped. A non-positive maxAge disables cleanup.
func CleanStale(ctx context.Context, root string, maxAge time.Duration, logger *slog.Logger) CleanResult {
	var result CleanResult
	root = strings.TrimSpace(root)
	if root == "" || maxAge <= 0 {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			result.Errors = append(result.Errors, CleanupError{Path: root, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		lease, err := Acquire(dir)
		if errors.Is(err, ErrBusy) {
			result.InUse = append(result.InUse, dir)
			continue
		}
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
			continue
		}
		err = os.RemoveAll(dir)
		_ = lease.Release()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
			logger.Warn("failed to remove stale work directory",
				logging.String("path", dir),
				logging.Error(err),
				logging.String(logging.FieldEventType, "workdir_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check work_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dir)
		logger.Info("removed stale work directory",
			logging.String("path", dir),
			logging.Duration("age", time.Since(info.ModTime())),
			logging.String(logging.FieldEventType, "workdir_cleanup"),
		)
	}
	return result
}
