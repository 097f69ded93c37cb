package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// fileLockRetryInterval is the polling interval while another process holds
// the registry lock.
const fileLockRetryInterval = 50 * time.Millisecond

// localLocks maps a lock file path to a one-slot semaphore shared by every
// Registry in this process. flock alone would make goroutines of one process
// busy-poll against each other.
var localLocks sync.Map // string -> chan struct{}

func localLock(path string) chan struct{} {
	ch, _ := localLocks.LoadOrStore(path, make(chan struct{}, 1))
	return ch.(chan struct{})
}

// withLock runs fn while holding the registry lock. Acquisition is bounded by
// the lock timeout and fails with ErrRegistryLockTimeout. The lock is released
// on every return path.
func (r *Registry) withLock(ctx context.Context, fn func(ctx context.Context) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, r.lockTimeout)
	defer cancel()

	sem := localLock(r.lockPath)
	select {
	case sem <- struct{}{}:
	case <-lockCtx.Done():
		return r.lockError(ctx, lockCtx.Err())
	}
	defer func() { <-sem }()

	fl, err := acquireFileLock(lockCtx, r.lockPath)
	if err != nil {
		if lockCtx.Err() != nil {
			return r.lockError(ctx, err)
		}
		return err
	}
	defer releaseFileLock(r.log, fl)

	return fn(ctx)
}

// lockError reports a lock timeout as ErrRegistryLockTimeout unless the
// caller's own context ended first.
func (r *Registry) lockError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("acquire registry lock: %w", parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w after %v: %s", ErrRegistryLockTimeout, r.lockTimeout, r.lockPath)
	}
	return fmt.Errorf("%w: %w", ErrRegistryLockTimeout, err)
}

// acquireFileLock takes an exclusive flock on lockPath, retrying until ctx ends.
func acquireFileLock(ctx context.Context, lockPath string) (*flock.Flock, error) {
	fl := flock.New(lockPath)

	locked, err := fl.TryLockContext(ctx, fileLockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("acquiring file lock %s: %w", lockPath, err)
	}
	if !locked {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("acquiring file lock %s: %w", lockPath, ctx.Err())
		}
		return nil, fmt.Errorf("acquiring file lock %s: lock not acquired", lockPath)
	}
	return fl, nil
}

// releaseFileLock unlocks and closes fl. The lock file stays on disk;
// removing it could split a lock another process is about to take.
func releaseFileLock(logger *slog.Logger, fl *flock.Flock) {
	if fl == nil {
		return
	}
	if err := fl.Close(); err != nil {
		logger.Debug("failed to release file lock", "path", fl.Path(), "error", err)
	}
}
