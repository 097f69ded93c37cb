package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/giantswarm/redislite/internal/fileutil"
	"github.com/giantswarm/redislite/internal/process"
	"github.com/giantswarm/redislite/internal/registry/migrations"
	"github.com/giantswarm/redislite/internal/sentinel"
	"github.com/giantswarm/redislite/internal/server"
)

// ErrRegistryLockTimeout is returned when the registry lock could not be
// acquired within the lock timeout.
const ErrRegistryLockTimeout = sentinel.Error("registry lock timeout")

// ErrStaleEntry is returned when a registry entry pointed at a dead instance
// and spawning its replacement failed. It always wraps the start error too.
const ErrStaleEntry = sentinel.Error("stale registry entry")

// ErrDoubleRelease is returned when a handle is released more often than it
// was attached.
const ErrDoubleRelease = sentinel.Error("handle released more than once")

// ErrEmptyTarget is returned for an empty database target.
const ErrEmptyTarget = sentinel.Error("database target must not be empty")

// DefaultLockTimeout bounds registry lock acquisition when Config.LockTimeout is zero.
const DefaultLockTimeout = 15 * time.Second

// File names inside the registry directory.
const (
	dbFileName   = "registry.db"
	lockFileName = "registry.lock"
)

// Lifecycle starts, probes and stops server instances. *server.Manager is
// the production implementation.
type Lifecycle interface {
	Start(ctx context.Context, target string, overrides map[string]string) (*server.Instance, error)
	Stop(ctx context.Context, inst *server.Instance) error
	Reap(ctx context.Context, inst *server.Instance) error
	Probe(ctx context.Context, inst *server.Instance) bool
}

// Config configures a Registry.
type Config struct {
	// Dir holds the registry database and lock file. Every process that
	// may share targets must use the same Dir.
	Dir string
	// LockTimeout bounds lock acquisition. Zero means DefaultLockTimeout.
	LockTimeout time.Duration
	// Lifecycle manages the server processes.
	Lifecycle Lifecycle
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// OwnerPID identifies this process in holder rows. Zero means os.Getpid().
	OwnerPID int
}

// Handle is one attached reference to an instance.
type Handle struct {
	ID       string
	Target   string
	Instance *server.Instance
}

// AttachResult describes the outcome of Attach.
type AttachResult struct {
	Handle Handle
	// FirstAttach is true when this attach spawned the instance.
	FirstAttach bool
	// Reclaimed is true when a stale entry for the target was removed first.
	Reclaimed bool
	// PrunedHolders counts references of dead processes dropped during attach.
	PrunedHolders int
}

// Registry is the refcounted, cross-process instance registry.
type Registry struct {
	db          *sql.DB
	lifecycle   Lifecycle
	lockPath    string
	lockTimeout time.Duration
	ownerPID    int
	log         *slog.Logger
}

// Open opens (creating if needed) the registry in cfg.Dir and applies schema
// migrations under the registry lock.
func Open(ctx context.Context, cfg Config) (*Registry, error) {
	if cfg.Dir == "" {
		return nil, errors.New("registry dir must not be empty")
	}
	if cfg.Lifecycle == nil {
		return nil, errors.New("registry lifecycle must not be nil")
	}
	if cfg.LockTimeout < 0 {
		return nil, errors.New("registry lock timeout must not be negative")
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OwnerPID == 0 {
		cfg.OwnerPID = os.Getpid()
	}

	if err := fileutil.EnsureDir(cfg.Dir); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}

	dbPath := filepath.Join(cfg.Dir, dbFileName)
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)",
		dbPath,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}

	r := &Registry{
		db:          db,
		lifecycle:   cfg.Lifecycle,
		lockPath:    filepath.Join(cfg.Dir, lockFileName),
		lockTimeout: cfg.LockTimeout,
		ownerPID:    cfg.OwnerPID,
		log:         cfg.Logger,
	}

	err = r.withLock(ctx, func(ctx context.Context) error {
		m, err := migrations.NewMigrator(db, r.log)
		if err != nil {
			return err
		}
		return m.Up(ctx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate registry: %w", err)
	}
	return r, nil
}

// Close closes the registry database. It does not release any handles.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Canonical returns the sharing key for target: an absolute path with
// symlinks in the existing part of the path resolved.
func Canonical(target string) (string, error) {
	if target == "" {
		return "", ErrEmptyTarget
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", target, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	dir, base := filepath.Split(abs)
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(resolved, base), nil
	}
	return abs, nil
}

// Attach returns a handle on a live instance for target, spawning one if
// none is registered. target must already be canonical.
//
// Under the registry lock: references held by dead processes are pruned;
// a registered instance that passes the liveness probe gains a reference;
// one that fails it is reaped and replaced. A new instance that cannot be
// recorded is stopped again before returning.
func (r *Registry) Attach(ctx context.Context, target string, overrides map[string]string) (AttachResult, error) {
	if target == "" {
		return AttachResult{}, ErrEmptyTarget
	}

	var res AttachResult
	err := r.withLock(ctx, func(ctx context.Context) error {
		var err error
		res, err = r.attachLocked(ctx, target, overrides)
		return err
	})
	if err != nil {
		return AttachResult{}, fmt.Errorf("attach %s: %w", target, err)
	}
	return res, nil
}

func (r *Registry) attachLocked(ctx context.Context, target string, overrides map[string]string) (AttachResult, error) {
	var res AttachResult
	pruned, err := r.pruneOrphans(ctx)
	if err != nil {
		return res, err
	}
	res.PrunedHolders = pruned

	entry, ok, err := lookup(ctx, r.db, target)
	if err != nil {
		return res, err
	}
	if ok {
		inst := server.Adopt(entry.record())
		if r.lifecycle.Probe(ctx, inst) {
			h := r.newHandle(target, inst)
			if err := r.addHolder(ctx, h); err != nil {
				return res, err
			}
			res.Handle = h
			r.log.Debug("attached to running instance", "target", target,
				"instance", inst.ID, "refcount", entry.Refcount+1)
			return res, nil
		}

		r.log.Warn("registry entry is stale; reclaiming", "target", target,
			"instance", inst.ID, "pid", inst.PID)
		if err := r.lifecycle.Reap(ctx, inst); err != nil {
			r.log.Warn("reap stale instance", "instance", inst.ID, "error", err)
		}
		if err := deleteEntry(ctx, r.db, target); err != nil {
			return res, err
		}
		res.Reclaimed = true
	}

	inst, err := r.lifecycle.Start(ctx, target, overrides)
	if err != nil {
		if res.Reclaimed {
			return res, fmt.Errorf("%w: respawn failed: %w", ErrStaleEntry, err)
		}
		return res, err
	}

	h := r.newHandle(target, inst)
	if err := r.insertEntry(ctx, inst, h); err != nil {
		if stopErr := r.lifecycle.Stop(ctx, inst); stopErr != nil {
			r.log.Warn("stop unrecorded instance", "instance", inst.ID, "error", stopErr)
		}
		return res, err
	}
	res.Handle = h
	res.FirstAttach = true
	return res, nil
}

func (r *Registry) newHandle(target string, inst *server.Instance) Handle {
	return Handle{ID: uuid.NewString(), Target: target, Instance: inst}
}

// Release drops handle h. When it was the last reference the instance is
// stopped and its entry deleted; stopped reports whether that happened.
// Releasing an unknown or already released handle returns ErrDoubleRelease
// and changes nothing.
func (r *Registry) Release(ctx context.Context, h Handle) (stopped bool, err error) {
	err = r.withLock(ctx, func(ctx context.Context) error {
		var err error
		stopped, err = r.releaseLocked(ctx, h)
		return err
	})
	if err != nil {
		return stopped, fmt.Errorf("release %s: %w", h.Target, err)
	}
	return stopped, nil
}

func (r *Registry) releaseLocked(ctx context.Context, h Handle) (bool, error) {
	target, ok, err := holderTarget(ctx, r.db, h.ID)
	if err != nil {
		return false, err
	}
	if !ok || target != h.Target {
		return false, fmt.Errorf("handle %s: %w", h.ID, ErrDoubleRelease)
	}
	entry, ok, err := lookup(ctx, r.db, target)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("handle %s has no instance: %w", h.ID, ErrDoubleRelease)
	}

	if entry.Refcount > 1 {
		return false, r.removeHolder(ctx, h.ID, target)
	}
	return true, r.stopAndDelete(ctx, entry, h.Instance)
}

// stopAndDelete stops the instance of entry and deletes the entry with all
// its holders. The entry is deleted even when the stop fails; an entry with
// no references must not remain.
func (r *Registry) stopAndDelete(ctx context.Context, entry Entry, inst *server.Instance) error {
	if inst == nil || inst.ID != entry.InstanceID {
		inst = server.Adopt(entry.record())
	}
	stopErr := r.lifecycle.Stop(ctx, inst)
	if err := deleteEntry(ctx, r.db, entry.Target); err != nil {
		return errors.Join(stopErr, err)
	}
	r.log.Debug("instance released", "target", entry.Target, "instance", entry.InstanceID)
	return stopErr
}

// pruneOrphans drops holders owned by processes that no longer exist. An
// instance left without references is stopped.
func (r *Registry) pruneOrphans(ctx context.Context) (int, error) {
	owners, err := holderOwners(ctx, r.db)
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, pid := range owners {
		if pid == r.ownerPID || process.Alive(pid) {
			continue
		}
		holders, err := holdersOf(ctx, r.db, pid)
		if err != nil {
			return pruned, err
		}
		for _, h := range holders {
			entry, ok, err := lookup(ctx, r.db, h.target)
			if err != nil {
				return pruned, err
			}
			switch {
			case !ok:
				err = deleteHolder(ctx, r.db, h.id)
			case entry.Refcount > 1:
				err = r.removeHolder(ctx, h.id, h.target)
			default:
				err = r.stopAndDelete(ctx, entry, nil)
			}
			if err != nil {
				return pruned, err
			}
			pruned++
			r.log.Info("dropped reference of dead process", "owner_pid", pid,
				"target", h.target, "handle", h.id)
		}
	}
	return pruned, nil
}

// Lookup returns the entry for target, if any. It does not take the lock.
func (r *Registry) Lookup(ctx context.Context, target string) (Entry, bool, error) {
	return lookup(ctx, r.db, target)
}

// Entries returns every registered instance ordered by target. It does not
// take the lock.
func (r *Registry) Entries(ctx context.Context) ([]Entry, error) {
	return entries(ctx, r.db)
}
