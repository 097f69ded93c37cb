package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giantswarm/redislite/internal/fileutil"
	"github.com/giantswarm/redislite/internal/registry"
	"github.com/giantswarm/redislite/internal/sentinel"
	"github.com/giantswarm/redislite/internal/server"
	"github.com/giantswarm/redislite/internal/serverconf"
)

// managerState represents the lifecycle state of a Manager.
type managerState uint32

const (
	managerCreated      managerState = iota // Zero value; NewManagerWithConfig returns in this state
	managerInitializing                     // Initialize in progress
	managerReady                            // Open allowed
	managerShuttingDown                     // Shutdown called
)

// ErrShuttingDown is returned by Open when the Manager is shutting down.
const ErrShuttingDown = sentinel.Error("manager is shutting down")

// ErrNotInitialized is returned by Open when Initialize has not been called.
const ErrNotInitialized = sentinel.Error("manager not initialized")

// ErrClientClosed is returned by commands issued on a closed client.
const ErrClientClosed = sentinel.Error("client is closed")

// Errors of the lower layers, re-exported so the public API imports only
// from core.
const (
	ErrStartupTimeout      = server.ErrStartupTimeout
	ErrProcessCrashed      = server.ErrProcessCrashed
	ErrRegistryLockTimeout = registry.ErrRegistryLockTimeout
	ErrStaleEntry          = registry.ErrStaleEntry
	ErrDoubleRelease       = registry.ErrDoubleRelease
	ErrReservedKey         = serverconf.ErrReservedKey
	ErrInvalidOverride     = serverconf.ErrInvalidOverride
)

// tempDBFileName is the database file of a client opened without a target.
const tempDBFileName = "redis.db"

// InstanceInfo is the registry's view of one running instance.
type InstanceInfo = registry.Entry

// Manager supervises the server instances used by this process. It is safe
// for concurrent use by multiple goroutines.
//
// Synchronization strategy:
//   - state is an atomic managerState enum (created → initializing → ready → shuttingDown).
//   - servers and registry are set once by Initialize and read lock-free.
//   - initMu serializes concurrent Initialize calls.
//   - opMu is held shared by every Open between its state check and the
//     registration of the new handle. Shutdown takes it exclusively once to
//     wait those out, so the sweep sees every handle Open returned.
type Manager struct {
	cfg ManagerConfig

	servers  atomic.Pointer[server.Manager]
	registry atomic.Pointer[registry.Registry]

	handles *cleanupSet
	metrics *metrics

	state atomic.Uint32 // managerState; zero value is managerCreated

	initMu sync.Mutex
	opMu   sync.RWMutex
}

// loadState returns the current manager lifecycle state.
func (m *Manager) loadState() managerState {
	return managerState(m.state.Load())
}

// storeState sets the manager lifecycle state.
func (m *Manager) storeState(s managerState) {
	m.state.Store(uint32(s))
}

// NewManagerWithConfig creates a Manager with the provided configuration.
// This performs no I/O operations. Call Initialize before Open.
//
// Panics if cfg.Validate() reports any errors. Invalid configuration is a
// programmer error that should be caught at construction time, similar to
// regexp.MustCompile.
func NewManagerWithConfig(cfg ManagerConfig) *Manager {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("redislite: invalid manager config: %v", err))
	}
	return &Manager{
		cfg:     cfg,
		handles: newCleanupSet(),
		metrics: newMetrics(cfg.Registerer),
	}
}

// Initialize prepares the base directory and opens the instance registry.
// Must be called before Open. Safe to call multiple times: after a
// successful initialization, subsequent calls return nil immediately. If
// initialization fails, subsequent calls retry from scratch.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	switch m.loadState() {
	case managerReady:
		return nil
	case managerShuttingDown:
		return ErrShuttingDown
	case managerCreated, managerInitializing:
		// Continue with initialization (or retry after prior failure).
	}

	m.storeState(managerInitializing)

	if err := m.cfg.Validate(); err != nil {
		m.storeState(managerCreated)
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := m.doInitialize(ctx); err != nil {
		m.storeState(managerCreated)
		return fmt.Errorf("initialize: %w", err)
	}

	m.storeState(managerReady)
	return nil
}

func (m *Manager) doInitialize(ctx context.Context) error {
	if err := fileutil.EnsureDir(m.cfg.BaseDir); err != nil {
		return fmt.Errorf("init base dir: %w", err)
	}

	srv, err := server.New(server.Config{
		Binary:         m.cfg.Binary,
		ModulePath:     m.cfg.ModulePath,
		BaseDir:        m.cfg.BaseDir,
		SocketDir:      m.cfg.SocketDir,
		StartTimeout:   m.cfg.StartTimeout,
		StopTimeout:    m.cfg.StopTimeout,
		ProbeTimeout:   m.cfg.ProbeTimeout,
		InitialBackoff: m.cfg.InitialBackoff,
		MaxBackoff:     m.cfg.MaxBackoff,
		Logger:         Logger().With("layer", "server"),
	})
	if err != nil {
		return err
	}

	reg, err := registry.Open(ctx, registry.Config{
		Dir:         m.cfg.RegistryDir,
		LockTimeout: m.cfg.LockTimeout,
		Lifecycle:   srv,
		Logger:      Logger().With("layer", "registry"),
	})
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}

	m.servers.Store(srv)
	m.registry.Store(reg)
	return nil
}

// Open attaches to the server instance for target, spawning it if no live
// instance serves target yet, and returns a client bound to it.
//
// An empty target opens a private database in a fresh temporary directory,
// removed when the client is closed. overrides are merged over the default
// server configuration; they only take effect when this call spawns the
// instance.
//
// Returns ErrNotInitialized if Initialize has not been called.
// Returns ErrShuttingDown if the Manager is shutting down.
func (m *Manager) Open(ctx context.Context, target string, overrides map[string]string) (*Client, error) {
	h, err := m.attach(ctx, target, overrides)
	if err != nil {
		return nil, err
	}
	return newClient(h, 0), nil
}

// OpenAsync is like Open but returns a client that queues commands and
// runs them in issuance order on a dedicated connection.
func (m *Manager) OpenAsync(ctx context.Context, target string, overrides map[string]string) (*AsyncClient, error) {
	h, err := m.attach(ctx, target, overrides)
	if err != nil {
		return nil, err
	}
	return newAsyncClient(newClient(h, 0)), nil
}

func (m *Manager) attach(ctx context.Context, target string, overrides map[string]string) (*handle, error) {
	m.opMu.RLock()
	defer m.opMu.RUnlock()

	switch m.loadState() {
	case managerShuttingDown:
		return nil, ErrShuttingDown
	case managerReady:
	case managerCreated, managerInitializing:
		return nil, ErrNotInitialized
	}
	reg := m.registry.Load()
	if reg == nil {
		return nil, ErrNotInitialized
	}

	var tempDir string
	if target == "" {
		dir, err := os.MkdirTemp(m.cfg.BaseDir, "db-")
		if err != nil {
			return nil, fmt.Errorf("create temporary database dir: %w", err)
		}
		tempDir = dir
		target = filepath.Join(dir, tempDBFileName)
	}

	h, err := m.attachTarget(ctx, reg, target, overrides)
	if err != nil {
		if tempDir != "" {
			_ = os.RemoveAll(tempDir)
		}
		m.metrics.recordAttach(attachFailed, 0)
		return nil, err
	}
	h.tempDir = tempDir
	m.handles.register(h)
	return h, nil
}

func (m *Manager) attachTarget(ctx context.Context, reg *registry.Registry, target string, overrides map[string]string) (*handle, error) {
	canonical, err := registry.Canonical(target)
	if err != nil {
		return nil, err
	}
	if err := fileutil.EnsureDirForFile(canonical); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	began := time.Now()
	res, err := reg.Attach(ctx, canonical, overrides)
	if err != nil {
		return nil, err
	}

	outcome := attachShared
	switch {
	case res.Reclaimed:
		outcome = attachReclaimed
	case res.FirstAttach:
		outcome = attachSpawned
	}
	m.metrics.recordAttach(outcome, time.Since(began))

	inst := res.Handle.Instance
	log := Logger().With("target", canonical, "instance", inst.ID)
	log.Debug("attached", "outcome", outcome, "pid", inst.PID, "endpoint", inst.Endpoint)

	return &handle{
		ref:     res.Handle,
		reg:     reg,
		set:     m.handles,
		metrics: m.metrics,
		log:     log,
	}, nil
}

// Instances lists the instances currently recorded in the registry,
// including those attached by other processes.
func (m *Manager) Instances(ctx context.Context) ([]InstanceInfo, error) {
	reg := m.registry.Load()
	if reg == nil || m.loadState() != managerReady {
		return nil, ErrNotInitialized
	}
	return reg.Entries(ctx)
}

// OpenHandles reports how many handles this process has not yet released.
func (m *Manager) OpenHandles() int {
	return m.handles.len()
}

// IsShuttingDown reports whether Shutdown has been called.
func (m *Manager) IsShuttingDown() bool {
	return m.loadState() == managerShuttingDown
}

// Shutdown releases every handle this process still holds, stopping the
// instances no other process references, and closes the registry. Safe to
// call even if Initialize was never called, and more than once.
//
// Release failures are logged and returned joined for information only;
// the handles involved are not retried.
func (m *Manager) Shutdown() error {
	m.storeState(managerShuttingDown)

	// Wait out Open calls that passed their state check.
	m.opMu.Lock()
	m.opMu.Unlock() //nolint:staticcheck // SA2001: empty critical section is a barrier

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := m.handles.sweep(ctx, m.cfg.ShutdownConcurrency, m.metrics); err != nil {
		errs = append(errs, err)
	}

	if srv := m.servers.Swap(nil); srv != nil {
		srv.Close()
	}
	if reg := m.registry.Swap(nil); reg != nil {
		if err := reg.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close registry: %w", err))
		}
	}
	return errors.Join(errs...)
}
