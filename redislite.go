package redislite

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/giantswarm/redislite/internal/core"
)

// Singleton state for NewManager. The first call creates the manager;
// subsequent calls return the same instance and log a warning.
//
// singletonMu protects both singletonMgr and singletonOnce so that
// resetForTesting (used in tests) is concurrency-safe with NewManager.
var (
	singletonMu   sync.Mutex
	singletonMgr  Manager
	singletonOnce sync.Once
)

// Compile-time interface satisfaction checks.
var (
	_ Manager     = (*managerWrapper)(nil)
	_ Client      = (*core.Client)(nil)
	_ AsyncClient = (*core.AsyncClient)(nil)
)

// managerWrapper wraps core.Manager to implement the Manager interface.
//
// The core.Manager is stored as a named (unexported) field rather than embedded
// to prevent callers from using type assertions to access internal methods
// (e.g., IsShuttingDown, OpenHandles) that are not part of the public Manager interface.
type managerWrapper struct {
	mgr *core.Manager
}

// Initialize wraps core.Manager.Initialize.
func (w *managerWrapper) Initialize(ctx context.Context) error {
	return w.mgr.Initialize(ctx)
}

// Open implements Manager.Open, returning the Client interface.
//
//nolint:ireturn // Returns Client interface by design for testability (mockable).
func (w *managerWrapper) Open(ctx context.Context, target string, overrides map[string]string) (Client, error) {
	c, err := w.mgr.Open(ctx, target, overrides)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// OpenAsync implements Manager.OpenAsync, returning the AsyncClient interface.
//
//nolint:ireturn // Returns AsyncClient interface by design for testability (mockable).
func (w *managerWrapper) OpenAsync(ctx context.Context, target string, overrides map[string]string) (AsyncClient, error) {
	a, err := w.mgr.OpenAsync(ctx, target, overrides)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Instances wraps core.Manager.Instances.
func (w *managerWrapper) Instances(ctx context.Context) ([]InstanceInfo, error) {
	return w.mgr.Instances(ctx)
}

// Shutdown wraps core.Manager.Shutdown.
func (w *managerWrapper) Shutdown() error {
	return w.mgr.Shutdown()
}

// defaultManagerConfig returns a managerConfig populated with all default
// values. Both NewManager and test helpers use this to avoid duplicating
// the default field assignments.
func defaultManagerConfig() managerConfig {
	return managerConfig{core.ManagerConfig{
		Binary:              DefaultServerBinary,
		BaseDir:             filepath.Join(os.TempDir(), DefaultBaseDirName),
		RegistryDir:         filepath.Join(os.TempDir(), DefaultRegistryDirName),
		StartTimeout:        DefaultStartTimeout,
		StopTimeout:         DefaultStopTimeout,
		ProbeTimeout:        DefaultProbeTimeout,
		InitialBackoff:      DefaultInitialBackoff,
		MaxBackoff:          DefaultMaxBackoff,
		LockTimeout:         DefaultLockTimeout,
		ShutdownTimeout:     DefaultShutdownTimeout,
		ShutdownConcurrency: DefaultShutdownConcurrency,
	}}
}

// resetForTesting resets the singleton state so that the next call to
// NewManager creates a fresh manager. It must only be called from tests.
func resetForTesting() {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	singletonMgr = nil
	singletonOnce = sync.Once{}
}

// NewManager returns the process-level singleton Manager.
//
// The first call creates the manager with the given options and stores it.
// Subsequent calls return the same instance; options are ignored and a
// warning is logged. This performs no I/O operations; call Initialize
// before Open.
//
// The singleton is never reset after Shutdown. Servers are shared between
// processes through the registry, not through the Manager, so one manager
// per process is all an application needs.
//
// Panics if any option receives an invalid value. See individual With*
// functions for constraints.
//
//nolint:ireturn // Returns Manager interface by design for testability (mockable).
func NewManager(opts ...ManagerOption) Manager {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	created := false
	singletonOnce.Do(func() {
		cfg := defaultManagerConfig()
		for _, opt := range opts {
			opt(&cfg)
		}
		singletonMgr = &managerWrapper{mgr: core.NewManagerWithConfig(cfg.toCoreConfig())}
		created = true
	})
	if !created {
		core.Logger().Warn("NewManager called more than once; returning existing singleton (options ignored)")
	}
	return singletonMgr
}
