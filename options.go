package redislite

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// requirePositive panics if v <= 0 with a descriptive message.
func requirePositive[T int | time.Duration](name string, v T) {
	if v <= 0 {
		panic(fmt.Sprintf("redislite: %s must be greater than 0, got %v", name, v))
	}
}

// requireNonEmpty panics if s is empty with a descriptive message.
func requireNonEmpty(name, s string) {
	if s == "" {
		panic(fmt.Sprintf("redislite: %s must not be empty", name))
	}
}

// ManagerOption configures a Manager during construction via NewManager.
// Each With* function returns a ManagerOption that sets a specific field.
//
// Most With* functions panic on invalid input (empty paths, non-positive
// durations). Option values are typically constants, so an invalid value
// is a programmer error; the pattern mirrors [regexp.MustCompile].
type ManagerOption func(*managerConfig)

// WithServerBinary sets the redis-server executable. A bare name is looked
// up in PATH.
//
// Default: "redis-server".
//
// Panics if binPath is empty.
func WithServerBinary(binPath string) ManagerOption {
	requireNonEmpty("server binary path", binPath)
	return func(c *managerConfig) {
		c.Binary = binPath
	}
}

// WithModule loads a server module, such as the FalkorDB shared object that
// provides the GRAPH.* commands, into every spawned server.
// Panics if modulePath is empty.
func WithModule(modulePath string) ManagerOption {
	requireNonEmpty("module path", modulePath)
	return func(c *managerConfig) {
		c.ModulePath = modulePath
	}
}

// WithBaseDir sets the directory holding instance work directories and the
// temporary databases of clients opened without a target.
// Useful in CI environments where several projects share a host.
// If not set, defaults to filepath.Join(os.TempDir(), DefaultBaseDirName).
// Panics if dir is empty.
func WithBaseDir(dir string) ManagerOption {
	requireNonEmpty("base directory", dir)
	return func(c *managerConfig) {
		c.BaseDir = dir
	}
}

// WithRegistryDir sets the directory of the host-wide instance registry.
// Only processes that use the same registry directory share servers.
// If not set, defaults to filepath.Join(os.TempDir(), DefaultRegistryDirName).
// Panics if dir is empty.
func WithRegistryDir(dir string) ManagerOption {
	requireNonEmpty("registry directory", dir)
	return func(c *managerConfig) {
		c.RegistryDir = dir
	}
}

// WithSocketDir sets the directory used for unix sockets whose natural path
// inside the instance work directory would be too long for the platform.
// If not set, the system temp directory is used.
// Panics if dir is empty.
func WithSocketDir(dir string) ManagerOption {
	requireNonEmpty("socket directory", dir)
	return func(c *managerConfig) {
		c.SocketDir = dir
	}
}

// WithStartTimeout sets the maximum time a spawned server gets to start
// accepting connections. It must stay below the lock timeout (see
// WithLockTimeout).
//
// Default: 10 seconds.
//
// Panics if d <= 0.
func WithStartTimeout(d time.Duration) ManagerOption {
	requirePositive("start timeout", d)
	return func(c *managerConfig) {
		c.StartTimeout = d
	}
}

// WithStopTimeout sets the maximum time a server gets to exit after SHUTDOWN
// before it is terminated with SIGTERM and then SIGKILL.
//
// Default: 5 seconds.
//
// Panics if d <= 0.
func WithStopTimeout(d time.Duration) ManagerOption {
	requirePositive("stop timeout", d)
	return func(c *managerConfig) {
		c.StopTimeout = d
	}
}

// WithProbeTimeout sets the timeout of the ping used to decide whether a
// registered server is still alive.
//
// Default: 1 second.
//
// Panics if d <= 0.
func WithProbeTimeout(d time.Duration) ManagerOption {
	requirePositive("probe timeout", d)
	return func(c *managerConfig) {
		c.ProbeTimeout = d
	}
}

// WithReadinessBackoff sets the readiness polling schedule of a starting
// server: the interval starts at initial and doubles up to maxInterval.
//
// Default: 10ms doubling up to 500ms.
//
// Panics if initial <= 0 or maxInterval < initial.
func WithReadinessBackoff(initial, maxInterval time.Duration) ManagerOption {
	requirePositive("initial backoff", initial)
	if maxInterval < initial {
		panic(fmt.Sprintf("redislite: max backoff %v must not be below initial backoff %v", maxInterval, initial))
	}
	return func(c *managerConfig) {
		c.InitialBackoff = initial
		c.MaxBackoff = maxInterval
	}
}

// WithLockTimeout sets the maximum time to wait for the host-wide registry
// lock. Operations that cannot take the lock in time fail with
// ErrRegistryLockTimeout.
//
// A server starts while the lock is held, so the lock timeout must exceed
// the start timeout; NewManager panics otherwise. Raise both together.
//
// Default: 15 seconds.
//
// Panics if d <= 0.
func WithLockTimeout(d time.Duration) ManagerOption {
	requirePositive("lock timeout", d)
	return func(c *managerConfig) {
		c.LockTimeout = d
	}
}

// WithShutdownTimeout bounds the release of open clients during Shutdown.
//
// Default: 30 seconds.
//
// Panics if d <= 0.
func WithShutdownTimeout(d time.Duration) ManagerOption {
	requirePositive("shutdown timeout", d)
	return func(c *managerConfig) {
		c.ShutdownTimeout = d
	}
}

// WithShutdownConcurrency sets how many clients Shutdown releases in parallel.
//
// Default: 4.
//
// Panics if n <= 0.
func WithShutdownConcurrency(n int) ManagerOption {
	requirePositive("shutdown concurrency", n)
	return func(c *managerConfig) {
		c.ShutdownConcurrency = n
	}
}

// WithRegisterer registers the manager's Prometheus collectors with reg.
// Collectors already registered by an earlier manager are reused.
// Metrics are disabled unless this option is given.
// Panics if reg is nil.
func WithRegisterer(reg prometheus.Registerer) ManagerOption {
	if reg == nil {
		panic("redislite: registerer must not be nil")
	}
	return func(c *managerConfig) {
		c.Registerer = reg
	}
}
