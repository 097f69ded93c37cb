package redislite

import "time"

// Default configuration values for NewManager.
// These constants are exported so callers can reference the defaults
// when building custom configurations relative to them (e.g.,
// 2 * DefaultStartTimeout).
const (
	// DefaultServerBinary is the binary name used to locate redis-server in PATH.
	DefaultServerBinary = "redis-server"

	// DefaultBaseDirName is the directory name under the system temp
	// directory where instance work directories and temporary databases are
	// stored. The full path is computed as
	// filepath.Join(os.TempDir(), DefaultBaseDirName).
	DefaultBaseDirName = "redislite"

	// DefaultRegistryDirName is the directory name under the system temp
	// directory holding the host-wide instance registry. It does not follow
	// WithBaseDir so that processes with different base directories still
	// share servers for the same database file.
	DefaultRegistryDirName = "redislite-registry"

	// DefaultStartTimeout is the maximum time allowed for a spawned server
	// to start accepting connections.
	DefaultStartTimeout = 10 * time.Second

	// DefaultStopTimeout is the maximum time a server gets to exit after
	// SHUTDOWN before it is terminated with signals.
	DefaultStopTimeout = 5 * time.Second

	// DefaultProbeTimeout bounds the ping used to check that a registered
	// server is still alive.
	DefaultProbeTimeout = time.Second

	// DefaultInitialBackoff is the first interval between readiness polls
	// of a starting server. The interval doubles up to DefaultMaxBackoff.
	DefaultInitialBackoff = 10 * time.Millisecond

	// DefaultMaxBackoff caps the interval between readiness polls.
	DefaultMaxBackoff = 500 * time.Millisecond

	// DefaultLockTimeout is the maximum time to wait for the host-wide
	// registry lock.
	DefaultLockTimeout = 15 * time.Second

	// DefaultShutdownTimeout bounds the release of every open client during
	// Shutdown.
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultShutdownConcurrency is the number of clients Shutdown releases
	// in parallel.
	DefaultShutdownConcurrency = 4
)
