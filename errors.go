package redislite

import "github.com/giantswarm/redislite/internal/core"

// Sentinel errors for error inspection with errors.Is.
// These are immutable constants safe for use in wrapped error chain comparison.
const (
	// ErrShuttingDown is returned by Open and OpenAsync once Shutdown has begun.
	ErrShuttingDown = core.ErrShuttingDown

	// ErrNotInitialized is returned by Open and OpenAsync when Initialize has
	// not been called.
	ErrNotInitialized = core.ErrNotInitialized

	// ErrClientClosed is returned by client commands issued after Close.
	ErrClientClosed = core.ErrClientClosed

	// ErrKeyNotFound is returned by Get when the key does not exist.
	ErrKeyNotFound = core.ErrKeyNotFound

	// ErrStartupTimeout is returned by Open when a spawned server does not
	// accept connections within the start timeout.
	ErrStartupTimeout = core.ErrStartupTimeout

	// ErrProcessCrashed is returned by Open when a spawned server exits
	// before it becomes ready.
	ErrProcessCrashed = core.ErrProcessCrashed

	// ErrRegistryLockTimeout is returned when the host-wide registry lock
	// cannot be acquired within the lock timeout.
	ErrRegistryLockTimeout = core.ErrRegistryLockTimeout

	// ErrStaleEntry marks a registry entry whose server is no longer alive.
	// Open reclaims such entries transparently; the error surfaces only in
	// logs and in wrapped errors from failed reclaims.
	ErrStaleEntry = core.ErrStaleEntry

	// ErrDoubleRelease is reported when a registry reference is released
	// more than once. Closing a client twice is not an error; this surfaces
	// only when the registry entry was already reclaimed by another process.
	ErrDoubleRelease = core.ErrDoubleRelease

	// ErrReservedKey is returned when server overrides set a directive the
	// manager controls.
	ErrReservedKey = core.ErrReservedKey

	// ErrInvalidOverride is returned for override keys or values that cannot
	// be rendered into a server configuration file.
	ErrInvalidOverride = core.ErrInvalidOverride
)
