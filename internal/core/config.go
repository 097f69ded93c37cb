package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/giantswarm/redislite/internal/serverconf"
)

// ManagerConfig holds configuration for Manager instances.
//
// All fields are immutable after construction via NewManagerWithConfig.
type ManagerConfig struct {
	// Binary is the redis-server executable, resolved through PATH when it
	// contains no separator.
	Binary string

	// ModulePath is an optional server module (for example the FalkorDB
	// shared object) loaded into every instance. Empty loads nothing.
	ModulePath string

	// BaseDir holds one private work directory per instance and the
	// temporary databases of target-less clients.
	BaseDir string

	// RegistryDir holds the instance registry shared by every process
	// on the host. Processes that should share servers must agree on it.
	RegistryDir string

	// SocketDir receives fallback unix sockets when a socket inside the
	// instance work directory would exceed the platform path limit.
	SocketDir string

	// StartTimeout bounds the wait for a spawned server to accept
	// connections. Default: 10 seconds.
	StartTimeout time.Duration

	// StopTimeout bounds the wait for a server to exit after SHUTDOWN
	// before it is signalled. Default: 5 seconds.
	StopTimeout time.Duration

	// ProbeTimeout bounds the liveness ping of a registered instance.
	// Default: 1 second.
	ProbeTimeout time.Duration

	// InitialBackoff and MaxBackoff shape the readiness polling schedule:
	// the interval doubles from InitialBackoff up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// LockTimeout bounds acquisition of the registry lock. It must exceed
	// StartTimeout, since a server starts while the lock is held.
	// Default: 15 seconds.
	LockTimeout time.Duration

	// ShutdownTimeout bounds the release sweep performed by Shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// ShutdownConcurrency caps the number of handles Shutdown releases
	// in parallel. Default: 4.
	ShutdownConcurrency int

	// Registerer receives the manager's Prometheus collectors. Nil
	// disables metrics.
	Registerer prometheus.Registerer
}

// Validate checks all ManagerConfig invariants and returns an error describing
// every violation found, joined with errors.Join.
//
// Validate is called by NewManagerWithConfig (which panics on error, since
// invalid config is a programmer error) and by Initialize.
func (c ManagerConfig) Validate() error {
	var errs []error

	if c.Binary == "" {
		errs = append(errs, errors.New("server binary must not be empty"))
	}
	if c.BaseDir == "" {
		errs = append(errs, errors.New("base directory must not be empty"))
	}
	if c.RegistryDir == "" {
		errs = append(errs, errors.New("registry directory must not be empty"))
	}
	if c.StartTimeout <= 0 {
		errs = append(errs, fmt.Errorf("start timeout must be greater than 0, got %s", c.StartTimeout))
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("stop timeout must be greater than 0, got %s", c.StopTimeout))
	}
	if c.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("probe timeout must be greater than 0, got %s", c.ProbeTimeout))
	}
	if c.InitialBackoff <= 0 {
		errs = append(errs, fmt.Errorf("initial backoff must be greater than 0, got %s", c.InitialBackoff))
	}
	if c.MaxBackoff < c.InitialBackoff {
		errs = append(errs, fmt.Errorf("max backoff %s must not be below initial backoff %s",
			c.MaxBackoff, c.InitialBackoff))
	}
	if c.LockTimeout <= 0 {
		errs = append(errs, fmt.Errorf("lock timeout must be greater than 0, got %s", c.LockTimeout))
	} else if c.LockTimeout <= c.StartTimeout {
		// Servers start under the registry lock; a waiter must outlast a start.
		errs = append(errs, fmt.Errorf("lock timeout %s must exceed start timeout %s",
			c.LockTimeout, c.StartTimeout))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must be greater than 0, got %s", c.ShutdownTimeout))
	}
	if c.ShutdownConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("shutdown concurrency must be greater than 0, got %d", c.ShutdownConcurrency))
	}

	return errors.Join(errs...)
}

// LoadServerConfig reads server configuration overrides from a TOML file.
// See serverconf.LoadOverrides for the accepted value types.
func LoadServerConfig(path string) (map[string]string, error) {
	return serverconf.LoadOverrides(path)
}
