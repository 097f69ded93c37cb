package redislite

import "time"

// ResetForTesting resets the singleton manager state so that the next
// call to NewManager creates a fresh instance. This is exported only
// for use in test packages (package redislite_test).
func ResetForTesting() { resetForTesting() }

// ConfigSnapshot holds a copy of managerConfig fields for test assertions.
type ConfigSnapshot struct {
	Binary              string
	ModulePath          string
	BaseDir             string
	RegistryDir         string
	SocketDir           string
	StartTimeout        time.Duration
	StopTimeout         time.Duration
	ProbeTimeout        time.Duration
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	LockTimeout         time.Duration
	ShutdownTimeout     time.Duration
	ShutdownConcurrency int
	HasRegisterer       bool
}

// ApplyOptionsForTesting creates a default managerConfig, applies the given
// options, and returns a ConfigSnapshot of the result. This tests the option
// closures directly without touching the singleton.
func ApplyOptionsForTesting(opts ...ManagerOption) ConfigSnapshot {
	cfg := defaultManagerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return ConfigSnapshot{
		Binary:              cfg.Binary,
		ModulePath:          cfg.ModulePath,
		BaseDir:             cfg.BaseDir,
		RegistryDir:         cfg.RegistryDir,
		SocketDir:           cfg.SocketDir,
		StartTimeout:        cfg.StartTimeout,
		StopTimeout:         cfg.StopTimeout,
		ProbeTimeout:        cfg.ProbeTimeout,
		InitialBackoff:      cfg.InitialBackoff,
		MaxBackoff:          cfg.MaxBackoff,
		LockTimeout:         cfg.LockTimeout,
		ShutdownTimeout:     cfg.ShutdownTimeout,
		ShutdownConcurrency: cfg.ShutdownConcurrency,
		HasRegisterer:       cfg.Registerer != nil,
	}
}
