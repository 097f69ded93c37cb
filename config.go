package redislite

import "github.com/giantswarm/redislite/internal/core"

// managerConfig holds configuration for a Manager. This unexported type wraps
// core.ManagerConfig via embedding, keeping internal/core types out of the
// public API signature while avoiding field-by-field duplication.
type managerConfig struct {
	core.ManagerConfig
}

// toCoreConfig returns the embedded core.ManagerConfig.
func (c managerConfig) toCoreConfig() core.ManagerConfig {
	return c.ManagerConfig
}

// LoadServerConfig reads server configuration overrides from a TOML file,
// ready to pass to Manager.Open. Top-level keys are directive names:
//
//	maxmemory = "64mb"
//	appendonly = true
//	save = ["900 1", "60 10000"]
//
// Booleans become "yes"/"no" and arrays become repeated directives.
// Returns an error wrapping ErrReservedKey if the file sets a directive the
// manager controls (dir, dbfilename, unixsocket, port, daemonize...).
func LoadServerConfig(path string) (map[string]string, error) {
	return core.LoadServerConfig(path)
}
