package server

import (
	"errors"
	"log/slog"
	"time"
)

// Defaults used when the corresponding Config field is zero.
const (
	DefaultStartTimeout   = 10 * time.Second
	DefaultStopTimeout    = 5 * time.Second
	DefaultProbeTimeout   = time.Second
	DefaultInitialBackoff = 10 * time.Millisecond
	DefaultMaxBackoff     = 500 * time.Millisecond
)

// Config configures a Manager.
type Config struct {
	// Binary is the redis-server executable.
	Binary string
	// ModulePath is an optional module loaded into every instance.
	ModulePath string
	// BaseDir holds one work directory per instance.
	BaseDir string
	// SocketDir holds fallback sockets when a work-dir socket path would be
	// too long. Defaults to os.TempDir().
	SocketDir string

	StartTimeout   time.Duration
	StopTimeout    time.Duration
	ProbeTimeout   time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Logger *slog.Logger
}

func (c Config) validate() error {
	var errs []error
	if c.Binary == "" {
		errs = append(errs, errors.New("binary must not be empty"))
	}
	if c.BaseDir == "" {
		errs = append(errs, errors.New("base dir must not be empty"))
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"start timeout", c.StartTimeout},
		{"stop timeout", c.StopTimeout},
		{"probe timeout", c.ProbeTimeout},
		{"initial backoff", c.InitialBackoff},
		{"max backoff", c.MaxBackoff},
	}
	for _, f := range durations {
		if f.d < 0 {
			errs = append(errs, errors.New(f.name+" must not be negative"))
		}
	}
	return errors.Join(errs...)
}

func (c Config) withDefaults() Config {
	if c.StartTimeout == 0 {
		c.StartTimeout = DefaultStartTimeout
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
