package redislite_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/giantswarm/redislite"
)

// panicTestCase defines a test case for option validation panic tests.
type panicTestCase struct {
	name     string
	panics   bool
	panicMsg string
	fn       func()
}

// requirePanics calls fn and verifies it panics (or not) with the expected message.
func requirePanics(t *testing.T, shouldPanic bool, wantMsg string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if shouldPanic && r == nil {
			t.Fatal("expected panic but didn't get one")
		}
		if !shouldPanic && r != nil {
			t.Fatalf("unexpected panic: %v", r)
		}
		if shouldPanic && r != nil {
			msg := fmt.Sprint(r)
			if msg != wantMsg {
				t.Fatalf("expected panic message %q, got %q", wantMsg, msg)
			}
		}
	}()
	fn()
}

// runPanicTests runs a slice of panic test cases using requirePanics.
func runPanicTests(t *testing.T, tests []panicTestCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			requirePanics(t, tt.panics, tt.panicMsg, tt.fn)
		})
	}
}

func TestDurationOptionsPanicOnInvalid(t *testing.T) {
	t.Parallel()

	options := map[string]func(time.Duration) redislite.ManagerOption{
		"start timeout":    redislite.WithStartTimeout,
		"stop timeout":     redislite.WithStopTimeout,
		"probe timeout":    redislite.WithProbeTimeout,
		"lock timeout":     redislite.WithLockTimeout,
		"shutdown timeout": redislite.WithShutdownTimeout,
	}

	var tests []panicTestCase
	for name, opt := range options {
		tests = append(tests,
			panicTestCase{
				name:     name + "/zero",
				panics:   true,
				panicMsg: "redislite: " + name + " must be greater than 0, got 0s",
				fn:       func() { opt(0) },
			},
			panicTestCase{
				name:     name + "/negative",
				panics:   true,
				panicMsg: "redislite: " + name + " must be greater than 0, got -1s",
				fn:       func() { opt(-time.Second) },
			},
			panicTestCase{
				name: name + "/positive",
				fn:   func() { opt(time.Second) },
			},
		)
	}
	runPanicTests(t, tests)
}

func TestWithReadinessBackoffPanicsOnInvalid(t *testing.T) {
	t.Parallel()
	runPanicTests(t, []panicTestCase{
		{
			name:     "zero initial",
			panics:   true,
			panicMsg: "redislite: initial backoff must be greater than 0, got 0s",
			fn:       func() { redislite.WithReadinessBackoff(0, time.Second) },
		},
		{
			name:     "max below initial",
			panics:   true,
			panicMsg: "redislite: max backoff 10ms must not be below initial backoff 20ms",
			fn:       func() { redislite.WithReadinessBackoff(20*time.Millisecond, 10*time.Millisecond) },
		},
		{
			name: "equal",
			fn:   func() { redislite.WithReadinessBackoff(time.Second, time.Second) },
		},
	})
}

func TestWithShutdownConcurrencyPanicsOnInvalid(t *testing.T) {
	t.Parallel()
	runPanicTests(t, []panicTestCase{
		{
			name:     "zero",
			panics:   true,
			panicMsg: "redislite: shutdown concurrency must be greater than 0, got 0",
			fn:       func() { redislite.WithShutdownConcurrency(0) },
		},
		{
			name: "one",
			fn:   func() { redislite.WithShutdownConcurrency(1) },
		},
	})
}

func TestWithEmptyStringOptionsPanic(t *testing.T) {
	t.Parallel()
	runPanicTests(t, []panicTestCase{
		{
			name:     "serverBinary",
			panics:   true,
			panicMsg: "redislite: server binary path must not be empty",
			fn:       func() { redislite.WithServerBinary("") },
		},
		{
			name:     "module",
			panics:   true,
			panicMsg: "redislite: module path must not be empty",
			fn:       func() { redislite.WithModule("") },
		},
		{
			name:     "baseDir",
			panics:   true,
			panicMsg: "redislite: base directory must not be empty",
			fn:       func() { redislite.WithBaseDir("") },
		},
		{
			name:     "registryDir",
			panics:   true,
			panicMsg: "redislite: registry directory must not be empty",
			fn:       func() { redislite.WithRegistryDir("") },
		},
		{
			name:     "socketDir",
			panics:   true,
			panicMsg: "redislite: socket directory must not be empty",
			fn:       func() { redislite.WithSocketDir("") },
		},
		{
			name:     "nil registerer",
			panics:   true,
			panicMsg: "redislite: registerer must not be nil",
			fn:       func() { redislite.WithRegisterer(nil) },
		},
	})
}

func TestOptionApplicationDefaults(t *testing.T) {
	t.Parallel()

	snap := redislite.ApplyOptionsForTesting()
	want := redislite.ConfigSnapshot{
		Binary:              redislite.DefaultServerBinary,
		BaseDir:             filepath.Join(os.TempDir(), redislite.DefaultBaseDirName),
		RegistryDir:         filepath.Join(os.TempDir(), redislite.DefaultRegistryDirName),
		StartTimeout:        redislite.DefaultStartTimeout,
		StopTimeout:         redislite.DefaultStopTimeout,
		ProbeTimeout:        redislite.DefaultProbeTimeout,
		InitialBackoff:      redislite.DefaultInitialBackoff,
		MaxBackoff:          redislite.DefaultMaxBackoff,
		LockTimeout:         redislite.DefaultLockTimeout,
		ShutdownTimeout:     redislite.DefaultShutdownTimeout,
		ShutdownConcurrency: redislite.DefaultShutdownConcurrency,
	}
	if snap != want {
		t.Errorf("defaults = %+v\nwant %+v", snap, want)
	}
}

func TestOptionApplicationOverrides(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		opt    redislite.ManagerOption
		verify func(t *testing.T, snap redislite.ConfigSnapshot)
	}{
		"WithServerBinary": {
			opt: redislite.WithServerBinary("/opt/redis/bin/redis-server"),
			verify: func(t *testing.T, snap redislite.ConfigSnapshot) {
				t.Helper()
				if snap.Binary != "/opt/redis/bin/redis-server" {
					t.Errorf("Binary = %q", snap.Binary)
				}
			},
		},
		"WithModule": {
			opt: redislite.WithModule("/opt/falkordb.so"),
			verify: func(t *testing.T, snap redislite.ConfigSnapshot) {
				t.Helper()
				if snap.ModulePath != "/opt/falkordb.so" {
					t.Errorf("ModulePath = %q", snap.ModulePath)
				}
			},
		},
		"WithBaseDir keeps registry": {
			opt: redislite.WithBaseDir("/custom/data"),
			verify: func(t *testing.T, snap redislite.ConfigSnapshot) {
				t.Helper()
				if snap.BaseDir != "/custom/data" {
					t.Errorf("BaseDir = %q", snap.BaseDir)
				}
				if want := filepath.Join(os.TempDir(), redislite.DefaultRegistryDirName); snap.RegistryDir != want {
					t.Errorf("RegistryDir = %q, want %q", snap.RegistryDir, want)
				}
			},
		},
		"WithRegistryDir": {
			opt: redislite.WithRegistryDir("/run/redislite"),
			verify: func(t *testing.T, snap redislite.ConfigSnapshot) {
				t.Helper()
				if snap.RegistryDir != "/run/redislite" {
					t.Errorf("RegistryDir = %q", snap.RegistryDir)
				}
			},
		},
		"WithSocketDir": {
			opt: redislite.WithSocketDir("/tmp/s"),
			verify: func(t *testing.T, snap redislite.ConfigSnapshot) {
				t.Helper()
				if snap.SocketDir != "/tmp/s" {
					t.Errorf("SocketDir = %q", snap.SocketDir)
				}
			},
		},
		"WithStartTimeout": {
			opt: redislite.WithStartTimeout(time.Minute),
			verify: func(t *testing.T, snap redislite.ConfigSnapshot) {
				t.Helper()
				if snap.StartTimeout != time.Minute {
					t.Errorf("StartTimeout = %v", snap.StartTimeout)
				}
			},
		},
		"WithReadinessBackoff": {
			opt: redislite.WithReadinessBackoff(time.Millisecond, time.Second),
			verify: func(t *testing.T, snap redislite.ConfigSnapshot) {
				t.Helper()
				if snap.InitialBackoff != time.Millisecond || snap.MaxBackoff != time.Second {
					t.Errorf("backoff = %v..%v", snap.InitialBackoff, snap.MaxBackoff)
				}
			},
		},
		"WithShutdownConcurrency": {
			opt: redislite.WithShutdownConcurrency(9),
			verify: func(t *testing.T, snap redislite.ConfigSnapshot) {
				t.Helper()
				if snap.ShutdownConcurrency != 9 {
					t.Errorf("ShutdownConcurrency = %d", snap.ShutdownConcurrency)
				}
			},
		},
		"WithRegisterer": {
			opt: redislite.WithRegisterer(prometheus.NewRegistry()),
			verify: func(t *testing.T, snap redislite.ConfigSnapshot) {
				t.Helper()
				if !snap.HasRegisterer {
					t.Error("registerer not set")
				}
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			tt.verify(t, redislite.ApplyOptionsForTesting(tt.opt))
		})
	}
}

func TestLastOptionWins(t *testing.T) {
	t.Parallel()

	snap := redislite.ApplyOptionsForTesting(
		redislite.WithStopTimeout(time.Second),
		redislite.WithStopTimeout(3*time.Second),
	)
	if snap.StopTimeout != 3*time.Second {
		t.Errorf("StopTimeout = %v, want 3s", snap.StopTimeout)
	}
}
