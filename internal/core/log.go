package core

import (
	"log/slog"
	"sync/atomic"
)

// logger is the package-level logger used by redislite, stored as an atomic pointer
// to allow safe concurrent reads and writes. Named "logger" instead of "log" to
// avoid shadowing the stdlib "log" package.
//
// A nil value means no custom logger has been set; Logger() will fall back to
// a cached default derived from slog.Default().
var logger atomic.Pointer[slog.Logger]

// defaultLogger caches the default-derived logger (slog.Default() with the
// redislite component attribute) so it is not re-created on every Logger()
// call. If slog.SetDefault() is called after the first Logger() call, the
// cached logger does not reflect the change until SetLogger(nil) clears the
// cache.
var defaultLogger atomic.Pointer[slog.Logger]

// Logger returns the current package-level logger. If no custom logger has been
// set via SetLogger, it returns a cached logger derived from slog.Default()
// with the redislite component attribute. It is safe to call from multiple
// goroutines.
func Logger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l := newDefaultLogger()
	if defaultLogger.CompareAndSwap(nil, l) {
		return l
	}
	// A concurrent SetLogger may have cleared the cache after our CAS lost.
	if l2 := defaultLogger.Load(); l2 != nil {
		return l2
	}
	return l
}

func newDefaultLogger() *slog.Logger {
	return slog.Default().With("component", "redislite")
}

// SetLogger replaces the package-level logger. A nil l restores the default
// derived from slog.Default(), re-read on the next Logger() call.
//
// Loggers handed to the server and registry layers are taken when the
// Manager initializes; later SetLogger calls affect only the core.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
	defaultLogger.Store(nil)
}
