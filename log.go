package redislite

import (
	"log/slog"

	"github.com/giantswarm/redislite/internal/core"
)

// SetLogger replaces the package-level logger used by redislite.
// The provided logger should already have any desired attributes; redislite
// will not add a component attribute to it.
//
// If l is nil, the logger resets to slog.Default() with a "component"
// attribute, re-derived on the next use. Call SetLogger(nil) after
// slog.SetDefault() to pick up changes.
//
// The server and registry layers capture the logger during Initialize, so
// call SetLogger before Initialize (for example in TestMain before m.Run).
//
// Example:
//
//	redislite.SetLogger(myLogger.With("component", "redislite"))
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}
