// Package core provides the internal implementation of redislite.
// It contains the Manager (state machine with two-phase initialization and a
// releasing Shutdown sweep), the per-process set of open handles, the
// blocking Client and the queueing AsyncClient bound to shared server
// instances, and the graph query helpers.
package core
