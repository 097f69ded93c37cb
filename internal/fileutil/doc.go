// Package fileutil provides the small set of filesystem helpers the server
// supervisor needs: directory creation, atomic file writes for configuration
// and pid artifacts, and tolerant removal of artifacts that may already be gone.
package fileutil
