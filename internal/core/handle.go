package core

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/giantswarm/redislite/internal/registry"
	"github.com/giantswarm/redislite/internal/server"
)

// handle is one attached reference to a server instance, held by a Client.
//
// The reference is released at most once. A failed release leaves the handle
// attached so that a later Close or the Shutdown sweep can retry it.
type handle struct {
	ref     registry.Handle
	reg     *registry.Registry
	set     *cleanupSet
	metrics *metrics
	log     *slog.Logger

	// tempDir is the private directory of a target-less client. It is
	// removed once the instance has stopped.
	tempDir string

	// externallyManaged hands the release to a composing owner: Client.Close
	// then leaves the reference alone.
	externallyManaged atomic.Bool

	mu       sync.Mutex
	released bool

	// onRelease runs once, outside mu, after the reference is released.
	onRelease func()
}

func (h *handle) instance() *server.Instance {
	return h.ref.Instance
}

// release drops the reference. It returns nil when the handle was already
// released. A reference that the registry no longer knows about (reclaimed
// by another process after its server died) counts as released.
func (h *handle) release(ctx context.Context) error {
	h.mu.Lock()
	wasReleased := h.released
	err := h.releaseLocked(ctx)
	fire := !wasReleased && h.released
	onRelease := h.onRelease
	h.mu.Unlock()

	if fire && onRelease != nil {
		onRelease()
	}
	return err
}

// setOnRelease installs fn as the release callback. If the handle is
// already released fn runs immediately.
func (h *handle) setOnRelease(fn func()) {
	h.mu.Lock()
	h.onRelease = fn
	released := h.released
	h.mu.Unlock()

	if released {
		fn()
	}
}

func (h *handle) releaseLocked(ctx context.Context) error {
	if h.released {
		return nil
	}

	stopped, err := h.reg.Release(ctx, h.ref)
	switch {
	case errors.Is(err, registry.ErrDoubleRelease):
		h.log.Warn("reference was reclaimed before release", "handle", h.ref.ID, "error", err)
	case err != nil:
		h.metrics.recordRelease(releaseFailed)
		return err
	}

	h.released = true
	h.set.unregister(h)
	if stopped {
		h.metrics.recordRelease(releaseStopped)
	} else {
		h.metrics.recordRelease(releaseDropped)
	}

	if h.tempDir != "" && (stopped || err != nil) {
		if rmErr := os.RemoveAll(h.tempDir); rmErr != nil {
			h.log.Warn("remove temporary database dir", "dir", h.tempDir, "error", rmErr)
		}
	}
	return nil
}

// isReleased reports whether release has completed.
func (h *handle) isReleased() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}
