package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// cleanupSet tracks the handles held by this process. It never touches the
// registry itself, so it is safe to use while the registry lock is held.
type cleanupSet struct {
	mu      sync.Mutex
	handles map[*handle]struct{}
}

func newCleanupSet() *cleanupSet {
	return &cleanupSet{handles: make(map[*handle]struct{})}
}

func (s *cleanupSet) register(h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[h] = struct{}{}
}

func (s *cleanupSet) unregister(h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, h)
}

func (s *cleanupSet) snapshot() []*handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*handle, 0, len(s.handles))
	for h := range s.handles {
		out = append(out, h)
	}
	return out
}

func (s *cleanupSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// sweep releases every handle still registered, at most limit at a time.
// Failures do not stop the sweep; they are logged, counted and returned
// joined.
func (s *cleanupSet) sweep(ctx context.Context, limit int, m *metrics) error {
	handles := s.snapshot()
	if len(handles) == 0 {
		return nil
	}
	Logger().Info("releasing handles left open", "count", len(handles))

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(limit)
	for _, h := range handles {
		g.Go(func() error {
			if err := h.release(ctx); err != nil {
				Logger().Warn("release on shutdown failed",
					"target", h.ref.Target, "handle", h.ref.ID, "error", err)
				m.recordSweepFailure()
				mu.Lock()
				errs = append(errs, fmt.Errorf("release %s: %w", h.ref.Target, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
