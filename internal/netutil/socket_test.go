package netutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestSocketRegistry_Allocate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		workDir      func(base string) string
		wantInWork   bool
		wantFallback bool
	}{
		"short work dir keeps socket inside": {
			workDir:    func(base string) string { return filepath.Join(base, "inst") },
			wantInWork: true,
		},
		"long work dir falls back to temp dir": {
			workDir: func(base string) string {
				return filepath.Join(base, strings.Repeat("x", 120))
			},
			wantFallback: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tempDir := t.TempDir()
			r := NewSocketRegistry(tempDir, nil)
			workDir := tc.workDir(t.TempDir())

			got, err := r.Allocate(workDir, "01JABCDEFGHJKMNPQRSTVWXYZ0")
			if err != nil {
				t.Fatalf("Allocate() error: %v", err)
			}
			if tc.wantInWork && got != filepath.Join(workDir, SocketFileName) {
				t.Errorf("Allocate() = %q, want socket in work dir", got)
			}
			if tc.wantFallback && filepath.Dir(got) != tempDir {
				t.Errorf("Allocate() = %q, want fallback under %q", got, tempDir)
			}
			if len(got) > maxSocketPath {
				t.Errorf("socket path length %d exceeds %d", len(got), maxSocketPath)
			}
		})
	}
}

func TestSocketRegistry_FallbackCollision(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	r := NewSocketRegistry(tempDir, nil)
	longDir := filepath.Join(t.TempDir(), strings.Repeat("y", 120))

	// A stale file from a dead server occupies the first fallback name.
	stale := filepath.Join(tempDir, "rl-qrstvwxyz0ab.sock")
	if err := os.WriteFile(stale, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	first, err := r.Allocate(longDir, "01JABCDEFGHJKMNPQRSTVWXYZ0AB")
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	if first == stale {
		t.Fatal("Allocate() returned a path occupied by an existing file")
	}
	second, err := r.Allocate(longDir, "01JABCDEFGHJKMNPQRSTVWXYZ0AB")
	if err != nil {
		t.Fatalf("second Allocate() error: %v", err)
	}
	if first == second {
		t.Fatalf("Allocate() returned %q twice", first)
	}

	r.Release(first)
	again, err := r.Allocate(longDir, "01JABCDEFGHJKMNPQRSTVWXYZ0AB")
	if err != nil {
		t.Fatalf("Allocate() after release error: %v", err)
	}
	if again != first {
		t.Errorf("Allocate() after release = %q, want %q", again, first)
	}
}

func TestSocketRegistry_TempDirTooLong(t *testing.T) {
	t.Parallel()

	r := NewSocketRegistry("/"+strings.Repeat("z", 120), nil)
	_, err := r.Allocate("/"+strings.Repeat("w", 120), "01JABCDEFGHJKMNPQRSTVWXYZ0")
	if !errors.Is(err, ErrSocketPathTooLong) {
		t.Errorf("Allocate() error = %v, want %v", err, ErrSocketPathTooLong)
	}
}

func TestSocketRegistry_ConcurrentAllocate(t *testing.T) {
	t.Parallel()

	r := NewSocketRegistry(t.TempDir(), nil)
	longDir := filepath.Join(t.TempDir(), strings.Repeat("v", 120))

	const n = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := r.Allocate(longDir, "SAMEID")
			if err != nil {
				t.Errorf("Allocate() error: %v", err)
				return
			}
			mu.Lock()
			seen[p] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != n {
		t.Errorf("got %d distinct sockets, want %d", len(seen), n)
	}
}
