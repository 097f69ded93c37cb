package netutil

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/giantswarm/redislite/internal/sentinel"
)

// ErrSocketPathTooLong is returned when neither the work-dir socket nor the
// temp-dir fallback fits in sun_path.
const ErrSocketPathTooLong = sentinel.Error("unix socket path too long")

// SocketFileName is the socket file name used inside an instance work dir.
const SocketFileName = "redis.socket"

// maxSocketPath is the usable sun_path length. Linux allows 107 bytes plus the
// terminating NUL, BSDs and macOS 103; the smaller bound is used everywhere.
const maxSocketPath = 103

// maxSocketRetries bounds fallback-name collisions.
const maxSocketRetries = 20

// SocketRegistry tracks socket paths handed out by this process so that two
// instances never share one, even if a fallback name collides.
type SocketRegistry struct {
	mu      sync.Mutex
	sockets map[string]struct{}
	tempDir string
	log     *slog.Logger
}

// NewSocketRegistry creates a registry. Fallback sockets are placed in
// tempDir, or os.TempDir() when empty. If logger is nil, slog.Default() is used.
func NewSocketRegistry(tempDir string, logger *slog.Logger) *SocketRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &SocketRegistry{
		sockets: make(map[string]struct{}),
		tempDir: tempDir,
		log:     logger,
	}
}

func (r *SocketRegistry) reserve(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sockets[path]; ok {
		return false
	}
	// A leftover file belongs to some other server, live or not.
	if _, err := os.Lstat(path); !errors.Is(err, fs.ErrNotExist) {
		return false
	}
	r.sockets[path] = struct{}{}
	return true
}

// Release forgets path so it can be handed out again. It does not remove the file.
func (r *SocketRegistry) Release(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sockets, path)
}

// Allocate returns the socket path for an instance whose work dir is workDir.
// The socket lives in the work dir when the path fits; otherwise a short
// name derived from id is used under the temp dir.
func (r *SocketRegistry) Allocate(workDir, id string) (string, error) {
	candidate := filepath.Join(workDir, SocketFileName)
	if len(candidate) <= maxSocketPath && r.reserve(candidate) {
		return candidate, nil
	}

	short := strings.ToLower(id)
	if len(short) > 12 {
		short = short[len(short)-12:]
	}
	for attempt := range maxSocketRetries {
		name := "rl-" + short + ".sock"
		if attempt > 0 {
			name = fmt.Sprintf("rl-%s-%d.sock", short, attempt)
		}
		fallback := filepath.Join(r.tempDir, name)
		if len(fallback) > maxSocketPath {
			return "", fmt.Errorf("%s: %w", fallback, ErrSocketPathTooLong)
		}
		if r.reserve(fallback) {
			r.log.Debug("using temp dir socket", "work_dir", workDir, "socket", fallback)
			return fallback, nil
		}
	}
	return "", fmt.Errorf("allocate socket for %s: exhausted %d attempts", workDir, maxSocketRetries)
}
