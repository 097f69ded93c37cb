package fileutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/giantswarm/redislite/internal/sentinel"
)

// ErrEmptyDst is returned when a destination path is empty.
const ErrEmptyDst = sentinel.Error("destination path must not be empty")

// WriteFileAtomic writes data to dst with the given mode, creating parent
// directories as needed. The data goes to a temp file in the same directory
// which is synced and then renamed over dst, so concurrent readers (another
// process probing a pid file, the server reading its config) never observe a
// partially written file.
func WriteFileAtomic(dst string, data []byte, mode os.FileMode) (retErr error) {
	if dst == "" {
		return ErrEmptyDst
	}
	if err := EnsureDirForFile(dst); err != nil {
		return fmt.Errorf("prepare destination: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-"+filepath.Base(dst)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("rename temp file to destination: %w", err)
	}
	return nil
}
