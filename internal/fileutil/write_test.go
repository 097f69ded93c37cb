package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		existing string
		data     string
		mode     os.FileMode
	}{
		"new file":              {data: "port 0\n", mode: 0o600},
		"overwrites existing":   {existing: "old contents", data: "new", mode: 0o644},
		"empty data":            {data: "", mode: 0o600},
		"nested missing parent": {data: "x", mode: 0o600},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dst := filepath.Join(t.TempDir(), "a", "b", "redis.conf")
			if tc.existing != "" {
				if err := EnsureDirForFile(dst); err != nil {
					t.Fatal(err)
				}
				if err := os.WriteFile(dst, []byte(tc.existing), 0o644); err != nil {
					t.Fatal(err)
				}
			}

			if err := WriteFileAtomic(dst, []byte(tc.data), tc.mode); err != nil {
				t.Fatalf("WriteFileAtomic() error: %v", err)
			}

			got, err := os.ReadFile(dst) //nolint:gosec // G304: path is test-controlled
			if err != nil {
				t.Fatalf("read destination: %v", err)
			}
			if string(got) != tc.data {
				t.Errorf("content = %q, want %q", got, tc.data)
			}

			info, err := os.Stat(dst)
			if err != nil {
				t.Fatal(err)
			}
			if info.Mode().Perm() != tc.mode {
				t.Errorf("mode = %v, want %v", info.Mode().Perm(), tc.mode)
			}

			entries, err := os.ReadDir(filepath.Dir(dst))
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 1 {
				t.Errorf("expected only the destination file, found %d entries", len(entries))
			}
		})
	}
}

func TestWriteFileAtomic_EmptyDestination(t *testing.T) {
	t.Parallel()

	if err := WriteFileAtomic("", []byte("x"), 0o600); !errors.Is(err, ErrEmptyDst) {
		t.Errorf("error = %v, want %v", err, ErrEmptyDst)
	}
}

func TestRemoveIfExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "redis.pid")
	if err := os.WriteFile(path, []byte("1"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := RemoveIfExists(path); err != nil {
		t.Fatalf("RemoveIfExists() error: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file still present after removal: %v", err)
	}
	if err := RemoveIfExists(path); err != nil {
		t.Errorf("second RemoveIfExists() error: %v", err)
	}
	if err := RemoveIfExists(""); err != nil {
		t.Errorf("RemoveIfExists(\"\") error: %v", err)
	}
}
