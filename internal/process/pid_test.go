package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

// startReaped starts cmd and reaps it in the background so that its pid
// disappears once it exits, the way a server spawned by another process does.
func startReaped(t *testing.T, cmd *exec.Cmd) int {
	t.Helper()
	if err := cmd.Start(); err != nil {
		t.Fatalf("start %s: %v", cmd.Path, err)
	}
	go func() { _ = cmd.Wait() }()
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	return cmd.Process.Pid
}

func TestAlive(t *testing.T) {
	t.Parallel()

	if !Alive(os.Getpid()) {
		t.Error("own pid should be alive")
	}
	for _, pid := range []int{0, -1} {
		if Alive(pid) {
			t.Errorf("Alive(%d) = true", pid)
		}
	}
}

func TestStopPID(t *testing.T) {
	t.Parallel()

	t.Run("terminates with SIGTERM", func(t *testing.T) {
		t.Parallel()
		pid := startReaped(t, exec.Command("sleep", "60"))
		if err := StopPID(context.Background(), pid, 2*time.Second); err != nil {
			t.Fatalf("StopPID() error: %v", err)
		}
		if Alive(pid) {
			t.Errorf("pid %d alive after StopPID", pid)
		}
	})

	t.Run("escalates to SIGKILL", func(t *testing.T) {
		t.Parallel()
		pid := startReaped(t, exec.Command("sh", "-c", "trap '' TERM; while :; do sleep 0.05; done"))
		start := time.Now()
		if err := StopPID(context.Background(), pid, 200*time.Millisecond); err != nil {
			t.Fatalf("StopPID() error: %v", err)
		}
		if Alive(pid) {
			t.Errorf("pid %d alive after StopPID", pid)
		}
		if elapsed := time.Since(start); elapsed > 5*time.Second {
			t.Errorf("StopPID took %v", elapsed)
		}
	})

	t.Run("gone pid is not an error", func(t *testing.T) {
		t.Parallel()
		cmd := exec.Command("true")
		if err := cmd.Run(); err != nil {
			t.Fatal(err)
		}
		if err := StopPID(context.Background(), cmd.Process.Pid, time.Second); err != nil {
			t.Errorf("StopPID() on exited pid error: %v", err)
		}
	})
}

func TestCmdlineContains(t *testing.T) {
	t.Parallel()

	marker := filepath.Join(t.TempDir(), "redis.conf")
	pid := startReaped(t, exec.Command("sh", "-c", "while :; do sleep 0.05; done", marker))
	if !CmdlineContains(pid, marker) {
		t.Errorf("CmdlineContains(%d, %q) = false", pid, marker)
	}
}

func TestPIDFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "redis.pid")
	if err := WritePIDFile(path, 4242); err != nil {
		t.Fatalf("WritePIDFile() error: %v", err)
	}
	got, err := ReadPIDFile(path)
	if err != nil {
		t.Fatalf("ReadPIDFile() error: %v", err)
	}
	if got != 4242 {
		t.Errorf("ReadPIDFile() = %d, want 4242", got)
	}

	bad := filepath.Join(dir, "bad.pid")
	if err := os.WriteFile(bad, []byte("not-a-pid"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPIDFile(bad); !errors.Is(err, ErrInvalidPIDFile) {
		t.Errorf("ReadPIDFile(bad) error = %v, want %v", err, ErrInvalidPIDFile)
	}
}
