package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/giantswarm/redislite/internal/fileutil"
	"github.com/giantswarm/redislite/internal/sentinel"
)

// ErrStillRunning is returned by StopPID when the process survived SIGKILL.
const ErrStillRunning = sentinel.Error("process still running after SIGKILL")

// ErrInvalidPIDFile is returned when a pid file does not hold a positive integer.
const ErrInvalidPIDFile = sentinel.Error("invalid pid file")

// exitPollInterval is how often liveness is re-checked while waiting for a
// process this OS process cannot cmd.Wait on.
const exitPollInterval = 10 * time.Millisecond

// Alive reports whether pid names a running, non-zombie process. A process
// owned by another user (EPERM) counts as alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if err := unix.Kill(pid, 0); err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}
	return !isZombie(pid)
}

// WaitGone polls until pid is no longer alive or timeout elapses. It reports
// whether the process is gone.
func WaitGone(ctx context.Context, pid int, timeout time.Duration) bool {
	if !Alive(pid) {
		return true
	}
	err := wait.PollUntilContextTimeout(ctx, exitPollInterval, timeout, true,
		func(context.Context) (bool, error) {
			return !Alive(pid), nil
		})
	return err == nil
}

// StopPID terminates a process this OS process did not spawn: SIGTERM, a
// grace period bounded by timeout, then SIGKILL. A pid that is already gone
// is not an error.
func StopPID(ctx context.Context, pid int, timeout time.Duration) error {
	if !Alive(pid) {
		return nil
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	if WaitGone(ctx, pid, min(termGracePeriod, timeout)) {
		return nil
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	// A cancelled ctx must not leave a SIGKILLed process unverified.
	if WaitGone(context.WithoutCancel(ctx), pid, killDrainTimeout) {
		return nil
	}
	return fmt.Errorf("pid %d: %w", pid, ErrStillRunning)
}

// WritePIDFile atomically writes pid to path.
func WritePIDFile(path string, pid int) error {
	if err := fileutil.WriteFileAtomic(path, []byte(strconv.Itoa(pid)+"\n"), 0o600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// ReadPIDFile reads a pid written by WritePIDFile.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is built by the server package
	if err != nil {
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%s: %w", path, ErrInvalidPIDFile)
	}
	return pid, nil
}
