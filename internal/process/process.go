package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// LogFiles holds the stdout/stderr files a child process writes to.
type LogFiles struct {
	stdoutFile *os.File
	stderrFile *os.File
	dir        string
	stdoutName string // e.g. "redis-server-stdout.log"
	stderrName string
}

func (l *LogFiles) create() error {
	stdoutFile, err := os.Create(l.StdoutPath())
	if err != nil {
		return fmt.Errorf("create stdout log: %w", err)
	}
	stderrFile, err := os.Create(l.StderrPath())
	if err != nil {
		_ = stdoutFile.Close()
		return fmt.Errorf("create stderr log: %w", err)
	}
	l.stdoutFile = stdoutFile
	l.stderrFile = stderrFile
	return nil
}

// Close closes both log file handles. Safe to call more than once.
func (l *LogFiles) Close() {
	if l.stdoutFile != nil {
		_ = l.stdoutFile.Close()
		l.stdoutFile = nil
	}
	if l.stderrFile != nil {
		_ = l.stderrFile.Close()
		l.stderrFile = nil
	}
}

// StdoutPath returns the path of the stdout log file.
func (l LogFiles) StdoutPath() string {
	return filepath.Join(l.dir, l.stdoutName)
}

// StderrPath returns the path of the stderr log file.
func (l LogFiles) StderrPath() string {
	return filepath.Join(l.dir, l.stderrName)
}

// NewLogFiles creates <name>-stdout.log and <name>-stderr.log in dir.
func NewLogFiles(dir, processName string) (LogFiles, error) {
	l := LogFiles{
		dir:        dir,
		stdoutName: processName + "-stdout.log",
		stderrName: processName + "-stderr.log",
	}
	if err := l.create(); err != nil {
		return LogFiles{}, err
	}
	return l, nil
}

// DefaultStopTimeout bounds a stop when the caller did not configure one.
const DefaultStopTimeout = 10 * time.Second

// termGracePeriod is the longest wait between SIGTERM and SIGKILL. It is
// clamped to the overall stop timeout.
const termGracePeriod = 5 * time.Second

// killDrainTimeout bounds the wait for cmd.Wait after SIGKILL.
const killDrainTimeout = 10 * time.Second

// drainDone waits at most timeout for the cmd.Wait result. It reports false
// if the timeout elapsed first.
func drainDone(done <-chan error, timeout time.Duration) (bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case err := <-done:
		return true, err
	case <-t.C:
		return false, nil
	}
}

// stopWithDone sends SIGTERM, schedules SIGKILL after the grace period, and
// waits for the existing cmd.Wait goroutine to report through done. It never
// calls cmd.Wait itself. Worst-case blocking is timeout + killDrainTimeout.
func stopWithDone(cmd *exec.Cmd, done <-chan error, timeout time.Duration, name string) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if done == nil {
		return fmt.Errorf("%s: done channel must not be nil", name)
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already exited (for example after SHUTDOWN). Collect the status.
		ok, waitErr := drainDone(done, killDrainTimeout)
		if !ok {
			return fmt.Errorf("%s: timed out draining process after signal failure", name)
		}
		return expectSignalExit(waitErr, name)
	}

	grace := min(termGracePeriod, timeout)
	killTimer := time.AfterFunc(grace, func() {
		_ = cmd.Process.Kill()
	})
	defer killTimer.Stop()

	totalTimer := time.NewTimer(timeout)
	defer totalTimer.Stop()

	select {
	case err := <-done:
		return expectSignalExit(err, name)
	case <-totalTimer.C:
		ok, waitErr := drainDone(done, killDrainTimeout)
		if !ok {
			return fmt.Errorf("%s: timed out waiting for process to exit after SIGKILL", name)
		}
		if err := expectSignalExit(waitErr, name); err != nil {
			return fmt.Errorf("%s stop timeout: %w", name, err)
		}
		return nil
	}
}

// expectSignalExit treats a cmd.Wait error caused by SIGTERM or SIGKILL as
// a clean stop.
func expectSignalExit(err error, name string) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			sig := status.Signal()
			if sig == syscall.SIGTERM || sig == syscall.SIGKILL {
				return nil
			}
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}

// StartCmd creates log files in dir, wires them to cmd, and starts it.
// On failure the log files are closed.
func StartCmd(cmd *exec.Cmd, dir, processName string) (LogFiles, error) {
	logFiles, err := NewLogFiles(dir, processName)
	if err != nil {
		return LogFiles{}, fmt.Errorf("create %s logs: %w", processName, err)
	}

	cmd.Stdout = logFiles.stdoutFile
	cmd.Stderr = logFiles.stderrFile

	if err := cmd.Start(); err != nil {
		logFiles.Close()
		return LogFiles{}, fmt.Errorf("start %s process: %w", processName, err)
	}

	return logFiles, nil
}
