package process

import (
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/giantswarm/redislite/internal/sentinel"
)

// ErrAlreadyStarted is returned when SetupAndStart is called on a process that
// is already running.
const ErrAlreadyStarted = sentinel.Error("process already started")

// ErrNilCmd is returned when SetupAndStart is called with a nil *exec.Cmd.
const ErrNilCmd = sentinel.Error("cmd must not be nil")

// ErrEmptyCmdPath is returned when SetupAndStart is called with an empty cmd.Path.
const ErrEmptyCmdPath = sentinel.Error("cmd.Path must not be empty")

// ErrEmptyWorkDir is returned when SetupAndStart is called with an empty work directory.
const ErrEmptyWorkDir = sentinel.Error("work directory must not be empty")

// BaseProcess tracks one child process started by this OS process.
//
// BaseProcess is not safe for concurrent use. The server package serializes
// access per instance.
type BaseProcess struct {
	cmd         *exec.Cmd
	waitDone    <-chan error    // receives the cmd.Wait result exactly once
	exited      <-chan struct{} // closed on exit; any number of readers
	logFiles    LogFiles
	name        string
	log         *slog.Logger
	stopTimeout time.Duration // used by Close when Stop was skipped
}

// NewBaseProcess creates a BaseProcess. If logger is nil, slog.Default() is
// used; a zero stopTimeout means DefaultStopTimeout. Panics if name is empty.
func NewBaseProcess(name string, logger *slog.Logger, stopTimeout time.Duration) *BaseProcess {
	if name == "" {
		panic("redislite: process name must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BaseProcess{name: name, log: logger, stopTimeout: stopTimeout}
}

// Stop terminates the process, waiting at most timeout before SIGKILL.
// It returns nil when the process was never started or is already stopped.
func (b *BaseProcess) Stop(timeout time.Duration) error {
	if b.cmd == nil || b.cmd.Process == nil {
		b.reset()
		return nil
	}
	pid := b.cmd.Process.Pid
	exitedBefore := b.HasExited()
	err := stopWithDone(b.cmd, b.waitDone, timeout, b.name)
	switch {
	case err == nil:
	case exitedBefore:
		// Already reaped; err only reports how it exited.
		b.log.Debug("process had already exited", "process", b.name, "pid", pid, "error", err)
	default:
		b.log.Warn("process stop failed; process may be orphaned",
			"process", b.name, "pid", pid, "error", err)
	}
	b.reset()
	return err
}

func (b *BaseProcess) reset() {
	b.cmd = nil
	b.waitDone = nil
	b.exited = nil
}

// Close closes the log file handles, stopping the process first if Stop was
// never called.
func (b *BaseProcess) Close() {
	if b.cmd != nil {
		b.log.Warn("process closed while running; stopping it", "process", b.name)
		timeout := b.stopTimeout
		if timeout <= 0 {
			timeout = DefaultStopTimeout
		}
		if err := b.Stop(timeout); err != nil {
			b.log.Warn("auto-stop during Close failed", "process", b.name, "error", err)
		}
	}
	b.logFiles.Close()
}

// Detach closes this process's log file handles and forgets the child
// without signalling it. The child keeps running and keeps its own copies of
// the log descriptors; the wait goroutine still reaps it on exit.
func (b *BaseProcess) Detach() {
	b.reset()
	b.logFiles.Close()
}

// Exited returns a channel closed when the process exits, or nil if the
// process is not running.
func (b *BaseProcess) Exited() <-chan struct{} {
	return b.exited
}

// HasExited reports whether a started process has already exited.
func (b *BaseProcess) HasExited() bool {
	if b.exited == nil {
		return true
	}
	select {
	case <-b.exited:
		return true
	default:
		return false
	}
}

// PID returns the OS pid of the running process, or 0.
func (b *BaseProcess) PID() int {
	if b.cmd == nil || b.cmd.Process == nil {
		return 0
	}
	return b.cmd.Process.Pid
}

// IsStarted reports whether the process has been started and not yet stopped.
func (b *BaseProcess) IsStarted() bool {
	return b.cmd != nil
}

// LogFiles returns the stdout/stderr log files of the last start.
func (b *BaseProcess) LogFiles() LogFiles {
	return b.logFiles
}

// SetupAndStart creates the log files in workDir, starts cmd detached into
// its own session, and launches the single goroutine that calls cmd.Wait.
func (b *BaseProcess) SetupAndStart(cmd *exec.Cmd, workDir string) error {
	if cmd == nil {
		return ErrNilCmd
	}
	if cmd.Path == "" {
		return ErrEmptyCmdPath
	}
	if workDir == "" {
		return ErrEmptyWorkDir
	}
	if b.cmd != nil {
		return ErrAlreadyStarted
	}

	cmd.Dir = workDir
	configureSysProcAttr(cmd)

	logFiles, err := StartCmd(cmd, workDir, b.name)
	if err != nil {
		return fmt.Errorf("start command: %w", err)
	}
	b.cmd = cmd
	b.logFiles = logFiles

	// cmd.Wait must run exactly once. done carries its result to Stop;
	// exited is the broadcast used by readiness polling.
	done := make(chan error, 1)
	exited := make(chan struct{})
	go func() {
		done <- cmd.Wait()
		close(exited)
	}()
	b.waitDone = done
	b.exited = exited

	return nil
}
