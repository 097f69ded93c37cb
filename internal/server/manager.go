package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/giantswarm/redislite/internal/fileutil"
	"github.com/giantswarm/redislite/internal/netutil"
	"github.com/giantswarm/redislite/internal/process"
	"github.com/giantswarm/redislite/internal/sentinel"
	"github.com/giantswarm/redislite/internal/serverconf"
)

// ErrStartupTimeout is returned when an instance did not answer PING within
// the start timeout. The partially started process has been killed and its
// artifacts removed.
const ErrStartupTimeout = sentinel.Error("server startup timed out")

// ErrProcessCrashed is returned when the server process exited before it
// became ready.
const ErrProcessCrashed = sentinel.Error("server process crashed")

// processName names the child in log files and messages.
const processName = "redis-server"

// File names inside an instance work dir.
const (
	configFileName = "redis.conf"
	pidFileName    = "redis.pid"
	logFileName    = "redis.log"
)

// stderrTailBytes is how much of the child's stderr is quoted in start errors.
const stderrTailBytes = 512

// Manager starts and stops server instances.
type Manager struct {
	cfg     Config
	log     *slog.Logger
	sockets *netutil.SocketRegistry

	mu    sync.Mutex
	owned map[string]*process.BaseProcess // by instance ID
}

// New validates cfg and returns a Manager.
func New(cfg Config) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:     cfg,
		log:     cfg.Logger,
		sockets: netutil.NewSocketRegistry(cfg.SocketDir, cfg.Logger),
		owned:   make(map[string]*process.BaseProcess),
	}, nil
}

// Start spawns a server for target and waits until it answers PING.
// overrides are merged over the default configuration. On failure nothing
// is left behind: the process is killed and the work dir removed.
func (m *Manager) Start(ctx context.Context, target string, overrides map[string]string) (*Instance, error) {
	id := ulid.Make().String()
	workDir := filepath.Join(m.cfg.BaseDir, id)
	inst := &Instance{
		ID:         id,
		Target:     target,
		WorkDir:    workDir,
		ConfigPath: filepath.Join(workDir, configFileName),
		PIDPath:    filepath.Join(workDir, pidFileName),
	}
	inst.setState(StateStarting)
	log := m.log.With("instance", id, "target", target)

	if err := fileutil.EnsurePrivateDir(workDir); err != nil {
		inst.setState(StateFailed)
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	socket, err := m.sockets.Allocate(workDir, id)
	if err != nil {
		m.removeArtifacts(inst)
		inst.setState(StateFailed)
		return nil, fmt.Errorf("allocate endpoint: %w", err)
	}
	inst.Endpoint = socket

	params := serverconf.Params{
		Target:     target,
		Socket:     socket,
		LogFile:    filepath.Join(workDir, logFileName),
		ModulePath: m.cfg.ModulePath,
	}
	if err := serverconf.Write(inst.ConfigPath, params, overrides); err != nil {
		m.removeArtifacts(inst)
		inst.setState(StateFailed)
		return nil, err
	}

	proc := process.NewBaseProcess(processName, log, m.cfg.StopTimeout)
	cmd := exec.Command(m.cfg.Binary, inst.ConfigPath) //nolint:gosec // G204: binary is configured by the caller
	if err := proc.SetupAndStart(cmd, workDir); err != nil {
		m.removeArtifacts(inst)
		inst.setState(StateFailed)
		return nil, fmt.Errorf("spawn %s: %w", processName, err)
	}
	inst.PID = proc.PID()
	inst.StartedAt = time.Now()

	if err := process.WritePIDFile(inst.PIDPath, inst.PID); err != nil {
		m.abort(inst, proc)
		return nil, err
	}

	log.Debug("waiting for server", "pid", inst.PID, "endpoint", socket)
	if err := m.waitReady(ctx, inst, proc, log); err != nil {
		stderr := tail(proc.LogFiles().StderrPath(), stderrTailBytes)
		m.abort(inst, proc)
		return nil, startError(err, stderr)
	}

	m.mu.Lock()
	m.owned[id] = proc
	m.mu.Unlock()

	inst.setState(StateReady)
	log.Info("server ready", "pid", inst.PID, "endpoint", socket,
		"elapsed", time.Since(inst.StartedAt).Round(time.Millisecond))
	return inst, nil
}

func (m *Manager) waitReady(ctx context.Context, inst *Instance, proc *process.BaseProcess, log *slog.Logger) error {
	return process.WaitReady(ctx, process.WaitReadyConfig{
		InitialInterval: m.cfg.InitialBackoff,
		MaxInterval:     m.cfg.MaxBackoff,
		Timeout:         m.cfg.StartTimeout,
		Name:            processName,
		Endpoint:        inst.Endpoint,
		Logger:          log,
		ProcessExited:   proc.Exited(),
	}, func(checkCtx context.Context, attempt int) (bool, error) {
		pctx, cancel := context.WithTimeout(checkCtx, m.cfg.ProbeTimeout)
		defer cancel()
		if err := netutil.Ping(pctx, inst.Endpoint); err != nil {
			log.Debug("server not ready", "attempt", attempt, "error", err)
			return false, nil
		}
		return true, nil
	})
}

// startError maps a readiness failure onto the package's error kinds.
func startError(err error, stderr string) error {
	detail := ""
	if stderr != "" {
		detail = ": " + stderr
	}
	switch {
	case errors.Is(err, process.ErrProcessExited):
		return fmt.Errorf("%w%s: %w", ErrProcessCrashed, detail, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w%s: %w", ErrStartupTimeout, detail, err)
	default:
		return fmt.Errorf("start %s: %w", processName, err)
	}
}

// abort kills a process that never became ready and removes its artifacts.
func (m *Manager) abort(inst *Instance, proc *process.BaseProcess) {
	if err := process.StopCloseAndNil(&proc, m.cfg.StopTimeout); err != nil {
		m.log.Debug("stop failed start", "instance", inst.ID, "error", err)
	}
	m.removeArtifacts(inst)
	inst.setState(StateFailed)
}

// Probe reports whether inst's process is alive and answers PING within the
// probe timeout.
func (m *Manager) Probe(ctx context.Context, inst *Instance) bool {
	if inst == nil || !process.Alive(inst.PID) {
		return false
	}
	if proc := m.ownedProcess(inst.ID); proc != nil && proc.HasExited() {
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	return netutil.Ping(pctx, inst.Endpoint) == nil
}

// Stop shuts inst down: SHUTDOWN over the endpoint, a bounded wait, then
// SIGTERM and SIGKILL. Artifacts are removed afterwards. Stopping an
// instance whose process is already gone only removes artifacts.
func (m *Manager) Stop(ctx context.Context, inst *Instance) error {
	return m.terminate(ctx, inst, true)
}

// Reap cleans up a stale instance without attempting a graceful shutdown.
// The recorded pid is only signalled if it still runs this instance's config.
func (m *Manager) Reap(ctx context.Context, inst *Instance) error {
	return m.terminate(ctx, inst, false)
}

func (m *Manager) terminate(ctx context.Context, inst *Instance, graceful bool) error {
	if inst == nil {
		return nil
	}
	switch inst.State() {
	case StateStopped, StateFailed:
		return nil
	}
	inst.setState(StateStopping)
	log := m.log.With("instance", inst.ID, "target", inst.Target)

	var err error
	if proc := m.takeOwned(inst.ID); proc != nil {
		err = m.stopOwned(ctx, inst, proc, graceful, log)
	} else {
		err = m.stopForeign(ctx, inst, graceful, log)
	}

	m.removeArtifacts(inst)
	if err != nil {
		inst.setState(StateFailed)
		return fmt.Errorf("stop instance %s: %w", inst.ID, err)
	}
	inst.setState(StateStopped)
	log.Info("server stopped", "pid", inst.PID, "graceful", graceful)
	return nil
}

func (m *Manager) stopOwned(ctx context.Context, inst *Instance, proc *process.BaseProcess, graceful bool, log *slog.Logger) error {
	exited := proc.Exited()
	if graceful && !proc.HasExited() {
		sctx, cancel := context.WithTimeout(ctx, m.cfg.StopTimeout)
		if err := netutil.Shutdown(sctx, inst.Endpoint); err != nil {
			log.Debug("graceful shutdown failed", "error", err)
		}
		select {
		case <-exited:
		case <-sctx.Done():
			log.Warn("server did not exit after SHUTDOWN; terminating", "pid", inst.PID)
		}
		cancel()
	}

	if err := process.StopCloseAndNil(&proc, m.cfg.StopTimeout); err != nil {
		select {
		case <-exited:
			// Gone; the error only describes how it exited.
			log.Debug("server exit status", "error", err)
		default:
			return err
		}
	}
	return nil
}

func (m *Manager) stopForeign(ctx context.Context, inst *Instance, graceful bool, log *slog.Logger) error {
	if !process.Alive(inst.PID) {
		return nil
	}
	if !process.CmdlineContains(inst.PID, inst.ConfigPath) {
		log.Warn("recorded pid belongs to another process; not signalling it", "pid", inst.PID)
		return nil
	}
	if pid, err := process.ReadPIDFile(inst.PIDPath); err == nil && pid != inst.PID {
		log.Warn("pid file names another process; not signalling it",
			"pid", inst.PID, "pid_file", pid)
		return nil
	}
	if graceful {
		sctx, cancel := context.WithTimeout(ctx, m.cfg.StopTimeout)
		if err := netutil.Shutdown(sctx, inst.Endpoint); err != nil {
			log.Debug("graceful shutdown failed", "error", err)
		}
		cancel()
		if process.WaitGone(ctx, inst.PID, m.cfg.StopTimeout) {
			return nil
		}
		log.Warn("server did not exit after SHUTDOWN; terminating", "pid", inst.PID)
	}
	return process.StopPID(ctx, inst.PID, m.cfg.StopTimeout)
}

// removeArtifacts deletes the socket, pid file, config and work dir.
// Failures are logged; a leftover file does not make a stop fail.
func (m *Manager) removeArtifacts(inst *Instance) {
	for _, p := range []string{inst.Endpoint, inst.PIDPath, inst.ConfigPath} {
		if err := fileutil.RemoveIfExists(p); err != nil {
			m.log.Warn("remove instance artifact", "instance", inst.ID, "error", err)
		}
	}
	if inst.WorkDir != "" {
		if err := os.RemoveAll(inst.WorkDir); err != nil {
			m.log.Warn("remove work dir", "instance", inst.ID, "error", err)
		}
	}
	if inst.Endpoint != "" {
		m.sockets.Release(inst.Endpoint)
	}
}

func (m *Manager) ownedProcess(id string) *process.BaseProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owned[id]
}

func (m *Manager) takeOwned(id string) *process.BaseProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	proc := m.owned[id]
	delete(m.owned, id)
	return proc
}

// Close detaches from every child still tracked. Shared servers keep running
// for the other processes attached to them.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, proc := range m.owned {
		proc.Detach()
		delete(m.owned, id)
	}
}

// tail returns up to n trailing bytes of the file at path, trimmed.
func tail(path string, n int64) string {
	f, err := os.Open(path) //nolint:gosec // G304: path is inside the instance work dir
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	if info, err := f.Stat(); err == nil && info.Size() > n {
		if _, err := f.Seek(-n, io.SeekEnd); err != nil {
			return ""
		}
	}
	data, err := io.ReadAll(io.LimitReader(f, n))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
