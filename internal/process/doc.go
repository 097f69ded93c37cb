// Package process starts, watches, and stops the redis-server child process.
//
// BaseProcess owns a locally spawned child: it redirects stdout/stderr into
// log files, runs the single cmd.Wait goroutine, and implements the
// SIGTERM-then-SIGKILL stop sequence. Servers spawned by another OS process
// are only known by pid; Alive, StopPID and the pid file helpers cover that
// case. WaitReady polls a readiness check with capped exponential backoff.
package process
