//go:build unix

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr starts the server in its own session. A shared server
// must outlive the process that spawned it, and terminal signals delivered to
// the spawner's process group must not reach it.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}
