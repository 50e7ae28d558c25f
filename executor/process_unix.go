//go:build unix

package executor

import (
	"os/exec"
	"syscall"
	"time"
)

// setProcessGroup starts the child as the leader of a new process group so
// signals reach every process it spawns.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate sends SIGTERM to the process group and SIGKILL once grace has
// elapsed, unless exited is closed first.
func terminate(cmd *exec.Cmd, grace time.Duration, exited <-chan struct{}) {
	pgid := -cmd.Process.Pid
	_ = syscall.Kill(pgid, syscall.SIGTERM)

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-exited:
	case <-timer.C:
		_ = syscall.Kill(pgid, syscall.SIGKILL)
	}
}
