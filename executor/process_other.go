//go:build !unix

package executor

import (
	"os/exec"
	"time"
)

func setProcessGroup(*exec.Cmd) {}

// terminate kills the process directly; process groups are unix-only.
func terminate(cmd *exec.Cmd, _ time.Duration, _ <-chan struct{}) {
	_ = cmd.Process.Kill()
}
