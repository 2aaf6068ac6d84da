//go:build !windows

package agent

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own process group and arranges for
// context cancellation to kill the whole group, so tool subprocesses spawned
// by the CLI are not orphaned on timeout.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return nil
	}
}
