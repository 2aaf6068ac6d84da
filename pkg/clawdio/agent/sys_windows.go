//go:build windows

package agent

import "os/exec"

// setProcessGroup is a no-op on Windows; exec.CommandContext kills the direct
// child on cancellation, which is the best we do without job objects.
func setProcessGroup(cmd *exec.Cmd) {
	_ = cmd
}
