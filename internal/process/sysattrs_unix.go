//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr puts the child in a new process group so the whole
// group can be signalled on kill.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
