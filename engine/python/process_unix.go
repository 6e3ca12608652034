//go:build darwin || linux

package python

import (
	"os/exec"
	"syscall"
)

// configureProcess puts the interpreter in its own process group so a
// terminal Ctrl+C reaches the controller only, and a kill reaches any
// processes user code spawned.
func configureProcess(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// killProcess kills the interpreter's process group, falling back to the
// interpreter alone.
func killProcess(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if pid := cmd.Process.Pid; pid > 0 {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
	_ = cmd.Process.Kill()
}
