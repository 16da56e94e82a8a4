//go:build windows

package procutil

import (
	"os"
	"os/exec"
	"syscall"
)

// Prepare starts the command in a new process group.
func Prepare(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// Terminate stops the process. Windows has no SIGTERM for console programs
// without a console attached, so this is the same as Kill.
func Terminate(cmd *exec.Cmd) error {
	return Kill(cmd)
}

// Kill force-kills the process.
func Kill(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return os.ErrProcessDone
	}
	return cmd.Process.Kill()
}

// ExitCode returns the exit status of a finished process.
func ExitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	return state.ExitCode()
}
