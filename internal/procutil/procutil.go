// Package procutil places child processes in their own process group so a
// compiler or program can be stopped together with anything it spawned.
package procutil

import (
	"context"
	"os/exec"
	"time"
)

// WaitDelay bounds how long Wait keeps draining pipes after the process
// has been killed, in case a grandchild still holds them open.
const WaitDelay = 2 * time.Second

// Command builds an exec.Cmd running in its own process group.
func Command(name string, args ...string) *exec.Cmd {
	cmd := exec.Command(name, args...)
	Prepare(cmd)
	return cmd
}

// CommandContext builds an exec.Cmd whose whole process group is killed
// when ctx is done.
func CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	Prepare(cmd)
	cmd.Cancel = func() error { return Kill(cmd) }
	cmd.WaitDelay = WaitDelay
	return cmd
}
