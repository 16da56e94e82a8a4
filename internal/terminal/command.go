// Package terminal executes lines typed into the terminal pane while no
// program is running.
package terminal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"cppide/internal/domain/execution"
	"cppide/internal/procutil"
)

// Action tells the caller how to present a Result.
type Action string

const (
	ActionNone      Action = "none"
	ActionClear     Action = "clear"
	ActionHelp      Action = "help"
	ActionChangeDir Action = "cd"
	ActionOutput    Action = "output"
	ActionTimedOut  Action = "timed_out"
	ActionFailed    Action = "failed"
)

// HelpText is printed for the "help" command.
const HelpText = `Available commands:

- clear/cls: Clear the terminal
- help: Show this message
- cd <directory>: Change directory
- Other system commands`

// Result is the outcome of one terminal line.
type Result struct {
	Action   Action
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// Executor runs one-shot host commands with a short timeout.
type Executor struct {
	timeout time.Duration
	shell   []string

	mu  sync.Mutex
	dir string
}

// New constructs an Executor rooted at dir. An empty dir uses the process
// working directory and a non-positive timeout uses the default.
func New(dir string, timeout time.Duration) *Executor {
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			dir = wd
		}
	}
	if timeout <= 0 {
		timeout = execution.DefaultCommandTimeout
	}
	return &Executor{
		timeout: timeout,
		shell:   hostShell(),
		dir:     dir,
	}
}

// Dir returns the directory commands run in.
func (e *Executor) Dir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir
}

// Execute interprets line. Reserved words are handled locally; anything else
// runs through the host shell.
func (e *Executor) Execute(ctx context.Context, line string) Result {
	command := strings.TrimSpace(line)
	if command == "" {
		return Result{Action: ActionNone}
	}

	switch strings.ToLower(command) {
	case "clear", "cls":
		return Result{Action: ActionClear}
	case "help":
		return Result{Action: ActionHelp, Stdout: HelpText}
	}

	if fields := strings.Fields(command); strings.EqualFold(fields[0], "cd") {
		return e.changeDir(strings.TrimSpace(command[len(fields[0]):]))
	}

	return e.run(ctx, command)
}

func (e *Executor) run(ctx context.Context, command string) Result {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := append(append([]string{}, e.shell[1:]...), command)
	cmd := procutil.CommandContext(runCtx, e.shell[0], args...)
	cmd.Dir = e.Dir()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(err, exec.ErrWaitDelay) {
		err = nil
	}
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return Result{Action: ActionTimedOut, ExitCode: -1, Err: execution.ErrHostCommandTimeout}
	}

	result := Result{
		Action: ActionOutput,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Result{Action: ActionFailed, ExitCode: -1, Err: err}
		}
		result.ExitCode = exitErr.ExitCode()
	}
	return result
}

func (e *Executor) changeDir(target string) Result {
	if target == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Result{Action: ActionFailed, Err: fmt.Errorf("cd: %w", err)}
		}
		target = home
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !filepath.IsAbs(target) {
		target = filepath.Join(e.dir, target)
	}
	info, err := os.Stat(target)
	if err != nil {
		return Result{Action: ActionFailed, Err: fmt.Errorf("cd: %w", err)}
	}
	if !info.IsDir() {
		return Result{Action: ActionFailed, Err: fmt.Errorf("cd: %s is not a directory", target)}
	}

	e.dir = filepath.Clean(target)
	return Result{Action: ActionChangeDir, Stdout: e.dir}
}

func hostShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C"}
	}
	return []string{"/bin/sh", "-c"}
}
