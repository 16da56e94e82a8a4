package execution

import "time"

const (
	// DefaultBuildTimeout bounds a single compiler invocation.
	DefaultBuildTimeout = 30 * time.Second
	// DefaultCommandTimeout bounds a one-shot host command typed into the terminal.
	DefaultCommandTimeout = 10 * time.Second
)

// Limits describes the wall-clock boundaries applied to child processes.
//
// A zero value Limits falls back to the defaults for builds and host
// commands and imposes no limit on runs.
type Limits struct {
	// BuildTimeout caps how long the compiler may run.
	BuildTimeout time.Duration
	// RunTimeout caps how long a built program may run. Zero means no limit;
	// interactive sessions are normally unbounded and stopped by the user.
	RunTimeout time.Duration
	// CommandTimeout caps a host command executed from the terminal.
	CommandTimeout time.Duration
}

// Normalize clamps negative values and fills in defaults.
func (l Limits) Normalize() Limits {
	if l.BuildTimeout <= 0 {
		l.BuildTimeout = DefaultBuildTimeout
	}
	if l.RunTimeout < 0 {
		l.RunTimeout = 0
	}
	if l.CommandTimeout <= 0 {
		l.CommandTimeout = DefaultCommandTimeout
	}
	return l
}
