package execution

import "errors"

var (
	ErrSetup              = errors.New("setup error")
	ErrNoCode             = errors.New("no code to compile")
	ErrCompilerNotFound   = errors.New("compiler not found")
	ErrTimeout            = errors.New("time limit exceeded")
	ErrSpawn              = errors.New("cannot start program")
	ErrPipe               = errors.New("cannot write to program input")
	ErrNotRunning         = errors.New("program is not running")
	ErrNothingToStop      = errors.New("nothing to stop")
	ErrSessionActive      = errors.New("a program is already running")
	ErrSessionStopping    = errors.New("a program is still stopping")
	ErrNoArtifact         = errors.New("no compiled artifact")
	ErrHostCommandTimeout = errors.New("command timed out")
)
