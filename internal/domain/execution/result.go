package execution

import (
	"context"
	"fmt"
	"time"
)

// NoCodeMessage is reported for blank buffers.
const NoCodeMessage = "No code to compile!"

// FailureKind classifies why a build did not succeed.
type FailureKind string

const (
	FailureNone             FailureKind = "none"
	FailureSetup            FailureKind = "setup_error"
	FailureCompilerNotFound FailureKind = "compiler_not_found"
	FailureTimeout          FailureKind = "timeout"
	FailureNonZeroExit      FailureKind = "non_zero_exit"
	FailureCanceled         FailureKind = "canceled"
)

// BuildResult captures the outcome of one compiler invocation.
type BuildResult struct {
	Succeeded   bool
	FailureKind FailureKind
	Stdout      string
	Stderr      string
	ExitCode    int
	// Command is the argument vector that was (or would have been) executed.
	Command  []string
	Duration time.Duration
	// Message is a human readable explanation for setup failures.
	Message string
}

// Success builds a successful result.
func Success(stdout, stderr string, command []string, took time.Duration) BuildResult {
	return BuildResult{
		Succeeded:   true,
		FailureKind: FailureNone,
		Stdout:      stdout,
		Stderr:      stderr,
		Command:     command,
		Duration:    took,
	}
}

// Failure builds a failed result of the given kind.
func Failure(kind FailureKind, message string) BuildResult {
	return BuildResult{
		FailureKind: kind,
		ExitCode:    -1,
		Message:     message,
	}
}

// CompilerNotFoundMessage reports a compiler that could not be started.
func CompilerNotFoundMessage(compiler string) string {
	return fmt.Sprintf("Compiler %s Not found!", compiler)
}

// BuildTimeoutMessage reports a compiler killed at limit.
func BuildTimeoutMessage(limit time.Duration) string {
	text := limit.String()
	if limit%time.Second == 0 {
		text = fmt.Sprintf("%d seconds", int(limit/time.Second))
	}
	return fmt.Sprintf("Compilation exceeded the time limit (%s)", text)
}

// Err maps the failure onto the package sentinels so callers can match it
// with errors.Is. A successful result yields nil.
func (r BuildResult) Err() error {
	switch r.FailureKind {
	case FailureNone, "":
		return nil
	case FailureSetup:
		if r.Message == NoCodeMessage {
			return fmt.Errorf("%w: %w", ErrSetup, ErrNoCode)
		}
		return fmt.Errorf("%w: %s", ErrSetup, r.Message)
	case FailureCompilerNotFound:
		return fmt.Errorf("%w: %s", ErrCompilerNotFound, r.Message)
	case FailureTimeout:
		return fmt.Errorf("%w: %s", ErrTimeout, r.Message)
	case FailureCanceled:
		return context.Canceled
	default:
		return fmt.Errorf("compiler exited with code %d", r.ExitCode)
	}
}
