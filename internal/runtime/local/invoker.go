// Package local runs the compiler driver directly on the host.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"cppide/internal/domain/execution"
	"cppide/internal/procutil"
	runtimex "cppide/internal/runtime"
)

// Config describes how to create a host toolchain.
type Config struct {
	Languages []execution.Language
	Limits    execution.Limits
}

// Invoker executes compiler command lines with a hard wall-clock timeout.
type Invoker struct {
	limits   execution.Limits
	lookPath func(string) (string, error)
}

// NewInvoker constructs an Invoker using the supplied limits.
func NewInvoker(limits execution.Limits) *Invoker {
	return &Invoker{
		limits:   limits.Normalize(),
		lookPath: exec.LookPath,
	}
}

// New constructs a registry with one host module per configured language.
func New(cfg Config) (*runtimex.Registry, error) {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []execution.Language{execution.LanguageCPP, execution.LanguageC}
	}

	invoker := NewInvoker(cfg.Limits)
	modules := make([]runtimex.Module, 0, len(langs))
	for _, lang := range langs {
		modules = append(modules, &module{language: lang, invoker: invoker})
	}
	return runtimex.NewRegistry(modules...)
}

// Build compiles src according to cfg. The returned result classifies every
// failure; partial output of a timed out compiler is discarded.
func (i *Invoker) Build(ctx context.Context, src execution.MaterializedSource, cfg execution.BuildConfig) execution.BuildResult {
	args := cfg.Args(src)

	compiler := strings.TrimSpace(cfg.Compiler)
	if compiler == "" {
		result := execution.Failure(execution.FailureCompilerNotFound, "no compiler configured")
		result.Command = args
		return result
	}

	path, err := i.lookPath(compiler)
	if err != nil {
		result := execution.Failure(execution.FailureCompilerNotFound, execution.CompilerNotFoundMessage(compiler))
		result.Command = args
		return result
	}

	buildCtx, cancel := context.WithTimeout(ctx, i.limits.BuildTimeout)
	defer cancel()

	cmd := procutil.CommandContext(buildCtx, path, args[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	took := time.Since(start)
	if errors.Is(err, exec.ErrWaitDelay) {
		err = nil
	}

	if err != nil && ctx.Err() != nil {
		result := execution.Failure(execution.FailureCanceled, "compilation canceled")
		result.Command = args
		result.Duration = took
		return result
	}
	if err != nil && errors.Is(buildCtx.Err(), context.DeadlineExceeded) {
		result := execution.Failure(execution.FailureTimeout, execution.BuildTimeoutMessage(i.limits.BuildTimeout))
		result.Command = args
		result.Duration = took
		return result
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			return execution.BuildResult{
				FailureKind: execution.FailureNonZeroExit,
				Stdout:      stdout.String(),
				Stderr:      stderr.String(),
				ExitCode:    exitErr.ExitCode(),
				Command:     args,
				Duration:    took,
			}
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
			result := execution.Failure(execution.FailureCompilerNotFound, execution.CompilerNotFoundMessage(compiler))
			result.Command = args
			return result
		default:
			result := execution.Failure(execution.FailureSetup, fmt.Sprintf("Compilation Error: %v", err))
			result.Command = args
			return result
		}
	}

	return execution.Success(stdout.String(), stderr.String(), args, took)
}

type module struct {
	language execution.Language
	invoker  *Invoker
}

func (m *module) Language() execution.Language {
	return m.language
}

func (m *module) Build(ctx context.Context, src execution.MaterializedSource, cfg execution.BuildConfig) execution.BuildResult {
	return m.invoker.Build(ctx, src, cfg)
}

func (m *module) Close() error {
	return nil
}
