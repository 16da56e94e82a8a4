package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/samber/do"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}

	var exitErr exitCodeError
	if errors.As(err, &exitErr) {
		stop()
		os.Exit(exitErr.code)
	}
	log.Fatalf("cppide: %v", err)
}

// exitCodeError ends the process with code without printing anything more.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// app carries the state shared by every command.
type app struct {
	configPath string
	flags      Settings

	settings Settings
	logger   *slog.Logger
	injector *do.Injector
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "cppide",
		Short:         "Compile and run C and C++ programs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", os.Getenv("CPPIDE_CONFIG"), "settings file (.toml, .yaml)")
	flags.StringVar(&a.flags.Backend, "backend", "", "build backend: local or docker")
	flags.StringVar(&a.flags.Language, "language", "", "source language: c or cpp")
	flags.StringVar(&a.flags.Compiler, "compiler", "", "compiler executable")
	flags.StringVar(&a.flags.Standard, "std", "", "language standard, e.g. c++20")
	flags.StringVar(&a.flags.Flags, "flags", "", "extra compiler flags")
	flags.StringVar(&a.flags.LogLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newBuildCmd(a),
		newRunCmd(a),
		newShellCmd(a),
		newWorkerCmd(a),
		newSubmitCmd(a),
		newVersionCmd(),
	)

	return root
}

func (a *app) init(logOut io.Writer) error {
	settings, err := loadSettings(a.configPath)
	if err != nil {
		return err
	}
	settings.applyFlags(a.flags)

	a.settings = settings
	a.logger = newLogger(logOut, settings.LogLevel)
	a.injector = newInjector(settings, a.logger)
	return nil
}

func (s *Settings) applyFlags(f Settings) {
	if f.Backend != "" {
		s.Backend = f.Backend
	}
	if f.Language != "" {
		s.Language = f.Language
	}
	if f.Compiler != "" {
		s.Compiler = f.Compiler
	}
	if f.Standard != "" {
		s.Standard = f.Standard
	}
	if f.Flags != "" {
		s.Flags = f.Flags
	}
	if f.LogLevel != "" {
		s.LogLevel = f.LogLevel
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "cppide %s\n", version)
			return err
		},
	}
}
