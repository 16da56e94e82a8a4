// Package ide implements the interactive controller behind the editor: it
// reacts to user actions by building, running and stopping programs on
// background goroutines and reports every visible effect as an Event.
package ide

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cppide/internal/app/build"
	"cppide/internal/domain/execution"
	"cppide/internal/ports"
	"cppide/internal/supervisor"
	"cppide/internal/terminal"
)

const (
	defaultEventBuffer = 256
	publishTimeout     = 5 * time.Second
	separator          = "__________________________________________________"
)

// Config groups the controller's collaborators.
type Config struct {
	Builds     *build.Service
	Supervisor *supervisor.Supervisor
	Terminal   *terminal.Executor
	// Publisher receives build and run reports. Optional.
	Publisher ports.ReportPublisher
	Logger    *slog.Logger

	Language    execution.Language
	BuildConfig execution.BuildConfig
	EventBuffer int
}

// Controller owns the current build and the running program. Every entry
// point returns immediately; results arrive on Events.
type Controller struct {
	builds     *build.Service
	supervisor *supervisor.Supervisor
	terminal   *terminal.Executor
	publisher  ports.ReportPublisher
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	events chan execution.Event
	stop   chan struct{}
	emitMu sync.RWMutex
	closed bool

	// buildMu serialises compile and clean.
	buildMu sync.Mutex

	mu       sync.Mutex
	lang     execution.Language
	cfg      execution.BuildConfig
	current  *execution.MaterializedSource
	session  *supervisor.Session
	inputs   chan struct{}
	stopping bool

	shutdownOnce sync.Once
	shutdownErr  error
}

// New constructs a Controller.
func New(cfg Config) (*Controller, error) {
	if cfg.Builds == nil {
		return nil, errors.New("build service is required")
	}
	if cfg.Supervisor == nil {
		return nil, errors.New("supervisor is required")
	}
	if cfg.Terminal == nil {
		return nil, errors.New("terminal executor is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	lang := cfg.Language
	if lang == "" {
		lang = execution.LanguageCPP
	}
	buildCfg := cfg.BuildConfig
	if buildCfg.Compiler == "" {
		buildCfg = execution.DefaultBuildConfig(lang).WithOverrides(buildCfg)
	}
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		builds:     cfg.Builds,
		supervisor: cfg.Supervisor,
		terminal:   cfg.Terminal,
		publisher:  cfg.Publisher,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan execution.Event, buffer),
		stop:       make(chan struct{}),
		lang:       lang,
		cfg:        buildCfg,
	}, nil
}

// Events delivers presentation effects in the order each operation produced
// them. The consumer must keep draining it until it is closed by Shutdown.
func (c *Controller) Events() <-chan execution.Event {
	return c.events
}

// SetConfig replaces the compiler settings used by later compiles.
func (c *Controller) SetConfig(cfg execution.BuildConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

// SetLanguage selects the language of later compiles.
func (c *Controller) SetLanguage(lang execution.Language) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lang = lang
}

// Config returns the compiler settings in effect.
func (c *Controller) Config() execution.BuildConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Artifact returns the current build, or nil when there is none.
func (c *Controller) Artifact() *execution.MaterializedSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	cur := *c.current
	return &cur
}

// Compile builds text in the background.
func (c *Controller) Compile(text string) {
	c.spawn(func(ctx context.Context) {
		c.compile(ctx, text)
	})
}

// CompileAndRun builds text and starts the program once the build succeeded.
func (c *Controller) CompileAndRun(text string) {
	c.spawn(func(ctx context.Context) {
		c.emit(execution.StatusEvent("Compiling and Running..."))
		if c.compile(ctx, text) {
			c.run(ctx)
		}
	})
}

// Run starts the current artifact.
func (c *Controller) Run() {
	c.spawn(c.run)
}

// Stop terminates the running program.
func (c *Controller) Stop() {
	c.spawn(func(context.Context) {
		err := c.supervisor.Terminate()
		switch {
		case errors.Is(err, execution.ErrNothingToStop):
			c.emit(execution.StatusEvent("No running program"))
		case err != nil:
			c.emit(execution.TerminalEvent(fmt.Sprintf("Error stopping the program: %v", err)))
		default:
			c.emit(execution.TerminalEvent("Program stopped by the user"))
			c.emit(execution.StatusEvent("Program stopped"))
		}
	})
}

// Clean deletes the files of the current build.
func (c *Controller) Clean() {
	c.spawn(func(context.Context) {
		c.buildMu.Lock()
		defer c.buildMu.Unlock()

		removed, err := c.discard()
		c.emit(execution.Event{Kind: execution.EventClearOutput})
		if err != nil {
			c.emit(execution.OutputEvent(fmt.Sprintf("Error during cleaning: %v", err)))
			return
		}
		c.emit(execution.OutputEvent(fmt.Sprintf("Cleared %d temporary files", removed)))
		c.emit(execution.StatusEvent("Build cleared"))
	})
}

// SubmitLine handles a line typed into the terminal pane. Lines are
// processed one at a time in submission order.
func (c *Controller) SubmitLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	c.mu.Lock()
	prev := c.inputs
	done := make(chan struct{})
	c.inputs = done
	c.mu.Unlock()

	c.spawn(func(ctx context.Context) {
		defer close(done)
		if prev != nil {
			<-prev
		}
		c.submit(ctx, line)
	})
}

// SendInput writes line to the running program's input. Unlike SubmitLine it
// never runs the line as a host command: without a running program it
// returns ErrNotRunning. Calls block until the line is written.
func (c *Controller) SendInput(line string) error {
	c.mu.Lock()
	stopping := c.stopping
	c.mu.Unlock()
	if stopping {
		return execution.ErrNotRunning
	}
	return c.send(line)
}

// Shutdown stops the running program, waits for background work, deletes
// temporary files and closes the publisher. Events is closed afterwards.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		c.shutdownErr = c.shutdown(ctx)
	})
	return c.shutdownErr
}

func (c *Controller) shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.stopping = true
	c.mu.Unlock()

	_ = c.supervisor.Terminate()

	close(c.stop)
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	var errs []error
	if sess != nil {
		_ = sess.Terminate()
		if _, err := sess.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait for program: %w", err))
		}
	}

	if removed, err := c.discard(); err != nil {
		errs = append(errs, fmt.Errorf("remove temporary files: %w", err))
	} else if removed > 0 {
		c.logger.Info("temporary files removed", "count", removed)
	}

	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}

	c.emitMu.Lock()
	c.closed = true
	close(c.events)
	c.emitMu.Unlock()

	return errors.Join(errs...)
}

func (c *Controller) compile(ctx context.Context, text string) bool {
	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	c.emit(execution.Event{Kind: execution.EventClearOutput})
	c.emit(execution.StatusEvent("Compiling..."))

	if _, err := c.discard(); err != nil {
		c.logger.Warn("removing previous build failed", "error", err)
	}

	c.mu.Lock()
	lang, cfg := c.lang, c.cfg
	c.mu.Unlock()

	req := execution.BuildRequest{
		ID:       uuid.NewString(),
		Language: lang,
		Source:   text,
	}
	result, src := c.builds.Build(ctx, req, cfg)
	if src != nil {
		c.mu.Lock()
		c.current = src
		c.mu.Unlock()
	}

	c.reportBuild(result)
	c.emit(execution.Event{Kind: execution.EventBuildResult, Build: &result})
	c.publish(execution.Report{RequestID: req.ID, Kind: execution.ReportBuild, Build: &result})

	c.logger.Info("build finished",
		"request", req.ID,
		"language", lang,
		"succeeded", result.Succeeded,
		"failure", result.FailureKind,
		"duration", result.Duration,
	)

	return result.Succeeded && src != nil && exists(src.ArtifactPath)
}

func (c *Controller) reportBuild(result execution.BuildResult) {
	if len(result.Command) > 0 {
		c.emit(execution.OutputEvent("Compiling: " + strings.Join(result.Command, " ")))
	}

	switch result.FailureKind {
	case execution.FailureNone:
		c.emit(execution.OutputEvent("Compilation completed successfully!"))
		if result.Stdout != "" {
			c.emit(execution.OutputEvent("Output: " + trimTrailing(result.Stdout)))
		}
		c.emit(execution.StatusEvent("Compilation completed successfully"))
	case execution.FailureNonZeroExit:
		c.emit(execution.OutputEvent("Compilation Errors:"))
		if result.Stderr != "" {
			c.emit(execution.OutputEvent(trimTrailing(result.Stderr)))
		}
		if result.Stdout != "" {
			c.emit(execution.OutputEvent(trimTrailing(result.Stdout)))
		}
		c.emit(execution.StatusEvent("Compilation Error"))
	case execution.FailureTimeout:
		c.emit(execution.OutputEvent(result.Message))
		c.emit(execution.StatusEvent("Compilation - timeout"))
	case execution.FailureCompilerNotFound:
		c.emit(execution.OutputEvent(result.Message))
		c.emit(execution.StatusEvent("Error: No compiler"))
	case execution.FailureCanceled:
		c.emit(execution.OutputEvent("Compilation canceled"))
		c.emit(execution.StatusEvent("Compilation canceled"))
	default:
		c.emit(execution.OutputEvent(result.Message))
		if result.Message == build.NoCodeMessage {
			c.emit(execution.StatusEvent("Error: No code"))
		} else {
			c.emit(execution.StatusEvent("Setup Error"))
		}
	}
}

func (c *Controller) run(ctx context.Context) {
	cur := c.Artifact()
	if cur == nil || !exists(cur.ArtifactPath) {
		c.emit(execution.OutputEvent("No compiled file! Please compile the code first."))
		return
	}
	if c.supervisor.Active() != nil {
		c.emit(execution.TerminalEvent("A program is already running. Stop it first."))
		return
	}
	if c.supervisor.Busy() {
		c.emit(execution.TerminalEvent("A program is still stopping. Try again in a moment."))
		return
	}

	c.emit(execution.StatusEvent("Running the program..."))
	c.emit(execution.TerminalEvent("Running: " + filepath.Base(cur.ArtifactPath)))
	c.emit(execution.TerminalEvent(separator))

	requestID := uuid.NewString()
	sink := supervisor.SinkFuncs{
		OnLine: func(_ string, line string) {
			c.emit(execution.TerminalEvent(line))
		},
		OnExit: func(exit execution.RunExit) {
			c.finished(requestID, exit)
		},
	}

	sess, err := c.supervisor.Start(ctx, cur.ArtifactPath, sink)
	if err != nil {
		switch {
		case errors.Is(err, execution.ErrSessionActive):
			c.emit(execution.TerminalEvent("A program is already running. Stop it first."))
			return
		case errors.Is(err, execution.ErrSessionStopping):
			c.emit(execution.TerminalEvent("A program is still stopping. Try again in a moment."))
			return
		}
		c.logger.Warn("starting program failed", "path", cur.ArtifactPath, "error", err)
		c.emit(execution.TerminalEvent(fmt.Sprintf("Runtime Error: %v", err)))
		c.emit(execution.StatusEvent("Runtime Error"))
		return
	}
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()
	c.emit(execution.Event{Kind: execution.EventRunStarted, Text: sess.ID()})
	c.logger.Debug("program running", "session", sess.ID(), "request", requestID)
}

func (c *Controller) finished(requestID string, exit execution.RunExit) {
	c.emit(execution.TerminalEvent(separator))
	c.emit(execution.TerminalEvent(fmt.Sprintf("Program finished with code: %d", exit.Code)))
	switch {
	case exit.State == execution.RunTerminated:
		c.emit(execution.StatusEvent("Program stopped"))
	case exit.Code == 0:
		c.emit(execution.StatusEvent("Program finished successfully"))
	default:
		c.emit(execution.StatusEvent(fmt.Sprintf("Program finished with errors (%d)", exit.Code)))
	}
	c.emit(execution.Event{Kind: execution.EventRunExit, Exit: &exit})
	c.publish(execution.Report{RequestID: requestID, Kind: execution.ReportRun, Exit: &exit})
}

func (c *Controller) submit(ctx context.Context, line string) {
	c.emit(execution.TerminalEvent("$ " + line))

	if err := c.send(line); !errors.Is(err, execution.ErrNotRunning) {
		return
	}

	result := c.terminal.Execute(ctx, line)
	switch result.Action {
	case "", terminal.ActionNone:
	case terminal.ActionClear:
		c.emit(execution.Event{Kind: execution.EventClearTerminal})
	case terminal.ActionHelp, terminal.ActionChangeDir:
		c.emit(execution.TerminalEvent(result.Stdout))
	case terminal.ActionTimedOut:
		c.emit(execution.TerminalEvent("Command timed out"))
	case terminal.ActionFailed:
		c.emit(execution.TerminalEvent(fmt.Sprintf("Runtime Error: %v", result.Err)))
	default:
		if result.Stdout != "" {
			c.emit(execution.TerminalEvent(trimTrailing(result.Stdout)))
		}
		if result.Stderr != "" {
			c.emit(execution.TerminalEvent(trimTrailing(result.Stderr)))
		}
	}
}

// send forwards line to the running program. A failed write is reported on
// the terminal pane and leaves the program running.
func (c *Controller) send(line string) error {
	sess := c.supervisor.Active()
	if sess == nil {
		return execution.ErrNotRunning
	}
	err := sess.Send(line)
	if err != nil && !errors.Is(err, execution.ErrNotRunning) {
		c.logger.Warn("sending input failed", "session", sess.ID(), "error", err)
		c.emit(execution.TerminalEvent("Error sending data to the program"))
	}
	return err
}

// discard forgets the current build and deletes its files.
func (c *Controller) discard() (int, error) {
	c.mu.Lock()
	cur := c.current
	c.current = nil
	c.mu.Unlock()

	if cur == nil {
		return 0, nil
	}
	return c.builds.Clean(*cur)
}

func (c *Controller) publish(report execution.Report) {
	if c.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.publisher.PublishReport(ctx, report); err != nil {
		c.logger.Warn("publishing report failed", "request", report.RequestID, "kind", report.Kind, "error", err)
	}
}

func (c *Controller) spawn(fn func(context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopping {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
}

func (c *Controller) emit(ev execution.Event) {
	c.emitMu.RLock()
	defer c.emitMu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	case <-c.stop:
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func trimTrailing(s string) string {
	return strings.TrimRight(s, "\r\n")
}
