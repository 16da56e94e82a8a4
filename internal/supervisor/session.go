package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"cppide/internal/domain/execution"
	"cppide/internal/ports"
	"cppide/internal/procutil"
)

// Session is the supervised lifetime of one launched program.
type Session struct {
	id        string
	path      string
	stdin     io.WriteCloser
	sink      ports.OutputSink
	logger    *slog.Logger
	killGrace time.Duration
	started   time.Time

	writeMu sync.Mutex

	mu    sync.Mutex
	cmd   *exec.Cmd
	state execution.RunState
	exit  execution.RunExit

	// exited is closed once the process has been reaped, before the exit
	// notification is delivered. done is closed after it.
	exited chan struct{}
	done   chan struct{}
}

// ID uniquely identifies the session.
func (s *Session) ID() string {
	return s.id
}

// State reports the current lifecycle state.
func (s *Session) State() execution.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed after the exit notification has been delivered.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Exit returns the exit notification once the program has ended.
func (s *Session) Exit() (execution.RunExit, bool) {
	select {
	case <-s.done:
	default:
		return execution.RunExit{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exit, true
}

// Wait blocks until the program has ended or ctx is done.
func (s *Session) Wait(ctx context.Context) (execution.RunExit, error) {
	select {
	case <-s.done:
		exit, _ := s.Exit()
		return exit, nil
	case <-ctx.Done():
		return execution.RunExit{}, ctx.Err()
	}
}

// Send writes line followed by a newline to the program's input. A failed
// write is reported but does not end the session.
func (s *Session) Send(line string) error {
	if s.State() != execution.RunRunning {
		return execution.ErrNotRunning
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := io.WriteString(s.stdin, line+"\n"); err != nil {
		return fmt.Errorf("%w: %v", execution.ErrPipe, err)
	}
	return nil
}

// CloseInput closes the program's input so reads see end of file.
func (s *Session) CloseInput() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("%w: %v", execution.ErrPipe, err)
	}
	return nil
}

// Terminate signals the program to stop and returns without waiting for it
// to exit. A program still alive after the kill grace period is killed.
func (s *Session) Terminate() error {
	s.mu.Lock()
	if s.state != execution.RunRunning {
		s.mu.Unlock()
		return execution.ErrNothingToStop
	}
	s.state = execution.RunTerminated
	cmd := s.cmd
	s.mu.Unlock()

	s.logger.Info("terminating program", "session", s.id)

	if err := procutil.Terminate(cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("terminate signal failed, killing", "session", s.id, "error", err)
		if kerr := procutil.Kill(cmd); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			return fmt.Errorf("stop program: %w", errors.Join(err, kerr))
		}
		return nil
	}

	go func() {
		select {
		case <-s.done:
		case <-time.After(s.killGrace):
			s.logger.Warn("program ignored termination, killing", "session", s.id)
			_ = procutil.Kill(cmd)
		}
	}()

	return nil
}

// pump forwards output until end of stream, then reaps the process and
// emits the exit notification.
func (s *Session) pump(out *os.File) {
	defer out.Close()

	reader := bufio.NewReader(out)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			s.sink.WriteLine(s.id, trimNewline(line))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Warn("reading program output failed", "session", s.id, "error", err)
			}
			break
		}
	}

	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()

	waitErr := cmd.Wait()
	code := procutil.ExitCode(cmd.ProcessState)
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		s.logger.Warn("waiting for program failed", "session", s.id, "error", waitErr)
	}

	s.mu.Lock()
	if s.state == execution.RunRunning {
		s.state = execution.RunCompleted
	}
	s.exit = execution.RunExit{
		SessionID: s.id,
		State:     s.state,
		Code:      code,
		Duration:  time.Since(s.started),
	}
	s.cmd = nil
	exit := s.exit
	s.mu.Unlock()

	s.logger.Info("program finished", "session", s.id, "state", exit.State, "code", exit.Code, "duration", exit.Duration)

	close(s.exited)
	s.sink.Finished(exit)
	close(s.done)
}

func trimNewline(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
