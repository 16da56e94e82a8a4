// Package supervisor launches a compiled program as a child process, streams
// its merged output line by line, forwards user input and stops it on request.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"cppide/internal/domain/execution"
	"cppide/internal/ports"
	"cppide/internal/procutil"
)

// DefaultKillGrace is how long a terminated program may take to exit before
// it is killed outright.
const DefaultKillGrace = 3 * time.Second

// Supervisor owns at most one running Session at a time.
type Supervisor struct {
	logger    *slog.Logger
	killGrace time.Duration

	mu     sync.Mutex
	active *Session
}

// New constructs a Supervisor. A nil logger discards log output.
func New(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Supervisor{
		logger:    logger,
		killGrace: DefaultKillGrace,
	}
}

// Start launches the artifact at path. Output is delivered to sink until the
// program exits; the session is terminated if ctx ends first.
func (s *Supervisor) Start(ctx context.Context, artifactPath string, sink ports.OutputSink) (*Session, error) {
	return s.StartCommand(ctx, artifactPath, nil, sink)
}

// StartCommand is Start with explicit program arguments.
func (s *Supervisor) StartCommand(ctx context.Context, path string, args []string, sink ports.OutputSink) (*Session, error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: output sink is required", execution.ErrSpawn)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		select {
		case <-s.active.exited:
		default:
			if s.active.State() == execution.RunRunning {
				return nil, execution.ErrSessionActive
			}
			return nil, execution.ErrSessionStopping
		}
	}

	cmd := procutil.Command(path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", execution.ErrSpawn, err)
	}

	// stdout and stderr share one pipe so lines keep their relative order.
	outR, outW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("%w: output pipe: %v", execution.ErrSpawn, err)
	}
	cmd.Stdout = outW
	cmd.Stderr = outW

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = outR.Close()
		_ = outW.Close()
		return nil, fmt.Errorf("%w: %v", execution.ErrSpawn, err)
	}
	_ = outW.Close()

	sess := &Session{
		id:        uuid.NewString(),
		path:      path,
		cmd:       cmd,
		stdin:     stdin,
		sink:      sink,
		logger:    s.logger,
		killGrace: s.killGrace,
		started:   time.Now(),
		state:     execution.RunRunning,
		exited:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.active = sess

	s.logger.Info("program started", "session", sess.id, "path", path, "pid", cmd.Process.Pid)

	go sess.pump(outR)
	go func() {
		select {
		case <-ctx.Done():
			if err := sess.Terminate(); err == nil {
				s.logger.Info("program stopped by context", "session", sess.id, "reason", ctx.Err())
			}
		case <-sess.done:
		}
	}()

	return sess, nil
}

// Active returns the running session, or nil.
func (s *Supervisor) Active() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || s.active.State() != execution.RunRunning {
		return nil
	}
	return s.active
}

// Busy reports whether the last session's process is still alive. A
// terminated program keeps the supervisor busy until it has exited.
func (s *Supervisor) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return false
	}
	select {
	case <-s.active.exited:
		return false
	default:
		return true
	}
}

// Terminate stops the running session. It returns ErrNothingToStop when no
// program is running.
func (s *Supervisor) Terminate() error {
	sess := s.Active()
	if sess == nil {
		return execution.ErrNothingToStop
	}
	return sess.Terminate()
}
