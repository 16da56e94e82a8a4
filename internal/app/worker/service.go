// Package worker builds and runs requests without an interactive user:
// requests come from a producer, output is collected and a report is
// emitted per request.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"cppide/internal/app/build"
	"cppide/internal/domain/execution"
	"cppide/internal/ports"
)

// DefaultRunTimeout bounds a headless run when no limit is configured.
const DefaultRunTimeout = 10 * time.Second

// Config describes a headless worker.
type Config struct {
	Builds *build.Service
	Logger *slog.Logger
	// RunTimeout bounds each program run.
	RunTimeout time.Duration
	// Defaults are the compiler settings per language; requests may override
	// individual fields.
	Defaults map[execution.Language]execution.BuildConfig
}

// Service coordinates headless builds and runs.
type Service struct {
	runner *requestRunner
	builds *build.Service
	logger *slog.Logger
}

// NewService constructs a Service with the provided dependencies.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	return &Service{
		runner: newRequestRunner(cfg.Builds, logger, timeout, cfg.Defaults),
		builds: cfg.Builds,
		logger: logger,
	}
}

// ExecuteFromProducer pulls requests from the supplied producer and
// processes them with bounded parallelism.
//
// If maxRequests is greater than zero processing stops after that many
// requests. Otherwise it keeps consuming until the context is cancelled or
// the producer signals completion via io.EOF.
//
// When onReport is provided it is invoked after every request with the
// corresponding report.
func (s *Service) ExecuteFromProducer(
	ctx context.Context,
	producer ports.RequestProducer,
	maxRequests int,
	maxParallel int,
	onReport func(execution.Report),
) error {
	if maxParallel <= 0 {
		maxParallel = 1
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxParallel)
	processed := 0

	finish := func(err error) error {
		wg.Wait()
		return err
	}

	for {
		if maxRequests > 0 && processed >= maxRequests {
			return finish(nil)
		}

		req, err := producer.NextRequest(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return finish(nil)
			}

			return finish(fmt.Errorf("get next request: %w", err))
		}

		sem <- struct{}{}
		wg.Add(1)
		processed++
		go func(req execution.BuildRequest) {
			defer wg.Done()
			defer func() { <-sem }()

			report := s.runner.Run(ctx, req)
			s.logger.Info("request processed",
				"request", report.RequestID,
				"kind", report.Kind,
				"error", report.Err,
			)
			if onReport != nil {
				onReport(report)
			}
		}(req)
	}
}

// Process handles a single request synchronously.
func (s *Service) Process(ctx context.Context, req execution.BuildRequest) execution.Report {
	return s.runner.Run(ctx, req)
}

// Close releases any resources owned by the underlying toolchain.
func (s *Service) Close() error {
	return s.builds.Close()
}
