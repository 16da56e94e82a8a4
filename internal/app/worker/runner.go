package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cppide/internal/app/build"
	"cppide/internal/domain/execution"
	"cppide/internal/supervisor"
)

type requestRunner struct {
	builds     *build.Service
	logger     *slog.Logger
	runTimeout time.Duration
	defaults   map[execution.Language]execution.BuildConfig
}

func newRequestRunner(builds *build.Service, logger *slog.Logger, runTimeout time.Duration, defaults map[execution.Language]execution.BuildConfig) *requestRunner {
	return &requestRunner{
		builds:     builds,
		logger:     logger,
		runTimeout: runTimeout,
		defaults:   defaults,
	}
}

func (r *requestRunner) Run(ctx context.Context, req execution.BuildRequest) execution.Report {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Language == "" {
		req.Language = execution.LanguageCPP
	}

	result, src := r.builds.Build(ctx, req, r.configFor(req.Language))
	if src != nil {
		defer func() {
			if _, err := r.builds.Clean(*src); err != nil {
				r.logger.Warn("removing temporary files failed", "request", req.ID, "error", err)
			}
		}()
	}

	if !result.Succeeded {
		return execution.Report{
			RequestID: req.ID,
			Kind:      execution.ReportBuild,
			Build:     &result,
			Err:       result.Err(),
		}
	}
	if src == nil {
		return execution.Report{
			RequestID: req.ID,
			Kind:      execution.ReportBuild,
			Build:     &result,
			Err:       fmt.Errorf("%w: build succeeded without a source", execution.ErrNoArtifact),
		}
	}

	return r.runArtifact(ctx, req, result, *src)
}

func (r *requestRunner) runArtifact(ctx context.Context, req execution.BuildRequest, result execution.BuildResult, src execution.MaterializedSource) execution.Report {
	report := execution.Report{
		RequestID: req.ID,
		Kind:      execution.ReportRun,
		Build:     &result,
	}

	runCtx, cancel := context.WithTimeout(ctx, r.runTimeout)
	defer cancel()

	collector := &supervisor.Collector{}
	sess, err := supervisor.New(r.logger).Start(runCtx, src.ArtifactPath, collector)
	if err != nil {
		report.Err = err
		return report
	}

	report.Err = feed(sess, req.Stdin)

	<-sess.Done()
	exit, _ := sess.Exit()
	report.Exit = &exit
	report.Output = collector.Lines()

	if exit.State == execution.RunTerminated {
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			report.Err = errors.Join(report.Err, fmt.Errorf("%w: run exceeded %s", execution.ErrTimeout, r.runTimeout))
		case ctx.Err() != nil:
			report.Err = errors.Join(report.Err, ctx.Err())
		}
	}

	return report
}

// feed writes the request input and closes the program's stdin. A program
// that exits before reading everything is not an error.
func feed(sess *supervisor.Session, lines []string) error {
	for _, line := range lines {
		if err := sess.Send(line); err != nil {
			if errors.Is(err, execution.ErrNotRunning) {
				return nil
			}
			if errors.Is(err, execution.ErrPipe) {
				break
			}
			return err
		}
	}
	if err := sess.CloseInput(); err != nil && sess.State() == execution.RunRunning {
		return err
	}
	return nil
}

func (r *requestRunner) configFor(lang execution.Language) execution.BuildConfig {
	cfg := execution.DefaultBuildConfig(lang)
	if override, ok := r.defaults[lang]; ok {
		cfg = cfg.WithOverrides(override)
	}
	return cfg
}
