// Package build turns a source buffer into a compiled artifact: it rejects
// blank buffers, materializes the text and hands it to the toolchain.
package build

import (
	"context"
	"fmt"

	"cppide/internal/domain/execution"
	"cppide/internal/ports"
)

// Materializer persists source buffers and removes them again.
type Materializer interface {
	Materialize(text string, lang execution.Language) (execution.MaterializedSource, error)
	Clean(src execution.MaterializedSource) (int, error)
}

// NoCodeMessage is reported for blank buffers.
const NoCodeMessage = execution.NoCodeMessage

// Service coordinates builds through a toolchain implementation.
type Service struct {
	toolchain    ports.Toolchain
	materializer Materializer
}

// NewService constructs a Service with the provided dependencies.
func NewService(toolchain ports.Toolchain, materializer Materializer) *Service {
	return &Service{
		toolchain:    toolchain,
		materializer: materializer,
	}
}

// Build compiles req with cfg, applying the request's own overrides. The
// returned source is nil when nothing was written to disk; otherwise the
// caller owns the files and must eventually Clean them.
func (s *Service) Build(ctx context.Context, req execution.BuildRequest, cfg execution.BuildConfig) (execution.BuildResult, *execution.MaterializedSource) {
	if req.Config != nil {
		cfg = cfg.WithOverrides(*req.Config)
	}

	if req.IsBlank() {
		return execution.Failure(execution.FailureSetup, NoCodeMessage), nil
	}

	lang := req.Language
	if lang == "" {
		lang = execution.LanguageCPP
	}

	src, err := s.materializer.Materialize(req.Source, lang)
	if err != nil {
		return execution.Failure(execution.FailureSetup, fmt.Sprintf("Error during compilation setup: %v", err)), nil
	}

	return s.toolchain.Build(ctx, lang, src, cfg), &src
}

// Clean removes the files of a previous build.
func (s *Service) Clean(src execution.MaterializedSource) (int, error) {
	return s.materializer.Clean(src)
}

// Close releases the toolchain.
func (s *Service) Close() error {
	return s.toolchain.Close()
}
