package ports

import (
	"context"

	"cppide/internal/domain/execution"
)

// Toolchain compiles a materialized source file into an artifact.
//
// Build never returns a nil-equivalent outcome: every failure is classified
// in the returned result.
type Toolchain interface {
	Build(ctx context.Context, lang execution.Language, src execution.MaterializedSource, cfg execution.BuildConfig) execution.BuildResult
	Close() error
}
