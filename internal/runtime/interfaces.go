package runtime

import (
	"context"

	"cppide/internal/domain/execution"
)

// Module provides compiler support for a specific language.
type Module interface {
	Language() execution.Language
	Build(ctx context.Context, src execution.MaterializedSource, cfg execution.BuildConfig) execution.BuildResult
	Close() error
}
