package docker

import (
	"context"
	"fmt"

	"cppide/internal/domain/execution"
	runtimex "cppide/internal/runtime"
)

type module struct {
	runtime *languageRuntime
}

func newModule(lang execution.Language, cfg LanguageConfig, engine *containerEngine) (runtimex.Module, error) {
	runtime, err := newLanguageRuntime(lang, cfg, engine)
	if err != nil {
		return nil, err
	}
	return &module{runtime: runtime}, nil
}

func (m *module) Language() execution.Language {
	return m.runtime.language
}

func (m *module) Build(ctx context.Context, src execution.MaterializedSource, cfg execution.BuildConfig) execution.BuildResult {
	if err := m.runtime.ensureImage(ctx); err != nil {
		return execution.Failure(execution.FailureSetup, fmt.Sprintf("Error during compilation setup: %v", err))
	}
	return m.runtime.engine.compile(ctx, m.runtime, src, cfg)
}

func (m *module) Close() error {
	return nil
}
