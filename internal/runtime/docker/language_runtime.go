package docker

import (
	"context"
	"fmt"
	"sync"

	"cppide/internal/domain/execution"
)

const defaultWorkdir = "/workspace"

type languageRuntime struct {
	language execution.Language
	config   LanguageConfig
	engine   *containerEngine

	pullMu sync.Mutex
	pulled bool
}

func newLanguageRuntime(lang execution.Language, cfg LanguageConfig, engine *containerEngine) (*languageRuntime, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("docker runtime: language %q missing image configuration", lang)
	}
	if cfg.Workdir == "" {
		cfg.Workdir = defaultWorkdir
	}
	return &languageRuntime{
		language: lang,
		config:   cfg,
		engine:   engine,
	}, nil
}

// ensureImage pulls the compiler image once. A failed pull is retried on the
// next build.
func (l *languageRuntime) ensureImage(ctx context.Context) error {
	l.pullMu.Lock()
	defer l.pullMu.Unlock()

	if l.pulled {
		return nil
	}
	if err := l.engine.pullImage(ctx, l.config.Image); err != nil {
		return err
	}
	l.pulled = true
	return nil
}
