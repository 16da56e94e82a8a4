// Package docker compiles sources inside a compiler container and copies the
// resulting executable back to the host.
package docker

import (
	"context"
	"errors"
	"fmt"

	"github.com/docker/docker/client"

	"cppide/internal/domain/execution"
	"cppide/internal/ports"
	runtimex "cppide/internal/runtime"
)

var _ ports.Toolchain = (*Engine)(nil)

// Engine implements ports.Toolchain backed by Docker containers.
type Engine struct {
	registry *runtimex.Registry
	client   dockerClient
}

// New constructs an Engine using the supplied configuration.
func New(cfg Config) (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker runtime: create client: %w", err)
	}

	engine, err := newEngineWithClient(cli, cfg)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}

	return engine, nil
}

// Build delegates to the module registered for lang.
func (e *Engine) Build(ctx context.Context, lang execution.Language, src execution.MaterializedSource, cfg execution.BuildConfig) execution.BuildResult {
	return e.registry.Build(ctx, lang, src, cfg)
}

// Languages lists the configured languages.
func (e *Engine) Languages() []execution.Language {
	return e.registry.Languages()
}

// Close releases module resources and the Docker client.
func (e *Engine) Close() error {
	var errs []error
	if err := e.registry.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("docker client: %w", err))
	}
	return errors.Join(errs...)
}

func newEngineWithClient(cli dockerClient, cfg Config) (*Engine, error) {
	env := newContainerEngine(cli, cfg)

	langs := cfg.languages()
	modules := make([]runtimex.Module, 0, len(langs))
	for lang, langCfg := range langs {
		module, err := newModule(lang, langCfg, env)
		if err != nil {
			return nil, err
		}
		modules = append(modules, module)
	}

	registry, err := runtimex.NewRegistry(modules...)
	if err != nil {
		return nil, err
	}

	return &Engine{
		registry: registry,
		client:   cli,
	}, nil
}
