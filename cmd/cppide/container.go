package main

import (
	"fmt"
	"log/slog"

	"github.com/samber/do"

	"cppide/internal/app/build"
	"cppide/internal/app/ide"
	"cppide/internal/app/worker"
	"cppide/internal/domain/execution"
	kafkainfra "cppide/internal/infra/kafka"
	"cppide/internal/ports"
	"cppide/internal/runtime/docker"
	"cppide/internal/runtime/local"
	"cppide/internal/source"
	"cppide/internal/supervisor"
	"cppide/internal/terminal"
)

// newInjector registers every service the commands need. Services are built
// lazily, so a command only pays for what it invokes.
func newInjector(s Settings, logger *slog.Logger) *do.Injector {
	i := do.New()

	do.ProvideValue(i, s)
	do.ProvideValue(i, logger)

	do.Provide(i, provideToolchain)
	do.Provide(i, provideBuildService)
	do.Provide(i, func(i *do.Injector) (*supervisor.Supervisor, error) {
		return supervisor.New(do.MustInvoke[*slog.Logger](i)), nil
	})
	do.Provide(i, func(i *do.Injector) (*terminal.Executor, error) {
		cfg := do.MustInvoke[Settings](i)
		return terminal.New(cfg.WorkDir, cfg.limits().CommandTimeout), nil
	})
	do.Provide(i, providePublisher)
	do.Provide(i, provideController)
	do.Provide(i, provideWorker)

	return i
}

func provideToolchain(i *do.Injector) (ports.Toolchain, error) {
	cfg := do.MustInvoke[Settings](i)

	switch cfg.Backend {
	case "", backendLocal:
		return local.New(local.Config{Limits: cfg.limits()})
	case backendDocker:
		return docker.New(cfg.dockerConfig())
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func provideBuildService(i *do.Injector) (*build.Service, error) {
	toolchain, err := do.Invoke[ports.Toolchain](i)
	if err != nil {
		return nil, err
	}
	cfg := do.MustInvoke[Settings](i)
	return build.NewService(toolchain, source.Materializer{Dir: cfg.TempDir}), nil
}

func providePublisher(i *do.Injector) (ports.ReportPublisher, error) {
	cfg := do.MustInvoke[Settings](i)
	return kafkainfra.NewPublisher(kafkainfra.PublisherConfig{
		Brokers: cfg.brokers(),
		Topic:   cfg.Kafka.ResultsTopic,
	})
}

func provideController(i *do.Injector) (*ide.Controller, error) {
	cfg := do.MustInvoke[Settings](i)
	lang, err := cfg.language()
	if err != nil {
		return nil, err
	}

	builds, err := do.Invoke[*build.Service](i)
	if err != nil {
		return nil, err
	}

	var publisher ports.ReportPublisher
	if cfg.Kafka.PublishReports {
		if publisher, err = do.Invoke[ports.ReportPublisher](i); err != nil {
			return nil, err
		}
	}

	return ide.New(ide.Config{
		Builds:      builds,
		Supervisor:  do.MustInvoke[*supervisor.Supervisor](i),
		Terminal:    do.MustInvoke[*terminal.Executor](i),
		Publisher:   publisher,
		Logger:      do.MustInvoke[*slog.Logger](i),
		Language:    lang,
		BuildConfig: cfg.buildConfig(lang),
	})
}

func provideWorker(i *do.Injector) (*worker.Service, error) {
	cfg := do.MustInvoke[Settings](i)
	builds, err := do.Invoke[*build.Service](i)
	if err != nil {
		return nil, err
	}

	return worker.NewService(worker.Config{
		Builds:     builds,
		Logger:     do.MustInvoke[*slog.Logger](i),
		RunTimeout: cfg.limits().RunTimeout,
		Defaults: map[execution.Language]execution.BuildConfig{
			execution.LanguageCPP: cfg.buildConfig(execution.LanguageCPP),
			execution.LanguageC:   cfg.buildConfig(execution.LanguageC),
		},
	}), nil
}
