// Package runtime dispatches builds to the compiler backend registered for
// each source language.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"cppide/internal/domain/execution"
	"cppide/internal/ports"
)

var _ ports.Toolchain = (*Registry)(nil)

// Registry is a Toolchain that routes each build by language. After Close
// every build fails with a setup error.
type Registry struct {
	mu      sync.RWMutex
	modules map[execution.Language]Module
	order   []execution.Language
	closed  bool
}

// NewRegistry registers mods. Each language may appear once.
func NewRegistry(mods ...Module) (*Registry, error) {
	if len(mods) == 0 {
		return nil, errors.New("at least one toolchain module must be registered")
	}

	reg := &Registry{modules: make(map[execution.Language]Module, len(mods))}
	for _, m := range mods {
		if m == nil {
			return nil, errors.New("toolchain module cannot be nil")
		}
		lang := m.Language()
		switch {
		case lang == "":
			return nil, errors.New("toolchain module missing language identifier")
		case reg.modules[lang] != nil:
			return nil, fmt.Errorf("duplicate toolchain module for language %q", lang)
		}
		reg.modules[lang] = m
		reg.order = append(reg.order, lang)
	}
	return reg, nil
}

// Build compiles src with the module registered for lang.
func (r *Registry) Build(ctx context.Context, lang execution.Language, src execution.MaterializedSource, cfg execution.BuildConfig) execution.BuildResult {
	r.mu.RLock()
	m, ok := r.modules[lang]
	closed := r.closed
	r.mu.RUnlock()

	switch {
	case closed:
		return execution.Failure(execution.FailureSetup, "toolchain is closed")
	case !ok:
		return execution.Failure(execution.FailureSetup, fmt.Sprintf("no toolchain registered for language %q", lang))
	}
	return m.Build(ctx, src, cfg)
}

// Languages lists the registered languages in sorted order.
func (r *Registry) Languages() []execution.Language {
	r.mu.RLock()
	defer r.mu.RUnlock()

	langs := slices.Clone(r.order)
	slices.Sort(langs)
	return langs
}

// Close releases every module once, in registration order.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for _, lang := range r.order {
		if err := r.modules[lang].Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", lang, err))
		}
	}
	return errors.Join(errs...)
}
