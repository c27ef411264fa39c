package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const shutdownTimeout = 30 * time.Second

// App owns an ordered set of modules and drives their lifecycle.
type App struct {
	ctx     *AppContext
	modules []moduleInstance
	logger  *slog.Logger
}

type moduleInstance struct {
	id      ModuleID
	module  Module
	started bool
}

// NewApp creates a new App with the given context.
func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:    ctx,
		logger: ctx.Logger.With("component", "core"),
	}
}

// LoadModules loads every ID in order. On failure the modules loaded so far
// are stopped and discarded.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.discard()
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		a.AppendModule(mod.ModuleInfo().ID, mod)
	}
	return nil
}

// AppendModule adds an already built module. Used for components assembled
// by the wiring step rather than the registry.
func (a *App) AppendModule(id ModuleID, mod Module) {
	a.modules = append(a.modules, moduleInstance{id: id, module: mod})
	a.logger.Info("module loaded", "module", string(id))
}

// Modules returns the loaded modules in load order.
func (a *App) Modules() []Module {
	out := make([]Module, len(a.modules))
	for i, mi := range a.modules {
		out[i] = mi.module
	}
	return out
}

// Start starts Starter modules in load order. If one fails, the modules
// started before it are stopped again.
func (a *App) Start() error {
	for i := range a.modules {
		mi := &a.modules[i]
		s, ok := mi.module.(Starter)
		if !ok {
			continue
		}
		a.logger.Debug("starting module", "module", string(mi.id))
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", string(mi.id), "error", err)
			a.stopFrom(i - 1)
			return fmt.Errorf("starting module %s: %w", mi.id, err)
		}
		mi.started = true
	}
	a.logger.Info("all modules started", "count", len(a.modules))
	return nil
}

// Stop stops all started modules in reverse order with a timeout.
func (a *App) Stop() {
	a.stopFrom(len(a.modules) - 1)
}

func (a *App) stopFrom(last int) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := last; i >= 0; i-- {
		mi := &a.modules[i]
		if !mi.started {
			continue
		}
		mi.started = false
		s, ok := mi.module.(Stopper)
		if !ok {
			continue
		}
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("module stop error", "module", string(mi.id), "error", err)
		}
	}
}

func (a *App) discard() {
	for i := range a.modules {
		a.modules[i].started = true
	}
	a.Stop()
	a.modules = nil
}

// ReloadModules hands ctx to every Reloader and joins their errors.
func (a *App) ReloadModules(ctx *AppContext) error {
	var errs []error
	for _, mi := range a.modules {
		r, ok := mi.module.(Reloader)
		if !ok {
			continue
		}
		a.logger.Info("reloading module", "module", string(mi.id))
		if err := r.Reload(ctx.ForModule(mi.id)); err != nil {
			errs = append(errs, fmt.Errorf("reloading module %s: %w", mi.id, err))
		}
	}
	return errors.Join(errs...)
}
