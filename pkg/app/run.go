// Package app is the omnihear entry point: it loads the configuration,
// builds the modules, wires them into the bot and runs until a signal.
package app

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flemzord/omnihear/internal/bot"
	"github.com/flemzord/omnihear/internal/config"
	"github.com/flemzord/omnihear/internal/core"
	"github.com/flemzord/omnihear/internal/gateway"
	"github.com/flemzord/omnihear/internal/reload"
	"github.com/flemzord/omnihear/internal/security"
	"github.com/flemzord/omnihear/internal/telemetry"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// RunParams configures the main loop.
type RunParams struct {
	// ConfigPath is an explicit config file. Empty means ResolveConfigPath.
	ConfigPath string

	// Version is injected at build time.
	Version string

	// DataDir defaults to DefaultDataDir.
	DataDir string

	LogLevel slog.Level
}

// Run blocks until SIGINT or SIGTERM. SIGHUP and changes to the config
// file reload the bot section.
func Run(params RunParams) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	cfg, cfgPath, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	botCfg, err := bot.DecodeConfig(&cfg.Bot)
	if err != nil {
		return err
	}

	creds := security.NewCredentialStore()
	redactor := security.NewRedactor()
	logger := slog.New(security.NewRedactingHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: params.LogLevel}),
		redactor,
	))
	limiter := security.NewRateLimiter(botCfg.RateLimit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracer, shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, params.Version)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("flushing traces failed", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	audit, closeAudit, err := openAudit(dataDir, redactor, registry)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeAudit(); err != nil {
			logger.Warn("closing audit log failed", "error", err)
		}
	}()

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.ModuleConfigs())
	appCtx.RegisterService("security.credentials", creds)
	appCtx.RegisterService("security.redactor", redactor)
	appCtx.RegisterService("security.audit", audit)
	appCtx.RegisterService("security.ratelimiter", limiter)
	appCtx.RegisterService(gateway.ServiceRegistry, registry)
	if cfgPath != "" {
		appCtx.RegisterService(gateway.ServiceConfig, cfgPath)
	}

	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return err
	}
	// Modules register their keys during Provision.
	redactor.SyncCredentials(creds)

	w := &wiring{
		app:      application,
		appCtx:   appCtx,
		logger:   logger,
		botCfg:   botCfg,
		creds:    creds,
		audit:    audit,
		limiter:  limiter,
		registry: registry,
		tracer:   tracer,
	}
	if err := w.wire(ctx); err != nil {
		return err
	}

	// Registered before Start so the gateway resolves it.
	var handler *reload.Handler
	if cfgPath != "" {
		handler = reload.NewHandler(application, logger, dataDir, registry)
		appCtx.RegisterService("reload.handler", handler)
	}

	if err := application.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	var events <-chan reload.Event
	if cfgPath != "" {
		watcher := reload.NewWatcher(reload.WatcherConfig{ConfigPath: cfgPath})
		watcher.Start(ctx)
		defer watcher.Stop()
		events = watcher.Events()
	}

	reloadConfig := func() {
		if handler == nil {
			logger.Warn("configuration came from the environment, nothing to reload")
			return
		}
		if err := handler.HandleReload(ctx, cfgPath); err != nil {
			logger.Error("reload failed", "error", err)
			return
		}
		redactor.SyncCredentials(creds)
	}

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("SIGHUP received, reloading configuration")
				reloadConfig()
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			application.Stop()
			logger.Info("shutdown complete")
			return nil
		case evt := <-events:
			logger.Info("config file changed, reloading", "path", evt.ConfigPath)
			reloadConfig()
		}
	}
}
