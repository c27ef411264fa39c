package reload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flemzord/omnihear/internal/config"
	"github.com/flemzord/omnihear/internal/core"
	"github.com/prometheus/client_golang/prometheus"
)

// Handler re-reads the configuration and hands it to every module that
// implements core.Reloader. Concurrent reloads are serialized.
type Handler struct {
	mu      sync.Mutex
	app     *core.App
	logger  *slog.Logger
	dataDir string
	total   *prometheus.CounterVec
}

// NewHandler creates a reload handler. A nil reg leaves the reload counter
// unregistered.
func NewHandler(app *core.App, logger *slog.Logger, dataDir string, reg prometheus.Registerer) *Handler {
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "omnihear",
		Name:      "config_reloads_total",
		Help:      "Configuration reloads by outcome.",
	}, []string{"outcome"})
	if reg != nil {
		reg.MustRegister(total)
	}
	return &Handler{app: app, logger: logger, dataDir: dataDir, total: total}
}

// HandleReload loads and validates the file at configPath, then reloads.
// An invalid file leaves the running configuration untouched.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		h.total.WithLabelValues("invalid").Inc()
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		h.total.WithLabelValues("invalid").Inc()
		return fmt.Errorf("validating config: %w", err)
	}
	return h.HandleReloadFromConfig(ctx, cfg)
}

// HandleReloadFromConfig reloads from an already validated cfg.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	appCtx := core.NewAppContext(h.logger, h.dataDir).WithModuleConfigs(cfg.ModuleConfigs())
	if err := h.app.ReloadModules(appCtx); err != nil {
		h.total.WithLabelValues("failed").Inc()
		return fmt.Errorf("reloading modules: %w", err)
	}

	h.total.WithLabelValues("ok").Inc()
	h.logger.Info("configuration reloaded")
	return nil
}
