// Package gateway serves health, metrics, admin and webhook endpoints over
// HTTP. It binds to loopback by default.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/omnihear/internal/bot"
	"github.com/flemzord/omnihear/internal/core"
	"github.com/flemzord/omnihear/internal/provider"
	"github.com/flemzord/omnihear/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// Service names the gateway registers or looks up.
const (
	ServiceWebhooks = "gateway.webhook_dispatcher"
	ServiceRegistry = "metrics.registry"
	ServiceConfig   = "config.path"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// HealthReporter is a failover chain whose entries carry health state.
type HealthReporter interface {
	HealthReport() []provider.Status
}

// StatsSource exposes the pipeline state shown on /status.
type StatsSource interface {
	Stats() bot.Stats
}

// JobLister lists scheduled housekeeping jobs.
type JobLister interface {
	Jobs() []string
}

// ConfigReloader applies the config file at path.
type ConfigReloader interface {
	HandleReload(ctx context.Context, path string) error
}

// Gateway is the gateway.http module.
type Gateway struct {
	config     Config
	appCtx     *core.AppContext
	logger     *slog.Logger
	server     *http.Server
	dispatcher *WebhookDispatcher
	metrics    *httpMetrics
	gatherer   prometheus.Gatherer
	startedAt  time.Time

	// Resolved at Start, all optional.
	transcribers HealthReporter
	providers    HealthReporter
	stats        StatsSource
	jobs         JobLister
	reloader     ConfigReloader
	configPath   string
	redactor     *security.Redactor
	audit        *security.AuditLogger
	limiter      *security.RateLimiter
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: decode config: %w", err)
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner. The dispatcher is registered here
// so channel modules can find it in their own Start.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.config.defaults()

	var reg prometheus.Registerer
	g.gatherer = prometheus.DefaultGatherer
	if r, ok := core.Service[*prometheus.Registry](ctx, ServiceRegistry); ok {
		reg, g.gatherer = r, r
	}
	g.metrics = newHTTPMetrics(reg)

	g.dispatcher = NewWebhookDispatcher(g.logger)
	g.dispatcher.onResult = g.metrics.webhookResult
	g.dispatcher.limits = g.config.payloadLimits()
	for source, cfg := range g.config.Webhooks {
		if cfg.Secret != "" {
			g.dispatcher.SetSecret(source, cfg.Secret)
			g.logger.Info("webhook source configured", "source", source)
		}
	}
	ctx.RegisterService(ServiceWebhooks, g.dispatcher)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. Collaborators are looked up lazily so the
// gateway works with whatever the wiring registered.
func (g *Gateway) Start() error {
	g.resolve()
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

func (g *Gateway) resolve() {
	ctx := g.appCtx
	if v, ok := core.Service[HealthReporter](ctx, "transcribe.chain"); ok {
		g.transcribers = v
	}
	if v, ok := core.Service[HealthReporter](ctx, "provider.chain"); ok {
		g.providers = v
	}
	if v, ok := core.Service[StatsSource](ctx, "bot"); ok {
		g.stats = v
	}
	if v, ok := core.Service[JobLister](ctx, "cron.scheduler"); ok {
		g.jobs = v
	}
	if v, ok := core.Service[ConfigReloader](ctx, "reload.handler"); ok {
		g.reloader = v
	}
	if v, ok := core.Service[string](ctx, ServiceConfig); ok {
		g.configPath = v
	}
	if v, ok := core.Service[*security.Redactor](ctx, "security.redactor"); ok {
		g.redactor = v
	}
	if v, ok := core.Service[*security.AuditLogger](ctx, "security.audit"); ok {
		g.audit = v
	}
	if v, ok := core.Service[*security.RateLimiter](ctx, "security.ratelimiter"); ok {
		g.limiter = v
	}
}

// Stop implements core.Stopper.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
