package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter wires every route. Admin routes are only mounted when auth
// is configured.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(g.metrics.middleware)

	r.Get("/health", g.handleHealth())
	r.Handle(g.config.MetricsPath, promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{}))

	// Webhook sources authenticate themselves.
	r.Post("/webhooks/{source}", g.dispatcher.ServeHTTP)

	if g.config.Auth.enabled() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.audit, g.limiter))
			r.Get("/status", g.handleStatus())
			r.Route("/api", func(r chi.Router) {
				r.Get("/modules", g.handleListModules())
				r.Get("/config", g.handleGetConfig())
				r.Post("/config/reload", g.handleReloadConfig())
			})
		})
	} else {
		g.logger.Warn("gateway auth not configured, admin endpoints disabled")
	}

	return r
}
