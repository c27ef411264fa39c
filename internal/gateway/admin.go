package gateway

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/flemzord/omnihear/internal/core"
	"github.com/flemzord/omnihear/internal/security"
	"gopkg.in/yaml.v3"
)

type moduleJSON struct {
	ID         string `json:"id"`
	Namespace  string `json:"namespace"`
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
}

// handleListModules lists the compiled-in modules and whether the config
// enables them.
func (g *Gateway) handleListModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			_, configured := g.appCtx.ModuleConfig(string(m.ID))
			out = append(out, moduleJSON{
				ID:         string(m.ID),
				Namespace:  m.ID.Namespace(),
				Name:       m.ID.Name(),
				Configured: configured,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleGetConfig returns the config file as JSON with secrets redacted.
// Environment references are shown unexpanded.
func (g *Gateway) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.configPath == "" {
			writeError(w, http.StatusServiceUnavailable, "config path not set")
			return
		}
		data, err := os.ReadFile(g.configPath)
		if err != nil {
			g.logger.Error("reading config failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to read config")
			return
		}
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to parse config")
			return
		}

		redactor := g.redactor
		if redactor == nil {
			redactor = security.NewRedactor()
		}
		redactor.RedactMap(doc)
		writeJSON(w, http.StatusOK, doc)
	}
}

// handleReloadConfig re-reads the config file and applies it to the
// running modules.
func (g *Gateway) handleReloadConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.reloader == nil || g.configPath == "" {
			writeError(w, http.StatusServiceUnavailable, "reload not available")
			return
		}
		if err := g.reloader.HandleReload(r.Context(), g.configPath); err != nil {
			g.logger.Error("config reload failed", "error", err)
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if g.audit != nil {
			g.audit.Log(security.AuditEvent{
				Type:     security.EventConfigChange,
				Detail:   "reload via gateway",
				Metadata: map[string]string{"remote_addr": r.RemoteAddr},
			})
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
