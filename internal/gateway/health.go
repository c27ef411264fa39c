package gateway

import (
	"net/http"
	"slices"

	"github.com/flemzord/omnihear/internal/provider"
)

// HealthResponse is the JSON body of GET /health.
type HealthResponse struct {
	Status       string            `json:"status"` // "ok" or "degraded"
	Transcribers []provider.Status `json:"transcribers"`
	Providers    []provider.Status `json:"providers"`
}

// handleHealth answers 503 while any upstream is unavailable.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{
			Status:       "ok",
			Transcribers: report(g.transcribers),
			Providers:    report(g.providers),
		}
		for _, s := range slices.Concat(resp.Transcribers, resp.Providers) {
			if !s.Available {
				resp.Status = "degraded"
				break
			}
		}

		code := http.StatusOK
		if resp.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

func report(h HealthReporter) []provider.Status {
	if h == nil {
		return []provider.Status{}
	}
	return h.HealthReport()
}
