package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/omnihear/internal/bot"
	"github.com/flemzord/omnihear/internal/provider"
)

// StatusResponse is the JSON body of GET /status.
type StatusResponse struct {
	StartedAt    time.Time         `json:"started_at"`
	Uptime       float64           `json:"uptime_seconds"`
	Bot          *bot.Stats        `json:"bot,omitempty"`
	Jobs         []string          `json:"jobs"`
	Webhooks     []string          `json:"webhooks"`
	Transcribers []provider.Status `json:"transcribers"`
	Providers    []provider.Status `json:"providers"`
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			StartedAt:    g.startedAt.UTC(),
			Uptime:       time.Since(g.startedAt).Truncate(time.Second).Seconds(),
			Jobs:         []string{},
			Webhooks:     g.dispatcher.Sources(),
			Transcribers: report(g.transcribers),
			Providers:    report(g.providers),
		}
		if g.stats != nil {
			s := g.stats.Stats()
			resp.Bot = &s
		}
		if g.jobs != nil {
			resp.Jobs = g.jobs.Jobs()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
