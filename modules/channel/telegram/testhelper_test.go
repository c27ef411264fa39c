package telegram

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

// newTestTelegram returns a provisioned-looking module talking to apiURL.
func newTestTelegram(apiURL string) *Telegram {
	cfg := Config{Token: "1:TOKEN", APIURL: apiURL}
	cfg.defaults()
	return &Telegram{
		config: cfg,
		client: NewClient(cfg.Token, apiURL, nil),
		logger: discardLogger(),
	}
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
