package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/flemzord/omnihear/internal/security"
	"github.com/go-chi/chi/v5"
)

// ErrWebhookUnauthorized is returned by a WebhookHandler that rejects the
// caller's credentials. The dispatcher answers 401 for it.
var ErrWebhookUnauthorized = errors.New("gateway: webhook unauthorized")

// WebhookHandler processes a validated webhook payload.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, source string, body []byte, headers http.Header) error
}

type webhookEntry struct {
	handler WebhookHandler
	secret  string
}

// WebhookDispatcher routes POST /webhooks/{source} to the handler
// registered for source.
type WebhookDispatcher struct {
	mu       sync.RWMutex
	handlers map[string]webhookEntry
	secrets  map[string]string
	limits   security.PayloadLimits
	logger   *slog.Logger
	onResult func(source, outcome string)
}

// NewWebhookDispatcher creates a ready-to-use dispatcher.
func NewWebhookDispatcher(logger *slog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		handlers: make(map[string]webhookEntry),
		secrets:  make(map[string]string),
		logger:   logger,
		onResult: func(string, string) {},
	}
}

// SetSecret configures the HMAC secret of source. A secret passed to
// Register takes precedence.
func (d *WebhookDispatcher) SetSecret(source, secret string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.secrets[source] = secret
}

// Register adds a handler for source with an optional HMAC secret.
func (d *WebhookDispatcher) Register(source string, h WebhookHandler, secret string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[source] = webhookEntry{handler: h, secret: secret}
}

// Sources returns the registered source names.
func (d *WebhookDispatcher) Sources() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for s := range d.handlers {
		out = append(out, s)
	}
	return out
}

// ServeHTTP implements http.Handler. The source comes from the chi URL param.
func (d *WebhookDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	if source == "" {
		http.Error(w, "missing source", http.StatusBadRequest)
		return
	}

	d.mu.RLock()
	entry, ok := d.handlers[source]
	if ok && entry.secret == "" {
		entry.secret = d.secrets[source]
	}
	d.mu.RUnlock()

	if !ok {
		d.logger.Warn("webhook received for unregistered source", "source", source)
		d.onResult("unknown", "not_found")
		http.Error(w, "unknown source", http.StatusNotFound)
		return
	}

	body, err := security.ReadPayload(r.Body, d.limits)
	switch {
	case errors.Is(err, security.ErrPayloadTooLarge):
		d.onResult(source, "too_large")
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	case err != nil:
		d.onResult(source, "invalid")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if entry.secret != "" && !validateHMAC(body, r.Header.Get("X-Signature-256"), entry.secret) {
		d.onResult(source, "unauthorized")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	if err := entry.handler.HandleWebhook(r.Context(), source, body, r.Header); err != nil {
		if errors.Is(err, ErrWebhookUnauthorized) {
			d.logger.Warn("webhook rejected", "source", source, "error", err)
			d.onResult(source, "unauthorized")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		d.logger.Error("webhook handler failed", "source", source, "error", err)
		d.onResult(source, "error")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	d.onResult(source, "ok")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// validateHMAC checks an HMAC-SHA256 signature in constant time.
func validateHMAC(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
