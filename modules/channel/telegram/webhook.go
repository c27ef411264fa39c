package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/flemzord/omnihear/internal/gateway"
)

// secretHeader carries the secret_token given to setWebhook.
const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookReceiver accepts updates pushed by Telegram through the gateway.
// It implements gateway.WebhookHandler.
type WebhookReceiver struct {
	handler *updateHandler
	secret  string
}

// NewWebhookReceiver creates a WebhookReceiver checking secret when non-empty.
func NewWebhookReceiver(handler *updateHandler, secret string) *WebhookReceiver {
	return &WebhookReceiver{handler: handler, secret: secret}
}

// HandleWebhook verifies the secret header, decodes the update and hands it
// on. Updates that are filtered out still succeed so Telegram does not
// redeliver them.
func (w *WebhookReceiver) HandleWebhook(_ context.Context, _ string, body []byte, headers http.Header) error {
	if w.secret != "" {
		token := headers.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(w.secret), []byte(token)) != 1 {
			return fmt.Errorf("telegram: invalid webhook secret token: %w", gateway.ErrWebhookUnauthorized)
		}
	}

	var update Update
	if err := json.Unmarshal(body, &update); err != nil {
		return fmt.Errorf("telegram: invalid update JSON: %w", err)
	}

	w.handler.handle(&update)
	return nil
}
