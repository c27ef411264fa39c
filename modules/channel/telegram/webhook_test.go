package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/flemzord/omnihear/internal/channel"
)

func newTestReceiver(secret string) (*WebhookReceiver, *inboxRecorder) {
	rec := &inboxRecorder{}
	handler := &updateHandler{
		inbox:       rec.push,
		allowList:   channel.NewAllowList([]string{channel.Wildcard}, nil),
		logger:      discardLogger(),
		botUsername: "omni_bot",
	}
	return NewWebhookReceiver(handler, secret), rec
}

func updateJSON(t *testing.T, u Update) []byte {
	t.Helper()
	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("marshal update: %v", err)
	}
	return data
}

func TestWebhookAcceptsValidSecret(t *testing.T) {
	recv, rec := newTestReceiver("s3cret")
	body := updateJSON(t, Update{UpdateID: 1, Message: &Message{Chat: Chat{ID: 1, Type: "private"}, Text: "/start"}})

	headers := http.Header{}
	headers.Set(secretHeader, "s3cret")
	if err := recv.HandleWebhook(context.Background(), "telegram", body, headers); err != nil {
		t.Fatalf("HandleWebhook() error: %v", err)
	}

	got := rec.messages()
	if len(got) != 1 || got[0].Command == nil || got[0].Command.Name != "start" {
		t.Errorf("received = %+v", got)
	}
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	recv, rec := newTestReceiver("s3cret")
	body := updateJSON(t, Update{UpdateID: 1, Message: &Message{Chat: Chat{ID: 1}, Text: "x"}})

	headers := http.Header{}
	headers.Set(secretHeader, "wrong")
	if err := recv.HandleWebhook(context.Background(), "telegram", body, headers); err == nil {
		t.Error("expected an error for a wrong secret")
	}
	if err := recv.HandleWebhook(context.Background(), "telegram", body, http.Header{}); err == nil {
		t.Error("expected an error for a missing secret")
	}
	if len(rec.messages()) != 0 {
		t.Error("rejected updates must not reach the inbox")
	}
}

func TestWebhookInvalidJSON(t *testing.T) {
	recv, _ := newTestReceiver("")
	if err := recv.HandleWebhook(context.Background(), "telegram", []byte("{"), http.Header{}); err == nil {
		t.Error("expected an error for invalid JSON")
	}
}

func TestWebhookIgnoresEmptyUpdate(t *testing.T) {
	recv, rec := newTestReceiver("")
	if err := recv.HandleWebhook(context.Background(), "telegram", []byte(`{"update_id":5}`), http.Header{}); err != nil {
		t.Errorf("HandleWebhook() error: %v", err)
	}
	if len(rec.messages()) != 0 {
		t.Error("empty update should be dropped")
	}
}
