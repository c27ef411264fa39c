package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestGetMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTEST_TOKEN/getMe" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		writeJSON(t, w, APIResponse[User]{
			OK:     true,
			Result: User{ID: 123, IsBot: true, FirstName: "Omni", Username: "omni_bot"},
		})
	}))
	defer srv.Close()

	user, err := NewClient("TEST_TOKEN", srv.URL, nil).GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe() error: %v", err)
	}
	if user.ID != 123 || user.Username != "omni_bot" {
		t.Errorf("user = %+v", user)
	}
}

func TestSendMessageWithKeyboard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req SendMessageRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}
		if req.ChatID != 42 || req.Text != "pick a mode" {
			t.Errorf("request = %+v", req)
		}
		if req.ReplyMarkup == nil || len(req.ReplyMarkup.InlineKeyboard) != 1 {
			t.Fatalf("reply_markup missing: %s", body)
		}
		if got := req.ReplyMarkup.InlineKeyboard[0][0].CallbackData; got != "mode:summary" {
			t.Errorf("callback_data = %q", got)
		}
		writeJSON(t, w, APIResponse[Message]{OK: true, Result: Message{MessageID: 7}})
	}))
	defer srv.Close()

	msg, err := NewClient("TOKEN", srv.URL, nil).SendMessage(context.Background(), SendMessageRequest{
		ChatID: 42,
		Text:   "pick a mode",
		ReplyMarkup: &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{
			{{Text: "Summary", CallbackData: "mode:summary"}},
		}},
	})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if msg.MessageID != 7 {
		t.Errorf("MessageID = %d, want 7", msg.MessageID)
	}
}

func TestEditMessageTextInlineResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, APIResponse[bool]{OK: true, Result: true})
	}))
	defer srv.Close()

	msg, err := NewClient("TOKEN", srv.URL, nil).EditMessageText(context.Background(), EditMessageTextRequest{
		ChatID: 1, MessageID: 2, Text: "processing",
	})
	if err != nil {
		t.Fatalf("EditMessageText() error: %v", err)
	}
	if msg == nil {
		t.Fatal("expected a non-nil message")
	}
}

func TestAPIErrorReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(t, w, APIResponse[Message]{
			OK:          false,
			ErrorCode:   400,
			Description: "Bad Request: can't parse entities",
		})
	}))
	defer srv.Close()

	_, err := NewClient("TOKEN", srv.URL, nil).SendMessage(context.Background(), SendMessageRequest{ChatID: 1, Text: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Code != 400 {
		t.Errorf("Code = %d, want 400", apiErr.Code)
	}
	if !isBadRequest(err) {
		t.Error("isBadRequest() = false")
	}
}

func TestRetryOnTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			writeJSON(t, w, APIResponse[User]{
				ErrorCode:   429,
				Description: "Too Many Requests: retry after 1",
				Parameters:  &ResponseParameters{RetryAfter: 1},
			})
			return
		}
		writeJSON(t, w, APIResponse[User]{OK: true, Result: User{ID: 1}})
	}))
	defer srv.Close()

	if _, err := NewClient("TOKEN", srv.URL, nil).GetMe(context.Background()); err != nil {
		t.Fatalf("GetMe() error after retry: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestTransportErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient("SECRET_TOKEN", url, nil).GetMe(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if strings.Contains(err.Error(), "SECRET_TOKEN") {
		t.Errorf("error leaks the token: %v", err)
	}
}

func TestDownload(t *testing.T) {
	payload := strings.Repeat("a", 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file/botTOKEN/voice/file_1.oga" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, payload)
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL, nil)

	data, err := client.Download(context.Background(), "voice/file_1.oga", 100)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if string(data) != payload {
		t.Errorf("data = %q", data)
	}

	if _, err := client.Download(context.Background(), "voice/file_1.oga", 10); !errors.Is(err, errDownloadTooLarge) {
		t.Errorf("err = %v, want errDownloadTooLarge", err)
	}
}

func TestNewHTTPClientProxy(t *testing.T) {
	client, err := newHTTPClient("socks5://127.0.0.1:1080", 0)
	if err != nil {
		t.Fatalf("newHTTPClient() error: %v", err)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok || transport.Proxy == nil {
		t.Fatal("expected a proxied transport")
	}
	req, _ := http.NewRequest(http.MethodGet, "https://api.telegram.org", nil)
	u, err := transport.Proxy(req)
	if err != nil || u == nil || u.Scheme != "socks5" {
		t.Errorf("proxy = %v, %v", u, err)
	}
}

func TestAPIErrorString(t *testing.T) {
	err := &APIError{Code: 429, Description: "Too Many Requests", RetryAfter: 5}
	if got, want := err.Error(), "telegram: 429 Too Many Requests (retry after 5s)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
