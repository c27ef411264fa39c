package groq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flemzord/omnihear/internal/core"
	"github.com/flemzord/omnihear/internal/provider"
	"github.com/flemzord/omnihear/internal/security"
	"github.com/flemzord/omnihear/internal/transcribe"
	"gopkg.in/yaml.v3"
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

func newTestModule(t *testing.T, baseURL string) (*Module, *security.CredentialStore) {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte("api_key: gsk-test-key\nbase_url: "+baseURL+"\n"), &doc); err != nil {
		t.Fatalf("parse yaml: %v", err)
	}

	m := &Module{}
	if err := m.Configure(doc.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	appCtx := core.NewAppContext(discardLogger(), t.TempDir())
	creds := security.NewCredentialStore()
	appCtx.RegisterService("security.credentials", creds)
	if err := m.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return m, creds
}

type uploaded struct {
	fileName string
	body     string
	model    string
	language string
	format   string
	auth     string
}

func fakeWhisper(t *testing.T, got chan<- uploaded, status int, reply any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		data, _ := io.ReadAll(file)
		got <- uploaded{
			fileName: header.Filename,
			body:     string(data),
			model:    r.FormValue("model"),
			language: r.FormValue("language"),
			format:   r.FormValue("response_format"),
			auth:     r.Header.Get("Authorization"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(reply); err != nil {
			t.Errorf("encode: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTranscribe(t *testing.T) {
	got := make(chan uploaded, 1)
	srv := fakeWhisper(t, got, http.StatusOK, map[string]any{
		"task":     "transcribe",
		"language": "persian",
		"duration": 3.5,
		"text":     " salam donya ",
	})
	m, creds := newTestModule(t, srv.URL)

	tr, err := m.Transcribe(context.Background(), transcribe.Audio{
		Data:     []byte("OggS-data"),
		MIMEType: "audio/ogg",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != " salam donya " {
		t.Errorf("Text = %q", tr.Text)
	}
	if tr.Language != "fa" {
		t.Errorf("Language = %q, want fa", tr.Language)
	}
	if tr.Duration.Seconds() != 3.5 {
		t.Errorf("Duration = %v", tr.Duration)
	}

	up := <-got
	if up.fileName != "audio.ogg" {
		t.Errorf("file name = %q, want audio.ogg", up.fileName)
	}
	if up.body != "OggS-data" {
		t.Errorf("body = %q", up.body)
	}
	if up.model != "whisper-large-v3" || up.format != "verbose_json" {
		t.Errorf("model=%q format=%q", up.model, up.format)
	}
	if up.language != "" {
		t.Errorf("language = %q, want none", up.language)
	}
	if up.auth != "Bearer gsk-test-key" {
		t.Errorf("auth = %q", up.auth)
	}
	if v, _ := creds.Get("stt.groq.key"); v != "gsk-test-key" {
		t.Error("key should be registered for redaction")
	}
}

func TestTranscribeLanguageHint(t *testing.T) {
	got := make(chan uploaded, 1)
	srv := fakeWhisper(t, got, http.StatusOK, map[string]any{"text": "bonjour"})
	m, _ := newTestModule(t, srv.URL)

	tr, err := m.Transcribe(context.Background(), transcribe.Audio{
		Data:     []byte("x"),
		MIMEType: "audio/mpeg",
		FileName: "song.mp3",
		Language: "fr",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	up := <-got
	if up.language != "fr" || up.fileName != "song.mp3" {
		t.Errorf("language=%q file=%q", up.language, up.fileName)
	}
	if tr.Language != "fr" {
		t.Errorf("Language = %q, want the hint back", tr.Language)
	}
}

func TestTranscribeErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    error
	}{
		{"rate limit", http.StatusTooManyRequests, "rate limit reached", provider.ErrRateLimit},
		{"down", http.StatusServiceUnavailable, "over capacity", provider.ErrProviderDown},
		{"auth", http.StatusUnauthorized, "invalid api key", provider.ErrAuth},
		{"format", http.StatusBadRequest, "file must be one of the following types: [flac mp3 mp4]", transcribe.ErrUnsupportedAudio},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make(chan uploaded, 1)
			srv := fakeWhisper(t, got, tt.status, map[string]any{
				"error": map[string]any{"message": tt.message, "type": "invalid_request_error"},
			})
			m, _ := newTestModule(t, srv.URL)

			_, err := m.Transcribe(context.Background(), transcribe.Audio{Data: []byte("x"), MIMEType: "audio/ogg"})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTranscribeTooLarge(t *testing.T) {
	m, _ := newTestModule(t, "http://127.0.0.1:1")
	m.config.MaxFileSize = 4

	_, err := m.Transcribe(context.Background(), transcribe.Audio{Data: []byte("12345")})
	if !errors.Is(err, transcribe.ErrUnsupportedAudio) {
		t.Fatalf("err = %v, want ErrUnsupportedAudio", err)
	}
}

func TestValidateRequiresKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")

	m := &Module{}
	if err := m.Provision(core.NewAppContext(discardLogger(), t.TempDir())); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := m.Validate(); err == nil {
		t.Fatal("Validate should fail without a key")
	}
}

func TestKeyFromEnv(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "from-env")

	m := &Module{}
	if err := m.Provision(core.NewAppContext(discardLogger(), t.TempDir())); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if m.config.APIKey != "from-env" || m.client == nil {
		t.Fatal("key should come from GROQ_API_KEY")
	}
	if e := m.TranscribeEntry(); e.Name != "groq" || e.Transcriber != m {
		t.Errorf("entry = %+v", e)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"English": "en",
		"persian": "fa",
		"de":      "de",
		"klingon": "",
		"":        "",
	} {
		if got := normalizeLanguage(in); got != want {
			t.Errorf("normalizeLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"ok", http.StatusOK, nil},
		{"rate limit", http.StatusTooManyRequests, provider.ErrRateLimit},
		{"down", http.StatusBadGateway, provider.ErrProviderDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/models" {
					http.NotFound(w, r)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				if tt.status != http.StatusOK {
					writeJSON(t, w, map[string]any{"error": map[string]any{"message": "unavailable"}})
					return
				}
				writeJSON(t, w, map[string]any{"object": "list", "data": []any{
					map[string]any{"id": "whisper-large-v3", "object": "model"},
				}})
			}))
			t.Cleanup(srv.Close)
			m, _ := newTestModule(t, srv.URL)

			if err := m.HealthCheck(context.Background()); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
