// Package groq provides the stt.groq module: Whisper transcription over
// Groq's OpenAI-compatible audio endpoint.
package groq

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/flemzord/omnihear/internal/core"
	"github.com/flemzord/omnihear/internal/media"
	"github.com/flemzord/omnihear/internal/provider"
	"github.com/flemzord/omnihear/internal/provider/oaierr"
	"github.com/flemzord/omnihear/internal/security"
	"github.com/flemzord/omnihear/internal/transcribe"
	openai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"
)

const (
	moduleID = "stt.groq"
	name     = "groq"
)

func init() {
	core.RegisterModule(&Module{})
}

// Config holds the stt.groq settings.
type Config struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	// Prompt biases Whisper towards vocabulary it would otherwise miss.
	Prompt      string                `yaml:"prompt"`
	Temperature float32               `yaml:"temperature"`
	MaxFileSize int64                 `yaml:"max_file_size"`
	Timeout     time.Duration         `yaml:"timeout"`
	Health      provider.HealthConfig `yaml:"health"`
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.groq.com/openai/v1"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "GROQ_API_KEY"
	}
	if c.Model == "" {
		c.Model = "whisper-large-v3"
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 25 << 20
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
}

func (c *Config) validate() error {
	var errs []error
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("%s: base_url must be an http or https URL, got %q", moduleID, c.BaseURL))
	}
	if c.APIKey == "" {
		errs = append(errs, fmt.Errorf("%s: api_key is required (or set %s)", moduleID, c.APIKeyEnv))
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		errs = append(errs, fmt.Errorf("%s: temperature must be within [0, 1]", moduleID))
	}
	return errors.Join(errs...)
}

// Module transcribes audio with Groq Whisper.
type Module struct {
	config Config
	logger *slog.Logger
	client *openai.Client
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  moduleID,
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("%s: decode config: %w", moduleID, err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	if m.config.APIKey == "" {
		m.config.APIKey = os.Getenv(m.config.APIKeyEnv)
	}
	if m.config.APIKey == "" {
		return nil
	}

	cfg := openai.DefaultConfig(m.config.APIKey)
	cfg.BaseURL = m.config.BaseURL
	cfg.HTTPClient = &http.Client{
		Timeout:   m.config.Timeout,
		Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
	}
	m.client = openai.NewClientWithConfig(cfg)

	if creds, ok := core.Service[*security.CredentialStore](ctx, "security.credentials"); ok {
		creds.Set("stt.groq.key", m.config.APIKey)
	}
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// TranscribeEntry implements transcribe.Source.
func (m *Module) TranscribeEntry() transcribe.Entry {
	return transcribe.Entry{Name: name, Transcriber: m, Health: m.config.Health}
}

// Transcribe implements transcribe.Transcriber.
func (m *Module) Transcribe(ctx context.Context, audio transcribe.Audio) (transcribe.Transcript, error) {
	if int64(len(audio.Data)) > m.config.MaxFileSize {
		return transcribe.Transcript{}, fmt.Errorf("%w: %d bytes exceeds the %d byte upload limit",
			transcribe.ErrUnsupportedAudio, len(audio.Data), m.config.MaxFileSize)
	}

	// The file name carries the container type; Groq rejects names
	// without a known extension.
	fileName := audio.FileName
	if fileName == "" || !strings.Contains(fileName, ".") {
		fileName = "audio" + media.ExtensionFor(audio.MIMEType)
	}

	start := time.Now()
	resp, err := m.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       m.config.Model,
		FilePath:    fileName,
		Reader:      bytes.NewReader(audio.Data),
		Prompt:      m.config.Prompt,
		Temperature: m.config.Temperature,
		Language:    audio.Language,
		Format:      openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return transcribe.Transcript{}, classify(ctx, err)
	}

	m.logger.Debug("groq transcription done",
		"model", m.config.Model,
		"bytes", len(audio.Data),
		"language", resp.Language,
		"elapsed", time.Since(start),
	)

	language := normalizeLanguage(resp.Language)
	if language == "" {
		language = audio.Language
	}
	return transcribe.Transcript{
		Text:     resp.Text,
		Language: language,
		Duration: time.Duration(resp.Duration * float64(time.Second)),
	}, nil
}

// HealthCheck implements provider.HealthChecker by listing models.
func (m *Module) HealthCheck(ctx context.Context) error {
	if _, err := m.client.ListModels(ctx); err != nil {
		return oaierr.Classify(ctx, err)
	}
	return nil
}

// classify maps format rejections to ErrUnsupportedAudio so the chain can
// hand the file to the next backend.
func classify(ctx context.Context, err error) error {
	if oaierr.StatusCode(err) == http.StatusBadRequest {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "file must be one of") ||
			strings.Contains(msg, "could not process file") ||
			strings.Contains(msg, "invalid file format") {
			return fmt.Errorf("%w: %v", transcribe.ErrUnsupportedAudio, err)
		}
	}
	return oaierr.Classify(ctx, err)
}

// Whisper reports full language names in verbose mode ("english").
var languageCodes = map[string]string{
	"english":    "en",
	"persian":    "fa",
	"farsi":      "fa",
	"arabic":     "ar",
	"french":     "fr",
	"german":     "de",
	"spanish":    "es",
	"italian":    "it",
	"russian":    "ru",
	"turkish":    "tr",
	"chinese":    "zh",
	"japanese":   "ja",
	"korean":     "ko",
	"portuguese": "pt",
	"hindi":      "hi",
	"urdu":       "ur",
	"dutch":      "nl",
}

func normalizeLanguage(lang string) string {
	l := strings.ToLower(strings.TrimSpace(lang))
	if code, ok := languageCodes[l]; ok {
		return code
	}
	if len(l) == 2 {
		return l
	}
	return ""
}

var (
	_ core.Module            = (*Module)(nil)
	_ core.Configurable      = (*Module)(nil)
	_ core.Provisioner       = (*Module)(nil)
	_ core.Validator         = (*Module)(nil)
	_ provider.HealthChecker = (*Module)(nil)
	_ transcribe.Source      = (*Module)(nil)
	_ transcribe.Transcriber = (*Module)(nil)
)
