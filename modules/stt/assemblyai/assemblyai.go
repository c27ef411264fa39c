// Package assemblyai provides the stt.assemblyai module. Audio is uploaded,
// a transcript job is created, and the job is polled until it settles.
package assemblyai

import (
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
	"github.com/flemzord/omnihear/internal/provider"
	"github.com/flemzord/omnihear/internal/security"
	"github.com/flemzord/omnihear/internal/transcribe"
	"gopkg.in/yaml.v3"
)

const (
	moduleID = "stt.assemblyai"
	name     = "assemblyai"
)

// ErrTimeout is returned when a transcript job does not settle in time.
var ErrTimeout = errors.New("assemblyai: transcript not ready before timeout")

func init() {
	core.RegisterModule(&Module{})
}

// Config holds the stt.assemblyai settings.
type Config struct {
	BaseURL      string                `yaml:"base_url"`
	APIKey       string                `yaml:"api_key"`
	APIKeyEnv    string                `yaml:"api_key_env"`
	SpeechModel  string                `yaml:"speech_model"`
	PollInterval time.Duration         `yaml:"poll_interval"`
	Timeout      time.Duration         `yaml:"timeout"`
	Health       provider.HealthConfig `yaml:"health"`
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.assemblyai.com"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "ASSEMBLYAI_API_KEY"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
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
	if c.PollInterval > c.Timeout {
		errs = append(errs, fmt.Errorf("%s: poll_interval must not exceed timeout", moduleID))
	}
	return errors.Join(errs...)
}

// Module transcribes audio with AssemblyAI.
type Module struct {
	config Config
	logger *slog.Logger
	client *client
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

	m.client = &client{
		baseURL: m.config.BaseURL,
		apiKey:  m.config.APIKey,
		http: &http.Client{
			Timeout:   m.config.Timeout,
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
		},
	}

	if creds, ok := core.Service[*security.CredentialStore](ctx, "security.credentials"); ok && m.config.APIKey != "" {
		creds.Set("stt.assemblyai.key", m.config.APIKey)
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
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	uploadURL, err := m.client.upload(ctx, audio.Data)
	if err != nil {
		return transcribe.Transcript{}, m.wrap(ctx, "upload", err)
	}

	req := transcriptRequest{
		AudioURL:    uploadURL,
		SpeechModel: m.config.SpeechModel,
		Punctuate:   true,
		FormatText:  true,
	}
	if audio.Language != "" {
		req.LanguageCode = audio.Language
	} else {
		req.LanguageDetection = true
	}

	job, err := m.client.create(ctx, req)
	if err != nil {
		return transcribe.Transcript{}, m.wrap(ctx, "create transcript", err)
	}
	m.logger.Debug("assemblyai job created", "id", job.ID, "bytes", len(audio.Data))

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()
	for {
		switch job.Status {
		case statusCompleted:
			return toTranscript(job, audio.Language), nil
		case statusError:
			return transcribe.Transcript{}, jobError(job)
		case statusQueued, statusProcessing, "":
		default:
			return transcribe.Transcript{}, fmt.Errorf("assemblyai: job %s has unknown status %q", job.ID, job.Status)
		}

		select {
		case <-ctx.Done():
			return transcribe.Transcript{}, m.wrap(ctx, "poll", ctx.Err())
		case <-ticker.C:
		}

		if job, err = m.client.get(ctx, job.ID); err != nil {
			return transcribe.Transcript{}, m.wrap(ctx, "poll", err)
		}
	}
}

// HealthCheck implements provider.HealthChecker.
func (m *Module) HealthCheck(ctx context.Context) error {
	return m.client.ping(ctx)
}

// wrap turns our own deadline into ErrTimeout, counted as an outage, while
// leaving cancellation by the caller untouched.
func (m *Module) wrap(ctx context.Context, step string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w after %s (%s)", provider.ErrProviderDown, ErrTimeout, m.config.Timeout, step)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func toTranscript(job transcriptResponse, hint string) transcribe.Transcript {
	tr := transcribe.Transcript{Text: job.Text, Language: job.LanguageCode}
	if tr.Language == "" {
		tr.Language = hint
	}
	// Codes like "en_us" collapse to the ISO 639-1 part.
	if base, _, ok := strings.Cut(tr.Language, "_"); ok {
		tr.Language = base
	}
	if job.AudioDuration != nil {
		tr.Duration = time.Duration(*job.AudioDuration * float64(time.Second))
	}
	return tr
}

func jobError(job transcriptResponse) error {
	msg := strings.ToLower(job.Error)
	if strings.Contains(msg, "does not appear to contain audio") ||
		strings.Contains(msg, "transcoding failed") ||
		strings.Contains(msg, "unsupported") {
		return fmt.Errorf("%w: assemblyai: %s", transcribe.ErrUnsupportedAudio, job.Error)
	}
	if strings.Contains(msg, "no spoken audio") {
		return fmt.Errorf("%w: %s", transcribe.ErrEmptyTranscript, job.Error)
	}
	return fmt.Errorf("assemblyai: job %s failed: %s", job.ID, job.Error)
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
