// Package openaicompat provides the provider.groq and provider.sambanova
// modules. Both vendors expose the OpenAI chat completions API; each module
// contributes one chain entry per configured model, tried in order.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/flemzord/omnihear/internal/core"
	"github.com/flemzord/omnihear/internal/provider"
	"github.com/flemzord/omnihear/internal/provider/oaierr"
	"github.com/flemzord/omnihear/internal/security"
	openai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{preset: groqPreset})
	core.RegisterModule(&Module{preset: sambanovaPreset})
}

// Module is one OpenAI-compatible vendor.
type Module struct {
	preset preset
	config Config
	logger *slog.Logger

	keys    *provider.KeyRing
	clients []*openai.Client // indexed like keys.Keys()
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	p := m.preset
	return core.ModuleInfo{
		ID:  core.ModuleID(p.id),
		New: func() core.Module { return &Module{preset: p} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("%s: decode config: %w", m.preset.id, err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults(m.preset)
	m.logger = ctx.Logger

	if m.config.APIKey == "" && len(m.config.APIKeys) == 0 {
		m.config.APIKey = os.Getenv(m.config.APIKeyEnv)
	}

	keys, err := provider.NewKeyRing(m.config.keys()...)
	if err != nil {
		// Reported by Validate.
		return nil
	}
	m.keys = keys

	// No client-wide timeout: it would cut streams short. Each call gets
	// its own deadline from the context.
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: m.config.Timeout,
		},
	}

	creds, _ := core.Service[*security.CredentialStore](ctx, "security.credentials")
	for i, key := range keys.Keys() {
		cfg := openai.DefaultConfig(key)
		cfg.BaseURL = m.config.BaseURL
		cfg.HTTPClient = httpClient
		m.clients = append(m.clients, openai.NewClientWithConfig(cfg))
		if creds != nil {
			creds.Set(fmt.Sprintf("%s.key.%d", m.preset.name, i), key)
		}
	}
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate(m.preset.id)
}

// ChainEntries implements provider.EntrySource.
func (m *Module) ChainEntries() []provider.ChainEntry {
	entries := make([]provider.ChainEntry, 0, len(m.config.Models))
	for _, model := range m.config.Models {
		entries = append(entries, provider.ChainEntry{
			Name:        m.preset.name + "/" + model,
			Provider:    &modelProvider{mod: m, model: model},
			Role:        m.config.Role,
			Keys:        m.keys,
			Health:      m.config.Health,
			FallbackFor: m.config.FallbackFor,
		})
	}
	return entries
}

func (m *Module) client() *openai.Client {
	return m.clients[m.keys.Index()]
}

// modelProvider serves one model of the module.
type modelProvider struct {
	mod   *Module
	model string
}

func (p *modelProvider) request(req provider.CompletionRequest, stream bool) openai.ChatCompletionRequest {
	cfg := p.mod.config

	out := openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  make([]openai.ChatCompletionMessage, len(req.Messages)),
		MaxTokens: req.MaxTokens,
		Stop:      req.Stop,
		Stream:    stream,
	}
	for i, msg := range req.Messages {
		out.Messages[i] = openai.ChatCompletionMessage{Role: string(msg.Role), Content: msg.Content}
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = cfg.MaxTokens
	}
	temperature := req.Temperature
	if temperature == nil {
		temperature = cfg.Temperature
	}
	if temperature != nil {
		out.Temperature = float32(*temperature)
	}
	if req.TopP != nil {
		out.TopP = float32(*req.TopP)
	}
	if stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return out
}

// Complete implements provider.Provider.
func (p *modelProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	resp, err := p.mod.client().CreateChatCompletion(ctx, p.request(req, false))
	if err != nil {
		return provider.CompletionResponse{}, oaierr.Classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return provider.CompletionResponse{}, fmt.Errorf("%w: %s returned no choices", provider.ErrProviderDown, p.model)
	}

	choice := resp.Choices[0]
	model := resp.Model
	if model == "" {
		model = p.model
	}
	return provider.CompletionResponse{
		Content:      choice.Message.Content,
		Model:        model,
		FinishReason: mapFinishReason(choice.FinishReason),
		Usage: provider.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Stream implements provider.Provider.
func (p *modelProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	stream, err := p.mod.client().CreateChatCompletionStream(ctx, p.request(req, true))
	if err != nil {
		return nil, oaierr.Classify(ctx, err)
	}

	out := make(chan provider.StreamChunk, 16)
	go func() {
		defer close(out)
		defer stream.Close() //nolint:errcheck // best-effort close

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}

			var chunk provider.StreamChunk
			if err != nil {
				chunk.Err = oaierr.Classify(ctx, err)
			} else {
				if len(resp.Choices) > 0 {
					chunk.Content = resp.Choices[0].Delta.Content
					chunk.FinishReason = mapFinishReason(resp.Choices[0].FinishReason)
				}
				if resp.Usage != nil {
					chunk.Usage = &provider.TokenUsage{
						PromptTokens:     resp.Usage.PromptTokens,
						CompletionTokens: resp.Usage.CompletionTokens,
						TotalTokens:      resp.Usage.TotalTokens,
					}
				}
			}

			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}

// ModelName implements provider.Provider.
func (p *modelProvider) ModelName() string {
	return p.model
}

// HealthCheck implements provider.HealthChecker by listing models.
func (p *modelProvider) HealthCheck(ctx context.Context) error {
	if _, err := p.mod.client().ListModels(ctx); err != nil {
		return oaierr.Classify(ctx, err)
	}
	return nil
}

func mapFinishReason(reason openai.FinishReason) provider.FinishReason {
	switch reason {
	case openai.FinishReasonStop:
		return provider.FinishReasonStop
	case openai.FinishReasonLength:
		return provider.FinishReasonLength
	case openai.FinishReasonContentFilter:
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReason(reason)
	}
}

// Compile-time interface assertions.
var (
	_ core.Module            = (*Module)(nil)
	_ core.Configurable      = (*Module)(nil)
	_ core.Provisioner       = (*Module)(nil)
	_ core.Validator         = (*Module)(nil)
	_ provider.EntrySource   = (*Module)(nil)
	_ provider.Provider      = (*modelProvider)(nil)
	_ provider.HealthChecker = (*modelProvider)(nil)
)
