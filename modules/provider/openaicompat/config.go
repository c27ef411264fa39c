package openaicompat

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/flemzord/omnihear/internal/provider"
)

// preset carries the per-vendor defaults of one module ID.
type preset struct {
	id        string
	name      string
	baseURL   string
	apiKeyEnv string
	models    []string
	role      provider.Role
}

var (
	groqPreset = preset{
		id:        "provider.groq",
		name:      "groq",
		baseURL:   "https://api.groq.com/openai/v1",
		apiKeyEnv: "GROQ_API_KEY",
		models:    []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"},
		role:      provider.RolePrimary,
	}
	sambanovaPreset = preset{
		id:        "provider.sambanova",
		name:      "sambanova",
		baseURL:   "https://api.sambanova.ai/v1",
		apiKeyEnv: "SAMBANOVA_API_KEY",
		models:    []string{"Meta-Llama-3.3-70B-Instruct", "Meta-Llama-3.1-8B-Instruct"},
		role:      provider.RoleFallback,
	}
)

// Config holds the configuration of an OpenAI-compatible provider module.
type Config struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// APIKeys lists extra keys rotated through on rate limits.
	APIKeys     []string              `yaml:"api_keys"`
	APIKeyEnv   string                `yaml:"api_key_env"`
	Models      []string              `yaml:"models"`
	Role        provider.Role         `yaml:"role"`
	FallbackFor []provider.Role       `yaml:"fallback_for"`
	MaxTokens   int                   `yaml:"max_tokens"`
	Temperature *float64              `yaml:"temperature"`
	Timeout     time.Duration         `yaml:"timeout"`
	Health      provider.HealthConfig `yaml:"health"`
}

func (c *Config) defaults(p preset) {
	if c.BaseURL == "" {
		c.BaseURL = p.baseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = p.apiKeyEnv
	}
	if len(c.Models) == 0 {
		c.Models = p.models
	}
	if c.Role == "" {
		c.Role = p.role
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout <= 0 {
		c.Timeout = 90 * time.Second
	}
}

// keys returns every configured key, the primary one first.
func (c *Config) keys() []string {
	return append([]string{c.APIKey}, c.APIKeys...)
}

func (c *Config) validate(id string) error {
	var errs []error
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("%s: base_url must be an http or https URL, got %q", id, c.BaseURL))
	}
	if c.APIKey == "" && len(c.APIKeys) == 0 {
		errs = append(errs, fmt.Errorf("%s: api_key is required (or set %s)", id, c.APIKeyEnv))
	}
	for i, m := range c.Models {
		if strings.TrimSpace(m) == "" {
			errs = append(errs, fmt.Errorf("%s: models[%d] is empty", id, i))
		}
	}
	if c.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("%s: max_tokens must not be negative", id))
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		errs = append(errs, fmt.Errorf("%s: temperature must be within [0, 2]", id))
	}
	return errors.Join(errs...)
}
