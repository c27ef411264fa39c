// Package genius provides the lyrics.genius module, a song search over the
// Genius API.
package genius

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/flemzord/omnihear/internal/core"
	"github.com/flemzord/omnihear/internal/lyrics"
	"github.com/flemzord/omnihear/internal/provider"
	"github.com/flemzord/omnihear/internal/security"
	"gopkg.in/yaml.v3"
)

const moduleID = "lyrics.genius"

func init() {
	core.RegisterModule(&Module{})
}

// Config holds the lyrics.genius settings.
type Config struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.genius.com"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "GENIUS_API_KEY"
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
}

// Module searches Genius.
type Module struct {
	config Config
	logger *slog.Logger
	http   *http.Client
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
	m.http = &http.Client{
		Timeout:   m.config.Timeout,
		Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
	}
	if creds, ok := core.Service[*security.CredentialStore](ctx, "security.credentials"); ok && m.config.APIKey != "" {
		creds.Set("lyrics.genius.key", m.config.APIKey)
	}
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	var errs []error
	if m.config.APIKey == "" {
		errs = append(errs, fmt.Errorf("%s: api_key is required (or set %s)", moduleID, m.config.APIKeyEnv))
	}
	if u, err := url.Parse(m.config.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("%s: base_url must be an http or https URL, got %q", moduleID, m.config.BaseURL))
	}
	return errors.Join(errs...)
}

type searchResponse struct {
	Meta struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"meta"`
	Response struct {
		Hits []struct {
			Type   string `json:"type"`
			Result struct {
				Title         string `json:"title"`
				URL           string `json:"url"`
				Thumbnail     string `json:"song_art_image_thumbnail_url"`
				PrimaryArtist struct {
					Name string `json:"name"`
				} `json:"primary_artist"`
			} `json:"result"`
		} `json:"hits"`
	} `json:"response"`
}

// Search implements lyrics.Searcher. Results keep the API's relevance order.
func (m *Module) Search(ctx context.Context, query string) ([]lyrics.Song, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, lyrics.ErrNotFound
	}

	endpoint := m.config.BaseURL + "/search?" + url.Values{"q": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("genius: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: genius search: %w", provider.ErrProviderDown, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: genius: read response: %w", provider.ErrProviderDown, err)
	}

	var out searchResponse
	decodeErr := json.Unmarshal(body, &out)
	if resp.StatusCode != http.StatusOK {
		detail := out.Meta.Message
		if decodeErr != nil || detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return nil, provider.StatusError(resp.StatusCode, "genius: "+detail)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("genius: decode response: %w", decodeErr)
	}

	songs := make([]lyrics.Song, 0, m.config.MaxResults)
	for _, hit := range out.Response.Hits {
		if hit.Type != "song" {
			continue
		}
		songs = append(songs, lyrics.Song{
			Title:     hit.Result.Title,
			Artist:    hit.Result.PrimaryArtist.Name,
			URL:       hit.Result.URL,
			Thumbnail: hit.Result.Thumbnail,
		})
		if len(songs) == m.config.MaxResults {
			break
		}
	}
	m.logger.Debug("genius search", "query_words", len(strings.Fields(query)), "hits", len(songs))
	if len(songs) == 0 {
		return nil, lyrics.ErrNotFound
	}
	return songs, nil
}

var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ lyrics.Searcher   = (*Module)(nil)
)
