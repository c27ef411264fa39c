package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/flemzord/omnihear/internal/provider"
)

const maxResponseBytes = 4 << 20

// Transcript statuses reported by the API.
const (
	statusQueued     = "queued"
	statusProcessing = "processing"
	statusCompleted  = "completed"
	statusError      = "error"
)

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL          string `json:"audio_url"`
	LanguageCode      string `json:"language_code,omitempty"`
	LanguageDetection bool   `json:"language_detection,omitempty"`
	SpeechModel       string `json:"speech_model,omitempty"`
	Punctuate         bool   `json:"punctuate"`
	FormatText        bool   `json:"format_text"`
}

type transcriptResponse struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	Text          string   `json:"text"`
	LanguageCode  string   `json:"language_code"`
	AudioDuration *float64 `json:"audio_duration"`
	Error         string   `json:"error"`
}

type apiError struct {
	Error string `json:"error"`
}

// client speaks the AssemblyAI v2 REST API.
type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func (c *client) upload(ctx context.Context, data []byte) (string, error) {
	var out uploadResponse
	if err := c.do(ctx, http.MethodPost, "/v2/upload", "application/octet-stream", bytes.NewReader(data), &out); err != nil {
		return "", err
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("%w: upload returned no url", provider.ErrProviderDown)
	}
	return out.UploadURL, nil
}

func (c *client) create(ctx context.Context, req transcriptRequest) (transcriptResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return transcriptResponse{}, fmt.Errorf("assemblyai: marshal transcript request: %w", err)
	}
	var out transcriptResponse
	err = c.do(ctx, http.MethodPost, "/v2/transcript", "application/json", bytes.NewReader(body), &out)
	return out, err
}

func (c *client) get(ctx context.Context, id string) (transcriptResponse, error) {
	var out transcriptResponse
	err := c.do(ctx, http.MethodGet, "/v2/transcript/"+id, "", nil, &out)
	return out, err
}

// ping lists the most recent transcript, which needs a valid key and
// touches no audio.
func (c *client) ping(ctx context.Context) error {
	var out struct {
		Transcripts []json.RawMessage `json:"transcripts"`
	}
	return c.do(ctx, http.MethodGet, "/v2/transcript?limit=1", "", nil, &out)
}

func (c *client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("assemblyai: create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %w", provider.ErrProviderDown, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s response: %w", provider.ErrProviderDown, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(data)
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			detail = apiErr.Error
		}
		return provider.StatusError(resp.StatusCode, "assemblyai: "+detail)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", provider.ErrProviderDown, path, err)
	}
	return nil
}
