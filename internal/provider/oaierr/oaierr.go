// Package oaierr maps errors from the go-openai client onto the provider
// sentinels. It is shared by every backend speaking the OpenAI API.
package oaierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/flemzord/omnihear/internal/provider"
	openai "github.com/sashabaranov/go-openai"
)

// Classify wraps err with the matching provider sentinel. Caller
// cancellation is returned as the context error so it never counts against
// backend health.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusBadRequest && IsContextLength(apiErr.Message) {
			return fmt.Errorf("%w: %s", provider.ErrContextLength, apiErr.Message)
		}
		return provider.StatusError(apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode != 0 {
			return provider.StatusError(reqErr.HTTPStatusCode, reqErr.Error())
		}
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, reqErr.Err)
	}

	return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
}

// IsContextLength reports whether an API message describes an oversized
// prompt.
func IsContextLength(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "context_length_exceeded") ||
		strings.Contains(lower, "context length") ||
		strings.Contains(lower, "maximum context") ||
		strings.Contains(lower, "too many tokens")
}

// StatusCode returns the HTTP status carried by a go-openai error, or 0.
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
