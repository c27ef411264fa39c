package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared by every upstream API client.
var (
	// ErrRateLimit indicates the upstream returned a rate limit response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrContextLength indicates the prompt exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrProviderDown indicates the upstream is temporarily unavailable.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrAuth indicates the upstream rejected the API key.
	ErrAuth = errors.New("provider authentication failed")

	// ErrAllProviders indicates every chain entry has been exhausted.
	ErrAllProviders = errors.New("all providers failed")

	// ErrNoProvider indicates no provider is configured for the role.
	ErrNoProvider = errors.New("no provider configured")
)

// IsRetryable reports whether the error is transient and the request can
// be retried with another provider or after a delay.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}

// IsRateLimit reports whether err is or wraps ErrRateLimit.
func IsRateLimit(err error) bool {
	return errors.Is(err, ErrRateLimit)
}

// shouldFailover reports whether the chain tries the next entry after err.
// A context length error is not a health problem, but a later model may
// have a larger window.
func shouldFailover(err error) bool {
	return IsRetryable(err) || errors.Is(err, ErrContextLength)
}

// StatusError maps an HTTP status from an upstream API to a sentinel,
// wrapped with detail. It returns nil for 2xx statuses.
func StatusError(status int, detail string) error {
	var sentinel error
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		sentinel = ErrRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		sentinel = ErrAuth
	case status == http.StatusRequestEntityTooLarge:
		sentinel = ErrContextLength
	case status >= 500 || status == http.StatusRequestTimeout:
		sentinel = ErrProviderDown
	default:
		return fmt.Errorf("upstream HTTP %d: %s", status, detail)
	}
	return fmt.Errorf("%w: HTTP %d: %s", sentinel, status, detail)
}
