package provider

import "context"

// Provider is the interface for talking to a language model. Concrete
// implementations live in module packages (e.g. provider.groq).
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Stream sends a completion request and returns a channel of chunks.
	// Connection errors are returned directly; mid-stream errors arrive
	// through StreamChunk.Err.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// HealthChecker is implemented by providers that support active probing.
// The chain health-checks providers that are in cooldown or marked dead.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EntrySource is implemented by provider modules. The wiring step collects
// the entries of every loaded source, in module order, into one Chain.
type EntrySource interface {
	ChainEntries() []ChainEntry
}
