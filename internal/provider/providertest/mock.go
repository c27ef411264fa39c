// Package providertest provides test doubles for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/flemzord/omnihear/internal/provider"
)

// MockProvider is a configurable provider.Provider. Nil funcs fall back to
// a fixed reply of Reply.
type MockProvider struct {
	Model           string
	Reply           string
	CompleteFunc    func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	HealthCheckFunc func(ctx context.Context) error

	mu       sync.Mutex
	requests []provider.CompletionRequest
}

// Complete records req and delegates to CompleteFunc.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return provider.CompletionResponse{Content: m.Reply, Model: m.Model, FinishReason: provider.FinishReasonStop}, nil
}

// Stream emits the Complete result as a single chunk.
func (m *MockProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan provider.StreamChunk, 1)
	ch <- provider.StreamChunk{Content: resp.Content, FinishReason: resp.FinishReason}
	close(ch)
	return ch, nil
}

// ModelName returns Model.
func (m *MockProvider) ModelName() string {
	return m.Model
}

// HealthCheck delegates to HealthCheckFunc, succeeding when unset.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc != nil {
		return m.HealthCheckFunc(ctx)
	}
	return nil
}

// Requests returns a copy of every request received.
func (m *MockProvider) Requests() []provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.CompletionRequest(nil), m.requests...)
}

// Interface guards.
var (
	_ provider.Provider      = (*MockProvider)(nil)
	_ provider.HealthChecker = (*MockProvider)(nil)
)
