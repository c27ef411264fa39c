// Package transcribetest provides test doubles for the transcribe package.
package transcribetest

import (
	"context"
	"sync"

	"github.com/flemzord/omnihear/internal/provider"
	"github.com/flemzord/omnihear/internal/transcribe"
)

// MockTranscriber returns Text, or the result of Func when set. Its health
// check delegates to HealthFunc and passes when that is unset.
type MockTranscriber struct {
	Text       string
	Func       func(ctx context.Context, audio transcribe.Audio) (transcribe.Transcript, error)
	HealthFunc func(ctx context.Context) error

	mu    sync.Mutex
	calls []transcribe.Audio
}

// Transcribe records audio and answers.
func (m *MockTranscriber) Transcribe(ctx context.Context, audio transcribe.Audio) (transcribe.Transcript, error) {
	m.mu.Lock()
	m.calls = append(m.calls, audio)
	m.mu.Unlock()

	if m.Func != nil {
		return m.Func(ctx, audio)
	}
	return transcribe.Transcript{Text: m.Text, Language: audio.Language}, nil
}

// HealthCheck implements provider.HealthChecker.
func (m *MockTranscriber) HealthCheck(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Calls returns a copy of every audio received.
func (m *MockTranscriber) Calls() []transcribe.Audio {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transcribe.Audio(nil), m.calls...)
}

var (
	_ transcribe.Transcriber = (*MockTranscriber)(nil)
	_ provider.HealthChecker = (*MockTranscriber)(nil)
)
