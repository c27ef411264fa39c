// Package channeltest provides an in-memory channel for tests.
package channeltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/flemzord/omnihear/internal/channel"
	"github.com/flemzord/omnihear/internal/core"
	"github.com/flemzord/omnihear/pkg/message"
)

// MockChannel records outbound traffic and serves media from a map keyed by
// block URL.
type MockChannel struct {
	name string

	mu        sync.Mutex
	inbox     func(message.InboundMessage) error
	sent      []message.OutboundMessage
	callbacks []string
	toasts    map[string]string
	media     map[string][]byte

	// SendFunc, if set, replaces the recording behavior of Send.
	SendFunc func(ctx context.Context, msg message.OutboundMessage) error
	// FetchFunc, if set, replaces the map lookup of FetchMedia.
	FetchFunc func(ctx context.Context, block message.ContentBlock, maxBytes int64) ([]byte, error)

	// Notify receives every sent message when non-nil.
	Notify chan message.OutboundMessage
}

var (
	_ channel.Channel          = (*MockChannel)(nil)
	_ channel.MediaFetcher     = (*MockChannel)(nil)
	_ channel.CallbackAnswerer = (*MockChannel)(nil)
	_ channel.TypingChannel    = (*MockChannel)(nil)
)

// New creates a MockChannel registered as "channel.<name>".
func New(name string) *MockChannel {
	return &MockChannel{name: name, media: make(map[string][]byte), toasts: make(map[string]string)}
}

// ModuleInfo implements core.Module.
func (m *MockChannel) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID("channel." + m.name),
		New: func() core.Module { return New(m.name) },
	}
}

// Send implements channel.Channel.
func (m *MockChannel) Send(ctx context.Context, msg message.OutboundMessage) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	notify := m.Notify
	m.mu.Unlock()

	if notify != nil {
		notify <- msg
	}
	return nil
}

// SetInbox implements channel.Channel.
func (m *MockChannel) SetInbox(fn func(message.InboundMessage) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbox = fn
}

// SendTyping implements channel.TypingChannel.
func (m *MockChannel) SendTyping(context.Context, message.Chat, string) error { return nil }

// AnswerCallback implements channel.CallbackAnswerer.
func (m *MockChannel) AnswerCallback(_ context.Context, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, id)
	if text != "" {
		m.toasts[id] = text
	}
	return nil
}

// FetchMedia implements channel.MediaFetcher.
func (m *MockChannel) FetchMedia(ctx context.Context, block message.ContentBlock, maxBytes int64) ([]byte, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, block, maxBytes)
	}
	m.mu.Lock()
	data, ok := m.media[block.URL]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("channeltest: no media at %s", block.URL)
	}
	if int64(len(data)) > maxBytes {
		return nil, channel.ErrFileTooLarge
	}
	return data, nil
}

// PutMedia stores data served for url.
func (m *MockChannel) PutMedia(url string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.media[url] = data
}

// Deliver pushes msg into the inbox as if it came from the platform.
func (m *MockChannel) Deliver(msg message.InboundMessage) error {
	m.mu.Lock()
	inbox := m.inbox
	m.mu.Unlock()
	if inbox == nil {
		return channel.ErrNoInbox
	}
	msg.Channel = m.name
	return inbox(msg)
}

// Sent returns a copy of the outbound messages recorded so far.
func (m *MockChannel) Sent() []message.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]message.OutboundMessage(nil), m.sent...)
}

// Callbacks returns the callback IDs answered so far.
func (m *MockChannel) Callbacks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.callbacks...)
}

// Toast returns the text shown when callback id was answered.
func (m *MockChannel) Toast(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.toasts[id]
}
