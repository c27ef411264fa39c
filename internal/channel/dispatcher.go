package channel

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/flemzord/omnihear/pkg/message"
)

// Dispatcher routes outbound traffic to the channel an update came from,
// keyed by the channel name carried on messages.
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{channels: make(map[string]Channel)}
}

// Register adds a channel under the given name.
// Returns ErrDuplicateChannel if the name is already taken.
func (d *Dispatcher) Register(name string, ch Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.channels[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateChannel, name)
	}
	d.channels[name] = ch
	return nil
}

// Get returns the channel registered under name, or false if none.
func (d *Dispatcher) Get(name string) (Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[name]
	return ch, ok
}

func (d *Dispatcher) lookup(name string) (Channel, error) {
	ch, ok := d.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoChannel, name)
	}
	return ch, nil
}

// Send dispatches msg to the channel named by msg.Channel.
func (d *Dispatcher) Send(ctx context.Context, msg message.OutboundMessage) error {
	ch, err := d.lookup(msg.Channel)
	if err != nil {
		return err
	}
	return ch.Send(ctx, msg)
}

// FetchMedia downloads block through the named channel.
func (d *Dispatcher) FetchMedia(ctx context.Context, name string, block message.ContentBlock, maxBytes int64) ([]byte, error) {
	ch, err := d.lookup(name)
	if err != nil {
		return nil, err
	}
	f, ok := ch.(MediaFetcher)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot fetch media", ErrUnsupported, name)
	}
	return f.FetchMedia(ctx, block, maxBytes)
}

// AnswerCallback acknowledges a keyboard press. Channels without callbacks
// are ignored.
func (d *Dispatcher) AnswerCallback(ctx context.Context, name, callbackID, text string) error {
	ch, err := d.lookup(name)
	if err != nil {
		return err
	}
	if a, ok := ch.(CallbackAnswerer); ok {
		return a.AnswerCallback(ctx, callbackID, text)
	}
	return nil
}

// StartTyping runs a typing loop on the named channel until ctx is done.
// It does nothing for channels without chat actions.
func (d *Dispatcher) StartTyping(ctx context.Context, name string, chat message.Chat, action string) {
	ch, ok := d.Get(name)
	if !ok {
		return
	}
	if tc, ok := ch.(TypingChannel); ok {
		StartTypingLoop(ctx, tc, chat, action, DefaultTypingInterval)
	}
}

// Channels returns the sorted names of all registered channels.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	names := make([]string, 0, len(d.channels))
	for name := range d.channels {
		names = append(names, name)
	}
	d.mu.RUnlock()
	slices.Sort(names)
	return names
}
