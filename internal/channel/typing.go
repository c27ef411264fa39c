package channel

import (
	"context"
	"time"

	"github.com/flemzord/omnihear/pkg/message"
)

// TypingChannel is implemented by channels that can show a "working"
// indicator while a request is processed.
type TypingChannel interface {
	Channel

	// SendTyping sends a single chat action to the platform. action is
	// platform specific ("typing", "record_voice", ...).
	SendTyping(ctx context.Context, chat message.Chat, action string) error
}

// DefaultTypingInterval is used when StartTypingLoop gets a non-positive
// interval. Telegram clears a chat action after about five seconds.
const DefaultTypingInterval = 4 * time.Second

// StartTypingLoop sends the action immediately and then every interval until
// ctx is done.
func StartTypingLoop(ctx context.Context, ch TypingChannel, chat message.Chat, action string, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		_ = ch.SendTyping(ctx, chat, action)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = ch.SendTyping(ctx, chat, action)
			}
		}
	}()
}
