// Package channel defines the bridge between messaging platforms and the bot
// pipeline: the Channel interface and its optional capabilities, message
// chunking, allow-list filtering and outbound dispatch.
package channel

import (
	"context"

	"github.com/flemzord/omnihear/internal/core"
	"github.com/flemzord/omnihear/pkg/message"
)

// Channel is the bridge between a messaging platform and the bot.
//
// A channel receives updates from its platform, checks the allow-list, and
// pushes them to the bot through the inbox callback. Replies come back
// through Send.
type Channel interface {
	core.Module

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg message.OutboundMessage) error

	// SetInbox gives the channel the function that accepts inbound updates.
	// Called during wiring, before Start().
	SetInbox(fn func(msg message.InboundMessage) error)
}

// MediaFetcher is implemented by channels whose media blocks reference files
// stored on the platform.
type MediaFetcher interface {
	// FetchMedia downloads the file behind block. It returns ErrFileTooLarge
	// when the file exceeds maxBytes.
	FetchMedia(ctx context.Context, block message.ContentBlock, maxBytes int64) ([]byte, error)
}

// CallbackAnswerer is implemented by channels with inline keyboards that
// expect every button press to be acknowledged.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID, text string) error
}
