// Package telegram implements the Telegram Bot API channel for omnihear.
//
// It bridges Telegram updates to the platform-agnostic message model:
//
//   - inbound conversion of text, audio, voice notes, audio documents,
//     bot commands and inline keyboard callbacks
//   - outbound text with MarkdownV2 formatting, a plain-text fallback,
//     inline keyboards and in-place edits
//   - media download through getFile with a size cap
//   - long-polling (default) or webhook delivery
//   - optional HTTP or SOCKS5 proxy for every Bot API call
//
// The module registers itself as "channel.telegram" and talks to the Bot API
// over raw net/http + encoding/json.
package telegram
