package message

import "time"

// InboundMessage represents an update received from a channel: a message,
// a command or a keyboard callback.
type InboundMessage struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Channel   string         `json:"channel"`
	Sender    Sender         `json:"sender"`
	Chat      Chat           `json:"chat"`
	ReplyToID string         `json:"reply_to_id,omitempty"`
	Blocks    []ContentBlock `json:"blocks"`
	Command   *Command       `json:"command,omitempty"`
	Callback  *Callback      `json:"callback,omitempty"`
}

// TextContent returns the concatenated text of all text blocks.
func (m *InboundMessage) TextContent() string {
	return textContent(m.Blocks)
}

// HasMedia reports whether the message contains media blocks.
func (m *InboundMessage) HasMedia() bool {
	return hasMedia(m.Blocks)
}

// Audio returns the first audio-bearing block.
func (m *InboundMessage) Audio() (ContentBlock, bool) {
	for _, b := range m.Blocks {
		if b.IsAudio() {
			return b, true
		}
	}
	return ContentBlock{}, false
}
