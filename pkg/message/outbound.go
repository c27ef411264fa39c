package message

// OutboundMessage represents a message to be sent through a channel.
type OutboundMessage struct {
	Channel   string         `json:"channel"`
	Chat      Chat           `json:"chat"`
	ReplyToID string         `json:"reply_to_id,omitempty"`
	Blocks    []ContentBlock `json:"blocks"`
	// EditMessageID, when set, replaces the text of an earlier bot message
	// instead of sending a new one.
	EditMessageID string `json:"edit_message_id,omitempty"`
	// Keyboard rows rendered under the message.
	Keyboard [][]Button     `json:"keyboard,omitempty"`
	Hints    *OutboundHints `json:"hints,omitempty"`
}

// OutboundHints carries optional delivery hints for channels.
// Zero value means no hints are set.
type OutboundHints struct {
	DisablePreview      bool `json:"disable_preview,omitempty"`
	DisableNotification bool `json:"disable_notification,omitempty"`
	// PlainText sends the text verbatim, without markup conversion.
	PlainText bool `json:"plain_text,omitempty"`
}

// NewTextMessage creates an outbound message with a single text block.
func NewTextMessage(chat Chat, text string) OutboundMessage {
	return OutboundMessage{
		Chat:   chat,
		Blocks: []ContentBlock{NewTextBlock(text)},
	}
}

// ReplyTo creates a text reply to in, addressed to the same channel and chat.
func ReplyTo(in InboundMessage, text string) OutboundMessage {
	out := NewTextMessage(in.Chat, text)
	out.Channel = in.Channel
	return out
}

// TextContent returns the concatenated text of all text blocks.
func (m *OutboundMessage) TextContent() string {
	return textContent(m.Blocks)
}
