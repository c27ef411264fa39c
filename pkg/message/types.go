// Package message defines the platform-agnostic data exchanged between
// channels and the bot pipeline.
package message

// ChatType indicates the kind of conversation.
type ChatType string

const (
	// ChatDM is a direct (one-to-one) conversation.
	ChatDM ChatType = "dm"
	// ChatGroup is a multi-participant group conversation.
	ChatGroup ChatType = "group"
	// ChatBroadcast is a one-to-many broadcast channel.
	ChatBroadcast ChatType = "broadcast"
)

// BlockType discriminates the variant stored in a ContentBlock.
type BlockType string

// Supported block types.
const (
	BlockText  BlockType = "text"
	BlockAudio BlockType = "audio"
	BlockFile  BlockType = "file"
)

// Sender identifies the author of an inbound message.
type Sender struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	// LanguageCode is the IETF tag reported by the client, if any.
	LanguageCode string `json:"language_code,omitempty"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID    string   `json:"id"`
	Type  ChatType `json:"type"`
	Title string   `json:"title,omitempty"`
}

// IsGroup reports whether the chat is a group conversation.
func (c Chat) IsGroup() bool {
	return c.Type == ChatGroup
}

// Command is a bot command such as "/lang fa".
type Command struct {
	// Name without the leading slash or @botname suffix.
	Name string `json:"name"`
	Args string `json:"args,omitempty"`
}

// Callback is a button press on an inline keyboard the bot sent earlier.
type Callback struct {
	ID   string `json:"id"`
	Data string `json:"data"`
	// MessageID is the bot message carrying the keyboard.
	MessageID string `json:"message_id"`
}

// Button is one inline keyboard button.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}
