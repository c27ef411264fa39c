package provider

// Role selects the chain entries that serve a request. A mode names the
// role it completes with; RoleFallback entries back up every role.
type Role string

const (
	RolePrimary  Role = "primary"
	RoleFallback Role = "fallback"
)

// MessageRole is the author of a prompt message.
type MessageRole string

const (
	MessageRoleSystem MessageRole = "system"
	MessageRoleUser   MessageRole = "user"
)

// FinishReason is why generation stopped, normalized across backends.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonFiltering FinishReason = "filtering"
)

// LLMMessage is one prompt message.
type LLMMessage struct {
	Role    MessageRole
	Content string
}

// CompletionRequest is what a mode sends to the chain. Nil sampling fields
// leave the backend default.
type CompletionRequest struct {
	Messages    []LLMMessage
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	Stop        []string
}

type CompletionResponse struct {
	Content      string
	Model        string
	FinishReason FinishReason
	Usage        TokenUsage
	// Provider names the chain entry that answered; set by Chain.
	Provider string
}

// StreamChunk carries either a content delta or a terminal error. The
// last chunk before close has FinishReason set and, when the backend
// reports it, Usage.
type StreamChunk struct {
	Content      string
	FinishReason FinishReason
	Usage        *TokenUsage
	Err          error
}

type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
