package channel

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/flemzord/omnihear/pkg/message"
)

// ChunkConfig controls how outbound messages are split when they exceed
// a platform's maximum message length.
type ChunkConfig struct {
	// MaxLength is the maximum number of characters (runes) per chunk.
	// A value <= 0 means no splitting.
	MaxLength int

	// PreserveBlocks avoids splitting inside fenced code blocks (```).
	PreserveBlocks bool
}

// SplitMessage splits msg into messages whose text respects cfg.MaxLength.
// The first chunk carries the edit target and the last one the keyboard.
func SplitMessage(msg message.OutboundMessage, cfg ChunkConfig) []message.OutboundMessage {
	text := msg.TextContent()
	if cfg.MaxLength <= 0 || utf8.RuneCountInString(text) <= cfg.MaxLength {
		return []message.OutboundMessage{msg}
	}

	chunks := SplitText(text, cfg)
	result := make([]message.OutboundMessage, 0, len(chunks))
	for i, chunk := range chunks {
		out := message.OutboundMessage{
			Channel:   msg.Channel,
			Chat:      msg.Chat,
			ReplyToID: msg.ReplyToID,
			Hints:     msg.Hints,
			Blocks:    []message.ContentBlock{message.NewTextBlock(chunk)},
		}
		if i == 0 {
			out.EditMessageID = msg.EditMessageID
		}
		if i == len(chunks)-1 {
			out.Keyboard = msg.Keyboard
		}
		result = append(result, out)
	}
	return result
}

// SplitText breaks text into chunks of at most cfg.MaxLength runes, cutting
// at line boundaries where possible.
func SplitText(text string, cfg ChunkConfig) []string {
	if cfg.MaxLength <= 0 {
		return []string{text}
	}

	var (
		chunks     []string
		current    strings.Builder
		currentLen int
		inFence    bool
	)
	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, strings.TrimRight(current.String(), "\n"))
			current.Reset()
			currentLen = 0
		}
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lineLen := utf8.RuneCountInString(line) + 1

		if isFence(line) {
			// Start a fenced block on a fresh chunk when it fits in one.
			if !inFence && cfg.PreserveBlocks {
				if n := fencedLen(lines[i:]); n <= cfg.MaxLength && currentLen+n > cfg.MaxLength {
					flush()
				}
			}
			inFence = !inFence
		}

		if currentLen+lineLen > cfg.MaxLength {
			flush()
			if lineLen > cfg.MaxLength {
				chunks = append(chunks, forceSplit(line, cfg.MaxLength)...)
				continue
			}
		}

		current.WriteString(line)
		current.WriteByte('\n')
		currentLen += lineLen
	}
	flush()

	return chunks
}

func isFence(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

// fencedLen returns the length in runes of the fenced block opening at
// lines[0], newlines included. An unterminated block runs to the end.
func fencedLen(lines []string) int {
	n := utf8.RuneCountInString(lines[0]) + 1
	for _, l := range lines[1:] {
		n += utf8.RuneCountInString(l) + 1
		if isFence(l) {
			break
		}
	}
	return n
}

// forceSplit breaks a single long line into pieces of at most maxLen runes,
// preferring to cut after whitespace.
func forceSplit(line string, maxLen int) []string {
	var parts []string
	runes := []rune(line)
	for len(runes) > maxLen {
		cut := maxLen
		for i := maxLen; i > maxLen/2; i-- {
			if unicode.IsSpace(runes[i-1]) {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
