package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/flemzord/omnihear/internal/channel"
	"github.com/flemzord/omnihear/pkg/message"
)

// sendOutbound splits msg to the configured length and delivers each chunk.
// It stops at the first failed chunk.
func (t *Telegram) sendOutbound(ctx context.Context, msg message.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.Chat.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat ID %q: %w", msg.Chat.ID, err)
	}

	chunks := channel.SplitMessage(msg, channel.ChunkConfig{MaxLength: t.config.MaxMessageLength, PreserveBlocks: true})
	for _, chunk := range chunks {
		if err := t.sendChunk(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// sendChunk sends or edits one text message. When Telegram rejects the
// MarkdownV2 rendering, the raw text is sent again without a parse mode.
func (t *Telegram) sendChunk(ctx context.Context, chatID int64, chunk message.OutboundMessage) error {
	raw := chunk.TextContent()
	if raw == "" {
		return nil
	}

	text, parseMode := raw, ""
	if chunk.Hints == nil || !chunk.Hints.PlainText {
		formatted := FormatMarkdownV2(raw)
		if utf8.RuneCountInString(formatted) <= maxTelegramText {
			text, parseMode = formatted, "MarkdownV2"
		}
	}

	err := t.deliver(ctx, chatID, chunk, text, parseMode)
	if err != nil && parseMode != "" && isBadRequest(err) {
		t.logger.Debug("telegram rejected formatted text, retrying as plain text", "chat_id", chatID, "error", err)
		err = t.deliver(ctx, chatID, chunk, raw, "")
	}
	if err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

func (t *Telegram) deliver(ctx context.Context, chatID int64, chunk message.OutboundMessage, text, parseMode string) error {
	markup := convertKeyboard(chunk.Keyboard)
	var disablePreview, disableNotification bool
	if chunk.Hints != nil {
		disablePreview = chunk.Hints.DisablePreview
		disableNotification = chunk.Hints.DisableNotification
	}

	if chunk.EditMessageID != "" {
		messageID, err := strconv.Atoi(chunk.EditMessageID)
		if err != nil {
			return fmt.Errorf("invalid edit message ID %q: %w", chunk.EditMessageID, err)
		}
		_, err = t.client.EditMessageText(ctx, EditMessageTextRequest{
			ChatID:                chatID,
			MessageID:             messageID,
			Text:                  text,
			ParseMode:             parseMode,
			DisableWebPagePreview: disablePreview,
			ReplyMarkup:           markup,
		})
		if isNotModified(err) {
			return nil
		}
		return err
	}

	_, err := t.client.SendMessage(ctx, SendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             parseMode,
		DisableWebPagePreview: disablePreview,
		DisableNotification:   disableNotification,
		ReplyToMessageID:      parseOptionalInt(chunk.ReplyToID),
		ReplyMarkup:           markup,
	})
	return err
}

func convertKeyboard(rows [][]message.Button) *InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	markup := &InlineKeyboardMarkup{InlineKeyboard: make([][]InlineKeyboardButton, 0, len(rows))}
	for _, row := range rows {
		buttons := make([]InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, InlineKeyboardButton{Text: b.Text, CallbackData: b.Data})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, buttons)
	}
	return markup
}

func isBadRequest(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest
}

// isNotModified reports the error Telegram returns when an edit would not
// change the message.
func isNotModified(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified")
}

// parseOptionalInt converts s to int, returning 0 when s is empty or invalid.
func parseOptionalInt(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
