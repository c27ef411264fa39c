package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/flemzord/omnihear/pkg/message"
)

const fileIDPrefix = "tg://file_id/"

// errNotForUs marks updates that are valid but addressed to another bot.
var errNotForUs = errors.New("telegram: command addressed to another bot")

// fileIDRef returns a reference URI for a Telegram file_id. It is not a
// download URL: FetchMedia resolves it through getFile.
func fileIDRef(fileID string) string {
	return fileIDPrefix + fileID
}

// convertInbound transforms a Telegram Update into a platform-agnostic
// InboundMessage.
func convertInbound(update *Update, botUsername, channelName string) (message.InboundMessage, error) {
	if cq := update.CallbackQuery; cq != nil {
		return convertCallback(cq, channelName)
	}

	msg := update.Message
	if msg == nil {
		msg = update.EditedMessage
	}
	if msg == nil {
		return message.InboundMessage{}, fmt.Errorf("telegram: update %d contains no message", update.UpdateID)
	}

	inbound := message.InboundMessage{
		ID:        strconv.Itoa(msg.MessageID),
		Timestamp: time.Unix(int64(msg.Date), 0),
		Channel:   channelName,
		Sender:    convertSender(msg.From),
		Chat:      convertChat(msg.Chat),
		Blocks:    convertBlocks(msg),
	}
	if msg.ReplyToMessage != nil {
		inbound.ReplyToID = strconv.Itoa(msg.ReplyToMessage.MessageID)
	}

	if cmd, ok := parseCommand(msg.Text, botUsername); ok {
		if cmd == nil {
			return message.InboundMessage{}, errNotForUs
		}
		inbound.Command = cmd
		inbound.Blocks = nil
	}

	return inbound, nil
}

func convertCallback(cq *CallbackQuery, channelName string) (message.InboundMessage, error) {
	if cq.Message == nil {
		return message.InboundMessage{}, fmt.Errorf("telegram: callback %s has no message", cq.ID)
	}
	from := cq.From
	return message.InboundMessage{
		ID:        cq.ID,
		Timestamp: time.Now(),
		Channel:   channelName,
		Sender:    convertSender(&from),
		Chat:      convertChat(cq.Message.Chat),
		Callback: &message.Callback{
			ID:        cq.ID,
			Data:      cq.Data,
			MessageID: strconv.Itoa(cq.Message.MessageID),
		},
	}, nil
}

// parseCommand recognizes "/name@bot args". ok is false for plain text; a
// nil command with ok true means the command names a different bot.
func parseCommand(text, botUsername string) (*message.Command, bool) {
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return nil, false
	}
	head, args, _ := strings.Cut(text[1:], " ")
	name, target, addressed := strings.Cut(head, "@")
	if name == "" {
		return nil, false
	}
	if addressed && !strings.EqualFold(target, botUsername) {
		return nil, true
	}
	return &message.Command{
		Name: strings.ToLower(name),
		Args: strings.TrimSpace(args),
	}, true
}

func convertSender(user *User) message.Sender {
	if user == nil {
		return message.Sender{}
	}
	displayName := user.FirstName
	if user.LastName != "" {
		displayName += " " + user.LastName
	}
	return message.Sender{
		ID:           strconv.FormatInt(user.ID, 10),
		Username:     user.Username,
		DisplayName:  displayName,
		LanguageCode: user.LanguageCode,
	}
}

func convertChat(chat Chat) message.Chat {
	return message.Chat{
		ID:    strconv.FormatInt(chat.ID, 10),
		Type:  mapChatType(chat.Type),
		Title: chat.Title,
	}
}

func mapChatType(tgType string) message.ChatType {
	switch tgType {
	case "private":
		return message.ChatDM
	case "channel":
		return message.ChatBroadcast
	default:
		return message.ChatGroup
	}
}

// convertBlocks builds content blocks from a Telegram message. Voice notes
// without a MIME type are Opus in Ogg.
func convertBlocks(msg *Message) []message.ContentBlock {
	var blocks []message.ContentBlock

	switch {
	case msg.Voice != nil:
		b := message.NewAudioBlock(fileIDRef(msg.Voice.FileID), orDefault(msg.Voice.MIMEType, "audio/ogg"), true)
		b.Size = msg.Voice.FileSize
		b.Duration = msg.Voice.Duration
		blocks = append(blocks, b)
	case msg.Audio != nil:
		b := message.NewAudioBlock(fileIDRef(msg.Audio.FileID), orDefault(msg.Audio.MIMEType, "audio/mpeg"), false)
		b.FileName = msg.Audio.FileName
		b.Caption = audioTitle(msg.Audio)
		b.Size = msg.Audio.FileSize
		b.Duration = msg.Audio.Duration
		blocks = append(blocks, b)
	case msg.Document != nil:
		b := message.NewFileBlock(fileIDRef(msg.Document.FileID), msg.Document.MIMEType, msg.Document.FileName)
		b.Size = msg.Document.FileSize
		blocks = append(blocks, b)
	}

	if msg.Caption != "" {
		blocks = append(blocks, message.NewTextBlock(msg.Caption))
	}
	if len(blocks) == 0 && msg.Text != "" {
		blocks = append(blocks, message.NewTextBlock(msg.Text))
	}
	return blocks
}

// audioTitle renders "Performer - Title" from the audio tags, if any.
func audioTitle(a *Audio) string {
	switch {
	case a.Performer != "" && a.Title != "":
		return a.Performer + " - " + a.Title
	default:
		return a.Title
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
