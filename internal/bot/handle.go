package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flemzord/omnihear/internal/media"
	"github.com/flemzord/omnihear/pkg/message"
)

// Callback data prefixes of the inline keyboards.
const (
	cbMode    = "mode:"
	cbLang    = "lang:"
	cbSetMode = "setmode:"
	clearMode = "-"
)

// process handles one update under its chat lane.
func (b *Bot) process(ctx context.Context, env envelope) {
	b.metrics.InboxDepth.Set(float64(len(b.inbox)))

	key := laneKey(env.msg)
	b.lanes.Acquire(key)
	defer b.lanes.Release(key)

	logger := b.logger.With(
		"job_id", env.jobID,
		"channel", env.msg.Channel,
		"chat_id", env.msg.Chat.ID,
		"sender", env.msg.Sender.ID,
	)
	h := &handler{bot: b, s: b.current(), msg: env.msg, jobID: env.jobID, logger: logger}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling update", "panic", r)
			h.reply(ctx, h.s.config.Messages.Error)
		}
	}()

	switch {
	case env.msg.Callback != nil:
		h.callback(ctx)
	case env.msg.Command != nil:
		h.command(ctx)
	case env.msg.HasMedia():
		h.media(ctx)
	case strings.TrimSpace(env.msg.TextContent()) != "":
		h.text(ctx)
	default:
		logger.Debug("ignoring empty update")
	}
}

// handler carries the state of one update.
type handler struct {
	bot    *Bot
	s      *settings
	msg    message.InboundMessage
	jobID  string
	logger *slog.Logger

	acked bool
}

func (h *handler) user() string { return userKey(h.msg.Channel, h.msg.Sender.ID) }

func (h *handler) send(ctx context.Context, out message.OutboundMessage) {
	out.Channel = h.msg.Channel
	out.Chat = h.msg.Chat
	if err := h.bot.opts.Outbox.Send(ctx, out); err != nil {
		h.logger.Error("failed to send reply", "error", err)
	}
}

// reply answers the update with a new message.
func (h *handler) reply(ctx context.Context, text string) {
	out := message.NewTextMessage(h.msg.Chat, text)
	if h.msg.Callback == nil {
		out.ReplyToID = h.msg.ID
	}
	h.send(ctx, out)
}

// edit replaces the text of a bot message, or sends a new one when there
// is nothing to edit.
func (h *handler) edit(ctx context.Context, messageID, text string, keyboard [][]message.Button) {
	out := message.NewTextMessage(h.msg.Chat, text)
	out.EditMessageID = messageID
	out.Keyboard = keyboard
	h.send(ctx, out)
}

func (h *handler) command(ctx context.Context) {
	cmd := h.msg.Command
	msgs := h.s.config.Messages
	switch cmd.Name {
	case "start":
		h.reply(ctx, fill(msgs.Welcome, "modes", h.modeList(), "max_size", formatSize(h.s.config.MaxFileSize)))
	case "help":
		h.reply(ctx, fill(msgs.Help, "modes", h.modeList(), "max_size", formatSize(h.s.config.MaxFileSize)))
	case "lang", "language":
		h.langCommand(ctx, strings.TrimSpace(cmd.Args))
	case "mode":
		h.modeCommand(ctx, strings.TrimSpace(cmd.Args))
	default:
		// Media sent with an unknown command as caption is still media.
		if h.msg.HasMedia() {
			h.media(ctx)
			return
		}
		h.reply(ctx, fill(msgs.Help, "modes", h.modeList(), "max_size", formatSize(h.s.config.MaxFileSize)))
	}
}

func (h *handler) langCommand(ctx context.Context, arg string) {
	msgs := h.s.config.Messages
	if arg == "" {
		out := message.NewTextMessage(h.msg.Chat, msgs.ChooseLanguage)
		out.ReplyToID = h.msg.ID
		out.Keyboard = h.languageKeyboard()
		h.send(ctx, out)
		return
	}
	lang, ok := h.s.language(arg)
	if !ok {
		h.reply(ctx, fill(msgs.UnknownLanguage, "languages", h.languageCodes()))
		return
	}
	h.bot.prefs.SetLanguage(h.user(), lang.Code)
	h.reply(ctx, fill(msgs.LanguageSet, "language", lang.Label))
}

func (h *handler) modeCommand(ctx context.Context, arg string) {
	msgs := h.s.config.Messages
	switch strings.ToLower(arg) {
	case "":
		out := message.NewTextMessage(h.msg.Chat, msgs.ChooseMode)
		out.ReplyToID = h.msg.ID
		out.Keyboard = h.modeKeyboard(cbSetMode, true)
		h.send(ctx, out)
	case "off", "none", "ask", clearMode:
		h.bot.prefs.SetMode(h.user(), "")
		h.reply(ctx, msgs.ModeCleared)
	default:
		m, ok := h.s.mode(arg)
		if !ok {
			h.reply(ctx, fill(msgs.UnknownMode, "modes", h.modeNames()))
			return
		}
		h.bot.prefs.SetMode(h.user(), m.Name)
		h.reply(ctx, fill(msgs.ModeSet, "mode", m.Label))
	}
}

// ack answers the pressed button once. A non-empty text shows as a toast.
func (h *handler) ack(ctx context.Context, text string) {
	if h.msg.Callback == nil || h.acked {
		return
	}
	h.acked = true
	if err := h.bot.opts.Outbox.AnswerCallback(ctx, h.msg.Channel, h.msg.Callback.ID, text); err != nil {
		h.logger.Warn("failed to answer callback", "error", err)
	}
}

func (h *handler) callback(ctx context.Context) {
	cb := h.msg.Callback
	defer h.ack(ctx, "")

	msgs := h.s.config.Messages
	data := cb.Data
	switch {
	case strings.HasPrefix(data, cbMode):
		h.run(ctx, strings.TrimPrefix(data, cbMode), cb.MessageID)

	case strings.HasPrefix(data, cbLang):
		lang, ok := h.s.language(strings.TrimPrefix(data, cbLang))
		if !ok {
			h.edit(ctx, cb.MessageID, fill(msgs.UnknownLanguage, "languages", h.languageCodes()), nil)
			return
		}
		h.bot.prefs.SetLanguage(h.user(), lang.Code)
		h.edit(ctx, cb.MessageID, fill(msgs.LanguageSet, "language", lang.Label), nil)

	case strings.HasPrefix(data, cbSetMode):
		name := strings.TrimPrefix(data, cbSetMode)
		if name == clearMode {
			h.bot.prefs.SetMode(h.user(), "")
			h.edit(ctx, cb.MessageID, msgs.ModeCleared, nil)
			return
		}
		m, ok := h.s.mode(name)
		if !ok {
			h.edit(ctx, cb.MessageID, fill(msgs.UnknownMode, "modes", h.modeNames()), nil)
			return
		}
		h.bot.prefs.SetMode(h.user(), m.Name)
		h.edit(ctx, cb.MessageID, fill(msgs.ModeSet, "mode", m.Label), nil)

	default:
		// Bare mode names, as sent by menus of older deployments.
		if _, ok := h.s.mode(data); ok {
			h.run(ctx, data, cb.MessageID)
			return
		}
		h.logger.Warn("unknown callback data", "data", data)
	}
}

func (h *handler) media(ctx context.Context) {
	msgs := h.s.config.Messages
	block, ok := h.msg.Audio()
	if !ok {
		// Containers like application/ogg that usually carry audio.
		block, ok = firstMedia(h.msg.Blocks)
		if !ok || !media.IsAudio(block.MIMEType) {
			h.bot.metrics.Rejected.WithLabelValues("not_audio").Inc()
			h.reply(ctx, msgs.NotAudio)
			return
		}
	}
	if block.Size > h.s.config.MaxFileSize {
		h.bot.metrics.Rejected.WithLabelValues("file_too_large").Inc()
		h.logger.Warn("file too large", "size", block.Size, "limit", h.s.config.MaxFileSize)
		h.reply(ctx, fill(msgs.FileTooLarge, "max_size", formatSize(h.s.config.MaxFileSize)))
		return
	}

	h.stash(ctx, Pending{Block: &block}, msgs.AudioReceived)
}

func (h *handler) text(ctx context.Context) {
	h.stash(ctx, Pending{Text: strings.TrimSpace(h.msg.TextContent())}, h.s.config.Messages.TextReceived)
}

// stash stores the input and either runs the sticky mode or shows the menu.
func (h *handler) stash(ctx context.Context, p Pending, prompt string) {
	p.Channel = h.msg.Channel
	p.Chat = h.msg.Chat
	p.Sender = h.msg.Sender
	p.MessageID = h.msg.ID
	h.bot.pending.Put(h.user(), p)
	h.bot.metrics.Pending.Set(float64(h.bot.pending.Len()))
	h.logger.Info("input stored", "text", p.IsText(), "mime", mimeOf(p))

	if mode := h.stickyMode(); mode != "" {
		h.run(ctx, mode, "")
		return
	}

	out := message.NewTextMessage(h.msg.Chat, prompt)
	out.ReplyToID = h.msg.ID
	out.Keyboard = h.modeKeyboard(cbMode, false)
	h.send(ctx, out)
}

// stickyMode returns the user's /mode choice, else the configured default,
// as long as it still exists.
func (h *handler) stickyMode() string {
	for _, name := range []string{h.bot.prefs.Mode(h.user()), h.s.config.DefaultMode} {
		if name == "" {
			continue
		}
		if _, ok := h.s.mode(name); ok {
			return name
		}
	}
	return ""
}

// language returns the output language of the user.
func (h *handler) language() Language {
	if code := h.bot.prefs.Language(h.user()); code != "" {
		if l, ok := h.s.language(code); ok {
			return l
		}
	}
	l, _ := h.s.language(h.s.config.DefaultLanguage)
	return l
}

func (h *handler) modeKeyboard(prefix string, withClear bool) [][]message.Button {
	cols := max(h.s.config.MenuColumns, 1)
	var rows [][]message.Button
	var row []message.Button
	for _, m := range h.s.modes {
		row = append(row, message.Button{Text: m.Label, Data: prefix + m.Name})
		if len(row) == cols {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	if withClear {
		rows = append(rows, []message.Button{{Text: h.s.config.Messages.AskEveryTime, Data: cbSetMode + clearMode}})
	}
	return rows
}

func (h *handler) languageKeyboard() [][]message.Button {
	cols := max(h.s.config.MenuColumns, 1)
	var rows [][]message.Button
	var row []message.Button
	for _, l := range h.s.languages {
		row = append(row, message.Button{Text: l.Label, Data: cbLang + l.Code})
		if len(row) == cols {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}

func (h *handler) modeList() string {
	lines := make([]string, len(h.s.modes))
	for i, m := range h.s.modes {
		lines[i] = "• " + m.Label
	}
	return strings.Join(lines, "\n")
}

func (h *handler) modeNames() string {
	names := make([]string, len(h.s.modes))
	for i, m := range h.s.modes {
		names[i] = m.Name
	}
	return strings.Join(names, ", ")
}

func (h *handler) languageCodes() string {
	codes := make([]string, len(h.s.languages))
	for i, l := range h.s.languages {
		codes[i] = l.Code
	}
	return strings.Join(codes, ", ")
}

func firstMedia(blocks []message.ContentBlock) (message.ContentBlock, bool) {
	for _, b := range blocks {
		if b.Type == message.BlockAudio || b.Type == message.BlockFile {
			return b, true
		}
	}
	return message.ContentBlock{}, false
}

func mimeOf(p Pending) string {
	if p.Block == nil {
		return ""
	}
	return p.Block.MIMEType
}

func formatSize(n int64) string {
	const mib = 1 << 20
	if n%mib == 0 {
		return fmt.Sprintf("%d MB", n/mib)
	}
	return fmt.Sprintf("%.1f MB", float64(n)/mib)
}
