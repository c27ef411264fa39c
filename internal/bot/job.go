package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/omnihear/internal/channel"
	"github.com/flemzord/omnihear/internal/lyrics"
	"github.com/flemzord/omnihear/internal/media"
	"github.com/flemzord/omnihear/internal/provider"
	"github.com/flemzord/omnihear/internal/security"
	"github.com/flemzord/omnihear/internal/transcribe"
	"github.com/flemzord/omnihear/pkg/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const typingAction = "typing"

// result is the output of a successful job.
type result struct {
	body   string
	song   *lyrics.Song
	models []string
}

// run processes the user's pending input with the named mode. editID is
// the menu message to turn into the result; empty sends a new message.
// Problems found before the job starts go to the pressed button as a toast
// and leave the menu untouched.
func (h *handler) run(ctx context.Context, modeName, editID string) {
	msgs := h.s.config.Messages
	mode, ok := h.s.mode(modeName)
	if !ok {
		h.notice(ctx, fill(msgs.UnknownMode, "modes", h.modeNames()))
		return
	}

	if rl := h.bot.opts.RateLimiter; rl != nil {
		if err := rl.Allow(security.KindJob, h.user()); err != nil {
			h.bot.metrics.Rejected.WithLabelValues("job_rate_limited").Inc()
			h.audit(security.EventRateLimit, modeName, nil)
			h.notice(ctx, msgs.RateLimited)
			return
		}
	}

	p, ok := h.bot.pending.Take(h.user())
	h.bot.metrics.Pending.Set(float64(h.bot.pending.Len()))
	if !ok {
		h.notice(ctx, msgs.NoAudio)
		return
	}

	h.ack(ctx, "")
	if editID != "" {
		h.answer(ctx, editID, p.MessageID, msgs.Processing+"\n"+mode.Label)
	}

	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, h.s.config.JobTimeout)
	defer cancel()
	jobCtx, span := h.bot.tracer.Start(jobCtx, "bot.job", trace.WithAttributes(
		attribute.String("job.id", h.jobID),
		attribute.String("job.mode", mode.Name),
		attribute.String("job.channel", h.msg.Channel),
		attribute.Bool("job.text_input", p.IsText()),
	))
	defer span.End()

	typingCtx, stopTyping := context.WithCancel(jobCtx)
	h.bot.opts.Outbox.StartTyping(typingCtx, h.msg.Channel, h.msg.Chat, typingAction)
	res, err := h.execute(jobCtx, mode, p)
	stopTyping()

	h.bot.metrics.JobDuration.WithLabelValues(mode.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcome := outcomeOf(err)
		h.bot.metrics.Jobs.WithLabelValues(mode.Name, outcome).Inc()
		h.logger.Error("job failed", "mode", mode.Name, "outcome", outcome, "error", err,
			"duration", time.Since(start))
		h.audit(security.EventJob, mode.Name, map[string]string{"job_id": h.jobID, "outcome": outcome})
		h.answer(ctx, editID, p.MessageID, h.errorText(err))
		return
	}

	h.bot.metrics.Jobs.WithLabelValues(mode.Name, "ok").Inc()
	span.SetAttributes(attribute.StringSlice("job.models", res.models))
	h.logger.Info("job completed", "mode", mode.Name, "models", res.models,
		"chars", len(res.body), "duration", time.Since(start))
	h.audit(security.EventJob, mode.Name, map[string]string{"job_id": h.jobID, "outcome": "ok"})
	h.answer(ctx, editID, p.MessageID, h.format(mode, res))
}

// execute runs the stages of a job.
func (h *handler) execute(ctx context.Context, mode *Mode, p Pending) (result, error) {
	var res result

	text := p.Text
	if !p.IsText() {
		tr, err := h.transcribe(ctx, p)
		if err != nil {
			return res, err
		}
		text = tr.Text
		if tr.Provider != "" {
			res.models = append(res.models, tr.Provider)
		}
	}
	res.body = text

	data := PromptData{Transcript: text}
	lang := h.outputLanguage(mode)
	data.Language, data.LanguageName = lang.Code, lang.Name

	if mode.Lyrics && h.bot.opts.Lyrics != nil {
		if song, ok := h.searchSong(ctx, text); ok {
			res.song = &song
			data.Song = song.Display()
		}
	}

	if !mode.HasPrompt() {
		return res, nil
	}
	completer := h.bot.opts.Completer
	if completer == nil || !completer.HasRole(mode.Role) {
		return res, nil
	}

	prompt, err := mode.Render(data)
	if err != nil {
		return res, err
	}
	started := time.Now()
	resp, err := completer.Complete(ctx, mode.Role, provider.CompletionRequest{
		Messages:    prompt,
		MaxTokens:   h.s.config.MaxTokens,
		Temperature: h.s.config.Temperature,
	})
	h.bot.metrics.StageDuration.WithLabelValues("llm").Observe(time.Since(started).Seconds())
	if err != nil {
		if mode.NeedsLLM || ctx.Err() != nil {
			return res, err
		}
		h.logger.Warn("language model failed, replying with the transcript", "mode", mode.Name, "error", err)
		return res, nil
	}
	if strings.TrimSpace(resp.Content) == "" {
		if mode.NeedsLLM {
			return res, fmt.Errorf("bot: empty completion from %s", resp.Provider)
		}
		return res, nil
	}
	res.body = strings.TrimSpace(resp.Content)
	res.models = append(res.models, modelName(resp))
	return res, nil
}

// transcribe downloads, converts and transcribes the pending audio.
func (h *handler) transcribe(ctx context.Context, p Pending) (transcribe.Transcript, error) {
	block := *p.Block

	started := time.Now()
	data, err := h.bot.opts.Outbox.FetchMedia(ctx, p.Channel, block, h.s.config.MaxFileSize)
	h.bot.metrics.StageDuration.WithLabelValues("download").Observe(time.Since(started).Seconds())
	if err != nil {
		return transcribe.Transcript{}, fmt.Errorf("bot: download audio: %w", err)
	}

	mime := block.MIMEType
	if mime == "" {
		mime = "audio/ogg"
	}
	name := block.FileName
	if conv := h.bot.opts.Converter; conv != nil {
		started = time.Now()
		out, outMIME, err := conv.Convert(ctx, data, mime)
		h.bot.metrics.StageDuration.WithLabelValues("convert").Observe(time.Since(started).Seconds())
		if err != nil {
			return transcribe.Transcript{}, err
		}
		if outMIME != mime {
			name = ""
		}
		data, mime = out, outMIME
	}
	if name == "" {
		name = "audio" + media.ExtensionFor(mime)
	}

	audio := transcribe.Audio{Data: data, MIMEType: mime, FileName: name}
	if h.s.config.LanguageHint {
		audio.Language = h.language().Code
	}

	started = time.Now()
	tr, err := h.bot.opts.Transcriber.Transcribe(ctx, audio)
	h.bot.metrics.StageDuration.WithLabelValues("transcribe").Observe(time.Since(started).Seconds())
	if err != nil {
		return tr, err
	}
	if strings.TrimSpace(tr.Text) == "" {
		return tr, transcribe.ErrEmptyTranscript
	}
	h.logger.Info("audio transcribed", "provider", tr.Provider, "language", tr.Language,
		"bytes", len(data), "duration", tr.Duration)
	return tr, nil
}

func (h *handler) searchSong(ctx context.Context, text string) (lyrics.Song, bool) {
	q := lyrics.Query(text, h.s.config.LyricsSearchWords)
	if q == "" {
		return lyrics.Song{}, false
	}
	started := time.Now()
	songs, err := h.bot.opts.Lyrics.Search(ctx, q)
	h.bot.metrics.StageDuration.WithLabelValues("lyrics").Observe(time.Since(started).Seconds())
	if err != nil {
		if !errors.Is(err, lyrics.ErrNotFound) {
			h.logger.Warn("lyrics search failed", "error", err)
		}
		return lyrics.Song{}, false
	}
	if len(songs) == 0 {
		return lyrics.Song{}, false
	}
	return songs[0], true
}

// outputLanguage is the mode's forced language, else the user's.
func (h *handler) outputLanguage(mode *Mode) Language {
	if mode.Language == "" {
		return h.language()
	}
	if l, ok := h.s.language(mode.Language); ok {
		return l
	}
	return Language{Code: mode.Language, Name: mode.Language, Label: mode.Language}
}

func (h *handler) format(mode *Mode, res result) string {
	msgs := h.s.config.Messages
	var sb strings.Builder
	sb.WriteString(msgs.Done)
	sb.WriteString(" · ")
	sb.WriteString(mode.Label)
	sb.WriteString("\n\n")
	if mode.Lyrics && h.bot.opts.Lyrics != nil {
		if res.song != nil {
			sb.WriteString(fill(msgs.SongFound, "song", res.song.Display(), "url", res.song.URL))
		} else {
			sb.WriteString(msgs.SongNotFound)
		}
		sb.WriteString("\n\n")
	}
	sb.WriteString(res.body)
	if len(res.models) > 0 {
		sb.WriteString("\n\n---\n🤖 ")
		sb.WriteString(strings.Join(res.models, " → "))
	}
	return sb.String()
}

// answer edits editID when set, else replies to replyTo.
func (h *handler) answer(ctx context.Context, editID, replyTo, text string) {
	out := message.NewTextMessage(h.msg.Chat, text)
	out.Hints = &message.OutboundHints{PlainText: true, DisablePreview: true}
	if editID != "" {
		out.EditMessageID = editID
	} else {
		out.ReplyToID = replyTo
		if replyTo == "" && h.msg.Callback == nil {
			out.ReplyToID = h.msg.ID
		}
	}
	h.send(ctx, out)
}

// notice tells the user why nothing runs: a toast on the pressed button,
// else a reply.
func (h *handler) notice(ctx context.Context, text string) {
	if h.msg.Callback != nil {
		h.ack(ctx, text)
		return
	}
	h.answer(ctx, "", "", text)
}

func (h *handler) errorText(err error) string {
	msgs := h.s.config.Messages
	switch {
	case errors.Is(err, channel.ErrFileTooLarge):
		return fill(msgs.FileTooLarge, "max_size", formatSize(h.s.config.MaxFileSize))
	case errors.Is(err, transcribe.ErrUnsupportedAudio):
		return msgs.UnsupportedAudio
	case errors.Is(err, transcribe.ErrEmptyTranscript):
		return msgs.EmptyTranscript
	case errors.Is(err, transcribe.ErrAllFailed), errors.Is(err, provider.ErrAllProviders):
		return msgs.AllFailed
	default:
		return msgs.Error
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, channel.ErrFileTooLarge):
		return "file_too_large"
	case errors.Is(err, transcribe.ErrUnsupportedAudio):
		return "unsupported_audio"
	case errors.Is(err, transcribe.ErrEmptyTranscript):
		return "empty_transcript"
	case errors.Is(err, transcribe.ErrAllFailed), errors.Is(err, provider.ErrAllProviders):
		return "upstream_failed"
	default:
		return "error"
	}
}

func modelName(resp provider.CompletionResponse) string {
	switch {
	case resp.Provider != "" && resp.Model != "":
		return resp.Provider + "/" + resp.Model
	case resp.Model != "":
		return resp.Model
	default:
		return resp.Provider
	}
}

func (h *handler) audit(typ security.EventType, detail string, meta map[string]string) {
	if h.bot.opts.Audit == nil {
		return
	}
	h.bot.opts.Audit.Log(security.AuditEvent{
		Type:     typ,
		Channel:  h.msg.Channel,
		ChatID:   h.msg.Chat.ID,
		SenderID: h.msg.Sender.ID,
		Detail:   detail,
		Metadata: meta,
	})
}
