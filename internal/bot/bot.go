package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/omnihear/internal/lyrics"
	"github.com/flemzord/omnihear/internal/provider"
	"github.com/flemzord/omnihear/internal/security"
	"github.com/flemzord/omnihear/internal/transcribe"
	"github.com/flemzord/omnihear/pkg/message"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName    = "github.com/flemzord/omnihear/internal/bot"
	notifyTimeout = 15 * time.Second
)

// Outbox is how the bot talks back to chat platforms.
// *channel.Dispatcher implements it.
type Outbox interface {
	Send(ctx context.Context, msg message.OutboundMessage) error
	FetchMedia(ctx context.Context, channel string, block message.ContentBlock, maxBytes int64) ([]byte, error)
	AnswerCallback(ctx context.Context, channel, callbackID, text string) error
	StartTyping(ctx context.Context, channel string, chat message.Chat, action string)
}

// Completer runs prompts on a language model. *provider.Chain implements it.
type Completer interface {
	Complete(ctx context.Context, role provider.Role, req provider.CompletionRequest) (provider.CompletionResponse, error)
	HasRole(role provider.Role) bool
}

// Converter re-encodes audio the transcribers cannot read.
// *media.Converter implements it.
type Converter interface {
	Convert(ctx context.Context, data []byte, fromMIME string) ([]byte, string, error)
}

// Options are the collaborators of a Bot. Outbox and Transcriber are
// required; the rest is optional.
type Options struct {
	Config      Config
	Outbox      Outbox
	Transcriber transcribe.Transcriber
	Completer   Completer
	Lyrics      lyrics.Searcher
	Converter   Converter
	RateLimiter *security.RateLimiter
	Audit       *security.AuditLogger
	Metrics     *Metrics
	Tracer      trace.TracerProvider
	Logger      *slog.Logger
}

// settings is the reloadable part of the configuration, compiled.
type settings struct {
	config    Config
	modes     []*Mode
	languages []Language
}

// mode and language match names and codes regardless of case.
func (s *settings) mode(name string) (*Mode, bool) {
	for _, m := range s.modes {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return nil, false
}

func (s *settings) language(code string) (Language, bool) {
	for _, l := range s.languages {
		if strings.EqualFold(l.Code, code) {
			return l, true
		}
	}
	return Language{}, false
}

// Bot is the message pipeline.
type Bot struct {
	opts     Options
	settings atomic.Pointer[settings]
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *Metrics

	pending *PendingStore
	prefs   *Preferences
	lanes   *LaneLock
	pool    *workerPool

	inbox    chan envelope
	inboxMu  sync.RWMutex
	stopped  atomic.Bool
	cancel   context.CancelFunc
	stopOnce sync.Once
	notifyWG sync.WaitGroup
}

// New builds a Bot from opts. The config must come from DecodeConfig.
func New(opts Options) (*Bot, error) {
	if opts.Outbox == nil {
		return nil, ErrNoOutbox
	}
	if opts.Transcriber == nil {
		return nil, ErrNoTranscriber
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.GetTracerProvider()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}

	b := &Bot{
		opts:    opts,
		logger:  opts.Logger,
		tracer:  opts.Tracer.Tracer(tracerName),
		metrics: opts.Metrics,
		pending: NewPendingStore(opts.Config.PendingTTL),
		prefs:   NewPreferences(),
		lanes:   NewLaneLock(),
		pool:    newWorkerPool(opts.Config.Workers),
		inbox:   make(chan envelope, max(opts.Config.InboxSize, 1)),
	}
	s, err := b.compile(opts.Config)
	if err != nil {
		return nil, err
	}
	b.settings.Store(s)
	return b, nil
}

// compile prepares the modes the available collaborators can serve.
func (b *Bot) compile(cfg Config) (*settings, error) {
	s := &settings{config: cfg, languages: slices.Clone(cfg.Languages)}
	for _, mc := range cfg.Modes {
		m, err := compileMode(mc)
		if err != nil {
			return nil, err
		}
		if m.NeedsLLM && (b.opts.Completer == nil || !b.opts.Completer.HasRole(m.Role)) {
			b.logger.Warn("mode disabled, no language model serves its role", "mode", m.Name, "role", m.Role)
			continue
		}
		s.modes = append(s.modes, m)
	}
	if len(s.modes) == 0 {
		return nil, errors.New("bot: no usable mode")
	}
	if cfg.DefaultMode != "" {
		if _, ok := s.mode(cfg.DefaultMode); !ok {
			return nil, fmt.Errorf("%w: default_mode %q is disabled", ErrUnknownMode, cfg.DefaultMode)
		}
	}
	return s, nil
}

// Reload swaps modes, prompts, messages and languages. Worker count,
// inbox size and TTLs keep their startup values.
func (b *Bot) Reload(cfg Config) error {
	s, err := b.compile(cfg)
	if err != nil {
		return err
	}
	b.settings.Store(s)
	b.logger.Info("bot configuration reloaded", "modes", len(s.modes), "languages", len(s.languages))
	return nil
}

func (b *Bot) current() *settings { return b.settings.Load() }

// Start launches the workers.
func (b *Bot) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.inboxMu.Lock()
	if b.stopped.Load() {
		b.inboxMu.Unlock()
		cancel()
		b.logger.Warn("start ignored, bot already stopped")
		return
	}
	b.cancel = cancel
	b.inboxMu.Unlock()

	b.pool.start(ctx, b.inbox, b.process)
	b.logger.Info("bot started", "workers", b.pool.size, "inbox_size", cap(b.inbox))
}

// Stop closes the inbox, cancels running jobs and waits for the workers.
func (b *Bot) Stop(_ context.Context) {
	b.stopOnce.Do(func() {
		b.inboxMu.Lock()
		b.stopped.Store(true)
		close(b.inbox)
		cancel := b.cancel
		b.inboxMu.Unlock()

		if cancel != nil {
			cancel()
		}
		b.pool.wait()
		b.notifyWG.Wait()
		b.logger.Info("bot stopped")
	})
}

// Submit queues an inbound update. It is the inbox callback handed to
// channels. A full inbox or an exceeded rate limit is answered right away.
func (b *Bot) Submit(msg message.InboundMessage) error {
	b.inboxMu.RLock()
	defer b.inboxMu.RUnlock()

	if b.stopped.Load() {
		return ErrStopped
	}

	kind := updateKind(msg)
	b.metrics.Updates.WithLabelValues(kind).Inc()

	if rl := b.opts.RateLimiter; rl != nil {
		if err := rl.Allow(security.KindMessage, userKey(msg.Channel, msg.Sender.ID)); err != nil {
			b.metrics.Rejected.WithLabelValues("rate_limited").Inc()
			b.logger.Warn("update rate limited", "channel", msg.Channel, "sender", msg.Sender.ID)
			b.notify(msg, b.current().config.Messages.RateLimited)
			return err
		}
	}

	env := envelope{msg: msg, jobID: uuid.NewString()}
	select {
	case b.inbox <- env:
		b.metrics.InboxDepth.Set(float64(len(b.inbox)))
		return nil
	default:
		b.metrics.Rejected.WithLabelValues("busy").Inc()
		b.logger.Warn("inbox full, update dropped", "channel", msg.Channel, "chat_id", msg.Chat.ID)
		b.notify(msg, b.current().config.Messages.Busy)
		return ErrInboxFull
	}
}

// notify answers msg outside the worker pool. Callback presses are
// acknowledged with the text instead of a new chat message.
func (b *Bot) notify(msg message.InboundMessage, text string) {
	b.notifyWG.Add(1)
	go func() {
		defer b.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		var err error
		if msg.Callback != nil {
			err = b.opts.Outbox.AnswerCallback(ctx, msg.Channel, msg.Callback.ID, text)
		} else {
			err = b.opts.Outbox.Send(ctx, message.ReplyTo(msg, text))
		}
		if err != nil {
			b.logger.Error("failed to send notice", "channel", msg.Channel, "chat_id", msg.Chat.ID, "error", err)
		}
	}()
}

// Stats is a snapshot of the pipeline state.
type Stats struct {
	Workers     int      `json:"workers"`
	InboxDepth  int      `json:"inbox_depth"`
	InboxSize   int      `json:"inbox_size"`
	Pending     int      `json:"pending"`
	Preferences int      `json:"preferences"`
	Lanes       int      `json:"lanes"`
	Modes       []string `json:"modes"`
}

// Stats returns the current pipeline state.
func (b *Bot) Stats() Stats {
	s := b.current()
	modes := make([]string, len(s.modes))
	for i, m := range s.modes {
		modes[i] = m.Name
	}
	return Stats{
		Workers:     b.pool.size,
		InboxDepth:  len(b.inbox),
		InboxSize:   cap(b.inbox),
		Pending:     b.pending.Len(),
		Preferences: b.prefs.Len(),
		Lanes:       b.lanes.Len(),
		Modes:       modes,
	}
}

// PendingStore exposes the pending inputs for cleanup jobs.
func (b *Bot) PendingStore() *PendingStore { return b.pending }

// Preferences exposes the user preferences for cleanup jobs.
func (b *Bot) Preferences() *Preferences { return b.prefs }

// Lanes exposes the chat lanes for cleanup jobs.
func (b *Bot) Lanes() *LaneLock { return b.lanes }

func updateKind(msg message.InboundMessage) string {
	switch {
	case msg.Callback != nil:
		return "callback"
	case msg.Command != nil:
		return "command"
	case msg.HasMedia():
		return "media"
	default:
		return "text"
	}
}

// userKey scopes per-user state to the channel the user came from.
func userKey(channel, senderID string) string {
	return channel + ":" + senderID
}

func laneKey(msg message.InboundMessage) string {
	return msg.Channel + ":" + msg.Chat.ID
}
