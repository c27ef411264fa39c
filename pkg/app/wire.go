package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flemzord/omnihear/internal/bot"
	"github.com/flemzord/omnihear/internal/channel"
	"github.com/flemzord/omnihear/internal/config"
	"github.com/flemzord/omnihear/internal/core"
	"github.com/flemzord/omnihear/internal/cron"
	"github.com/flemzord/omnihear/internal/lyrics"
	"github.com/flemzord/omnihear/internal/media"
	"github.com/flemzord/omnihear/internal/provider"
	"github.com/flemzord/omnihear/internal/security"
	"github.com/flemzord/omnihear/internal/transcribe"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Service names registered by the wiring step.
const (
	ServiceProviderChain   = "provider.chain"
	ServiceTranscribeChain = "transcribe.chain"
	ServiceBot             = "bot"
	ServiceScheduler       = "cron.scheduler"
)

// healthLooper is a failover chain with background health checks.
type healthLooper interface {
	Start(ctx context.Context)
	Stop()
}

// chainModule runs the health checks of a chain with the app.
type chainModule struct {
	id    core.ModuleID
	chain healthLooper
	ctx   context.Context
}

func (m *chainModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: m.id}
}

func (m *chainModule) Start() error {
	m.chain.Start(m.ctx)
	return nil
}

func (m *chainModule) Stop(context.Context) error {
	m.chain.Stop()
	return nil
}

// botModule puts the bot in the app lifecycle and applies the bot section
// on reload.
type botModule struct {
	bot *bot.Bot
	ctx context.Context
}

func (m *botModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: ServiceBot}
}

func (m *botModule) Start() error {
	m.bot.Start(m.ctx)
	return nil
}

func (m *botModule) Stop(ctx context.Context) error {
	m.bot.Stop(ctx)
	return nil
}

func (m *botModule) Reload(ctx *core.AppContext) error {
	node, _ := ctx.ModuleConfig(config.BotSection)
	cfg, err := bot.DecodeConfig(node)
	if err != nil {
		return err
	}
	return m.bot.Reload(cfg)
}

type schedulerModule struct {
	*cron.Scheduler
}

func (m schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: ServiceScheduler}
}

// wiring holds what the loaded modules need from each other. The
// collaborators come from Run.
type wiring struct {
	app      *core.App
	appCtx   *core.AppContext
	logger   *slog.Logger
	botCfg   bot.Config
	creds    *security.CredentialStore
	audit    *security.AuditLogger
	limiter  *security.RateLimiter
	registry *prometheus.Registry
	tracer   trace.TracerProvider
}

// discovered is what the loaded modules contribute.
type discovered struct {
	channels  []channel.Channel
	providers []provider.ChainEntry
	stt       []transcribe.Entry
	lyrics    lyrics.Searcher
}

func (w *wiring) discover() discovered {
	var d discovered
	for _, mod := range w.app.Modules() {
		if ch, ok := mod.(channel.Channel); ok {
			d.channels = append(d.channels, ch)
		}
		if src, ok := mod.(provider.EntrySource); ok {
			d.providers = append(d.providers, src.ChainEntries()...)
		}
		if src, ok := mod.(transcribe.Source); ok {
			d.stt = append(d.stt, src.TranscribeEntry())
		}
		if s, ok := mod.(lyrics.Searcher); ok && d.lyrics == nil {
			d.lyrics = s
		}
	}
	return d
}

// wire builds the chains, the bot and the scheduler from the loaded modules
// and appends them to the app. It runs between LoadModules and Start.
func (w *wiring) wire(ctx context.Context) error {
	d := w.discover()
	if len(d.channels) == 0 {
		return errors.New("wiring: no channel module loaded")
	}

	dispatcher := channel.NewDispatcher()
	for _, ch := range d.channels {
		// Channels stamp inbound messages with the module name ("telegram").
		name := ch.ModuleInfo().ID.Name()
		if err := dispatcher.Register(name, ch); err != nil {
			return fmt.Errorf("wiring: %w", err)
		}
		w.logger.Info("channel registered", "channel", name)
	}

	stt, err := transcribe.NewChain(transcribe.Order(d.stt, w.botCfg.Transcribers), w.logger.With("component", "transcribe"))
	if err != nil {
		return fmt.Errorf("wiring: transcription chain: %w", err)
	}
	w.app.AppendModule(ServiceTranscribeChain, &chainModule{id: ServiceTranscribeChain, chain: stt, ctx: ctx})
	w.appCtx.RegisterService(ServiceTranscribeChain, stt)
	w.logger.Info("transcription chain ready", "backends", stt.Names())

	opts := bot.Options{
		Config:      w.botCfg,
		Outbox:      dispatcher,
		Transcriber: stt,
		RateLimiter: w.limiter,
		Audit:       w.audit,
		Metrics:     bot.NewMetrics(w.registry),
		Tracer:      w.tracer,
		Logger:      w.logger.With("component", "bot"),
	}

	if len(d.providers) > 0 {
		chain, err := provider.NewChain(d.providers, provider.WithLogger(w.logger.With("component", "provider")))
		if err != nil {
			return fmt.Errorf("wiring: provider chain: %w", err)
		}
		w.app.AppendModule(ServiceProviderChain, &chainModule{id: ServiceProviderChain, chain: chain, ctx: ctx})
		w.appCtx.RegisterService(ServiceProviderChain, chain)
		opts.Completer = chain
	} else {
		w.logger.Warn("no language model configured, only transcript modes are available")
	}

	if d.lyrics != nil {
		opts.Lyrics = d.lyrics
	}

	conv := media.NewConverter(w.botCfg.Convert, w.creds, w.logger.With("component", "media"))
	if conv.Enabled() {
		opts.Converter = conv
	}

	b, err := bot.New(opts)
	if err != nil {
		return fmt.Errorf("wiring: %w", err)
	}
	for _, ch := range d.channels {
		ch.SetInbox(b.Submit)
	}
	w.app.AppendModule(ServiceBot, &botModule{bot: b, ctx: ctx})
	w.appCtx.RegisterService(ServiceBot, b)

	sched, err := w.scheduler(b)
	if err != nil {
		return err
	}
	w.app.AppendModule(ServiceScheduler, schedulerModule{sched})
	w.appCtx.RegisterService(ServiceScheduler, sched)
	return nil
}

func (w *wiring) scheduler(b *bot.Bot) (*cron.Scheduler, error) {
	logger := w.logger.With("component", "cron")
	sched := cron.NewScheduler(logger, cron.WithRegisterer(w.registry))

	pending := &cron.PendingCleanupJob{
		Pending:       b.PendingStore(),
		Preferences:   b.Preferences(),
		PreferenceTTL: w.botCfg.PreferenceTTL,
		Logger:        logger,
		ScheduleExpr:  w.botCfg.CleanupCron,
	}
	if w.limiter != nil {
		pending.RateLimiter = w.limiter
	}
	lanes := &cron.LaneCleanupJob{
		Lanes:        b.Lanes(),
		MaxIdle:      w.botCfg.LaneMaxIdle,
		Logger:       logger,
		ScheduleExpr: w.botCfg.CleanupCron,
	}
	for _, j := range []cron.Job{pending, lanes} {
		if err := sched.RegisterJob(j); err != nil {
			return nil, fmt.Errorf("wiring: %w", err)
		}
	}
	return sched, nil
}
