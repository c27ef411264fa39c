package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/omnihear/internal/channel"
	"github.com/flemzord/omnihear/internal/channel/channeltest"
	"github.com/flemzord/omnihear/internal/lyrics"
	"github.com/flemzord/omnihear/internal/provider"
	"github.com/flemzord/omnihear/internal/provider/providertest"
	"github.com/flemzord/omnihear/internal/security"
	"github.com/flemzord/omnihear/internal/security/securitytest"
	"github.com/flemzord/omnihear/internal/transcribe"
	"github.com/flemzord/omnihear/internal/transcribe/transcribetest"
	"github.com/flemzord/omnihear/pkg/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gopkg.in/yaml.v3"
)

const waitTimeout = 5 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func decodeConfig(t *testing.T, src string) Config {
	t.Helper()
	var node yaml.Node
	if src != "" {
		if err := yaml.Unmarshal([]byte(src), &node); err != nil {
			t.Fatalf("yaml: %v", err)
		}
	}
	cfg, err := DecodeConfig(&node)
	if err != nil {
		t.Fatalf("DecodeConfig() error: %v", err)
	}
	return cfg
}

// harness wires a Bot to a mock Telegram channel through a dispatcher.
type harness struct {
	t    *testing.T
	ch   *channeltest.MockChannel
	bot  *Bot
	sent chan message.OutboundMessage
	stt  *transcribetest.MockTranscriber
	llm  *providertest.MockProvider
}

type harnessOpts struct {
	config   string
	noLLM    bool
	llmErr   error
	sttFunc  func(context.Context, transcribe.Audio) (transcribe.Transcript, error)
	lyrics   lyrics.Searcher
	limiter  *security.RateLimiter
	audit    *security.AuditLogger
	metrics  *Metrics
	tracer   *sdktrace.TracerProvider
	noStart  bool
	converts Converter
}

func newHarness(t *testing.T, ho harnessOpts) *harness {
	t.Helper()

	h := &harness{
		t:    t,
		ch:   channeltest.New("telegram"),
		sent: make(chan message.OutboundMessage, 64),
		stt:  &transcribetest.MockTranscriber{Text: "hello from the recording", Func: ho.sttFunc},
		llm:  &providertest.MockProvider{Model: "llama-3.3-70b", Reply: "• a summary"},
	}
	h.ch.Notify = h.sent
	if ho.llmErr != nil {
		h.llm.CompleteFunc = func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{}, ho.llmErr
		}
	}

	d := channel.NewDispatcher()
	if err := d.Register("telegram", h.ch); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	stt, err := transcribe.NewChain([]transcribe.Entry{{Name: "groq", Transcriber: h.stt}}, nil)
	if err != nil {
		t.Fatalf("transcribe.NewChain() error: %v", err)
	}

	opts := Options{
		Config:      decodeConfig(t, ho.config),
		Outbox:      d,
		Transcriber: stt,
		Lyrics:      ho.lyrics,
		Converter:   ho.converts,
		RateLimiter: ho.limiter,
		Audit:       ho.audit,
		Metrics:     ho.metrics,
		Logger:      discardLogger(),
	}
	if ho.tracer != nil {
		opts.Tracer = ho.tracer
	}
	if !ho.noLLM {
		chain, err := provider.NewChain([]provider.ChainEntry{{Name: "sambanova", Provider: h.llm}})
		if err != nil {
			t.Fatalf("provider.NewChain() error: %v", err)
		}
		opts.Completer = chain
	}

	b, err := New(opts)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	h.bot = b
	h.ch.SetInbox(b.Submit)

	if !ho.noStart {
		b.Start(context.Background())
	}
	t.Cleanup(func() { b.Stop(context.Background()) })
	return h
}

func (h *harness) deliver(msg message.InboundMessage) {
	h.t.Helper()
	if msg.Sender.ID == "" {
		msg.Sender = message.Sender{ID: "42", Username: "alice"}
	}
	if msg.Chat.ID == "" {
		msg.Chat = message.Chat{ID: "42", Type: message.ChatDM}
	}
	if err := h.ch.Deliver(msg); err != nil {
		h.t.Fatalf("Deliver() error: %v", err)
	}
}

func (h *harness) next() message.OutboundMessage {
	h.t.Helper()
	select {
	case m := <-h.sent:
		return m
	case <-time.After(waitTimeout):
		h.t.Fatal("timed out waiting for an outbound message")
		return message.OutboundMessage{}
	}
}

func (h *harness) expectNone() {
	h.t.Helper()
	select {
	case m := <-h.sent:
		h.t.Fatalf("unexpected outbound message: %q", m.TextContent())
	case <-time.After(100 * time.Millisecond):
	}
}

func voice(id string) message.InboundMessage {
	b := message.NewAudioBlock("file-"+id, "audio/ogg", true)
	b.Size = 2048
	return message.InboundMessage{ID: id, Blocks: []message.ContentBlock{b}}
}

func press(id, data, messageID string) message.InboundMessage {
	return message.InboundMessage{ID: id, Callback: &message.Callback{ID: "cb-" + id, Data: data, MessageID: messageID}}
}

func command(id, name, args string) message.InboundMessage {
	return message.InboundMessage{ID: id, Command: &message.Command{Name: name, Args: args}}
}

func buttons(kb [][]message.Button) []string {
	var data []string
	for _, row := range kb {
		for _, b := range row {
			data = append(data, b.Data)
		}
	}
	return data
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	cfg := decodeConfig(t, "")
	if _, err := New(Options{Config: cfg, Transcriber: &transcribetest.MockTranscriber{}}); !errors.Is(err, ErrNoOutbox) {
		t.Errorf("without outbox: got %v, want ErrNoOutbox", err)
	}
	if _, err := New(Options{Config: cfg, Outbox: channel.NewDispatcher()}); !errors.Is(err, ErrNoTranscriber) {
		t.Errorf("without transcriber: got %v, want ErrNoTranscriber", err)
	}
}

func TestNew_HidesModesWithoutLanguageModel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{noLLM: true, noStart: true})
	got := strings.Join(h.bot.Stats().Modes, ",")
	if got != "transcript,lyrics" {
		t.Errorf("modes = %q, want transcript,lyrics", got)
	}
}

func TestNew_DefaultModeNeedsLanguageModel(t *testing.T) {
	t.Parallel()

	cfg := decodeConfig(t, "default_mode: summary")
	_, err := New(Options{
		Config:      cfg,
		Outbox:      channel.NewDispatcher(),
		Transcriber: &transcribetest.MockTranscriber{},
		Logger:      discardLogger(),
	})
	if !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("got %v, want ErrUnknownMode", err)
	}
}

func TestBot_AudioMenuThenTranscript(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{})
	h.ch.PutMedia("file-1", []byte("OggS-fake"))

	h.deliver(voice("1"))
	menu := h.next()
	if menu.ReplyToID != "1" {
		t.Errorf("menu ReplyToID = %q, want 1", menu.ReplyToID)
	}
	if !strings.Contains(menu.TextContent(), "Choose what to do") {
		t.Errorf("menu text = %q", menu.TextContent())
	}
	want := []string{"mode:transcript", "mode:summary", "mode:translate", "mode:lecture", "mode:soap", "mode:lyrics"}
	if got := buttons(menu.Keyboard); strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("buttons = %v, want %v", got, want)
	}
	if len(menu.Keyboard[0]) != defaultMenuColumns {
		t.Errorf("row width = %d, want %d", len(menu.Keyboard[0]), defaultMenuColumns)
	}
	if h.bot.PendingStore().Len() != 1 {
		t.Fatalf("pending = %d, want 1", h.bot.PendingStore().Len())
	}

	h.deliver(press("2", "mode:transcript", "menu-7"))

	processing := h.next()
	if processing.EditMessageID != "menu-7" || !strings.Contains(processing.TextContent(), "Processing") {
		t.Errorf("processing = %+v", processing)
	}
	done := h.next()
	if done.EditMessageID != "menu-7" {
		t.Errorf("result EditMessageID = %q, want menu-7", done.EditMessageID)
	}
	text := done.TextContent()
	for _, part := range []string{"✅ Done", "Transcript", "hello from the recording", "🤖 groq"} {
		if !strings.Contains(text, part) {
			t.Errorf("result %q misses %q", text, part)
		}
	}

	if got := h.ch.Callbacks(); len(got) != 1 || got[0] != "cb-2" {
		t.Errorf("callbacks = %v, want [cb-2]", got)
	}
	if h.bot.PendingStore().Len() != 0 {
		t.Errorf("pending = %d after the job, want 0", h.bot.PendingStore().Len())
	}
	calls := h.stt.Calls()
	if len(calls) != 1 || string(calls[0].Data) != "OggS-fake" || calls[0].FileName != "audio.ogg" {
		t.Errorf("transcriber calls = %+v", calls)
	}
	if calls[0].Language != "" {
		t.Errorf("language hint = %q, want none by default", calls[0].Language)
	}
	if len(h.llm.Requests()) != 0 {
		t.Error("transcript mode must not call the language model")
	}
}

func TestBot_ModePromptReachesLanguageModel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{config: "default_language: fa"})
	h.ch.PutMedia("file-1", []byte("audio"))

	h.deliver(voice("1"))
	h.next()
	h.deliver(press("2", "mode:summary", "menu-1"))
	h.next()
	done := h.next()

	reqs := h.llm.Requests()
	if len(reqs) != 1 {
		t.Fatalf("language model requests = %d, want 1", len(reqs))
	}
	msgs := reqs[0].Messages
	if len(msgs) != 2 || msgs[0].Role != provider.MessageRoleSystem || msgs[1].Role != provider.MessageRoleUser {
		t.Fatalf("messages = %+v", msgs)
	}
	if !strings.Contains(msgs[1].Content, "Persian") || !strings.Contains(msgs[1].Content, "hello from the recording") {
		t.Errorf("prompt = %q", msgs[1].Content)
	}
	if reqs[0].MaxTokens != defaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", reqs[0].MaxTokens, defaultMaxTokens)
	}

	text := done.TextContent()
	if !strings.Contains(text, "• a summary") {
		t.Errorf("result = %q", text)
	}
	if !strings.Contains(text, "groq → sambanova/llama-3.3-70b") {
		t.Errorf("result footer = %q", text)
	}
}

func TestBot_ForcedModeLanguage(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{config: "default_language: fa"})
	h.ch.PutMedia("file-1", []byte("audio"))

	h.deliver(voice("1"))
	h.next()
	h.deliver(press("2", "mode:soap", "menu-1"))
	h.next()
	h.next()

	reqs := h.llm.Requests()
	if len(reqs) != 1 || !strings.Contains(reqs[0].Messages[1].Content, "SOAP note in English") {
		t.Fatalf("requests = %+v", reqs)
	}
}

func TestBot_UpstreamErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unsupported", transcribe.ErrUnsupportedAudio, "not supported"},
		{"empty", transcribe.ErrEmptyTranscript, "No speech"},
		{"rate limited everywhere", provider.ErrRateLimit, "Every service failed"},
		{"other", errors.New("boom"), "Something went wrong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, harnessOpts{
				sttFunc: func(context.Context, transcribe.Audio) (transcribe.Transcript, error) {
					return transcribe.Transcript{}, tt.err
				},
			})
			h.ch.PutMedia("file-1", []byte("audio"))

			h.deliver(voice("1"))
			h.next()
			h.deliver(press("2", "mode:transcript", "menu-1"))
			h.next()
			got := h.next()
			if !strings.Contains(got.TextContent(), tt.want) {
				t.Errorf("reply = %q, want it to contain %q", got.TextContent(), tt.want)
			}
			if h.bot.PendingStore().Len() != 0 {
				t.Error("pending input must be cleared after a failed job")
			}
		})
	}
}

func TestBot_DownloadTooLarge(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{config: "max_file_size: 4"})
	h.ch.PutMedia("file-1", []byte("more than four bytes"))

	msg := voice("1")
	msg.Blocks[0].Size = 0 // size unknown until download
	h.deliver(msg)
	h.next()
	h.deliver(press("2", "mode:transcript", "menu-1"))
	h.next()
	got := h.next()
	if !strings.Contains(got.TextContent(), "larger than") {
		t.Errorf("reply = %q", got.TextContent())
	}
	if len(h.stt.Calls()) != 0 {
		t.Error("transcriber must not run for oversized audio")
	}
}

func TestBot_AnnouncedSizeTooLarge(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{})
	msg := voice("1")
	msg.Blocks[0].Size = DefaultMaxFileSize + 1
	h.deliver(msg)

	got := h.next()
	if !strings.Contains(got.TextContent(), "larger than 20 MB") {
		t.Errorf("reply = %q", got.TextContent())
	}
	if len(got.Keyboard) != 0 {
		t.Error("oversized audio must not get a menu")
	}
	if h.bot.PendingStore().Len() != 0 {
		t.Error("oversized audio must not be stored")
	}
}

func TestBot_NotAudio(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{})
	h.deliver(message.InboundMessage{ID: "1", Blocks: []message.ContentBlock{
		message.NewFileBlock("file-1", "application/pdf", "report.pdf"),
	}})

	got := h.next()
	if !strings.Contains(got.TextContent(), "audio file or a voice message") {
		t.Errorf("reply = %q", got.TextContent())
	}
}

func TestBot_ModeWithoutPendingInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{})
	h.deliver(press("1", "mode:transcript", "menu-1"))

	h.expectNone()
	if got := h.ch.Toast("cb-1"); !strings.Contains(got, "send an audio file first") {
		t.Errorf("toast = %q", got)
	}
}

func TestBot_GroupMenuPressedByOtherMember(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{})
	h.ch.PutMedia("file-1", []byte("audio"))
	group := message.Chat{ID: "-100", Type: message.ChatGroup}

	alice := voice("1")
	alice.Chat = group
	h.deliver(alice)
	h.next()

	bob := press("2", "mode:transcript", "menu-7")
	bob.Chat = group
	bob.Sender = message.Sender{ID: "77", Username: "bob"}
	h.deliver(bob)

	h.expectNone()
	if got := h.ch.Toast("cb-2"); !strings.Contains(got, "send an audio file first") {
		t.Errorf("toast = %q", got)
	}
	if h.bot.PendingStore().Len() != 1 {
		t.Fatalf("pending = %d, want alice's input kept", h.bot.PendingStore().Len())
	}

	own := press("3", "mode:transcript", "menu-7")
	own.Chat = group
	h.deliver(own)
	if got := h.next(); got.EditMessageID != "menu-7" || !strings.Contains(got.TextContent(), "Processing") {
		t.Errorf("processing = %+v", got)
	}
	if got := h.next(); !strings.Contains(got.TextContent(), "hello from the recording") {
		t.Errorf("result = %q", got.TextContent())
	}
	if got := h.ch.Toast("cb-3"); got != "" {
		t.Errorf("toast for the owner = %q, want none", got)
	}
}

func TestBot_ExpiredPendingInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{})
	h.ch.PutMedia("file-1", []byte("audio"))

	h.deliver(voice("1"))
	h.next()

	h.bot.PendingStore().mu.Lock()
	h.bot.PendingStore().now = func() time.Time { return time.Now().Add(DefaultPendingTTL + time.Minute) }
	h.bot.PendingStore().mu.Unlock()

	h.deliver(press("2", "mode:transcript", "menu-1"))
	h.expectNone()
	if got := h.ch.Toast("cb-2"); !strings.Contains(got, "send an audio file first") {
		t.Errorf("toast = %q", got)
	}
}

func TestBot_TextInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{})
	h.deliver(message.InboundMessage{ID: "1", Blocks: []message.ContentBlock{message.NewTextBlock("  some notes  ")}})

	menu := h.next()
	if !strings.Contains(menu.TextContent(), "Got your text") || len(menu.Keyboard) == 0 {
		t.Fatalf("menu = %+v", menu)
	}

	h.deliver(press("2", "mode:translate", "menu-1"))
	h.next()
	h.next()

	if len(h.stt.Calls()) != 0 {
		t.Error("text input must skip transcription")
	}
	reqs := h.llm.Requests()
	if len(reqs) != 1 || !strings.Contains(reqs[0].Messages[1].Content, "some notes") {
		t.Fatalf("requests = %+v", reqs)
	}
}

func TestBot_LanguageModelFallback(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{llmErr: fmt.Errorf("%w: down", provider.ErrProviderDown)})
	h.ch.PutMedia("file-1", []byte("audio"))

	h.deliver(voice("1"))
	h.next()
	h.deliver(press("2", "mode:lyrics", "menu-1"))
	h.next()
	got := h.next()
	if !strings.Contains(got.TextContent(), "hello from the recording") {
		t.Errorf("lyrics without a model should reply with the transcript, got %q", got.TextContent())
	}

	h.ch.PutMedia("file-3", []byte("audio"))
	h.deliver(voice("3"))
	h.next()
	h.deliver(press("4", "mode:summary", "menu-2"))
	h.next()
	got = h.next()
	if !strings.Contains(got.TextContent(), "Every service failed") {
		t.Errorf("summary without a model should fail, got %q", got.TextContent())
	}
}

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	songs   []lyrics.Song
}

func (f *fakeSearcher) Search(_ context.Context, q string) ([]lyrics.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if len(f.songs) == 0 {
		return nil, lyrics.ErrNotFound
	}
	return f.songs, nil
}

func TestBot_LyricsMode(t *testing.T) {
	t.Parallel()

	search := &fakeSearcher{songs: []lyrics.Song{{Title: "Yesterday", Artist: "The Beatles", URL: "https://genius.com/yesterday"}}}
	h := newHarness(t, harnessOpts{lyrics: search})
	h.ch.PutMedia("file-1", []byte("audio"))

	h.deliver(voice("1"))
	h.next()
	h.deliver(press("2", "mode:lyrics", "menu-1"))
	h.next()
	got := textOf(h.next())

	for _, part := range []string{"The Beatles - Yesterday", "https://genius.com/yesterday", "• a summary"} {
		if !strings.Contains(got, part) {
			t.Errorf("result %q misses %q", got, part)
		}
	}
	if len(search.queries) != 1 || search.queries[0] != "hello from the recording" {
		t.Errorf("queries = %v", search.queries)
	}
	if p := h.llm.Requests()[0].Messages[0].Content; !strings.Contains(p, `"The Beatles - Yesterday"`) {
		t.Errorf("prompt = %q", p)
	}
}

func TestBot_LyricsNotFound(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{lyrics: &fakeSearcher{}, noLLM: true})
	h.ch.PutMedia("file-1", []byte("audio"))

	h.deliver(voice("1"))
	h.next()
	h.deliver(press("2", "mode:lyrics", "menu-1"))
	h.next()
	got := textOf(h.next())
	if !strings.Contains(got, "No matching song") || !strings.Contains(got, "hello from the recording") {
		t.Errorf("result = %q", got)
	}
}

func TestBot_StickyMode(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{})
	h.ch.PutMedia("file-2", []byte("audio"))

	h.deliver(command("1", "mode", "transcript"))
	if got := h.next(); !strings.Contains(got.TextContent(), "Default mode") {
		t.Fatalf("reply = %q", got.TextContent())
	}

	h.deliver(voice("2"))
	done := h.next()
	if len(done.Keyboard) != 0 || done.ReplyToID != "2" || !strings.Contains(done.TextContent(), "hello from the recording") {
		t.Errorf("result = %+v", done)
	}
	h.expectNone()

	h.deliver(command("3", "mode", "off"))
	h.next()
	if got := h.bot.Preferences().Mode("telegram:42"); got != "" {
		t.Errorf("mode after /mode off = %q", got)
	}
}

func TestBot_DefaultMode(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{config: "default_mode: transcript"})
	h.ch.PutMedia("file-1", []byte("audio"))

	h.deliver(voice("1"))
	if got := h.next(); !strings.Contains(got.TextContent(), "hello from the recording") {
		t.Errorf("result = %q", got.TextContent())
	}
}

func TestBot_ModeMenu(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{noLLM: true})
	h.deliver(command("1", "mode", ""))
	menu := h.next()
	want := []string{"setmode:transcript", "setmode:lyrics", "setmode:-"}
	if got := buttons(menu.Keyboard); strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("buttons = %v, want %v", got, want)
	}

	h.deliver(press("2", "setmode:lyrics", "menu-1"))
	if got := h.next(); got.EditMessageID != "menu-1" || !strings.Contains(got.TextContent(), "Lyrics") {
		t.Errorf("reply = %+v", got)
	}
	if got := h.bot.Preferences().Mode("telegram:42"); got != "lyrics" {
		t.Errorf("mode = %q, want lyrics", got)
	}

	h.deliver(press("3", "setmode:-", "menu-1"))
	h.next()
	if got := h.bot.Preferences().Mode("telegram:42"); got != "" {
		t.Errorf("mode = %q, want cleared", got)
	}
}

func TestBot_LanguageCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{})

	h.deliver(command("1", "lang", ""))
	menu := h.next()
	if got := buttons(menu.Keyboard); len(got) != 6 || got[0] != "lang:en" {
		t.Fatalf("buttons = %v", got)
	}

	h.deliver(press("2", "lang:fr", "menu-1"))
	if got := h.next(); !strings.Contains(got.TextContent(), "Français") {
		t.Errorf("reply = %q", got.TextContent())
	}
	if got := h.bot.Preferences().Language("telegram:42"); got != "fr" {
		t.Errorf("language = %q, want fr", got)
	}

	h.deliver(command("3", "lang", "DE"))
	h.next()
	if got := h.bot.Preferences().Language("telegram:42"); got != "de" {
		t.Errorf("language = %q, want de", got)
	}

	h.deliver(command("4", "lang", "xx"))
	if got := h.next(); !strings.Contains(got.TextContent(), "en, fa, fr, de, es, ar") {
		t.Errorf("reply = %q", got.TextContent())
	}
}

func TestBot_MixedCaseNames(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{noLLM: true, config: `
default_language: pt-BR
languages:
  - code: pt-BR
    name: Brazilian Portuguese
    label: Português
  - code: en
    name: English
    label: English
modes:
  - name: Raw
    label: Raw text
`})

	h.deliver(command("1", "lang", "PT-br"))
	if got := h.next(); !strings.Contains(got.TextContent(), "Português") {
		t.Errorf("reply = %q", got.TextContent())
	}
	if got := h.bot.Preferences().Language("telegram:42"); got != "pt-BR" {
		t.Errorf("language = %q, want pt-BR", got)
	}

	h.deliver(command("2", "mode", "raw"))
	if got := h.next(); !strings.Contains(got.TextContent(), "Raw text") {
		t.Errorf("reply = %q", got.TextContent())
	}
	if got := h.bot.Preferences().Mode("telegram:42"); got != "Raw" {
		t.Errorf("mode = %q, want Raw", got)
	}
}

func TestBot_LanguageHint(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{config: "language_hint: true\ndefault_language: es"})
	h.ch.PutMedia("file-1", []byte("audio"))

	h.deliver(voice("1"))
	h.next()
	h.deliver(press("2", "mode:transcript", "menu-1"))
	h.next()
	h.next()
	if calls := h.stt.Calls(); len(calls) != 1 || calls[0].Language != "es" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestBot_StartAndHelp(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{noLLM: true})

	h.deliver(command("1", "start", ""))
	welcome := textOf(h.next())
	if !strings.Contains(welcome, "Welcome") || !strings.Contains(welcome, "• 🎙 Transcript") {
		t.Errorf("welcome = %q", welcome)
	}

	h.deliver(command("2", "nonsense", ""))
	if got := textOf(h.next()); !strings.Contains(got, "How to use") || !strings.Contains(got, "20 MB") {
		t.Errorf("help = %q", got)
	}
}

type fakeConverter struct{}

func (fakeConverter) Convert(_ context.Context, data []byte, _ string) ([]byte, string, error) {
	return append([]byte("mp3:"), data...), "audio/mpeg", nil
}

func TestBot_ConvertsAudio(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{converts: fakeConverter{}})
	h.ch.PutMedia("file-1", []byte("ogg"))

	h.deliver(voice("1"))
	h.next()
	h.deliver(press("2", "mode:transcript", "menu-1"))
	h.next()
	h.next()

	calls := h.stt.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	if string(calls[0].Data) != "mp3:ogg" || calls[0].MIMEType != "audio/mpeg" || calls[0].FileName != "audio.mp3" {
		t.Errorf("audio = %+v", calls[0])
	}
}

func TestBot_InboxFull(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{config: "inbox_size: 1", noStart: true})

	h.deliver(command("1", "help", ""))
	err := h.ch.Deliver(message.InboundMessage{
		ID: "2", Sender: message.Sender{ID: "42"}, Chat: message.Chat{ID: "42"},
		Command: &message.Command{Name: "help"},
	})
	if !errors.Is(err, ErrInboxFull) {
		t.Fatalf("second submit = %v, want ErrInboxFull", err)
	}
	if got := h.next(); !strings.Contains(got.TextContent(), "busy") {
		t.Errorf("notice = %q", got.TextContent())
	}
}

func TestBot_RateLimited(t *testing.T) {
	t.Parallel()

	limiter := security.NewRateLimiter(security.RateLimitConfig{MessagesPerMin: 1})
	h := newHarness(t, harnessOpts{limiter: limiter, noLLM: true})

	h.deliver(command("1", "help", ""))
	h.next()

	msg := command("2", "help", "")
	msg.Sender = message.Sender{ID: "42"}
	msg.Chat = message.Chat{ID: "42"}
	if err := h.ch.Deliver(msg); !errors.Is(err, security.ErrRateLimited) {
		t.Fatalf("second submit = %v, want ErrRateLimited", err)
	}
	if got := h.next(); !strings.Contains(got.TextContent(), "Too many requests") {
		t.Errorf("notice = %q", got.TextContent())
	}
}

func TestBot_JobRateLimited(t *testing.T) {
	t.Parallel()

	limiter := security.NewRateLimiter(security.RateLimitConfig{MessagesPerMin: -1, JobsPerHour: 1})
	audit, events := securitytest.NewTestAuditLogger()
	h := newHarness(t, harnessOpts{limiter: limiter, audit: audit, config: "default_mode: transcript", noLLM: true})
	h.ch.PutMedia("file-1", []byte("audio"))
	h.ch.PutMedia("file-2", []byte("audio"))

	h.deliver(voice("1"))
	h.next()

	h.deliver(voice("2"))
	if got := h.next(); !strings.Contains(got.TextContent(), "Too many requests") {
		t.Errorf("reply = %q", got.TextContent())
	}
	if len(h.stt.Calls()) != 1 {
		t.Errorf("transcriber calls = %d, want 1", len(h.stt.Calls()))
	}

	got := events()
	if len(got) != 2 {
		t.Fatalf("audit events = %+v, want 2", got)
	}
	if got[0].Type != security.EventJob || got[0].Metadata["outcome"] != "ok" || got[0].ChatID != "42" {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Type != security.EventRateLimit || got[1].Detail != "transcript" {
		t.Errorf("second event = %+v", got[1])
	}
}

func TestBot_JobRateLimitedFromMenu(t *testing.T) {
	t.Parallel()

	limiter := security.NewRateLimiter(security.RateLimitConfig{MessagesPerMin: -1, JobsPerHour: 1})
	h := newHarness(t, harnessOpts{limiter: limiter, noLLM: true})
	h.ch.PutMedia("file-1", []byte("audio"))
	h.ch.PutMedia("file-3", []byte("audio"))

	h.deliver(voice("1"))
	h.next()
	h.deliver(press("2", "mode:transcript", "menu-1"))
	h.next()
	h.next()

	h.deliver(voice("3"))
	h.next()
	h.deliver(press("4", "mode:transcript", "menu-3"))

	h.expectNone()
	if got := h.ch.Toast("cb-4"); !strings.Contains(got, "Too many requests") {
		t.Errorf("toast = %q", got)
	}
	if h.bot.PendingStore().Len() != 1 {
		t.Errorf("pending = %d, want the input kept for a later try", h.bot.PendingStore().Len())
	}
}

func TestBot_SubmitAfterStop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{})
	h.bot.Stop(context.Background())

	if err := h.bot.Submit(command("1", "help", "")); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit() = %v, want ErrStopped", err)
	}
}

func TestBot_SerialPerChat(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var mu sync.Mutex
	active, peak := 0, 0
	h := newHarness(t, harnessOpts{
		config: "default_mode: transcript",
		noLLM:  true,
		sttFunc: func(ctx context.Context, _ transcribe.Audio) (transcribe.Transcript, error) {
			mu.Lock()
			active++
			peak = max(peak, active)
			mu.Unlock()
			started <- struct{}{}
			select {
			case <-release:
			case <-ctx.Done():
			}
			mu.Lock()
			active--
			mu.Unlock()
			return transcribe.Transcript{Text: "ok"}, nil
		},
	})
	h.ch.PutMedia("file-1", []byte("a"))
	h.ch.PutMedia("file-2", []byte("b"))

	h.deliver(voice("1"))
	select {
	case <-started:
	case <-time.After(waitTimeout):
		t.Fatal("first job did not start")
	}
	h.deliver(voice("2"))
	select {
	case <-started:
		t.Fatal("second job started while the first was running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	for range 2 {
		h.next()
	}
	mu.Lock()
	defer mu.Unlock()
	if peak != 1 {
		t.Errorf("peak concurrent jobs in one chat = %d, want 1", peak)
	}
}

func TestBot_Reload(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{noLLM: true})

	cfg := decodeConfig(t, `
messages:
  help: "custom help {max_size}"
modes:
  - name: raw
    label: Raw
`)
	if err := h.bot.Reload(cfg); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}
	if got := h.bot.Stats().Modes; len(got) != 1 || got[0] != "raw" {
		t.Errorf("modes = %v", got)
	}

	h.deliver(command("1", "help", ""))
	if got := textOf(h.next()); got != "custom help 20 MB" {
		t.Errorf("help = %q", got)
	}

	bad := decodeConfig(t, "")
	bad.Modes = []ModeConfig{{Name: "summary", NeedsLLM: true, Prompt: "x"}}
	if err := h.bot.Reload(bad); err == nil {
		t.Error("Reload() should fail when no mode is usable")
	}
	if got := h.bot.Stats().Modes; len(got) != 1 || got[0] != "raw" {
		t.Errorf("failed reload changed modes to %v", got)
	}
}

func TestBot_MetricsAndTracing(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	h := newHarness(t, harnessOpts{metrics: NewMetrics(reg), tracer: tp, noLLM: true})
	h.ch.PutMedia("file-1", []byte("audio"))

	h.deliver(voice("1"))
	h.next()
	h.deliver(press("2", "mode:transcript", "menu-1"))
	h.next()
	h.next()

	if got := testutil.ToFloat64(h.bot.metrics.Jobs.WithLabelValues("transcript", "ok")); got != 1 {
		t.Errorf("jobs_total{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.bot.metrics.Updates.WithLabelValues("media")); got != 1 {
		t.Errorf("updates_total{media} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.bot.metrics.Updates.WithLabelValues("callback")); got != 1 {
		t.Errorf("updates_total{callback} = %v, want 1", got)
	}

	// The span ends after the result is sent.
	deadline := time.Now().Add(waitTimeout)
	for len(rec.Ended()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != "bot.job" {
		t.Fatalf("spans = %v", spans)
	}
	var mode string
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "job.mode" {
			mode = kv.Value.AsString()
		}
	}
	if mode != "transcript" {
		t.Errorf("job.mode = %q", mode)
	}
}

// textOf gives an addressable copy so the pointer method TextContent can be called.
func textOf(m message.OutboundMessage) string { return m.TextContent() }
