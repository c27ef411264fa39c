package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// EventType names what an audit event records.
type EventType string

const (
	// EventJob is one finished processing job, any outcome.
	EventJob EventType = "job"
	// EventRateLimit is a message or job refused by the rate limiter.
	EventRateLimit    EventType = "rate_limit"
	EventAuthSuccess  EventType = "auth_success"
	EventAuthFailure  EventType = "auth_failure"
	EventConfigChange EventType = "config_change"
)

// AuditEvent is one line of the audit trail. Chat events carry the
// channel, chat and sender; gateway events carry the caller in Metadata.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Channel   string            `json:"channel,omitempty"`
	ChatID    string            `json:"chat_id,omitempty"`
	SenderID  string            `json:"sender_id,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditOption configures an AuditLogger.
type AuditOption func(*AuditLogger)

// WithAuditWriter appends events to w as JSON lines.
func WithAuditWriter(w io.Writer) AuditOption {
	return func(l *AuditLogger) { l.enc = json.NewEncoder(w) }
}

// WithAuditRedactor masks secrets in Detail and Metadata values.
func WithAuditRedactor(r *Redactor) AuditOption {
	return func(l *AuditLogger) { l.redactor = r }
}

// WithAuditHook calls fn with every redacted event, in order.
func WithAuditHook(fn func(AuditEvent)) AuditOption {
	return func(l *AuditLogger) { l.hooks = append(l.hooks, fn) }
}

// WithAuditClock replaces time.Now.
func WithAuditClock(now func() time.Time) AuditOption {
	return func(l *AuditLogger) { l.now = now }
}

// AuditLogger records security-relevant events. With no writer and no
// hook, Log only stamps and drops the event.
type AuditLogger struct {
	mu       sync.Mutex
	enc      *json.Encoder
	redactor *Redactor
	hooks    []func(AuditEvent)
	now      func() time.Time
	failed   atomic.Int64
}

func NewAuditLogger(opts ...AuditOption) *AuditLogger {
	l := &AuditLogger{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log stamps, redacts and records event. The caller's Metadata map is
// left untouched.
func (l *AuditLogger) Log(event AuditEvent) {
	event.Timestamp = l.now()
	if l.redactor != nil {
		event.Detail = l.redactor.Redact(event.Detail)
		if event.Metadata != nil {
			meta := make(map[string]string, len(event.Metadata))
			for k, v := range event.Metadata {
				meta[k] = l.redactor.Redact(v)
			}
			event.Metadata = meta
		}
	} else {
		event.Metadata = maps.Clone(event.Metadata)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, fn := range l.hooks {
		fn(event)
	}
	if l.enc != nil && l.enc.Encode(event) != nil {
		l.failed.Add(1)
	}
}

// WriteErrors returns how many events the writer rejected.
func (l *AuditLogger) WriteErrors() int64 {
	return l.failed.Load()
}
