// Package reload re-applies the configuration file while the bot runs,
// on SIGHUP or when the file changes on disk.
package reload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"os"
	"sync"
	"time"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	ConfigPath string
	// PollInterval defaults to 5s.
	PollInterval time.Duration
}

// Event reports that the watched file has new content.
type Event struct {
	ConfigPath string
	At         time.Time
}

// Watcher polls a file and emits an Event when its content changes. A
// touch without a content change, or a file that briefly disappears during
// an editor's atomic save, emits nothing.
type Watcher struct {
	cfg    WatcherConfig
	events chan Event

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewWatcher creates a watcher. Call Start to begin polling.
func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Watcher{cfg: cfg, events: make(chan Event, 1)}
}

// Start begins polling. Later calls are no-ops.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.stopped = make(chan struct{})
	go w.poll(ctx, w.stopped)
}

// Events delivers change notifications. Changes that arrive while an event
// is still unread are coalesced into it.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop ends polling and waits for the goroutine. It is safe before Start
// and more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, stopped := w.cancel, w.stopped
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (w *Watcher) poll(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	last := w.digest()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := w.digest()
			if cur == nil || bytes.Equal(cur, last) {
				continue
			}
			last = cur
			select {
			case w.events <- Event{ConfigPath: w.cfg.ConfigPath, At: time.Now()}:
			default:
			}
		}
	}
}

// digest returns the SHA-256 of the file, or nil when it cannot be read.
func (w *Watcher) digest() []byte {
	data, err := os.ReadFile(w.cfg.ConfigPath)
	if err != nil {
		return nil
	}
	sum := sha256.Sum256(data)
	return sum[:]
}
