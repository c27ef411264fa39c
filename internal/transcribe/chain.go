package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/flemzord/omnihear/internal/provider"
)

// Entry is one backend of a Chain.
type Entry struct {
	Name        string
	Transcriber Transcriber
	Health      provider.HealthConfig
}

type chainEntry struct {
	Entry
	health *provider.HealthTracker
}

// Chain tries backends in order. Rate limits and outages fail over and
// cool the backend down; an unsupported format fails over without a health
// penalty; any other error stops the chain. Start health-checks unavailable
// backends in the background so a dead one can come back.
type Chain struct {
	entries []chainEntry
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChain creates a chain. A nil logger discards output.
func NewChain(entries []Entry, logger *slog.Logger) (*Chain, error) {
	if len(entries) == 0 {
		return nil, ErrNoTranscriber
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Chain{entries: make([]chainEntry, len(entries)), logger: logger}
	for i, e := range entries {
		if e.Transcriber == nil {
			return nil, fmt.Errorf("%w: entry %q has nil transcriber", ErrNoTranscriber, e.Name)
		}
		health := provider.NewHealthTracker(e.Health)
		health.OnStateChange = func(from, to provider.HealthState) {
			c.logger.Info("transcriber health changed", "transcriber", e.Name,
				"from", from.String(), "to", to.String(), "failures", health.Failures())
		}
		c.entries[i] = chainEntry{Entry: e, health: health}
	}
	return c, nil
}

// Start launches the background health checks. It is a no-op when already running.
func (c *Chain) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}
	interval := c.entries[0].Health.Interval()
	for _, e := range c.entries[1:] {
		interval = min(interval, e.Health.Interval())
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.watch(ctx, interval, c.done)
}

// Stop cancels the health checks and waits for them to return.
func (c *Chain) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Chain) watch(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i := range c.entries {
				c.entries[i].health.Recheck(ctx, c.entries[i].Transcriber)
			}
		}
	}
}

// Transcribe runs audio through the first backend that succeeds.
func (c *Chain) Transcribe(ctx context.Context, audio Audio) (Transcript, error) {
	var lastErr error
	for i := range c.entries {
		e := &c.entries[i]
		if err := ctx.Err(); err != nil {
			return Transcript{}, err
		}
		if !e.health.IsAvailable() {
			continue
		}

		tr, err := e.Transcriber.Transcribe(ctx, audio)
		if err == nil {
			tr.Text = strings.TrimSpace(tr.Text)
			if tr.Text == "" {
				err = ErrEmptyTranscript
			}
		}
		if err == nil {
			e.health.RecordSuccess()
			tr.Provider = e.Name
			return tr, nil
		}

		lastErr = err
		switch {
		case provider.IsRetryable(err):
			e.health.RecordFailure()
		case errors.Is(err, ErrUnsupportedAudio):
		default:
			return Transcript{}, err
		}
		c.logger.Warn("transcriber failed, failing over", "transcriber", e.Name, "error", err)
	}

	if lastErr != nil {
		return Transcript{}, fmt.Errorf("%w: last error: %w", ErrAllFailed, lastErr)
	}
	return Transcript{}, fmt.Errorf("%w: all transcribers unavailable", ErrAllFailed)
}

// Names returns the backend names in chain order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

// HealthReport returns the health of every backend in chain order.
func (c *Chain) HealthReport() []provider.Status {
	report := make([]provider.Status, 0, len(c.entries))
	for i := range c.entries {
		report = append(report, c.entries[i].health.Snapshot(c.entries[i].Name))
	}
	return report
}

// Order sorts entries by the position of their name in order. Names not in
// order keep their relative position after the listed ones.
func Order(entries []Entry, order []string) []Entry {
	rank := make(map[string]int, len(order))
	for i, name := range order {
		rank[name] = i
	}
	out := make([]Entry, 0, len(entries))
	var rest []Entry
	for _, name := range order {
		for _, e := range entries {
			if e.Name == name {
				out = append(out, e)
			}
		}
	}
	for _, e := range entries {
		if _, ok := rank[e.Name]; !ok {
			rest = append(rest, e)
		}
	}
	return append(out, rest...)
}
