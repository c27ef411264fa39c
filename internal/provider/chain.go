// Package provider defines the Provider interface for language models,
// health tracking with exponential backoff, and a failover chain.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// ChainEntry configures one provider in the chain. A provider module with
// several models contributes one entry per model, in order.
type ChainEntry struct {
	Name     string
	Provider Provider
	Role     Role
	Keys     *KeyRing
	Health   HealthConfig

	// FallbackFor limits a RoleFallback entry to these roles. Empty means
	// every role.
	FallbackFor []Role
}

type chainEntry struct {
	ChainEntry
	health *HealthTracker
}

// ChainOption configures optional Chain behavior.
type ChainOption func(*Chain)

// WithLogger sets the chain logger. Logs are discarded when omitted.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// Chain routes completions by role and fails over across providers. It is
// not itself a Provider.
type Chain struct {
	entries []chainEntry
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewChain creates a chain from entries.
func NewChain(entries []ChainEntry, opts ...ChainOption) (*Chain, error) {
	if len(entries) == 0 {
		return nil, ErrNoProvider
	}

	c := &Chain{entries: make([]chainEntry, len(entries))}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}

	for i, e := range entries {
		if e.Provider == nil {
			return nil, fmt.Errorf("%w: entry %q has nil provider", ErrNoProvider, e.Name)
		}
		if e.Role == "" {
			e.Role = RolePrimary
		}
		c.entries[i] = chainEntry{ChainEntry: e, health: NewHealthTracker(e.Health)}
		c.entries[i].health.OnStateChange = c.logTransition(e.Name, c.entries[i].health)
	}

	return c, nil
}

func (c *Chain) logTransition(name string, h *HealthTracker) func(from, to HealthState) {
	return func(from, to HealthState) {
		switch to {
		case StateCooldown:
			c.logger.Warn("provider entered cooldown", "provider", name, "backoff", h.CurrentBackoff(), "failures", h.Failures())
		case StateDead:
			c.logger.Error("provider marked dead", "provider", name, "total_failures", h.Failures())
		case StateHealthy:
			c.logger.Info("provider revived", "provider", name, "previous_state", from.String())
		}
	}
}

// Start launches background health checks.
func (c *Chain) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	go runHealthChecks(ctx, minHealthCheckInterval(c.entries), c.entries)
}

// Stop cancels background health checks.
func (c *Chain) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Complete sends req to the best available provider for role, failing over
// on transient errors. The response names the entry that answered.
func (c *Chain) Complete(ctx context.Context, role Role, req CompletionRequest) (CompletionResponse, error) {
	candidates := c.candidates(role)
	if len(candidates) == 0 {
		return CompletionResponse{}, fmt.Errorf("%w for role %q", ErrNoProvider, role)
	}

	var lastErr error
	for _, e := range candidates {
		if err := ctx.Err(); err != nil {
			return CompletionResponse{}, err
		}
		if !e.health.IsAvailable() {
			continue
		}

		resp, err := e.Provider.Complete(ctx, req)
		if err == nil {
			e.health.RecordSuccess()
			resp.Provider = e.Name
			if resp.Model == "" {
				resp.Model = e.Provider.ModelName()
			}
			return resp, nil
		}

		lastErr = err
		if !shouldFailover(err) {
			return CompletionResponse{}, err
		}
		c.recordFailure(e, err)
	}

	return CompletionResponse{}, c.exhausted(role, lastErr)
}

// Stream opens a stream on the best available provider for role. Failover
// only happens before the first chunk.
func (c *Chain) Stream(ctx context.Context, role Role, req CompletionRequest) (<-chan StreamChunk, error) {
	candidates := c.candidates(role)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w for role %q", ErrNoProvider, role)
	}

	var lastErr error
	for _, e := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.health.IsAvailable() {
			continue
		}

		ch, err := e.Provider.Stream(ctx, req)
		if err == nil {
			return c.wrapStream(ch, e), nil
		}

		lastErr = err
		if !shouldFailover(err) {
			return nil, err
		}
		c.recordFailure(e, err)
	}

	return nil, c.exhausted(role, lastErr)
}

func (c *Chain) recordFailure(e *chainEntry, err error) {
	if IsRateLimit(err) && e.Keys != nil && e.Keys.Next() {
		c.logger.Info("rate limited, switched API key", "provider", e.Name, "key_index", e.Keys.Index())
	}
	if IsRetryable(err) {
		e.health.RecordFailure()
	}
	c.logger.Warn("provider failed, failing over", "provider", e.Name, "error", err)
}

func (c *Chain) exhausted(role Role, lastErr error) error {
	if lastErr != nil {
		c.logger.Error("all providers exhausted", "role", role, "last_error", lastErr)
		return fmt.Errorf("%w: last error: %w", ErrAllProviders, lastErr)
	}
	c.logger.Error("all providers exhausted", "role", role)
	return fmt.Errorf("%w for role %q: all candidates unavailable", ErrAllProviders, role)
}

// wrapStream defers the health verdict until the stream ends.
func (c *Chain) wrapStream(src <-chan StreamChunk, e *chainEntry) <-chan StreamChunk {
	out := make(chan StreamChunk, cap(src))
	go func() {
		defer close(out)
		failed := false
		for chunk := range src {
			if chunk.Err != nil && IsRetryable(chunk.Err) {
				failed = true
				e.health.RecordFailure()
				c.logger.Warn("mid-stream error degraded provider health", "provider", e.Name, "error", chunk.Err)
			}
			out <- chunk
		}
		if !failed {
			e.health.RecordSuccess()
		}
	}()
	return out
}

// HasRole reports whether any entry can serve role.
func (c *Chain) HasRole(role Role) bool {
	return len(c.candidates(role)) > 0
}

// HealthReport returns the health of every entry in chain order.
func (c *Chain) HealthReport() []Status {
	report := make([]Status, 0, len(c.entries))
	for i := range c.entries {
		e := &c.entries[i]
		s := e.health.Snapshot(e.Name)
		s.Model = e.Provider.ModelName()
		s.Role = string(e.Role)
		report = append(report, s)
	}
	return report
}

// candidates returns direct role matches first, then fallbacks.
func (c *Chain) candidates(role Role) []*chainEntry {
	var direct, fallbacks []*chainEntry
	for i := range c.entries {
		e := &c.entries[i]
		switch {
		case e.Role == role:
			direct = append(direct, e)
		case e.Role == RoleFallback && (len(e.FallbackFor) == 0 || slices.Contains(e.FallbackFor, role)):
			fallbacks = append(fallbacks, e)
		}
	}
	return append(direct, fallbacks...)
}

func minHealthCheckInterval(entries []chainEntry) time.Duration {
	if len(entries) == 0 {
		return 10 * time.Second
	}
	interval := entries[0].Health.Interval()
	for _, e := range entries[1:] {
		interval = min(interval, e.Health.Interval())
	}
	return interval
}

// runHealthChecks checks dead and cooled-down entries until ctx is done.
func runHealthChecks(ctx context.Context, interval time.Duration, entries []chainEntry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i := range entries {
				entries[i].health.Recheck(ctx, entries[i].Provider)
			}
		}
	}
}
