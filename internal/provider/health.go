package provider

import (
	"context"
	"sync"
	"time"
)

// HealthState is the availability state of an upstream backend.
type HealthState int

// Health states. A backend in cooldown becomes available again once its
// backoff expires; a dead one only after a successful health check.
const (
	StateHealthy HealthState = iota
	StateCooldown
	StateDead
)

// String returns the label used in logs and the health report.
func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateCooldown:
		return "cooldown"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// HealthConfig controls health tracking.
type HealthConfig struct {
	// InitialBackoff is the cooldown after the first failure. Default: 1s.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the exponential backoff. Default: 60s.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// MaxFailures consecutive failures mark the backend dead. Default: 5.
	MaxFailures int `yaml:"max_failures"`

	// CheckInterval is how often dead or cooled-down backends are checked.
	// Default: 10s.
	CheckInterval time.Duration `yaml:"check_interval"`
}

// Interval returns CheckInterval or its default.
func (c HealthConfig) Interval() time.Duration {
	if c.CheckInterval <= 0 {
		return 10 * time.Second
	}
	return c.CheckInterval
}

func (c *HealthConfig) defaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 10 * time.Second
	}
}

// HealthTracker follows the availability of one backend with exponential
// backoff. It is shared by the LLM chain and the transcription chain.
type HealthTracker struct {
	cfg HealthConfig

	// OnStateChange, when set, is called outside the lock on every
	// transition.
	OnStateChange func(from, to HealthState)

	mu              sync.Mutex
	state           HealthState
	failures        int
	currentBackoff  time.Duration
	cooldownExpires time.Time

	now func() time.Time
}

// NewHealthTracker creates a healthy tracker.
func NewHealthTracker(cfg HealthConfig) *HealthTracker {
	cfg.defaults()
	return &HealthTracker{cfg: cfg, state: StateHealthy, now: time.Now}
}

// IsAvailable reports whether the backend can accept requests.
func (h *HealthTracker) IsAvailable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case StateHealthy:
		return true
	case StateCooldown:
		return !h.now().Before(h.cooldownExpires)
	default:
		return false
	}
}

// RecordSuccess resets the tracker to healthy.
func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	prev := h.state
	h.state = StateHealthy
	h.failures = 0
	h.currentBackoff = 0
	h.mu.Unlock()

	if prev != StateHealthy && h.OnStateChange != nil {
		h.OnStateChange(prev, StateHealthy)
	}
}

// RecordFailure moves the tracker to cooldown, doubling the backoff, or to
// dead after MaxFailures consecutive failures.
func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	prev := h.state
	h.failures++

	next := StateCooldown
	if h.failures >= h.cfg.MaxFailures {
		next = StateDead
	} else {
		if h.currentBackoff == 0 {
			h.currentBackoff = h.cfg.InitialBackoff
		} else {
			h.currentBackoff = min(h.currentBackoff*2, h.cfg.MaxBackoff)
		}
		h.cooldownExpires = h.now().Add(h.currentBackoff)
	}
	h.state = next
	h.mu.Unlock()

	if prev != next && h.OnStateChange != nil {
		h.OnStateChange(prev, next)
	}
}

// ShouldHealthCheck is true for dead backends and expired cooldowns.
func (h *HealthTracker) ShouldHealthCheck() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case StateDead:
		return true
	case StateCooldown:
		return !h.now().Before(h.cooldownExpires)
	default:
		return false
	}
}

// HalfOpen lets a dead backend take one more request. A failure marks it
// dead again, a success makes it healthy.
func (h *HealthTracker) HalfOpen() {
	h.mu.Lock()
	if h.state != StateDead {
		h.mu.Unlock()
		return
	}
	h.state = StateCooldown
	h.failures = h.cfg.MaxFailures - 1
	h.currentBackoff = h.cfg.MaxBackoff
	h.cooldownExpires = h.now()
	h.mu.Unlock()

	if h.OnStateChange != nil {
		h.OnStateChange(StateDead, StateCooldown)
	}
}

// Recheck checks backend when it is dead or its cooldown has expired.
// Backends that are not a HealthChecker are moved to half-open instead.
func (h *HealthTracker) Recheck(ctx context.Context, backend any) {
	if !h.ShouldHealthCheck() {
		return
	}
	checker, ok := backend.(HealthChecker)
	if !ok {
		h.HalfOpen()
		return
	}
	if err := checker.HealthCheck(ctx); err == nil {
		h.RecordSuccess()
	}
}

// State returns the current state.
func (h *HealthTracker) State() HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Failures returns the consecutive failure count.
func (h *HealthTracker) Failures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures
}

// CurrentBackoff returns the current backoff duration.
func (h *HealthTracker) CurrentBackoff() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentBackoff
}

// Status is one line of a health report.
type Status struct {
	Name      string `json:"name"`
	Model     string `json:"model,omitempty"`
	Role      string `json:"role,omitempty"`
	State     string `json:"state"`
	Available bool   `json:"available"`
	Failures  int    `json:"failures"`
}

// Snapshot renders the tracker as a Status for name.
func (h *HealthTracker) Snapshot(name string) Status {
	return Status{
		Name:      name,
		State:     h.State().String(),
		Available: h.IsAvailable(),
		Failures:  h.Failures(),
	}
}
