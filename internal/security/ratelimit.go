package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate limit kinds.
const (
	// KindMessage counts inbound updates per sender.
	KindMessage = "message"
	// KindJob counts transcription jobs per sender.
	KindJob = "job"
	// KindAuth counts failed gateway logins per client address.
	KindAuth = "auth"
)

// RateLimitConfig holds configurable rate limits. A non-positive value
// disables the corresponding limit, except where a default applies.
type RateLimitConfig struct {
	MessagesPerMin int `yaml:"messages_per_min"`
	JobsPerHour    int `yaml:"jobs_per_hour"`
	AuthPerMin     int `yaml:"auth_per_min"`
}

func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		MessagesPerMin: 20,
		JobsPerHour:    0, // unlimited
		AuthPerMin:     10,
	}
}

type limit struct {
	window time.Duration
	max    int
}

// RateLimiter implements sliding-window rate limiting keyed by kind and
// caller (a user ID, a client address).
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[string]limit
	buckets map[bucketKey]*bucket
	now     func() time.Time
}

type bucketKey struct {
	kind string
	key  string
}

type bucket struct {
	window time.Duration
	events []time.Time
}

// NewRateLimiter creates a rate limiter with the given config. Zero
// MessagesPerMin and AuthPerMin get defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	if cfg.MessagesPerMin == 0 {
		cfg.MessagesPerMin = defaults.MessagesPerMin
	}
	if cfg.AuthPerMin == 0 {
		cfg.AuthPerMin = defaults.AuthPerMin
	}

	limits := make(map[string]limit)
	if cfg.MessagesPerMin > 0 {
		limits[KindMessage] = limit{window: time.Minute, max: cfg.MessagesPerMin}
	}
	if cfg.JobsPerHour > 0 {
		limits[KindJob] = limit{window: time.Hour, max: cfg.JobsPerHour}
	}
	if cfg.AuthPerMin > 0 {
		limits[KindAuth] = limit{window: time.Minute, max: cfg.AuthPerMin}
	}

	return &RateLimiter{
		limits:  limits,
		buckets: make(map[bucketKey]*bucket),
		now:     time.Now,
	}
}

// Allow records one event of kind for key. It returns ErrRateLimited when
// the window is already full. Kinds without a limit always pass.
func (rl *RateLimiter) Allow(kind, key string) error {
	return rl.AllowN(kind, key, 1)
}

// AllowN records n events at once, or none if they would overflow.
func (rl *RateLimiter) AllowN(kind, key string, n int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	lim, ok := rl.limits[kind]
	if !ok {
		return nil
	}

	k := bucketKey{kind: kind, key: key}
	b, ok := rl.buckets[k]
	if !ok {
		b = &bucket{window: lim.window}
		rl.buckets[k] = b
	}

	now := rl.now()
	b.evict(now)
	if len(b.events)+n > lim.max {
		return ErrRateLimited
	}
	for range n {
		b.events = append(b.events, now)
	}
	return nil
}

// Prune drops buckets with no event left in their window and returns how
// many were removed.
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for k, b := range rl.buckets {
		b.evict(now)
		if len(b.events) == 0 {
			delete(rl.buckets, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// evict removes events outside the sliding window. Events are in
// chronological order.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}

// Full reports whether the window of kind for key has no room left,
// without recording an event.
func (rl *RateLimiter) Full(kind, key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	lim, ok := rl.limits[kind]
	if !ok {
		return false
	}
	b, ok := rl.buckets[bucketKey{kind: kind, key: key}]
	if !ok {
		return false
	}
	b.evict(rl.now())
	return len(b.events) >= lim.max
}
