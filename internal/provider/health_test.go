package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeTime struct {
	mu      sync.Mutex
	current time.Time
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

func newTestTracker(cfg HealthConfig) (*HealthTracker, *fakeTime) {
	h := NewHealthTracker(cfg)
	ft := &fakeTime{current: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	h.now = ft.Now
	return h, ft
}

func TestHealthTracker_Cooldown(t *testing.T) {
	t.Parallel()
	h, ft := newTestTracker(HealthConfig{InitialBackoff: time.Second})

	h.RecordFailure()
	if h.State() != StateCooldown {
		t.Fatalf("state = %v, want cooldown", h.State())
	}
	if h.IsAvailable() {
		t.Error("should not be available during cooldown")
	}

	ft.Advance(time.Second)
	if !h.IsAvailable() {
		t.Error("should be available at expiry")
	}
	if !h.ShouldHealthCheck() {
		t.Error("expired cooldown should be checked")
	}
}

func TestHealthTracker_BackoffDoublesAndCaps(t *testing.T) {
	t.Parallel()
	h, _ := newTestTracker(HealthConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, MaxFailures: 10})

	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	for i, w := range want {
		h.RecordFailure()
		if got := h.CurrentBackoff(); got != w {
			t.Errorf("failure %d: backoff = %v, want %v", i+1, got, w)
		}
	}
}

func TestHealthTracker_DeadAndRevive(t *testing.T) {
	t.Parallel()
	h, _ := newTestTracker(HealthConfig{MaxFailures: 2})

	var transitions []HealthState
	h.OnStateChange = func(_, to HealthState) { transitions = append(transitions, to) }

	h.RecordFailure()
	h.RecordFailure()
	if h.State() != StateDead || h.IsAvailable() {
		t.Fatalf("state = %v, want dead and unavailable", h.State())
	}

	h.RecordSuccess()
	if h.State() != StateHealthy || h.Failures() != 0 {
		t.Errorf("after success: state = %v failures = %d", h.State(), h.Failures())
	}

	want := []HealthState{StateCooldown, StateDead, StateHealthy}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestHealthTracker_HalfOpen(t *testing.T) {
	t.Parallel()
	h, _ := newTestTracker(HealthConfig{MaxFailures: 3})

	h.HalfOpen()
	if h.State() != StateHealthy {
		t.Fatalf("healthy tracker moved to %v", h.State())
	}

	for range 3 {
		h.RecordFailure()
	}
	h.HalfOpen()
	if h.State() != StateCooldown || !h.IsAvailable() {
		t.Fatalf("state = %v available = %v, want available cooldown", h.State(), h.IsAvailable())
	}

	h.RecordFailure()
	if h.State() != StateDead {
		t.Errorf("failure after half-open: state = %v, want dead", h.State())
	}

	h.HalfOpen()
	h.RecordSuccess()
	if h.State() != StateHealthy || h.Failures() != 0 {
		t.Errorf("success after half-open: state = %v failures = %d", h.State(), h.Failures())
	}
}

type checkFunc func(context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHealthTracker_Recheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		backend any
		want    HealthState
	}{
		{name: "check passes", backend: checkFunc(func(context.Context) error { return nil }), want: StateHealthy},
		{name: "check fails", backend: checkFunc(func(context.Context) error { return errors.New("down") }), want: StateDead},
		{name: "no checker", backend: struct{}{}, want: StateCooldown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, _ := newTestTracker(HealthConfig{MaxFailures: 1})
			h.RecordFailure()
			h.Recheck(context.Background(), tt.backend)
			if got := h.State(); got != tt.want {
				t.Errorf("state = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHealthTracker_RecheckSkipsHealthy(t *testing.T) {
	t.Parallel()
	h, _ := newTestTracker(HealthConfig{})

	called := false
	h.Recheck(context.Background(), checkFunc(func(context.Context) error {
		called = true
		return nil
	}))
	if called {
		t.Error("healthy backend was checked")
	}
}

func TestHealthTracker_Snapshot(t *testing.T) {
	t.Parallel()
	h, _ := newTestTracker(HealthConfig{})
	h.RecordFailure()

	s := h.Snapshot("groq/llama")
	if s.Name != "groq/llama" || s.State != "cooldown" || s.Available || s.Failures != 1 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestMinHealthCheckInterval(t *testing.T) {
	t.Parallel()

	got := minHealthCheckInterval([]chainEntry{
		{ChainEntry: ChainEntry{Health: HealthConfig{CheckInterval: 30 * time.Second}}},
		{ChainEntry: ChainEntry{Health: HealthConfig{CheckInterval: -time.Second}}},
		{ChainEntry: ChainEntry{Health: HealthConfig{CheckInterval: 20 * time.Second}}},
	})
	if got != 10*time.Second {
		t.Errorf("interval = %v, want 10s", got)
	}
	if got := minHealthCheckInterval(nil); got != 10*time.Second {
		t.Errorf("empty interval = %v, want 10s", got)
	}
}
