package bot

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flemzord/omnihear/pkg/message"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestPendingStore_TakeRemoves(t *testing.T) {
	t.Parallel()

	s := NewPendingStore(time.Minute)
	block := message.NewAudioBlock("f1", "audio/ogg", true)
	s.Put("telegram:1", Pending{Block: &block, MessageID: "10"})

	if p, ok := s.Peek("telegram:1"); !ok || p.MessageID != "10" {
		t.Fatalf("Peek() = %+v, %v", p, ok)
	}
	p, ok := s.Take("telegram:1")
	if !ok || p.IsText() || p.CreatedAt.IsZero() {
		t.Fatalf("Take() = %+v, %v", p, ok)
	}
	if _, ok := s.Take("telegram:1"); ok {
		t.Error("second Take() found the input again")
	}
}

func TestPendingStore_Replace(t *testing.T) {
	t.Parallel()

	s := NewPendingStore(time.Minute)
	s.Put("u", Pending{Text: "first"})
	s.Put("u", Pending{Text: "second"})

	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	if p, _ := s.Take("u"); p.Text != "second" || !p.IsText() {
		t.Errorf("Take() = %+v", p)
	}
}

func TestPendingStore_Expiry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := NewPendingStore(10 * time.Minute)
	s.now = clock.Now

	s.Put("old", Pending{Text: "a"})
	clock.Advance(8 * time.Minute)
	s.Put("new", Pending{Text: "b"})
	clock.Advance(5 * time.Minute)

	if _, ok := s.Peek("old"); ok {
		t.Error("expired input still visible")
	}
	if _, ok := s.Peek("new"); !ok {
		t.Error("fresh input hidden")
	}
	if n := s.Prune(); n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}

	clock.Advance(10 * time.Minute)
	if _, ok := s.Take("new"); ok {
		t.Error("Take() returned an expired input")
	}
	if s.Len() != 0 {
		t.Error("Take() must drop expired inputs")
	}
}

func TestPreferences(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	p := NewPreferences()
	p.now = clock.Now

	p.SetLanguage("a", "fa")
	p.SetMode("a", "summary")
	p.SetMode("b", "lyrics")

	if got := p.Language("a"); got != "fa" {
		t.Errorf("Language(a) = %q", got)
	}
	if got := p.Language("zzz"); got != "" {
		t.Errorf("Language(unknown) = %q", got)
	}
	if p.Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Len())
	}

	p.SetMode("a", "")
	if got := p.Mode("a"); got != "" {
		t.Errorf("Mode(a) after clear = %q", got)
	}
	if got := p.Language("a"); got != "fa" {
		t.Error("clearing the mode must keep the language")
	}

	clock.Advance(time.Hour)
	p.Mode("b") // reading counts as activity
	clock.Advance(30 * time.Minute)

	if n := p.Prune(time.Hour); n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if got := p.Mode("b"); got != "lyrics" {
		t.Errorf("Mode(b) = %q, want lyrics", got)
	}
}

func TestLaneLock_SameKeySerial(t *testing.T) {
	t.Parallel()

	ll := NewLaneLock()
	var active, peak atomic.Int32
	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ll.Acquire("telegram:1")
			defer ll.Release("telegram:1")

			cur := active.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	if got := peak.Load(); got != 1 {
		t.Errorf("peak = %d, want 1", got)
	}
}

func TestLaneLock_DifferentKeysParallel(t *testing.T) {
	t.Parallel()

	ll := NewLaneLock()
	ll.Acquire("telegram:1")
	defer ll.Release("telegram:1")

	done := make(chan struct{})
	go func() {
		ll.Acquire("telegram:2")
		ll.Release("telegram:2")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("a busy lane blocked another chat")
	}
}

func TestLaneLock_Cleanup(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	ll := NewLaneLock()
	ll.now = clock.Now

	ll.Acquire("idle")
	ll.Release("idle")
	ll.Acquire("held")

	clock.Advance(time.Hour)
	if n := ll.Cleanup(time.Minute); n != 1 {
		t.Errorf("Cleanup() = %d, want 1", n)
	}
	if ll.Len() != 1 {
		t.Errorf("Len() = %d, want 1", ll.Len())
	}

	ll.Release("held")
	ll.Release("unknown") // no-op
	if n := ll.Cleanup(time.Minute); n != 0 {
		t.Errorf("Cleanup() right after release = %d, want 0", n)
	}
}
