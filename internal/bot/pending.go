package bot

import (
	"sync"
	"time"

	"github.com/flemzord/omnihear/pkg/message"
)

// Pending is an input waiting for the user to pick a mode: a media block
// stored on the platform, or plain text.
type Pending struct {
	Channel   string
	Chat      message.Chat
	Sender    message.Sender
	MessageID string

	// Block is nil for text input.
	Block *message.ContentBlock
	Text  string

	CreatedAt time.Time
}

// IsText reports whether the input skips transcription.
func (p Pending) IsText() bool { return p.Block == nil }

// PendingStore keeps at most one pending input per user. Entries older
// than the TTL are invisible and removed by Prune.
type PendingStore struct {
	mu    sync.Mutex
	items map[string]Pending
	ttl   time.Duration
	now   func() time.Time
}

// NewPendingStore creates a store. A non-positive ttl uses
// DefaultPendingTTL.
func NewPendingStore(ttl time.Duration) *PendingStore {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &PendingStore{items: make(map[string]Pending), ttl: ttl, now: time.Now}
}

// Put stores p under key, replacing any earlier input.
func (s *PendingStore) Put(key string, p Pending) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.items[key] = p
}

// Take removes and returns the input stored under key.
func (s *PendingStore) Take(key string) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[key]
	if !ok {
		return Pending{}, false
	}
	delete(s.items, key)
	if s.expired(p) {
		return Pending{}, false
	}
	return p, true
}

// Peek returns the input under key without removing it.
func (s *PendingStore) Peek(key string) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[key]
	if !ok || s.expired(p) {
		return Pending{}, false
	}
	return p, true
}

// Prune removes expired inputs and returns how many were dropped.
func (s *PendingStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, p := range s.items {
		if s.expired(p) {
			delete(s.items, key)
			n++
		}
	}
	return n
}

// Len returns the number of stored inputs, expired ones included.
func (s *PendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *PendingStore) expired(p Pending) bool {
	return s.now().Sub(p.CreatedAt) > s.ttl
}
