package bot

import (
	"sync"
	"time"
)

// LaneLock serializes work per chat while letting different chats run in
// parallel. The map mutex is only held to find or create a lane.
type LaneLock struct {
	mu    sync.Mutex
	lanes map[string]*lane
	now   func() time.Time
}

// refs counts holders and waiters; a lane is only removed at zero refs.
type lane struct {
	mu       sync.Mutex
	refs     int
	lastUsed time.Time
}

// NewLaneLock creates a ready-to-use LaneLock.
func NewLaneLock() *LaneLock {
	return &LaneLock{lanes: make(map[string]*lane), now: time.Now}
}

// Acquire locks the lane of key. Release must follow with the same key.
func (l *LaneLock) Acquire(key string) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{}
		l.lanes[key] = ln
	}
	ln.refs++
	l.mu.Unlock()

	ln.mu.Lock()
}

// Release unlocks the lane of key.
func (l *LaneLock) Release(key string) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if !ok {
		l.mu.Unlock()
		return
	}
	ln.refs--
	ln.lastUsed = l.now()
	l.mu.Unlock()

	ln.mu.Unlock()
}

// Cleanup removes lanes nobody holds that have been idle longer than
// maxIdle, and returns how many.
func (l *LaneLock) Cleanup(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for key, ln := range l.lanes {
		if ln.refs == 0 && now.Sub(ln.lastUsed) > maxIdle {
			delete(l.lanes, key)
			n++
		}
	}
	return n
}

// Len returns the number of lanes.
func (l *LaneLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}
