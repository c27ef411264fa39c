package bot

import (
	"sync"
	"time"
)

type preference struct {
	language string
	mode     string
	seen     time.Time
}

// Preferences holds per-user language and sticky mode choices in memory.
type Preferences struct {
	mu    sync.Mutex
	users map[string]*preference
	now   func() time.Time
}

// NewPreferences creates an empty store.
func NewPreferences() *Preferences {
	return &Preferences{users: make(map[string]*preference), now: time.Now}
}

func (p *Preferences) get(key string) *preference {
	pref, ok := p.users[key]
	if !ok {
		pref = &preference{}
		p.users[key] = pref
	}
	pref.seen = p.now()
	return pref
}

// Language returns the user's language, or "" when unset.
func (p *Preferences) Language(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pref, ok := p.users[key]; ok {
		pref.seen = p.now()
		return pref.language
	}
	return ""
}

// SetLanguage records the user's language.
func (p *Preferences) SetLanguage(key, code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.get(key).language = code
}

// Mode returns the user's sticky mode, or "" when unset.
func (p *Preferences) Mode(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pref, ok := p.users[key]; ok {
		pref.seen = p.now()
		return pref.mode
	}
	return ""
}

// SetMode records the user's sticky mode. An empty mode clears it.
func (p *Preferences) SetMode(key, mode string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.get(key).mode = mode
}

// Prune forgets users not seen for maxIdle and returns how many.
func (p *Preferences) Prune(maxIdle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	n := 0
	for key, pref := range p.users {
		if now.Sub(pref.seen) > maxIdle {
			delete(p.users, key)
			n++
		}
	}
	return n
}

// Len returns the number of users with preferences.
func (p *Preferences) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.users)
}
