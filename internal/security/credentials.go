// Package security holds the upstream credentials, log redaction, rate
// limits, payload checks and child process environment scrubbing.
package security

import (
	"cmp"
	"maps"
	"slices"
	"sync"
)

// CredentialStore holds the API keys and bot tokens modules resolved at
// provision time, keyed by "<module>.<name>" ("stt.groq.key",
// "telegram.token"). Safe for concurrent use.
type CredentialStore struct {
	mu    sync.RWMutex
	creds map[string]string
}

// NewCredentialStore creates an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{creds: make(map[string]string)}
}

// Set stores value under name, replacing any previous value. An empty value
// removes the entry: a module without a key has nothing to protect.
func (s *CredentialStore) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.creds, name)
		return
	}
	s.creds[name] = value
}

// Get returns the value stored under name.
func (s *CredentialStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.creds[name]
	return v, ok
}

// Names returns the stored names, sorted.
func (s *CredentialStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.creds))
}

// Values returns the distinct stored values, longest first. Groq keys
// serve both stt.groq and provider.groq, and a key that is a prefix of
// another must not be matched before it.
func (s *CredentialStore) Values() []string {
	s.mu.RLock()
	values := slices.Collect(maps.Values(s.creds))
	s.mu.RUnlock()

	slices.SortFunc(values, func(a, b string) int {
		return cmp.Or(cmp.Compare(len(b), len(a)), cmp.Compare(a, b))
	})
	return slices.Compact(values)
}
