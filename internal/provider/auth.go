package provider

import (
	"errors"
	"slices"
	"sync/atomic"
)

// ErrNoKeys is returned by NewKeyRing when every key is empty.
var ErrNoKeys = errors.New("provider: no API key configured")

// KeyRing holds the API keys of one upstream account set. The chain moves
// to the next key when the current one is rate limited.
type KeyRing struct {
	keys []string
	idx  atomic.Int32
}

// NewKeyRing keeps the non-empty keys in order, dropping repeats.
func NewKeyRing(keys ...string) (*KeyRing, error) {
	var kept []string
	for _, k := range keys {
		if k != "" && !slices.Contains(kept, k) {
			kept = append(kept, k)
		}
	}
	if len(kept) == 0 {
		return nil, ErrNoKeys
	}
	return &KeyRing{keys: kept}, nil
}

// Keys returns the kept keys; Index points into it.
func (r *KeyRing) Keys() []string { return slices.Clone(r.keys) }

// Key returns the key in use.
func (r *KeyRing) Key() string { return r.keys[r.Index()] }

// Index returns the position of the key in use.
func (r *KeyRing) Index() int { return int(r.idx.Load()) }

// Next moves to the following key, wrapping around, and reports whether
// there was another key to move to.
func (r *KeyRing) Next() bool {
	n := int32(len(r.keys))
	if n < 2 {
		return false
	}
	for {
		cur := r.idx.Load()
		if r.idx.CompareAndSwap(cur, (cur+1)%n) {
			return true
		}
	}
}
