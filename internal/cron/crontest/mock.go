// Package crontest provides fakes for the housekeeping jobs.
package crontest

import (
	"sync"
	"time"

	"github.com/flemzord/omnihear/internal/cron"
)

// Sweeper stands in for the preference store and the lane registry. Each
// sweep records its idle limit and reports Removed entries.
type Sweeper struct {
	Removed int

	mu     sync.Mutex
	limits []time.Duration
}

var (
	_ cron.IdlePruner  = (*Sweeper)(nil)
	_ cron.LaneCleaner = (*Sweeper)(nil)
)

func (s *Sweeper) Prune(maxIdle time.Duration) int   { return s.sweep(maxIdle) }
func (s *Sweeper) Cleanup(maxIdle time.Duration) int { return s.sweep(maxIdle) }

func (s *Sweeper) sweep(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits = append(s.limits, maxIdle)
	return s.Removed
}

// Sweeps returns the idle limits of every sweep so far.
func (s *Sweeper) Sweeps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.limits...)
}
