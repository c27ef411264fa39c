// Package securitytest provides test doubles for the security package.
package securitytest

import (
	"slices"
	"sync"

	"github.com/flemzord/omnihear/internal/security"
)

// NewTestAuditLogger returns an AuditLogger that keeps its events in
// memory, and a snapshot function for them.
func NewTestAuditLogger() (*security.AuditLogger, func() []security.AuditEvent) {
	var (
		mu     sync.Mutex
		events []security.AuditEvent
	)
	record := func(e security.AuditEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}
	snapshot := func() []security.AuditEvent {
		mu.Lock()
		defer mu.Unlock()
		return slices.Clone(events)
	}
	return security.NewAuditLogger(security.WithAuditHook(record)), snapshot
}
