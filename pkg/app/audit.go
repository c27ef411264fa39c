package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/flemzord/omnihear/internal/security"
	"github.com/prometheus/client_golang/prometheus"
)

// auditFile is appended to under the data directory.
const auditFile = "audit.jsonl"

// openAudit builds the audit logger: events go to <dataDir>/audit.jsonl
// and are counted by type on reg. The caller closes the file.
func openAudit(dataDir string, redactor *security.Redactor, reg prometheus.Registerer) (*security.AuditLogger, func() error, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "omnihear",
		Subsystem: "audit",
		Name:      "events_total",
		Help:      "Audit events by type.",
	}, []string{"type"})
	reg.MustRegister(events)

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating data dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dataDir, auditFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening audit log: %w", err)
	}

	audit := security.NewAuditLogger(
		security.WithAuditWriter(f),
		security.WithAuditRedactor(redactor),
		security.WithAuditHook(func(e security.AuditEvent) {
			events.WithLabelValues(string(e.Type)).Inc()
		}),
	)
	return audit, f.Close, nil
}
