package bot

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors of the bot pipeline.
type Metrics struct {
	Updates       *prometheus.CounterVec
	Rejected      *prometheus.CounterVec
	Jobs          *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	StageDuration *prometheus.HistogramVec
	Pending       prometheus.Gauge
	InboxDepth    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omnihear",
			Subsystem: "bot",
			Name:      "updates_total",
			Help:      "Inbound updates by kind.",
		}, []string{"kind"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omnihear",
			Subsystem: "bot",
			Name:      "rejected_total",
			Help:      "Updates refused before processing, by reason.",
		}, []string{"reason"}),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omnihear",
			Subsystem: "bot",
			Name:      "jobs_total",
			Help:      "Processing jobs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "omnihear",
			Subsystem: "bot",
			Name:      "job_duration_seconds",
			Help:      "End-to-end job latency.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160, 320},
		}, []string{"mode"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "omnihear",
			Subsystem: "bot",
			Name:      "stage_duration_seconds",
			Help:      "Latency of each job stage.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "omnihear",
			Subsystem: "bot",
			Name:      "pending_inputs",
			Help:      "Inputs waiting for a mode choice.",
		}),
		InboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "omnihear",
			Subsystem: "bot",
			Name:      "inbox_depth",
			Help:      "Updates queued for the worker pool.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Updates, m.Rejected, m.Jobs, m.JobDuration, m.StageDuration, m.Pending, m.InboxDepth)
	}
	return m
}
