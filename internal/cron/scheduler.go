package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

// ErrJobRunning is returned by RunNow when the job is already running.
var ErrJobRunning = errors.New("cron: job already running")

// Standard five-field expressions, no seconds.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule reports whether expr is a schedule the Scheduler accepts.
func ValidateSchedule(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("cron: invalid schedule %q: %w", expr, err)
	}
	return nil
}

// Scheduler runs registered jobs on their cron expressions. A job never
// overlaps with itself: a tick that finds the previous run still going is
// skipped.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    []Job
	locks   map[string]*sync.Mutex
	logger  *slog.Logger
	metrics *schedulerMetrics
	ctx     context.Context
	cancel  context.CancelFunc
}

type schedulerMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRegisterer exports run counts and durations on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Scheduler) {
		s.metrics = newSchedulerMetrics(reg)
	}
}

func newSchedulerMetrics(reg prometheus.Registerer) *schedulerMetrics {
	m := &schedulerMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omnihear",
			Subsystem: "cron",
			Name:      "runs_total",
			Help:      "Job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "omnihear",
			Subsystem: "cron",
			Name:      "run_duration_seconds",
			Help:      "Job run latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.duration)
	}
	return m
}

// NewScheduler creates a scheduler. Jobs must be registered before Start.
func NewScheduler(logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		locks:  make(map[string]*sync.Mutex),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = newSchedulerMetrics(nil)
	}
	return s
}

// RegisterJob adds a job. Names must be unique.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.locks[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	if s.cron != nil {
		return fmt.Errorf("cron: register %q after start", name)
	}
	s.locks[name] = &sync.Mutex{}
	s.jobs = append(s.jobs, j)
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.Name()
	}
	return names
}

// Start validates every schedule and begins running jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := slogAdapter{s.logger}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)),
	)

	for _, j := range s.jobs {
		if _, err := c.AddFunc(j.Schedule(), func() {
			if err := s.run(s.ctx, j); errors.Is(err, ErrJobRunning) {
				s.logger.Warn("cron: job still running, skipping tick", "job", j.Name())
			}
		}); err != nil {
			return fmt.Errorf("cron: invalid schedule for job %q: %w", j.Name(), err)
		}
	}

	s.cron = c
	c.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.jobs))
	return nil
}

// RunNow runs the named job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var job Job
	for _, j := range s.jobs {
		if j.Name() == name {
			job = j
			break
		}
	}
	s.mu.Unlock()
	if job == nil {
		return fmt.Errorf("cron: unknown job %q", name)
	}
	return s.run(ctx, job)
}

func (s *Scheduler) run(ctx context.Context, j Job) error {
	lock := s.locks[j.Name()]
	if !lock.TryLock() {
		s.metrics.runs.WithLabelValues(j.Name(), "skipped").Inc()
		return ErrJobRunning
	}
	defer lock.Unlock()

	start := time.Now()
	err := j.Run(ctx)
	s.metrics.duration.WithLabelValues(j.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.runs.WithLabelValues(j.Name(), "error").Inc()
		s.logger.Error("cron: job failed", "job", j.Name(), "error", err)
		return err
	}
	s.metrics.runs.WithLabelValues(j.Name(), "ok").Inc()
	s.logger.Debug("cron: job completed", "job", j.Name(), "duration", time.Since(start))
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}

// slogAdapter lets robfig/cron log through slog.
type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) Info(msg string, keysAndValues ...any) {
	a.l.Debug("cron: "+msg, keysAndValues...)
}

func (a slogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
