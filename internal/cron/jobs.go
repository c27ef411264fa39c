package cron

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSchedule runs housekeeping every five minutes.
const DefaultSchedule = "*/5 * * * *"

// PendingPruner drops expired pending inputs.
type PendingPruner interface {
	Prune() int
}

// IdlePruner forgets entries idle longer than maxIdle.
type IdlePruner interface {
	Prune(maxIdle time.Duration) int
}

// LaneCleaner removes unused chat lanes.
type LaneCleaner interface {
	Cleanup(maxIdle time.Duration) int
}

// PendingCleanupJob expires inputs nobody picked a mode for, user
// preferences past their TTL and stale rate limit buckets.
type PendingCleanupJob struct {
	Pending       PendingPruner
	Preferences   IdlePruner
	PreferenceTTL time.Duration
	RateLimiter   PendingPruner // optional
	Logger        *slog.Logger
	ScheduleExpr  string
}

var _ Job = (*PendingCleanupJob)(nil)

// Name implements Job.
func (j *PendingCleanupJob) Name() string { return "pending_cleanup" }

// Schedule implements Job.
func (j *PendingCleanupJob) Schedule() string { return scheduleOr(j.ScheduleExpr) }

// Run implements Job.
func (j *PendingCleanupJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pending := j.Pending.Prune()
	var prefs, buckets int
	if j.Preferences != nil && j.PreferenceTTL > 0 {
		prefs = j.Preferences.Prune(j.PreferenceTTL)
	}
	if j.RateLimiter != nil {
		buckets = j.RateLimiter.Prune()
	}
	if pending+prefs+buckets > 0 {
		j.Logger.Info("cron: expired pending state",
			"pending", pending, "preferences", prefs, "rate_buckets", buckets)
	}
	return nil
}

// LaneCleanupJob drops chat lanes idle longer than MaxIdle.
type LaneCleanupJob struct {
	Lanes        LaneCleaner
	MaxIdle      time.Duration
	Logger       *slog.Logger
	ScheduleExpr string
}

var _ Job = (*LaneCleanupJob)(nil)

// Name implements Job.
func (j *LaneCleanupJob) Name() string { return "lane_cleanup" }

// Schedule implements Job.
func (j *LaneCleanupJob) Schedule() string { return scheduleOr(j.ScheduleExpr) }

// Run implements Job.
func (j *LaneCleanupJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := j.Lanes.Cleanup(j.MaxIdle); n > 0 {
		j.Logger.Debug("cron: removed idle lanes", "count", n)
	}
	return nil
}

func scheduleOr(expr string) string {
	if expr != "" {
		return expr
	}
	return DefaultSchedule
}
