// Package cron schedules periodic housekeeping: expiring pending inputs,
// forgetting idle users and dropping unused chat lanes.
package cron

import "context"

// Job is a periodic background task.
type Job interface {
	// Name identifies the job in logs and metrics. It must be unique.
	Name() string

	// Schedule is a 5-field cron expression such as "*/5 * * * *".
	Schedule() string

	// Run executes one tick. It should return early once ctx is done.
	Run(ctx context.Context) error
}
