package server

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/wingbywings/telegroup/internal"
	"github.com/wingbywings/telegroup/internal/metrics"
)

// Job is run at every scheduled tick with the tick time.
type Job func(ctx context.Context, tick time.Time) error

// Scheduler runs a job on a cron schedule.
type Scheduler struct {
	expr  string
	job   Job
	loc   *time.Location
	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewScheduler validates expr and returns a scheduler evaluating it in loc.
func NewScheduler(expr string, loc *time.Location, job Job) (*Scheduler, error) {
	if !gronx.IsValid(expr) {
		return nil, &internal.ConfigError{Field: "schedule", Err: fmt.Errorf("invalid cron expression: %q", expr)}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{expr: expr, job: job, loc: loc, now: time.Now, after: time.After}, nil
}

// Next returns the first tick strictly after t.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, t.In(s.loc), false)
}

// Run sleeps until each tick and runs the job, until ctx is cancelled. Runs
// never overlap; a tick missed while the job was running is skipped.
func (s *Scheduler) Run(ctx context.Context) {
	internal.LogInfo("Scheduler started with %q (%s)", s.expr, s.loc)
	for {
		next, err := s.Next(s.now())
		if err != nil {
			internal.LogError("Scheduler cannot compute next tick: %v", err)
			select {
			case <-s.after(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}
		internal.LogDebug("Next scheduled run at %s", next.Format(time.RFC3339))

		select {
		case <-s.after(time.Until(next)):
		case <-ctx.Done():
			internal.LogInfo("Scheduler stopping")
			return
		}
		if ctx.Err() != nil {
			return
		}

		if err := s.job(ctx, next); err != nil {
			metrics.ScheduledRuns.WithLabelValues("error").Inc()
			internal.LogError("Scheduled run failed: %v", err)
			continue
		}
		metrics.ScheduledRuns.WithLabelValues("ok").Inc()
	}
}
