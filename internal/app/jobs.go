package app

import (
	"context"
	"strings"
	"time"

	"pushrelay/internal/config"
	logx "pushrelay/pkg/logx"
)

const (
	jobRefreshReference = "refresh_reference"
	jobCompact          = "compact"

	defaultRefreshSchedule = "@every 1h"
	defaultCompactSchedule = "30 4 * * *"
)

// registerJobs (re)registers maintenance jobs from cfg. A schedule set to
// "off" removes the job.
func (a *App) registerJobs(cfg *config.Config) {
	a.schedule(jobRefreshReference, cfg.Scheduler.RefreshReference, defaultRefreshSchedule, time.Minute,
		a.snapshot.Path() != "",
		func(ctx context.Context) error { return a.snapshot.Reload() },
	)
	a.schedule(jobCompact, cfg.Scheduler.Compact, defaultCompactSchedule, 5*time.Minute,
		true,
		func(ctx context.Context) error { return a.store.Compact(ctx) },
	)
}

func (a *App) schedule(name, spec, def string, timeout time.Duration, usable bool, job func(context.Context) error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = def
	}
	if !usable || strings.EqualFold(spec, "off") {
		a.sched.Remove(name)
		return
	}
	if err := a.sched.AddSchedule(name, spec, timeout, job); err != nil {
		a.log.Warn("schedule rejected", logx.String("job", name), logx.String("spec", spec), logx.Err(err))
	}
}
