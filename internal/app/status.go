package app

import (
	"context"
	"time"

	"pushrelay/internal/notifier"
	rtsup "pushrelay/internal/runtime/supervisor"
	"pushrelay/internal/storage"
	"pushrelay/internal/task/scheduler"
	logx "pushrelay/pkg/logx"
)

// Status is served on the debug server's /status route.
type Status struct {
	StartedAt     time.Time          `json:"started_at"`
	Uptime        string             `json:"uptime"`
	Backend       string             `json:"backend"`
	Watermark     float64            `json:"watermark"`
	Pending       int                `json:"pending"`
	SnoozedUntil  *time.Time         `json:"snoozed_until,omitempty"`
	SourcePushes  int                `json:"source_pushes"`
	SourceLoaded  time.Time          `json:"source_loaded_at"`
	Persistent    bool               `json:"persistent_store"`
	Dismissal     bool               `json:"dismissal_enabled"`
	BusDropped    uint64             `json:"bus_dropped"`
	Goroutines    rtsup.Counters     `json:"goroutines"`
	Scheduler     scheduler.Snapshot `json:"scheduler"`
	ConfigPath    string             `json:"config_path"`
}

func (a *App) Status() Status {
	st := Status{
		StartedAt:     a.startedAt,
		Backend:       a.notif.Backend(),
		Watermark:     a.queue.Watermark(),
		Pending:       a.queue.Pending(),
		SourcePushes:  a.snapshot.Len(),
		SourceLoaded:  a.snapshot.LoadedAt(),
		Persistent:    a.persistent,
		Dismissal:     a.api.Enabled(),
		BusDropped:    a.bus.Dropped(),
		Scheduler:     a.sched.Snapshot(),
		ConfigPath:    a.cfgm.Path(),
	}
	if !a.startedAt.IsZero() {
		st.Uptime = time.Since(a.startedAt).Round(time.Second).String()
	}
	if a.snooze.Active() {
		u := a.snooze.Until()
		st.SnoozedUntil = &u
	}
	if a.sup != nil {
		st.Goroutines = a.sup.Counters()
	}
	return st
}

// History is served on the debug server's /history route.
type History struct {
	Shown      []notifier.HistoryItem   `json:"shown"`
	Deliveries []storage.DeliveryRecord `json:"deliveries"`
}

func (a *App) History(ctx context.Context, limit int) History {
	h := History{Shown: a.notif.Snapshot()}
	recs, err := a.store.RecentDeliveries(ctx, limit)
	if err != nil {
		a.log.Warn("reading delivery history failed", logx.Err(err))
	}
	h.Deliveries = recs
	return h
}
