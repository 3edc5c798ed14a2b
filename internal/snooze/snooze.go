// Package snooze holds the process-wide "do not disturb until" signal.
package snooze

import (
	"context"
	"sync/atomic"
	"time"

	"pushrelay/internal/eventbus"
	"pushrelay/internal/storage"
	logx "pushrelay/pkg/logx"
)

// Signal is safe for concurrent use. Until is lock-free so the delivery
// queue can read it on every fire.
type Signal struct {
	until atomic.Int64 // unix ms, 0 = not snoozed
	store storage.KV
	bus   eventbus.Bus
	log   logx.Logger
	now   func() time.Time
}

type Event struct {
	Until time.Time `json:"until"`
}

// Load reads the persisted snooze window. A nil store keeps it in memory only.
func Load(ctx context.Context, store storage.KV, bus eventbus.Bus, log logx.Logger) *Signal {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Signal{store: store, bus: bus, log: log.With(logx.String("comp", "snooze")), now: time.Now}
	if store == nil {
		return s
	}
	t, err := storage.GetTime(ctx, store, storage.KeySnoozeUntil)
	if err != nil {
		s.log.Warn("reading snooze failed", logx.Err(err))
		return s
	}
	if !t.IsZero() {
		s.until.Store(t.UnixMilli())
	}
	return s
}

// Refresh rereads the stored window, picking up changes made by another
// process sharing the store. It reports whether the window changed.
func (s *Signal) Refresh(ctx context.Context) (bool, error) {
	if s.store == nil {
		return false, nil
	}
	t, err := storage.GetTime(ctx, s.store, storage.KeySnoozeUntil)
	if err != nil {
		return false, err
	}
	var ms int64
	if !t.IsZero() {
		ms = t.UnixMilli()
	}
	if s.until.Swap(ms) == ms {
		return false, nil
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "snooze.changed", Data: Event{Until: t}})
	}
	s.log.Info("snooze updated from store", logx.Time("until", t))
	return true, nil
}

// Until returns the end of the snooze window, or the zero time.
func (s *Signal) Until() time.Time {
	ms := s.until.Load()
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Active reports whether notifications are currently snoozed.
func (s *Signal) Active() bool {
	u := s.Until()
	return !u.IsZero() && s.now().Before(u)
}

// SnoozeFor suppresses notifications for d from now.
func (s *Signal) SnoozeFor(ctx context.Context, d time.Duration) (time.Time, error) {
	until := s.now().Add(d)
	return until, s.set(ctx, until)
}

// Clear ends the snooze window.
func (s *Signal) Clear(ctx context.Context) error { return s.set(ctx, time.Time{}) }

func (s *Signal) set(ctx context.Context, until time.Time) error {
	if until.IsZero() {
		s.until.Store(0)
	} else {
		s.until.Store(until.UnixMilli())
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "snooze.changed", Data: Event{Until: until}})
	}
	if until.IsZero() {
		s.log.Info("snooze cleared")
	} else {
		s.log.Info("snoozed", logx.Time("until", until))
	}
	if s.store == nil {
		return nil
	}
	return storage.SetTime(ctx, s.store, storage.KeySnoozeUntil, until)
}
