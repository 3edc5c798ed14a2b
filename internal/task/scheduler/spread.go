package scheduler

import (
	"math/rand/v2"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// delayedStart holds the first activation at first, then defers to every.
type delayedStart struct {
	every cron.ConstantDelaySchedule
	first time.Time
}

func (s delayedStart) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.every.Next(t)
}

// spreadInterval returns an @every schedule whose first run lands at a
// random point in [every, every+min(every, 30s)) after now.
func spreadInterval(every time.Duration, now time.Time) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	window := min(every, maxStartupSpread)
	if window <= 0 {
		return base, 0
	}
	jitter := rand.N(window)
	return delayedStart{every: base, first: now.Add(every + jitter)}, jitter
}
