// Package scheduler runs the relay's periodic maintenance jobs on cron or
// interval schedules. A job never overlaps itself: a trigger that arrives
// while the previous run is in flight is skipped.
package scheduler
