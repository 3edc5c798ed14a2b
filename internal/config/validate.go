package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks values that the strict decoder cannot.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	dur := func(path, raw string) {
		if _, err := parseDuration(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	dur("delivery.interval", c.Delivery.Interval)
	dur("delivery.default_lookback", c.Delivery.DefaultLookback)
	if c.Delivery.RecentLimit < 0 {
		errs = append(errs, errors.New("delivery.recent_limit must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Notifier.Backend)) {
	case "", "auto", "dbus", "log":
	default:
		errs = append(errs, fmt.Errorf("notifier.backend: unknown backend %q", c.Notifier.Backend))
	}
	dur("notifier.timeout", c.Notifier.Timeout)
	dur("notifier.dedup_window", c.Notifier.DedupWindow)
	dur("notifier.dismiss_timeout", c.Notifier.DismissTimeout)

	if v := c.Sound.Volume; v != nil && (*v < 0 || *v > 1) {
		errs = append(errs, fmt.Errorf("sound.volume: %v is outside [0,1]", *v))
	}
	dur("sound.timeout", c.Sound.Timeout)

	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "memory":
		case "file", "sqlite":
			if strings.TrimSpace(s.Path) == "" {
				errs = append(errs, fmt.Errorf("storage.path is required for driver %q", s.Driver))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		dur("storage.busy_timeout", s.BusyTimeout)
	}

	dur("pushapi.timeout", c.PushAPI.Timeout)
	dur("pushapi.retry_base", c.PushAPI.RetryBase)
	dur("pushapi.retry_max_delay", c.PushAPI.RetryMaxDelay)
	if c.PushAPI.RatePerSec < 0 {
		errs = append(errs, errors.New("pushapi.rate_per_sec must be >= 0"))
	}

	dur("debug.read_timeout", c.Debug.ReadTimeout)
	dur("debug.write_timeout", c.Debug.WriteTimeout)
	dur("debug.idle_timeout", c.Debug.IdleTimeout)

	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}
