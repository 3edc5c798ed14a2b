package config

import (
	"fmt"
	"strings"
	"time"
)

// parseDuration reads a duration field. An empty string is "unset" and
// yields 0; negative values are rejected.
func parseDuration(field, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration (e.g. 2s, 1h30m)", field, raw)
	case d < 0:
		return 0, fmt.Errorf("%s: %s is negative", field, s)
	}
	return d, nil
}

// DurationOr is for fields Validate has already checked. Unset, zero or
// malformed values yield def.
func DurationOr(raw string, def time.Duration) time.Duration {
	if d, err := parseDuration("", raw); err == nil && d > 0 {
		return d
	}
	return def
}
