package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SpecKind is either a cron expression or a fixed interval.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a schedule string after ParseSchedule.
type ParsedSpec struct {
	Kind  SpecKind
	Cron  string
	Every time.Duration
}

// ParseSchedule accepts:
//   - cron: "*/5 * * * *", "@hourly", "@every 55m", or anything prefixed "cron:"
//   - a Go duration: "55m", "2h30m"
//   - HH:MM as an interval: "00:50" is 50 minutes
//
// "interval:" or "every:" forces interval parsing.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, errors.New("schedule required")
	}
	if rest, ok := cutPrefixFold(s, "cron:"); ok {
		if rest == "" {
			return ParsedSpec{}, errors.New("cron expression required after cron:")
		}
		return ParsedSpec{Kind: SpecCron, Cron: rest}, nil
	}
	for _, p := range [...]string{"interval:", "every:"} {
		if rest, ok := cutPrefixFold(s, p); ok {
			return intervalSpec(rest)
		}
	}
	if strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t") {
		return ParsedSpec{Kind: SpecCron, Cron: s}, nil
	}
	ps, err := intervalSpec(s)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid schedule %q: want cron (*/5 * * * *), HH:MM (02:30) or a duration (55m)", raw)
	}
	return ps, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

func intervalSpec(v string) (ParsedSpec, error) {
	v = strings.TrimSpace(v)
	var (
		d   time.Duration
		err error
	)
	if h, m, ok := strings.Cut(v, ":"); ok {
		d, err = hhmm(h, m)
	} else {
		d, err = time.ParseDuration(v)
	}
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("interval %q: %w", v, err)
	}
	if d <= 0 {
		return ParsedSpec{}, fmt.Errorf("interval %q must be > 0", v)
	}
	return ParsedSpec{Kind: SpecInterval, Every: d}, nil
}

func hhmm(h, m string) (time.Duration, error) {
	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 || len(h) > 3 {
		return 0, errors.New("bad hours")
	}
	mins, err := strconv.Atoi(m)
	if err != nil || len(m) != 2 || mins > 59 || mins < 0 {
		return 0, errors.New("bad minutes")
	}
	return time.Duration(hours)*time.Hour + time.Duration(mins)*time.Minute, nil
}
