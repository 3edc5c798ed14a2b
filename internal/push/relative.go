package push

import (
	"time"

	"github.com/dustin/go-humanize"
)

// RelativeTime renders t relative to now ("3 minutes ago", "now").
func RelativeTime(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}
