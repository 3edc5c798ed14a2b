package push

import "time"

// Suppression reasons returned by Reason.
const (
	ReasonInactive  = "push is not active"
	ReasonDismissed = "push was already dismissed"
	ReasonEmptySMS  = "push is empty sms"
	ReasonEmpty     = "push has no title or body"
)

// ShouldShow reports whether a push warrants a desktop notification.
func ShouldShow(p Normalized) bool { return Reason(p) == "" }

// Reason returns why p is suppressed, or "" if it should be shown.
func Reason(p Normalized) string {
	switch {
	case (p.Type == TypeFile || p.Type == TypeLink || p.Type == TypeNote) && !p.Active:
		return ReasonInactive
	case p.Direction == DirectionSelf && p.Dismissed:
		return ReasonDismissed
	case p.Type == TypeSMSChanged && p.EmptySMS:
		return ReasonEmptySMS
	case p.Title == "" && p.Body == "":
		return ReasonEmpty
	default:
		return ""
	}
}

// IsSnoozing reports whether display is currently suppressed by snooze.
func IsSnoozing(now, until time.Time) bool { return now.Before(until) }

// ShouldDismiss reports whether clicking p's notification should mark the
// push dismissed upstream. Self pushes aimed at a specific device are left
// alone so that device still sees them.
func ShouldDismiss(p Normalized) bool {
	switch p.Direction {
	case DirectionSelf:
		return !p.Dismissed && p.TargetDeviceIden == ""
	case DirectionIncoming:
		return !p.Dismissed
	default:
		return false
	}
}
