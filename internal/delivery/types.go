package delivery

import (
	"context"
	"errors"
	"time"

	"pushrelay/internal/push"
)

var (
	ErrClosed   = errors.New("delivery queue closed")
	ErrNoSource = errors.New("delivery: no push source configured")
	// ErrSkipped is returned (possibly wrapped) by a Sink that deliberately
	// did not display a push. The item is recorded as suppressed.
	ErrSkipped = errors.New("delivery: skipped by sink")
)

// Sink displays a push.
type Sink interface {
	Present(ctx context.Context, p push.Normalized) error
}

// Store persists the watermark.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Snooze reports the end of the current snooze window (zero when not snoozed).
type Snooze interface {
	Until() time.Time
}

// Source lists the currently known pushes and the reference tables used to
// decorate them.
type Source interface {
	All(ctx context.Context) (map[string]push.Raw, error)
	ReferenceData(ctx context.Context) (push.ReferenceData, error)
}

// Item is one planned display.
type Item struct {
	Push  push.Normalized
	Delay time.Duration
}

type Config struct {
	// Interval spaces items within a batch. Item i fires at Interval*(i+1).
	Interval time.Duration
	// RecentLimit is used by EnqueueRecent when limit <= 0.
	RecentLimit int
	// DefaultLookback seeds the watermark when none is stored.
	DefaultLookback time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.RecentLimit <= 0 {
		c.RecentLimit = 5
	}
	if c.DefaultLookback <= 0 {
		c.DefaultLookback = 24 * time.Hour
	}
	return c
}

// Outcome of a fired item.
const (
	OutcomeDisplayed  = "displayed"
	OutcomeSuppressed = "suppressed"
	OutcomeSnoozed    = "snoozed"
	OutcomeFailed     = "failed"
	OutcomeFiltered   = "filtered"
)

// DeliveryEvent is the payload of delivery.* bus events.
type DeliveryEvent struct {
	Batch     string    `json:"batch"`
	Iden      string    `json:"iden"`
	Type      string    `json:"type"`
	Created   float64   `json:"created"`
	Modified  float64   `json:"modified"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	Watermark float64   `json:"watermark"`
	At        time.Time `json:"at"`
	Error     string    `json:"error,omitempty"`
}
