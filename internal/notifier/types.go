package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pushrelay/internal/delivery"
	"pushrelay/internal/push"
)

var (
	ErrClosed      = errors.New("notifier closed")
	ErrUnavailable = errors.New("notifier: notification daemon unavailable")
	ErrDeduped     = fmt.Errorf("notifier: same tag shown within dedup window: %w", delivery.ErrSkipped)
)

// Urgency levels from the freedesktop notification protocol.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// Notification is what a Presenter displays.
type Notification struct {
	Title      string
	Body       string
	Icon       string // URL, data URI, file path or icon name
	Tag        string // stable key; the push iden
	Timeout    time.Duration
	ReplacesID uint32
	Urgency    Urgency
}

// Presenter shows notifications and reports which ones were clicked.
type Presenter interface {
	Name() string
	Show(ctx context.Context, n Notification) (uint32, error)
	Clicks() <-chan uint32
	Close() error
}

// SoundPlayer plays the notification sound without blocking the caller.
type SoundPlayer interface {
	PlayAsync(file string, volume float64, cb func(error))
}

type Opener interface {
	Open(url string) error
}

// Dismisser marks a push dismissed on the push service.
type Dismisser interface {
	Dismiss(ctx context.Context, p push.Normalized) error
}

// Settings is read on every Present so sound changes apply without restart.
type Settings interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

type Config struct {
	Backend     string // "dbus", "log" or "auto"
	AppName     string
	Timeout     time.Duration
	DedupWindow time.Duration
	DedupMax    int
	HistorySize int
	// TrackMax bounds the id -> push map used for click handling.
	TrackMax       int
	DismissTimeout time.Duration

	// Sound defaults; the store keys soundEnabled, soundFile and soundVolume
	// override them when set.
	SoundEnabled bool
	SoundFile    string
	SoundVolume  float64
}

func (c Config) withDefaults() Config {
	if c.AppName == "" {
		c.AppName = "pushrelay"
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	if c.DedupWindow < 0 {
		c.DedupWindow = 0
	}
	if c.DedupMax <= 0 {
		c.DedupMax = 2000
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 300
	}
	if c.TrackMax <= 0 {
		c.TrackMax = 500
	}
	if c.DismissTimeout <= 0 {
		c.DismissTimeout = 15 * time.Second
	}
	if c.SoundVolume < 0 || c.SoundVolume > 1 {
		c.SoundVolume = 0.5
	}
	return c
}

type HistoryItem struct {
	At    time.Time `json:"at"`
	ID    uint32    `json:"id"`
	Iden  string    `json:"iden"`
	Type  string    `json:"type"`
	Title string    `json:"title"`
	URL   string    `json:"url,omitempty"`
}

// NotificationEvent is the payload of notifier.* bus events.
type NotificationEvent struct {
	ID    uint32    `json:"id,omitempty"`
	Iden  string    `json:"iden"`
	Title string    `json:"title,omitempty"`
	URL   string    `json:"url,omitempty"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}
