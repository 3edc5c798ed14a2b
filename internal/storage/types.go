package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Well-known keys.
const (
	KeyLastNotification = "lastNotification"
	KeySoundEnabled     = "soundEnabled"
	KeySoundFile        = "soundFile"
	KeySoundVolume      = "soundVolume"
	KeySnoozeUntil      = "snoozeUntil"
	KeyReplayOnLaunch   = "replayOnLaunch"
)

// Store is the persistence API used by the relay.
//
// Values are opaque strings; the typed helpers in values.go handle
// encoding. Writes are durable when Set returns nil.
type Store interface {
	KV

	AppendDelivery(ctx context.Context, r DeliveryRecord) error
	RecentDeliveries(ctx context.Context, limit int) ([]DeliveryRecord, error)

	// Compact folds journals and prunes the delivery log. Safe to call
	// periodically.
	Compact(ctx context.Context) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl journal + snapshot)
//   - "sqlite": SQLite database file
//   - "memory": process-local, nothing survives a restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	MaxHistory  int           // deliveries kept by Compact; 0 means default
}

// DeliveryRecord records one displayed (or failed) notification.
type DeliveryRecord struct {
	At       time.Time `json:"at" db:"at"`
	Iden     string    `json:"iden" db:"iden"`
	Type     string    `json:"type" db:"type"`
	Title    string    `json:"title" db:"title"`
	Created  float64   `json:"created" db:"created"`
	Modified float64   `json:"modified" db:"modified"`
	Outcome  string    `json:"outcome" db:"outcome"`
	Error    string    `json:"error,omitempty" db:"error"`
}

const defaultMaxHistory = 1000
