package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store. It is what tests use, and what
// "driver: memory" selects.
type Memory struct {
	mu         sync.Mutex
	kv         map[string]string
	deliveries []DeliveryRecord
	closed     bool

	// FailSet makes Set return this error (tests exercise degraded mode).
	FailSet error
}

func NewMemory() *Memory { return &Memory{kv: map[string]string{}} }

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.kv[key]
	return v, ok, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.FailSet != nil {
		return m.FailSet
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("storage: empty key")
	}
	m.kv[key] = value
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.kv, key)
	return nil
}

func (m *Memory) AppendDelivery(ctx context.Context, r DeliveryRecord) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.deliveries = append(m.deliveries, r)
	if len(m.deliveries) > defaultMaxHistory {
		m.deliveries = m.deliveries[len(m.deliveries)-defaultMaxHistory:]
	}
	return nil
}

func (m *Memory) RecentDeliveries(ctx context.Context, limit int) ([]DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]DeliveryRecord(nil), m.deliveries...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *Memory) Compact(ctx context.Context) error { return nil }

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
