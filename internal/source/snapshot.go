package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"pushrelay/internal/eventbus"
	"pushrelay/internal/fswatch"
	"pushrelay/internal/push"
	logx "pushrelay/pkg/logx"
)

// File is the on-disk snapshot layout.
type File struct {
	Pushes   []push.Raw     `json:"pushes"`
	Accounts []push.Account `json:"accounts"`
	Devices  []push.Device  `json:"devices"`
	Grants   []push.Grant   `json:"grants"`
}

type ReloadedEvent struct {
	Path   string
	Pushes int
}

// Snapshot is a push source backed by a JSON file. Pushes received through
// Upsert survive reloads until the file catches up with them.
type Snapshot struct {
	path string
	log  logx.Logger
	bus  eventbus.Bus

	mu       sync.RWMutex
	pushes   map[string]push.Raw
	streamed map[string]struct{}
	ref      push.ReferenceData
	loadedAt time.Time
}

// OpenSnapshot loads path. A missing file yields an empty snapshot.
func OpenSnapshot(path string, bus eventbus.Bus, log logx.Logger) (*Snapshot, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Snapshot{
		path:     path,
		log:      log,
		bus:      bus,
		pushes:   map[string]push.Raw{},
		streamed: map[string]struct{}{},
	}
	if path == "" {
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Snapshot) Path() string { return s.path }

// All returns a copy of the pushes keyed by iden.
func (s *Snapshot) All(ctx context.Context) (map[string]push.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]push.Raw, len(s.pushes))
	for k, v := range s.pushes {
		out[k] = v
	}
	return out, nil
}

func (s *Snapshot) ReferenceData(ctx context.Context) (push.ReferenceData, error) {
	if err := ctx.Err(); err != nil {
		return push.ReferenceData{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ref, nil
}

func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pushes)
}

func (s *Snapshot) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Upsert stores raw unless a newer version of the same push is held.
// It reports whether the snapshot changed.
func (s *Snapshot) Upsert(raw push.Raw) bool {
	if raw.Iden == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.pushes[raw.Iden]; ok && cur.Modified > raw.Modified {
		return false
	}
	s.pushes[raw.Iden] = raw
	s.streamed[raw.Iden] = struct{}{}
	return true
}

// Reload rereads the file. A missing file keeps streamed pushes only.
func (s *Snapshot) Reload() error {
	f, err := readFile(s.path)
	if err != nil {
		return err
	}

	next := make(map[string]push.Raw, len(f.Pushes))
	for _, p := range f.Pushes {
		if p.Iden == "" {
			continue
		}
		if cur, ok := next[p.Iden]; ok && cur.Modified > p.Modified {
			continue
		}
		next[p.Iden] = p
	}

	s.mu.Lock()
	streamed := make(map[string]struct{}, len(s.streamed))
	for iden := range s.streamed {
		held := s.pushes[iden]
		onDisk, ok := next[iden]
		if ok && onDisk.Modified >= held.Modified {
			continue
		}
		next[iden] = held
		streamed[iden] = struct{}{}
	}
	s.pushes = next
	s.streamed = streamed
	s.ref = push.ReferenceData{Accounts: f.Accounts, Devices: f.Devices, Grants: f.Grants}
	s.loadedAt = time.Now()
	n := len(next)
	s.mu.Unlock()

	s.log.Debug("snapshot loaded", logx.String("path", s.path), logx.Int("pushes", n))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: "source.reloaded",
			Time: time.Now(),
			Data: ReloadedEvent{Path: s.path, Pushes: n},
		})
	}
	return nil
}

// Watch reloads the snapshot whenever the file changes until ctx is done.
func (s *Snapshot) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	return fswatch.Watch(ctx, s.path, fswatch.Options{Log: s.log}, func() {
		if err := s.Reload(); err != nil {
			s.log.Warn("snapshot reload failed; keeping previous", logx.Err(err), logx.String("path", s.path))
		}
	})
}

func readFile(path string) (File, error) {
	var f File
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return f, fmt.Errorf("read snapshot: %w", err)
	}
	if len(b) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return f, nil
}
