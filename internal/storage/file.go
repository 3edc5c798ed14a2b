package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "pushrelay/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.kv.snapshot.json  (periodic snapshot)
//   - <prefix>.kv.journal.jsonl  (append-only journal, fsync'd per write)
//   - <prefix>.deliveries.jsonl  (append-only delivery log)
//
// The journal is compacted into the snapshot every compactEvery writes.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath   string
	journalFile    *os.File
	deliveriesPath string
	deliveriesFile *os.File

	kv         map[string]string
	writes     int
	maxHistory int
}

type kvRecord struct {
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

const compactEvery = 500

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".kv.snapshot.json"
	journalPath := prefix + ".kv.journal.jsonl"
	deliveriesPath := prefix + ".deliveries.jsonl"

	kv := map[string]string{}
	if err := loadSnapshot(snapPath, kv); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("kv snapshot unreadable; starting from journal", logx.String("path", snapPath), logx.Err(err))
	}
	if err := replayJournal(journalPath, kv); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("kv journal replay failed", logx.String("path", journalPath), logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	df, err := os.OpenFile(deliveriesPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = jf.Close()
		return nil, err
	}

	return &fileStore{
		log:            log,
		snapshotPath:   snapPath,
		journalFile:    jf,
		deliveriesPath: deliveriesPath,
		deliveriesFile: df,
		kv:             kv,
		maxHistory:     cfg.MaxHistory,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.journalFile != nil {
		err1 = s.journalFile.Close()
		s.journalFile = nil
	}
	if s.deliveriesFile != nil {
		err2 = s.deliveriesFile.Close()
		s.deliveriesFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return "", false, ErrClosed
	}
	v, ok := s.kv[key]
	return v, ok, nil
}

func (s *fileStore) Set(ctx context.Context, key, value string) error {
	return s.write(ctx, kvRecord{Key: key, Value: value})
}

func (s *fileStore) Delete(ctx context.Context, key string) error {
	return s.write(ctx, kvRecord{Key: key, Deleted: true})
}

func (s *fileStore) write(ctx context.Context, r kvRecord) error {
	_ = ctx
	if strings.TrimSpace(r.Key) == "" {
		return errors.New("storage: empty key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrClosed
	}

	// Journal first so a crash after this point replays the write.
	if err := json.NewEncoder(s.journalFile).Encode(r); err != nil {
		return err
	}
	if err := s.journalFile.Sync(); err != nil {
		return err
	}
	if r.Deleted {
		delete(s.kv, r.Key)
	} else {
		s.kv[r.Key] = r.Value
	}

	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("kv compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) AppendDelivery(ctx context.Context, r DeliveryRecord) error {
	_ = ctx
	if r.At.IsZero() {
		r.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveriesFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.deliveriesFile).Encode(r)
}

func (s *fileStore) RecentDeliveries(ctx context.Context, limit int) ([]DeliveryRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveriesFile == nil {
		return nil, ErrClosed
	}
	out, err := readDeliveries(s.deliveriesPath)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fileStore) Compact(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrClosed
	}
	if err := s.compactLocked(); err != nil {
		return err
	}
	return s.pruneDeliveriesLocked()
}

func (s *fileStore) compactLocked() error {
	if err := writeJSONAtomic(s.snapshotPath, s.kv); err != nil {
		return err
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err := s.journalFile.Seek(0, 2)
	return err
}

func (s *fileStore) pruneDeliveriesLocked() error {
	all, err := readDeliveries(s.deliveriesPath)
	if err != nil {
		return err
	}
	if len(all) <= s.maxHistory {
		return nil
	}
	keep := all[len(all)-s.maxHistory:]

	tmp := s.deliveriesPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, r := range keep {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}

	_ = s.deliveriesFile.Close()
	if err := os.Rename(tmp, s.deliveriesPath); err != nil {
		return err
	}
	df, err := os.OpenFile(s.deliveriesPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.deliveriesFile = nil
		return err
	}
	s.deliveriesFile = df
	return nil
}

func writeJSONAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadSnapshot(path string, out map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]string
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r kvRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// torn tail write; skip
			continue
		}
		if r.Key == "" {
			continue
		}
		if r.Deleted {
			delete(out, r.Key)
		} else {
			out[r.Key] = r.Value
		}
	}
	return sc.Err()
}

func readDeliveries(path string) ([]DeliveryRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	var out []DeliveryRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r DeliveryRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}
