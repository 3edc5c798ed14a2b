package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	logx "pushrelay/pkg/logx"
)

//go:embed migrations.sql
var migrationsSQL string

type sqliteStore struct {
	db         *sqlx.DB
	log        logx.Logger
	maxHistory int
}

// deliveryRow mirrors the deliveries table; "at" is stored as RFC3339 text.
type deliveryRow struct {
	At       string  `db:"at"`
	Iden     string  `db:"iden"`
	Type     string  `db:"type"`
	Title    string  `db:"title"`
	Created  float64 `db:"created"`
	Modified float64 `db:"modified"`
	Outcome  string  `db:"outcome"`
	Error    string  `db:"error"`
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(migrationsSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &sqliteStore{db: db, log: log, maxHistory: cfg.MaxHistory}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.GetContext(ctx, &v, `SELECT value FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *sqliteStore) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("storage: empty key")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UnixMilli(),
	)
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (s *sqliteStore) AppendDelivery(ctx context.Context, r DeliveryRecord) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO deliveries(at, iden, type, title, created, modified, outcome, error)
		 VALUES(:at, :iden, :type, :title, :created, :modified, :outcome, :error)`,
		deliveryRow{
			At:       r.At.UTC().Format(time.RFC3339Nano),
			Iden:     r.Iden,
			Type:     r.Type,
			Title:    r.Title,
			Created:  r.Created,
			Modified: r.Modified,
			Outcome:  r.Outcome,
			Error:    r.Error,
		},
	)
	return err
}

func (s *sqliteStore) RecentDeliveries(ctx context.Context, limit int) ([]DeliveryRecord, error) {
	if limit <= 0 {
		limit = s.maxHistory
	}
	var rows []deliveryRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT at, iden, type, title, created, modified, outcome, error
		 FROM (SELECT * FROM deliveries ORDER BY id DESC LIMIT ?) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, err
	}
	out := make([]DeliveryRecord, 0, len(rows))
	for _, r := range rows {
		at, _ := time.Parse(time.RFC3339Nano, r.At)
		out = append(out, DeliveryRecord{
			At:       at,
			Iden:     r.Iden,
			Type:     r.Type,
			Title:    r.Title,
			Created:  r.Created,
			Modified: r.Modified,
			Outcome:  r.Outcome,
			Error:    r.Error,
		})
	}
	return out, nil
}

func (s *sqliteStore) Compact(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM deliveries WHERE id NOT IN (SELECT id FROM deliveries ORDER BY id DESC LIMIT ?)`,
		s.maxHistory)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	return err
}
