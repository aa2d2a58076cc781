package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "powerwatch/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ListSubscriptions(ctx context.Context, locationID string) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT location_id, chat_id, thread_id, created_at FROM subscriptions
		 WHERE location_id = ? ORDER BY chat_id`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var (
			sub Subscription
			ms  int64
		)
		if err := rows.Scan(&sub.LocationID, &sub.ChatID, &sub.ThreadID, &ms); err != nil {
			return nil, err
		}
		sub.CreatedAt = time.UnixMilli(ms)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AddSubscription(ctx context.Context, sub Subscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions(location_id, chat_id, thread_id, created_at) VALUES(?,?,?,?)
		 ON CONFLICT(location_id, chat_id) DO UPDATE SET thread_id=excluded.thread_id`,
		sub.LocationID, sub.ChatID, sub.ThreadID, sub.CreatedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) RemoveSubscription(ctx context.Context, locationID string, chatID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE location_id = ? AND chat_id = ?`, locationID, chatID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) LoadStates(ctx context.Context) ([]LocationState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT location_id, available, at FROM location_state ORDER BY location_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LocationState
	for rows.Next() {
		var (
			st    LocationState
			avail int
			ms    int64
		)
		if err := rows.Scan(&st.LocationID, &avail, &ms); err != nil {
			return nil, err
		}
		st.Available = avail != 0
		st.At = time.UnixMilli(ms)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveState(ctx context.Context, st LocationState) error {
	avail := 0
	if st.Available {
		avail = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO location_state(location_id, available, at) VALUES(?,?,?)
		 ON CONFLICT(location_id) DO UPDATE SET available=excluded.available, at=excluded.at`,
		st.LocationID, avail, st.At.UnixMilli(),
	)
	return err
}
