// Package history keeps a capped, most-recent-first list of answered
// questions in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"askrelay/internal/domain"
)

const DefaultMaxEntries = 50

// ErrNotFound is returned by Delete for an index outside the list.
var ErrNotFound = errors.New("history entry not found")

// Store implements domain.History on SQLite.
type Store struct {
	db         *sql.DB
	maxEntries int
	logger     *slog.Logger
	now        func() time.Time
}

type Config struct {
	Path       string
	MaxEntries int
	Logger     *slog.Logger
}

// Open opens (creating if needed) the history database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, cfg.Logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &Store{db: db, maxEntries: cfg.MaxEntries, logger: cfg.Logger, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Append records an exchange as the newest entry and evicts the oldest
// entries beyond the cap. Text is stored exactly as given. An empty response
// is not recorded.
func (s *Store) Append(ctx context.Context, question, response string) error {
	if response == "" {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history (question, response, created_at) VALUES (?, ?, ?)`,
		question, response, s.now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM history WHERE id NOT IN (SELECT id FROM history ORDER BY id DESC LIMIT ?)`,
		s.maxEntries,
	)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("history pruned", "evicted", n)
	}

	return tx.Commit()
}

// List returns entries newest first.
func (s *Store) List(ctx context.Context) ([]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question, response, created_at FROM history ORDER BY id DESC LIMIT ?`, s.maxEntries)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var (
			e  domain.HistoryEntry
			ms int64
		)
		if err := rows.Scan(&e.Question, &e.Response, &ms); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Timestamp = time.UnixMilli(ms)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the entry at index (0 is newest).
func (s *Store) Get(ctx context.Context, index int) (domain.HistoryEntry, error) {
	if index < 0 {
		return domain.HistoryEntry{}, ErrNotFound
	}
	var (
		e  domain.HistoryEntry
		ms int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT question, response, created_at FROM history ORDER BY id DESC LIMIT 1 OFFSET ?`, index,
	).Scan(&e.Question, &e.Response, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HistoryEntry{}, ErrNotFound
	}
	if err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("get history entry: %w", err)
	}
	e.Timestamp = time.UnixMilli(ms)
	return e, nil
}

// Delete removes the entry at index (0 is newest).
func (s *Store) Delete(ctx context.Context, index int) error {
	if index < 0 {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM history WHERE id = (SELECT id FROM history ORDER BY id DESC LIMIT 1 OFFSET ?)`, index)
	if err != nil {
		return fmt.Errorf("delete history entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Snapshot writes a consistent copy of the database to path, which must not
// exist yet.
func (s *Store) Snapshot(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("snapshot history: %w", err)
	}
	return nil
}

var _ domain.History = (*Store)(nil)
