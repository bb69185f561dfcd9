package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-reader/internal/config"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned for unknown entry ids.
var ErrNotFound = errors.New("library entry not found")

// Entry is one converted text kept in the library.
type Entry struct {
	ID               string
	Title            string
	Text             string
	Voice            string
	Location         string
	SegmentDurations []time.Duration
	TotalDuration    time.Duration
	CreatedAt        time.Time
}

// Store wraps a SQLite-backed library of entries and their duration tables.
type Store struct {
	db    *sql.DB
	cfg   config.LibraryConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the library according to config.
func Open(ctx context.Context, cfg config.LibraryConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("library vacuum failed", slog.String("error", err.Error()))
		}
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS entries (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    body TEXT NOT NULL,
    voice TEXT NOT NULL,
    location TEXT NOT NULL,
    total_ns INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS segments (
    entry_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    duration_ns INTEGER NOT NULL,
    PRIMARY KEY(entry_id, idx),
    FOREIGN KEY(entry_id) REFERENCES entries(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces an entry together with its duration table.
func (s *Store) Save(ctx context.Context, e Entry) (err error) {
	if e.ID == "" {
		return errors.New("entry id must not be empty")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM segments WHERE entry_id = ?`, e.ID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO entries(id, title, body, voice, location, total_ns, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title=excluded.title, body=excluded.body, voice=excluded.voice,
		     location=excluded.location, total_ns=excluded.total_ns, created_at=excluded.created_at`,
		e.ID, e.Title, e.Text, e.Voice, e.Location, int64(e.TotalDuration), e.CreatedAt.UTC().UnixNano())
	if err != nil {
		return err
	}
	for i, d := range e.SegmentDurations {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO segments(entry_id, idx, duration_ns) VALUES(?, ?, ?)`, e.ID, i, int64(d)); err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// Get loads one entry.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, body, voice, location, total_ns, created_at FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	if e.SegmentDurations, err = s.segments(ctx, id); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// List returns up to limit entries, newest first. Entry text is omitted.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, '', voice, location, total_ns, created_at
		 FROM entries ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].SegmentDurations, err = s.segments(ctx, entries[i].ID); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// Delete removes an entry and returns it so the caller can reclaim its audio.
func (s *Store) Delete(ctx context.Context, id string) (Entry, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Prune applies max_entries, evicting the oldest entries. The evicted
// entries are returned for storage reclamation.
func (s *Store) Prune(ctx context.Context) (evicted []Entry, err error) {
	if s.cfg.MaxEntries <= 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, title, '', voice, location, total_ns, created_at
		 FROM entries ORDER BY created_at DESC, rowid DESC LIMIT -1 OFFSET ?`, s.cfg.MaxEntries)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var e Entry
		if e, err = scanEntry(rows); err != nil {
			rows.Close()
			return nil, err
		}
		evicted = append(evicted, e)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}
	for _, e := range evicted {
		if _, err = tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, e.ID); err != nil {
			return nil, err
		}
	}
	err = tx.Commit()
	return evicted, err
}

func (s *Store) segments(ctx context.Context, id string) ([]time.Duration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT duration_ns FROM segments WHERE entry_id = ? ORDER BY idx ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []time.Duration
	for rows.Next() {
		var ns int64
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		out = append(out, time.Duration(ns))
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var total, created int64
	if err := row.Scan(&e.ID, &e.Title, &e.Text, &e.Voice, &e.Location, &total, &created); err != nil {
		return Entry{}, err
	}
	e.TotalDuration = time.Duration(total)
	e.CreatedAt = time.Unix(0, created).UTC()
	return e, nil
}
