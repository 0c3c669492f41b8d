// Package sqlite provides a SQLite-backed docstore.Backend.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stonewallbooks/storefront/internal/docstore"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Backend stores document records in a single SQLite table.
type Backend struct {
	db     *sql.DB
	logger *slog.Logger

	// writeMu serializes read-check-write cycles within this process.
	writeMu sync.Mutex
}

// Open creates a SQLite backend at path, configuring WAL mode and applying the schema.
func Open(path string, logger *slog.Logger) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	if logger != nil {
		logger.Info("SQLite document store opened", "path", path)
	}
	return &Backend{db: db, logger: logger}, nil
}

// Get implements docstore.Backend.
func (b *Backend) Get(ctx context.Context, key string) (docstore.Record, error) {
	return b.get(ctx, b.db, key)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (b *Backend) get(ctx context.Context, q queryer, key string) (docstore.Record, error) {
	var (
		data      string
		version   int64
		updatedAt string
	)
	err := q.QueryRowContext(ctx,
		`SELECT data, version, updated_at FROM documents WHERE key = ?`, key).
		Scan(&data, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Record{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Record{}, err
	}

	ts, err := parseTime(updatedAt)
	if err != nil {
		return docstore.Record{}, fmt.Errorf("parse updated_at for %s: %w", key, err)
	}
	return docstore.Record{Data: []byte(data), Version: uint64(version), UpdatedAt: ts}, nil
}

// Put implements docstore.Backend.
func (b *Backend) Put(ctx context.Context, key string, data []byte, expected int64) (docstore.Record, error) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return docstore.Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after Commit is a no-op.

	var current uint64
	exists := true
	rec, err := b.get(ctx, tx, key)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		exists = false
	case err != nil:
		return docstore.Record{}, err
	default:
		current = rec.Version
	}

	if err := docstore.CheckVersion(current, exists, expected); err != nil {
		return docstore.Record{}, err
	}

	now := time.Now().UTC()
	next := current + 1
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (key, data, version, updated_at) VALUES (?, ?, ?, ?)`,
		key, string(data), int64(next), formatTime(now))
	if err != nil {
		return docstore.Record{}, fmt.Errorf("write %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return docstore.Record{}, fmt.Errorf("commit: %w", err)
	}

	return docstore.Record{Data: data, Version: next, UpdatedAt: now}, nil
}

// Close implements docstore.Backend.
func (b *Backend) Close() error {
	if b.logger != nil {
		b.logger.Info("Closing SQLite document store")
	}
	return b.db.Close()
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
