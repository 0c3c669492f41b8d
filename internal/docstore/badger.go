package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerBackend stores records in an embedded Badger database.
type BadgerBackend struct {
	db     *badger.DB
	logger *slog.Logger
}

type badgerEnvelope struct {
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
	Version   uint64          `json:"version"`
}

// OpenBadger opens (or creates) a Badger database at path.
func OpenBadger(path string, logger *slog.Logger) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true

	return openBadger(opts, logger, path)
}

// OpenBadgerInMemory opens a Badger database that lives only in memory.
func OpenBadgerInMemory(logger *slog.Logger) (*BadgerBackend, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	return openBadger(opts, logger, ":memory:")
}

func openBadger(opts badger.Options, logger *slog.Logger, path string) (*BadgerBackend, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	if logger != nil {
		logger.Info("Badger document store opened", "path", path)
	}
	return &BadgerBackend{db: db, logger: logger}, nil
}

// Get implements Backend.
func (b *BadgerBackend) Get(ctx context.Context, key string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	var rec Record
	err := b.db.View(func(txn *badger.Txn) error {
		env, err := readEnvelope(txn, key)
		if err != nil {
			return err
		}
		rec = Record{Data: env.Data, Version: env.Version, UpdatedAt: env.UpdatedAt}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Put implements Backend. A concurrent transaction touching the same key surfaces as ErrVersionMismatch.
func (b *BadgerBackend) Put(ctx context.Context, key string, data []byte, expected int64) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	var rec Record
	err := b.db.Update(func(txn *badger.Txn) error {
		var current uint64
		exists := true
		env, err := readEnvelope(txn, key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			exists = false
		case err != nil:
			return err
		default:
			current = env.Version
		}

		if err := CheckVersion(current, exists, expected); err != nil {
			return err
		}

		next := badgerEnvelope{
			Data:      json.RawMessage(data),
			Version:   current + 1,
			UpdatedAt: time.Now().UTC(),
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		if err := txn.Set([]byte(key), encoded); err != nil {
			return err
		}
		rec = Record{Data: data, Version: next.Version, UpdatedAt: next.UpdatedAt}
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return Record{}, fmt.Errorf("%w: concurrent write to %s", ErrVersionMismatch, key)
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Close implements Backend.
func (b *BadgerBackend) Close() error {
	if b.logger != nil {
		b.logger.Info("Closing badger document store")
	}
	return b.db.Close()
}

func readEnvelope(txn *badger.Txn, key string) (badgerEnvelope, error) {
	var env badgerEnvelope
	item, err := txn.Get([]byte(key))
	if err != nil {
		return env, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &env)
	})
	return env, err
}
