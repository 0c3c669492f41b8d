package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// readTimeout bounds the backend read behind each push.
	readTimeout = 10 * time.Second
	// maxWriteAttempts bounds retries of an unconditional write racing another writer.
	maxWriteAttempts = 5
)

// DB layers realtime subscriptions, write policies and cross-instance notification over a Backend.
type DB struct {
	backend  Backend
	logger   *slog.Logger
	notifier Notifier
	observer Observer

	mu       sync.Mutex
	policies map[Path]WritePolicy
	subs     map[Path]map[uint64]*subscriber
	nextID   uint64
	closed   bool

	stopListen func()
}

// Option configures a DB.
type Option func(*DB)

// WithNotifier fans change notices out to, and receives them from, other processes.
func WithNotifier(n Notifier) Option {
	return func(db *DB) { db.notifier = n }
}

// WithObserver reports writes and deliveries.
func WithObserver(o Observer) Option {
	return func(db *DB) { db.observer = o }
}

// New creates a DB over backend. The DB owns the backend and closes it on Close.
func New(backend Backend, logger *slog.Logger, opts ...Option) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db := &DB{
		backend:  backend,
		logger:   logger,
		policies: make(map[Path]WritePolicy),
		subs:     make(map[Path]map[uint64]*subscriber),
	}
	for _, opt := range opts {
		opt(db)
	}

	if db.notifier != nil {
		stop, err := db.notifier.Listen(db.wake)
		if err != nil {
			return nil, fmt.Errorf("listen for remote changes: %w", err)
		}
		db.stopListen = stop
	}
	return db, nil
}

// SetPolicy installs the write policy for path, replacing any previous one. A nil policy removes it.
func (db *DB) SetPolicy(path Path, policy WritePolicy) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if policy == nil {
		delete(db.policies, path)
		return
	}
	db.policies[path] = policy
}

// Get reads the current state of path. A missing document is a Snapshot with Exists false.
func (db *DB) Get(ctx context.Context, path Path) (Snapshot, error) {
	rec, err := db.backend.Get(ctx, string(path))
	if errors.Is(err, ErrNotFound) {
		return Snapshot{Path: path}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %s: %w", path, err)
	}
	return snapshotFrom(path, rec), nil
}

// SetDocument overwrites the whole document at path. Concurrent writers race and the last one wins.
func (db *DB) SetDocument(ctx context.Context, path Path, value []byte) (Snapshot, error) {
	return db.write(ctx, path, value, AnyVersion)
}

// SetDocumentIfVersion overwrites the document only if its stored version equals version.
// Version 0 means the document must not exist yet.
func (db *DB) SetDocumentIfVersion(ctx context.Context, path Path, value []byte, version uint64) (Snapshot, error) {
	return db.write(ctx, path, value, int64(version))
}

func (db *DB) write(ctx context.Context, path Path, value []byte, expected int64) (Snapshot, error) {
	data, err := normalizeDocument(value)
	if err != nil {
		db.observe(path, OutcomeError)
		return Snapshot{}, err
	}

	db.mu.Lock()
	closed := db.closed
	policy := db.policies[path]
	db.mu.Unlock()
	if closed {
		return Snapshot{}, ErrClosed
	}

	for attempt := 1; ; attempt++ {
		current, err := db.Get(ctx, path)
		if err != nil {
			db.observe(path, OutcomeError)
			return Snapshot{}, err
		}

		// Evaluate the policy against the exact version being replaced.
		precondition := expected
		if precondition == AnyVersion {
			precondition = int64(current.Version)
		} else if err := CheckVersion(current.Version, current.Exists, precondition); err != nil {
			db.observe(path, OutcomeConflict)
			return Snapshot{}, err
		}

		if policy != nil {
			if err := policy(ctx, path, current, data); err != nil {
				db.observe(path, OutcomeDenied)
				return Snapshot{}, err
			}
		}

		rec, err := db.backend.Put(ctx, string(path), data, precondition)
		if errors.Is(err, ErrVersionMismatch) && expected == AnyVersion && attempt < maxWriteAttempts {
			continue
		}
		if errors.Is(err, ErrVersionMismatch) {
			db.observe(path, OutcomeConflict)
			return Snapshot{}, err
		}
		if err != nil {
			db.observe(path, OutcomeError)
			return Snapshot{}, fmt.Errorf("write %s: %w", path, err)
		}

		db.observe(path, OutcomeOK)
		db.logger.Debug("Document written", "path", path, "version", rec.Version, "bytes", len(data))

		db.wake(path)
		if db.notifier != nil {
			if err := db.notifier.Publish(ctx, path, rec.Version); err != nil {
				db.logger.Warn("Failed to publish change notice", "path", path, "error", err)
			}
		}
		return snapshotFrom(path, rec), nil
	}
}

// Subscribe delivers the current state of path to onChange, then every later state.
// Deliveries for one subscription are sequential and never go backwards; states written in
// quick succession may be coalesced into the latest one. Read failures go to onError.
func (db *DB) Subscribe(path Path, onChange func(Snapshot), onError func(error)) (unsubscribe func()) {
	sub := &subscriber{
		path:     path,
		onChange: onChange,
		onError:  onError,
		wakeCh:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		if onError != nil {
			onError(ErrClosed)
		}
		return func() {}
	}
	db.nextID++
	id := db.nextID
	if db.subs[path] == nil {
		db.subs[path] = make(map[uint64]*subscriber)
	}
	db.subs[path][id] = sub
	db.mu.Unlock()

	go sub.run(db)
	sub.signal()

	return func() {
		db.mu.Lock()
		delete(db.subs[path], id)
		if len(db.subs[path]) == 0 {
			delete(db.subs, path)
		}
		db.mu.Unlock()
		sub.stop()
	}
}

// SubscriberCount returns the number of live subscriptions on path.
func (db *DB) SubscriberCount(path Path) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.subs[path])
}

// Close stops every subscription, the notifier and the backend.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	var subs []*subscriber
	for _, byID := range db.subs {
		for _, sub := range byID {
			subs = append(subs, sub)
		}
	}
	db.subs = make(map[Path]map[uint64]*subscriber)
	db.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	if db.stopListen != nil {
		db.stopListen()
	}

	var errs []error
	if db.notifier != nil {
		errs = append(errs, db.notifier.Close())
	}
	errs = append(errs, db.backend.Close())
	return errors.Join(errs...)
}

// wake tells every subscriber of path to re-read it.
func (db *DB) wake(path Path) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, sub := range db.subs[path] {
		sub.signal()
	}
}

func (db *DB) observe(path Path, outcome string) {
	if db.observer != nil {
		db.observer.DocumentWritten(path, outcome)
	}
}

// normalizeDocument checks that value is a JSON object and compacts it.
func normalizeDocument(value []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, ErrInvalidDocument
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return buf.Bytes(), nil
}

// subscriber owns one delivery goroutine. A wake signal makes it re-read the
// backend, so a burst of writes collapses into a single delivery of the latest state.
type subscriber struct {
	path     Path
	onChange func(Snapshot)
	onError  func(error)
	wakeCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	delivered   bool
	lastVersion uint64
}

func (s *subscriber) signal() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *subscriber) run(db *DB) {
	for {
		select {
		case <-s.done:
			return
		case <-s.wakeCh:
		}

		ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
		snap, err := db.Get(ctx, s.path)
		cancel()

		select {
		case <-s.done:
			return
		default:
		}

		if err != nil {
			if s.onError != nil {
				s.onError(err)
			}
			continue
		}
		if s.delivered && snap.Version <= s.lastVersion {
			continue
		}
		s.delivered = true
		s.lastVersion = snap.Version

		s.onChange(snap)
		if db.observer != nil {
			db.observer.SnapshotDelivered(s.path)
		}
	}
}
