// Package docstore is the storefront's document database: versioned JSON documents
// addressed by path, whole-document writes, and realtime push to subscribers.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AnyVersion disables the version precondition on a write.
const AnyVersion int64 = -1

var (
	// ErrNotFound is returned by a Backend when no document exists at a key.
	ErrNotFound = errors.New("document not found")
	// ErrVersionMismatch is returned when a write's version precondition does not hold.
	ErrVersionMismatch = errors.New("document version mismatch")
	// ErrInvalidDocument is returned when a write is not a JSON object.
	ErrInvalidDocument = errors.New("document must be a JSON object")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("document store closed")
)

// Path addresses a single document.
type Path string

// StoreConfigPath is the location of the shared store document for an application id.
func StoreConfigPath(appID string) Path {
	return Path("artifacts/" + appID + "/public/data/configs/store_config")
}

// ValidateAppID reports whether appID can be used as a path segment.
func ValidateAppID(appID string) error {
	if appID == "" {
		return errors.New("app id is required")
	}
	if strings.ContainsAny(appID, "/ \t\n") {
		return fmt.Errorf("app id %q must be a single path segment", appID)
	}
	return nil
}

// Record is what a Backend persists for one key.
type Record struct {
	UpdatedAt time.Time
	Data      []byte
	Version   uint64
}

// Backend persists versioned records. Versions start at 1 and increase by one per write.
type Backend interface {
	// Get returns ErrNotFound when the key has never been written.
	Get(ctx context.Context, key string) (Record, error)
	// Put stores data under key. expected is AnyVersion, 0 for create-only, or the
	// version that must currently be stored; otherwise ErrVersionMismatch.
	Put(ctx context.Context, key string, data []byte, expected int64) (Record, error)
	Close() error
}

// Snapshot is one observed state of a document.
type Snapshot struct {
	UpdatedAt time.Time       `json:"updatedAt"`
	Path      Path            `json:"path"`
	Data      json.RawMessage `json:"data,omitempty"`
	Version   uint64          `json:"version"`
	Exists    bool            `json:"exists"`
}

func snapshotFrom(path Path, rec Record) Snapshot {
	return Snapshot{
		Path:      path,
		Exists:    true,
		Data:      json.RawMessage(rec.Data),
		Version:   rec.Version,
		UpdatedAt: rec.UpdatedAt,
	}
}

// WritePolicy decides whether the caller on ctx may replace current with next.
// It runs at the storage boundary for every write to the paths it is installed on.
type WritePolicy func(ctx context.Context, path Path, current Snapshot, next []byte) error

// Observer receives store activity, typically for metrics.
type Observer interface {
	DocumentWritten(path Path, outcome string)
	SnapshotDelivered(path Path)
}

// Write outcomes reported to an Observer.
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict"
	OutcomeDenied   = "denied"
	OutcomeError    = "error"
)

// CheckVersion applies a Put precondition. Backends call it inside their write transaction.
func CheckVersion(current uint64, exists bool, expected int64) error {
	switch {
	case expected == AnyVersion:
		return nil
	case expected == 0 && !exists:
		return nil
	case exists && expected == int64(current):
		return nil
	default:
		return fmt.Errorf("%w: expected %d, stored %d", ErrVersionMismatch, expected, current)
	}
}
