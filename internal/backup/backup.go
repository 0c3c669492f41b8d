// Package backup writes timestamped JSON backups of the store document to disk and
// runs them on a cron schedule.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/stonewallbooks/storefront/internal/domain"
)

const (
	filePrefix = "backup-"
	fileSuffix = ".json"
	timeLayout = "2006-01-02-150405"
)

// ErrBackupNotFound is returned when a backup id does not name a file in the backup directory.
var ErrBackupNotFound = errors.New("backup not found")

// Source provides the merged store document and its version.
type Source interface {
	Document() (domain.StoreDocument, uint64)
}

// Info describes a backup on disk.
type Info struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
}

// Service creates, lists and prunes backups.
type Service struct {
	source Source
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service writing into dir.
func NewService(source Source, dir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, dir: dir, logger: logger, now: time.Now}
}

// Dir returns the backup directory.
func (s *Service) Dir() string {
	return s.dir
}

// Create writes the current document as backup-<timestamp>.json.
func (s *Service) Create(ctx context.Context) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	doc, version := s.source.Document()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}

	created := s.now()
	id := filePrefix + created.UTC().Format(timeLayout)
	path := filepath.Join(s.dir, id+fileSuffix)

	tmp, err := os.CreateTemp(s.dir, ".backup-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close backup: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("rename backup: %w", err)
	}

	s.logger.Info("Backup written", "path", path, "version", version, "books", len(doc.Catalog))
	return &Info{ID: id, Path: path, Size: int64(len(data)), CreatedAt: created}, nil
}

// List returns all backups, newest first.
func (s *Service) List(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var backups []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		id := strings.TrimSuffix(name, fileSuffix)
		created, err := time.Parse(timeLayout, strings.TrimPrefix(id, filePrefix))
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			ID:        id,
			Path:      filepath.Join(s.dir, name),
			Size:      info.Size(),
			CreatedAt: created,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Read returns the contents of the backup with the given id.
func (s *Service) Read(id string) ([]byte, error) {
	if !strings.HasPrefix(id, filePrefix) || strings.ContainsAny(id, `/\`) {
		return nil, ErrBackupNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.dir, id+fileSuffix))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBackupNotFound
		}
		return nil, err
	}
	return data, nil
}

// Prune removes all but the newest keep backups and returns how many were removed.
func (s *Service) Prune(ctx context.Context, keep int) (int, error) {
	backups, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if keep < 1 || len(backups) <= keep {
		return 0, nil
	}

	removed := 0
	for _, b := range backups[keep:] {
		if err := os.Remove(b.Path); err != nil {
			s.logger.Warn("Failed to remove old backup", "path", b.Path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
