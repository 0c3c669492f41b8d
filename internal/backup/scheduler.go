package backup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// runTimeout bounds a single scheduled backup.
const runTimeout = 2 * time.Minute

// Scheduler runs Create and Prune on a cron schedule.
type Scheduler struct {
	service *Service
	cron    *cron.Cron
	keep    int
	logger  *slog.Logger
}

// NewScheduler parses spec, a standard five-field cron expression or a descriptor such
// as "@daily", and registers the backup job.
func NewScheduler(service *Service, spec string, keep int, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		service: service,
		cron:    cron.New(),
		keep:    keep,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running scheduled backups in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Backup schedule started", "dir", s.service.Dir(), "keep", s.keep)
}

// Stop stops scheduling and waits for a running backup to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns when the next backup will run.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if _, err := s.service.Create(ctx); err != nil {
		s.logger.Error("Scheduled backup failed", "error", err)
		return
	}
	removed, err := s.service.Prune(ctx, s.keep)
	if err != nil {
		s.logger.Warn("Failed to prune backups", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("Pruned old backups", "removed", removed)
	}
}
