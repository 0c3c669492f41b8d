package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/stonewallbooks/storefront/internal/backup"
	"github.com/stonewallbooks/storefront/internal/config"
	"github.com/stonewallbooks/storefront/internal/logger"
	"github.com/stonewallbooks/storefront/internal/service"
)

// ProvideBackupStore provides the on-disk backup directory.
func ProvideBackupStore(i do.Injector) (*backup.Service, error) {
	cfg := do.MustInvoke[*config.Config](i)
	desk := do.MustInvoke[*service.DeskService](i)
	log := do.MustInvoke[*logger.Logger](i)

	return backup.NewService(desk, cfg.Backup.Dir, log.Component("backup")), nil
}

// ProvideBackupService provides librarian access to stored backups.
func ProvideBackupService(i do.Injector) (*service.BackupService, error) {
	store := do.MustInvoke[*backup.Service](i)
	authz := do.MustInvoke[service.Authorizer](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewBackupService(store, authz, log.Component("backup")), nil
}

// BackupSchedulerHandle wraps the backup scheduler with shutdown capability.
// Scheduler is nil when no schedule is configured.
type BackupSchedulerHandle struct {
	*backup.Scheduler
}

// Shutdown implements do.Shutdownable.
func (h *BackupSchedulerHandle) Shutdown() error {
	if h.Scheduler == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Stop(ctx)
}

// ProvideBackupScheduler provides the scheduled backup job. It does not start it.
func ProvideBackupScheduler(i do.Injector) (*BackupSchedulerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Backup.Schedule == "" {
		log.Info("Scheduled backups disabled")
		return &BackupSchedulerHandle{}, nil
	}

	store := do.MustInvoke[*backup.Service](i)
	scheduler, err := backup.NewScheduler(store, cfg.Backup.Schedule, cfg.Backup.Keep, log.Component("backup"))
	if err != nil {
		return nil, err
	}
	return &BackupSchedulerHandle{Scheduler: scheduler}, nil
}
