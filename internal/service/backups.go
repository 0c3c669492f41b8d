package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stonewallbooks/storefront/internal/backup"
	"github.com/stonewallbooks/storefront/internal/domain"
	domainerrors "github.com/stonewallbooks/storefront/internal/errors"
)

// BackupStore keeps backups of the store document. backup.Service implements it.
type BackupStore interface {
	Create(ctx context.Context) (*backup.Info, error)
	List(ctx context.Context) ([]backup.Info, error)
	Read(id string) ([]byte, error)
}

// BackupService gives the librarian access to the on-disk backups.
type BackupService struct {
	backups BackupStore
	authz   Authorizer
	logger  *slog.Logger
}

// NewBackupService creates a BackupService.
func NewBackupService(backups BackupStore, authz Authorizer, logger *slog.Logger) *BackupService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupService{backups: backups, authz: authz, logger: logger}
}

// ListBackups returns the stored backups, newest first.
func (s *BackupService) ListBackups(ctx context.Context, actor *domain.Identity) ([]backup.Info, error) {
	if err := s.authz.Authorize(actor); err != nil {
		return nil, err
	}
	backups, err := s.backups.List(ctx)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to list backups")
	}
	if backups == nil {
		backups = []backup.Info{}
	}
	return backups, nil
}

// CreateBackup writes a backup of the current document now.
func (s *BackupService) CreateBackup(ctx context.Context, actor *domain.Identity) (*backup.Info, error) {
	if err := s.authz.Authorize(actor); err != nil {
		return nil, err
	}
	info, err := s.backups.Create(ctx)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to write backup")
	}
	s.logger.Info("Backup requested", "id", info.ID, "by", actor.Email)
	return info, nil
}

// ReadBackup returns the contents of one backup.
func (s *BackupService) ReadBackup(actor *domain.Identity, id string) ([]byte, error) {
	if err := s.authz.Authorize(actor); err != nil {
		return nil, err
	}
	data, err := s.backups.Read(id)
	if errors.Is(err, backup.ErrBackupNotFound) {
		return nil, domainerrors.NotFoundf("backup %s not found", id)
	}
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to read backup")
	}
	return data, nil
}
