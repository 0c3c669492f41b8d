// Package di provides dependency injection configuration for the storefront server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/stonewallbooks/storefront/internal/auth"
	"github.com/stonewallbooks/storefront/internal/blob"
	"github.com/stonewallbooks/storefront/internal/config"
	"github.com/stonewallbooks/storefront/internal/di/providers"
	"github.com/stonewallbooks/storefront/internal/identity"
	"github.com/stonewallbooks/storefront/internal/logger"
	"github.com/stonewallbooks/storefront/internal/metrics"
	"github.com/stonewallbooks/storefront/internal/service"
	"github.com/stonewallbooks/storefront/internal/storesync"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer(cfg *config.Config) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, cfg)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideMetrics)
	do.Provide(injector, providers.ProvideAuthKey)

	// Database layer
	do.Provide(injector, providers.ProvideDocumentStore)
	do.Provide(injector, providers.ProvideSSEManager)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)
	do.Provide(injector, providers.ProvideAuthority)
	do.Provide(injector, providers.ProvideIdentityManager)

	// Sync layer
	do.Provide(injector, providers.ProvideSynchronizer)
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideChangeFanout)

	// Storage layer
	do.Provide(injector, providers.ProvideBlobStore)

	// Business services
	do.Provide(injector, providers.ProvideAuthorizer)
	do.Provide(injector, providers.ProvideCatalogService)
	do.Provide(injector, providers.ProvideShopService)
	do.Provide(injector, providers.ProvideDeskService)
	do.Provide(injector, providers.ProvideBackupStore)
	do.Provide(injector, providers.ProvideBackupService)
	do.Provide(injector, providers.ProvideBackupScheduler)

	// Server
	do.Provide(injector, providers.ProvideAuthLimiter)
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Runtime holds what the caller runs for the life of the process.
type Runtime struct {
	Logger       *logger.Logger
	Identity     *identity.Manager
	Synchronizer *storesync.Synchronizer
	SSE          *providers.SSEManagerHandle
	HTTP         *providers.HTTPServerHandle
	Backups      *providers.BackupSchedulerHandle
}

// Bootstrap initializes all services and returns the long-running parts.
// Nothing starts until the caller runs them.
func Bootstrap(injector *do.RootScope) (*Runtime, error) {
	log, err := do.Invoke[*logger.Logger](injector)
	if err != nil {
		return nil, err
	}

	// Invoke core services to trigger initialization
	steps := []func() error{
		invoke[*metrics.Metrics](injector),
		invoke[providers.AuthKey](injector),
		invoke[*providers.DocumentStoreHandle](injector),
		invoke[*auth.Authority](injector),
		invoke[*providers.SearchIndexHandle](injector),
		invoke[*providers.ChangeFanoutHandle](injector),
		invoke[blob.Store](injector),
		invoke[*service.CatalogService](injector),
		invoke[*service.ShopService](injector),
		invoke[*service.DeskService](injector),
		invoke[*service.BackupService](injector),
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	rt := &Runtime{Logger: log}
	if rt.Identity, err = do.Invoke[*identity.Manager](injector); err != nil {
		return nil, err
	}
	if rt.Synchronizer, err = do.Invoke[*storesync.Synchronizer](injector); err != nil {
		return nil, err
	}
	if rt.SSE, err = do.Invoke[*providers.SSEManagerHandle](injector); err != nil {
		return nil, err
	}
	if rt.HTTP, err = do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return nil, err
	}
	if rt.Backups, err = do.Invoke[*providers.BackupSchedulerHandle](injector); err != nil {
		return nil, err
	}
	return rt, nil
}

func invoke[T any](injector do.Injector) func() error {
	return func() error {
		_, err := do.Invoke[T](injector)
		return err
	}
}
