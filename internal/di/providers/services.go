package providers

import (
	"github.com/samber/do/v2"

	"github.com/stonewallbooks/storefront/internal/blob"
	"github.com/stonewallbooks/storefront/internal/logger"
	"github.com/stonewallbooks/storefront/internal/metrics"
	"github.com/stonewallbooks/storefront/internal/service"
	"github.com/stonewallbooks/storefront/internal/storesync"
)

// ProvideAuthorizer provides the librarian check shared by every mutator.
func ProvideAuthorizer(i do.Injector) (service.Authorizer, error) {
	sync := do.MustInvoke[*storesync.Synchronizer](i)
	return service.NewLibrarianAuthorizer(sync), nil
}

// ProvideCatalogService provides the catalog service.
func ProvideCatalogService(i do.Injector) (*service.CatalogService, error) {
	sync := do.MustInvoke[*storesync.Synchronizer](i)
	authz := do.MustInvoke[service.Authorizer](i)
	blobs := do.MustInvoke[blob.Store](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewCatalogService(sync, authz, blobs, indexHandle.CatalogIndex, m, log.Component("catalog")), nil
}

// ProvideShopService provides the shop service.
func ProvideShopService(i do.Injector) (*service.ShopService, error) {
	sync := do.MustInvoke[*storesync.Synchronizer](i)
	authz := do.MustInvoke[service.Authorizer](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewShopService(sync, authz, log.Component("shop")), nil
}

// ProvideDeskService provides the librarian desk service.
func ProvideDeskService(i do.Injector) (*service.DeskService, error) {
	sync := do.MustInvoke[*storesync.Synchronizer](i)
	authz := do.MustInvoke[service.Authorizer](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewDeskService(sync, authz, log.Component("desk")), nil
}
