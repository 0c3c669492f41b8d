package providers

import (
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/stonewallbooks/storefront/internal/auth"
	"github.com/stonewallbooks/storefront/internal/config"
	"github.com/stonewallbooks/storefront/internal/defaults"
	"github.com/stonewallbooks/storefront/internal/identity"
	"github.com/stonewallbooks/storefront/internal/logger"
	"github.com/stonewallbooks/storefront/internal/metrics"
	"github.com/stonewallbooks/storefront/internal/sse"
	"github.com/stonewallbooks/storefront/internal/storesync"
)

// sessionFile holds the server's own session token between restarts.
const sessionFile = "session.token"

// ProvideSynchronizer provides the shared store synchronizer. It is run by the caller.
func ProvideSynchronizer(i do.Injector) (*storesync.Synchronizer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*DocumentStoreHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	doc, err := defaults.Load()
	if err != nil {
		return nil, err
	}

	return storesync.New(storeHandle.DB, storesync.Options{
		Logger:   log.Component("storesync"),
		Recorder: m,
		AppID:    cfg.Storage.AppID,
		Defaults: doc,
		Strict:   cfg.Sync.StrictWrites,
	})
}

// ProvideIdentityManager provides the server's own session. The synchronizer subscribes once
// it resolves.
func ProvideIdentityManager(i do.Injector) (*identity.Manager, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	authority := do.MustInvoke[*auth.Authority](i)

	provider := identity.NewLocalProvider(authority, filepath.Join(cfg.Storage.DataPath, sessionFile), log.Component("identity"))
	return identity.NewManager(provider, log.Component("identity")), nil
}

// ChangeFanoutHandle forwards every applied snapshot to stream clients and the search index.
type ChangeFanoutHandle struct {
	unsubscribe func()
}

// Shutdown implements do.Shutdownable.
func (h *ChangeFanoutHandle) Shutdown() error {
	h.unsubscribe()
	return nil
}

// ProvideChangeFanout wires the synchronizer to its read models.
func ProvideChangeFanout(i do.Injector) (*ChangeFanoutHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	sync := do.MustInvoke[*storesync.Synchronizer](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)

	unsubscribe := sync.OnChange(func(st storesync.State) {
		sseHandle.Emit(sse.NewStoreEvent(st))
		if err := indexHandle.Rebuild(st.Version, st.Doc.Catalog); err != nil {
			log.Warn("Search index rebuild failed", "version", st.Version, "error", err)
		}
	})

	return &ChangeFanoutHandle{unsubscribe: unsubscribe}, nil
}
