package providers

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"

	"github.com/stonewallbooks/storefront/internal/config"
	"github.com/stonewallbooks/storefront/internal/docstore"
	"github.com/stonewallbooks/storefront/internal/docstore/sqlite"
	"github.com/stonewallbooks/storefront/internal/logger"
	"github.com/stonewallbooks/storefront/internal/metrics"
	"github.com/stonewallbooks/storefront/internal/sse"
)

// DocumentStoreHandle wraps the document database with shutdown capability.
type DocumentStoreHandle struct {
	*docstore.DB
	// Backend is shared with the account store.
	Backend docstore.Backend
}

// Shutdown implements do.Shutdownable.
func (h *DocumentStoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideDocumentStore opens the configured backend and layers subscriptions over it.
// With NATS configured, writes from other instances sharing the backend wake local subscribers.
func ProvideDocumentStore(i do.Injector) (*DocumentStoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	backend, err := openBackend(cfg.Storage, log)
	if err != nil {
		return nil, err
	}

	opts := []docstore.Option{docstore.WithObserver(m)}
	if cfg.Messaging.NATSURL != "" {
		notifier, err := docstore.ConnectNATS(cfg.Messaging.NATSURL, cfg.Messaging.Subject, log.Component("nats"))
		if err != nil {
			backend.Close()
			return nil, err
		}
		opts = append(opts, docstore.WithNotifier(notifier))
		log.Info("Cross-instance notifications enabled", "subject", cfg.Messaging.Subject)
	}

	db, err := docstore.New(backend, log.Component("docstore"), opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &DocumentStoreHandle{DB: db, Backend: backend}, nil
}

func openBackend(cfg config.StorageConfig, log *logger.Logger) (docstore.Backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		backend, err := sqlite.Open(cfg.SQLitePath(), log.Logger)
		if err != nil {
			return nil, err
		}
		log.Info("Document store opened", "backend", cfg.Backend, "path", cfg.SQLitePath())
		return backend, nil
	case config.BackendBadger:
		backend, err := docstore.OpenBadger(cfg.BadgerPath(), log.Logger)
		if err != nil {
			return nil, err
		}
		log.Info("Document store opened", "backend", cfg.Backend, "path", cfg.BadgerPath())
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// SSEManagerHandle wraps the SSE manager for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager. It is started by the caller.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	return &SSEManagerHandle{Manager: sse.NewManager(log.Component("sse"), m)}, nil
}
