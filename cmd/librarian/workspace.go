package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stonewallbooks/storefront/internal/auth"
	"github.com/stonewallbooks/storefront/internal/config"
	"github.com/stonewallbooks/storefront/internal/defaults"
	"github.com/stonewallbooks/storefront/internal/docstore"
	"github.com/stonewallbooks/storefront/internal/docstore/sqlite"
	"github.com/stonewallbooks/storefront/internal/domain"
	"github.com/stonewallbooks/storefront/internal/logger"
	"github.com/stonewallbooks/storefront/internal/service"
	"github.com/stonewallbooks/storefront/internal/storesync"
)

const syncTimeout = 10 * time.Second

// workspace is an open data directory: the document store, accounts and a running synchronizer.
type workspace struct {
	log       *logger.Logger
	db        *docstore.DB
	authority *auth.Authority
	sync      *storesync.Synchronizer
	desk      *service.DeskService

	cancel context.CancelFunc
	done   chan error
}

// operator is the identity the synchronizer subscribes as. Writes still carry the signed-in actor.
type operator struct{}

func (operator) OnIdentityChange(fn func(*domain.Identity)) func() {
	fn(&domain.Identity{UID: "librarian-cli", IsAnonymous: true})
	return func() {}
}

// openWorkspace opens the configured store. With subscribe set it also runs the
// synchronizer and waits for the first snapshot.
func openWorkspace(ctx context.Context, flags *globalFlags, subscribe bool) (*workspace, error) {
	cfg, err := config.Load(flags.configArgs())
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Config{Level: logger.ParseLevel(cfg.Logger.Level), Format: cfg.Logger.Format})

	var backend docstore.Backend
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		backend, err = sqlite.Open(cfg.Storage.SQLitePath(), log.Logger)
	default:
		backend, err = docstore.OpenBadger(cfg.Storage.BadgerPath(), log.Logger)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store (is the server still running?): %w", cfg.Storage.Backend, err)
	}

	db, err := docstore.New(backend, log.Logger)
	if err != nil {
		backend.Close()
		return nil, err
	}

	key, err := auth.LoadOrGenerateKey(cfg.Storage.DataPath)
	if err != nil {
		db.Close()
		return nil, err
	}
	tokens, err := auth.NewTokenService(key, cfg.Auth.SessionDuration, cfg.Auth.AnonymousSessionDuration)
	if err != nil {
		db.Close()
		return nil, err
	}

	ws := &workspace{
		log:       log,
		db:        db,
		authority: auth.NewAuthority(auth.NewAccountStore(backend), tokens, auth.DefaultHasher, log.Logger),
	}
	if !subscribe {
		return ws, nil
	}

	doc, err := defaults.Load()
	if err != nil {
		db.Close()
		return nil, err
	}
	ws.sync, err = storesync.New(db, storesync.Options{
		Logger:   log.Logger,
		AppID:    cfg.Storage.AppID,
		Defaults: doc,
		Strict:   cfg.Sync.StrictWrites,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	ws.desk = service.NewDeskService(ws.sync, nil, log.Logger)

	runCtx, cancel := context.WithCancel(context.Background())
	ws.cancel = cancel
	ws.done = make(chan error, 1)
	go func() { ws.done <- ws.sync.Run(runCtx, operator{}) }()

	waitCtx, waitCancel := context.WithTimeout(ctx, syncTimeout)
	defer waitCancel()
	if err := ws.sync.AwaitSynced(waitCtx); err != nil {
		ws.Close()
		return nil, fmt.Errorf("waiting for store document: %w", err)
	}
	return ws, nil
}

// signIn checks the librarian's password and returns the identity to act as.
func (ws *workspace) signIn(ctx context.Context, email, password string) (*domain.Identity, error) {
	session, err := ws.authority.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	actor := session.Identity
	return &actor, nil
}

// await blocks until the write at version has been applied locally.
func (ws *workspace) await(ctx context.Context, version uint64) error {
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	if err := ws.sync.AwaitVersion(ctx, version); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Close stops the synchronizer and closes the store.
func (ws *workspace) Close() {
	if ws.cancel != nil {
		ws.cancel()
		<-ws.done
	}
	if err := ws.db.Close(); err != nil {
		ws.log.Warn("Failed to close store", "error", err)
	}
}
