// Package main provides the entry point for the storefront server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/stonewallbooks/storefront/internal/config"
	"github.com/stonewallbooks/storefront/internal/di"
	"github.com/stonewallbooks/storefront/internal/di/providers"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	providers.Version = version

	// Create DI container
	injector := di.NewContainer(cfg)

	rt, err := di.Bootstrap(injector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap server: %v\n", err)
		os.Exit(1)
	}
	log := rt.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if rt.Backups.Scheduler != nil {
		rt.Backups.Start()
	}

	g.Go(func() error {
		rt.SSE.Start(ctx)
		return nil
	})

	g.Go(func() error {
		return rt.Synchronizer.Run(ctx, rt.Identity)
	})

	g.Go(func() error {
		if err := rt.Identity.Start(ctx); err != nil {
			return fmt.Errorf("resolve server session: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info("HTTP server starting", "addr", rt.HTTP.Addr)
		if err := rt.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down server gracefully...")
		// The container shuts handles down in reverse dependency order: the HTTP server
		// first, the document store last.
		if err := injector.Shutdown(); err != nil {
			log.Error("Shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Server stopped", "error", err)
		os.Exit(1)
	}

	log.Info("Closed for the night")
}
