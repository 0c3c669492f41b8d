package providers

import (
	"context"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/stonewallbooks/storefront/internal/api"
	"github.com/stonewallbooks/storefront/internal/auth"
	"github.com/stonewallbooks/storefront/internal/config"
	"github.com/stonewallbooks/storefront/internal/logger"
	"github.com/stonewallbooks/storefront/internal/metrics"
	"github.com/stonewallbooks/storefront/internal/ratelimit"
	"github.com/stonewallbooks/storefront/internal/service"
	"github.com/stonewallbooks/storefront/internal/sse"
	"github.com/stonewallbooks/storefront/internal/storesync"
)

// Version is the server build version, set by main.
var Version = "dev"

// HTTPServerHandle wraps http.Server with Shutdownable. The caller runs ListenAndServe.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// AuthLimiterHandle wraps the sign-in rate limiter with shutdown capability.
type AuthLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *AuthLimiterHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideAuthLimiter provides the per-client limiter for the session endpoints.
func ProvideAuthLimiter(i do.Injector) (*AuthLimiterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return &AuthLimiterHandle{KeyedRateLimiter: ratelimit.New(cfg.Auth.RateLimit, cfg.Auth.RateBurst)}, nil
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sync := do.MustInvoke[*storesync.Synchronizer](i)
	authority := do.MustInvoke[*auth.Authority](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	limiter := do.MustInvoke[*AuthLimiterHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	services := &api.Services{
		Catalog: do.MustInvoke[*service.CatalogService](i),
		Shop:    do.MustInvoke[*service.ShopService](i),
		Desk:    do.MustInvoke[*service.DeskService](i),
		Backups: do.MustInvoke[*service.BackupService](i),
	}

	mediaRoot := ""
	if cfg.Media.Backend == config.MediaLocal {
		mediaRoot = cfg.Storage.MediaPath
	}

	handler := api.NewServer(api.Options{
		Logger:      log.Component("api"),
		Sessions:    authority,
		Store:       sync,
		Services:    services,
		Index:       indexHandle.CatalogIndex,
		Clients:     sseHandle.Manager,
		AuthLimiter: limiter.KeyedRateLimiter,
		Stream:      sse.NewHandler(sseHandle.Manager, sync, log.Component("sse")),
		Metrics:     m.Handler(),
		Instrument:  m.Middleware,
		MediaRoot:   mediaRoot,
		CORSOrigins: cfg.Server.CORSOrigins,
		Version:     Version,
		EchoTimeout: cfg.Server.EchoTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &HTTPServerHandle{Server: srv}, nil
}
