// Package api serves the storefront HTTP API: public read models, the session endpoints, and
// the librarian operations that rewrite the shared store document.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/stonewallbooks/storefront/internal/auth"
	"github.com/stonewallbooks/storefront/internal/domain"
	"github.com/stonewallbooks/storefront/internal/http/response"
	"github.com/stonewallbooks/storefront/internal/ratelimit"
	"github.com/stonewallbooks/storefront/internal/service"
	"github.com/stonewallbooks/storefront/internal/storesync"
)

const authPrefix = "/api/v1/auth/"

// Sessions issues and verifies session tokens. auth.Authority implements it.
type Sessions interface {
	SignInAnonymous(ctx context.Context) (*auth.Session, error)
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	Verify(token string) (*domain.Identity, error)
}

// Store is the synchronizer surface the handlers read from.
type Store interface {
	Snapshot() storesync.State
	LibrarianFor(id *domain.Identity) bool
	AwaitVersion(ctx context.Context, version uint64) error
}

// Services groups the business services used by the handlers.
type Services struct {
	Catalog *service.CatalogService
	Shop    *service.ShopService
	Desk    *service.DeskService
	// Backups is optional; its routes are mounted only when set.
	Backups *service.BackupService
}

// Options configures a Server. Handlers left nil are not mounted.
type Options struct {
	Logger      *slog.Logger
	Sessions    Sessions
	Store       Store
	Services    *Services
	AuthLimiter *ratelimit.KeyedRateLimiter
	Index       IndexStats
	Clients     ClientCounter
	Stream      http.Handler
	Metrics     http.Handler
	Instrument  func(http.Handler) http.Handler
	MediaRoot   string
	CORSOrigins []string
	Version     string
	// EchoTimeout bounds how long a mutation waits for its write to come back on the subscription.
	EchoTimeout time.Duration
}

// Server holds the router and dependencies for the HTTP handlers.
type Server struct {
	sessions    Sessions
	store       Store
	services    *Services
	authLimiter *ratelimit.KeyedRateLimiter
	index       IndexStats
	clients     ClientCounter
	router      *chi.Mux
	api         huma.API
	logger      *slog.Logger
	echoTimeout time.Duration
	startedAt   time.Time
}

// NewServer creates a Server with every route registered.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.EchoTimeout <= 0 {
		opts.EchoTimeout = 5 * time.Second
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		sessions:    opts.Sessions,
		store:       opts.Store,
		services:    opts.Services,
		authLimiter: opts.AuthLimiter,
		index:       opts.Index,
		clients:     opts.Clients,
		router:      chi.NewRouter(),
		logger:      opts.Logger,
		echoTimeout: opts.EchoTimeout,
		startedAt:   time.Now(),
	}

	s.setupMiddleware(opts)

	humaConfig := huma.DefaultConfig("Stone Wall Books API", opts.Version)
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerStoreRoutes()
	s.registerCatalogRoutes()
	s.registerShopRoutes()
	s.registerDeskRoutes()

	if opts.Stream != nil {
		s.router.Get("/api/v1/store/stream", opts.Stream.ServeHTTP)
	}
	if opts.Metrics != nil {
		s.router.Handle("/metrics", opts.Metrics)
	}
	if opts.MediaRoot != "" {
		s.router.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(opts.MediaRoot))))
	}
	s.router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.NotFound(w, "route not found", s.logger)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, mainly for tests and OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) setupMiddleware(opts Options) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	if opts.Instrument != nil {
		s.router.Use(opts.Instrument)
	}
	if len(opts.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Disposition"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	if s.authLimiter != nil {
		s.router.Use(s.limitAuth)
	}
	if s.sessions != nil {
		s.router.Use(authMiddleware(s.sessions))
	}
}

// limitAuth throttles the session endpoints per client address.
func (s *Server) limitAuth(next http.Handler) http.Handler {
	limited := s.authLimiter.Middleware(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Warn("Rate limit exceeded", "ip", ratelimit.ClientKey(r), "path", r.URL.Path)
		response.TooManyRequests(w, "too many attempts, try again later", s.logger)
	})(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, authPrefix) {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
