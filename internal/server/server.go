// Package server exposes the public read API and the admin surface over
// chi: item listing and search, county facets, mirrored media, the
// sanitized article proxy, and ingestion triggers.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"kynews/internal/cache"
	"kynews/internal/config"
	"kynews/internal/core"
	"kynews/internal/logger"
	"kynews/internal/media"
	"kynews/internal/persistence"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// IngestRunner triggers one ingestion cycle on demand.
type IngestRunner interface {
	RunOnce(ctx context.Context) (*core.FetchRun, error)
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	db         persistence.Database
	kv         *cache.Cache // nil disables response caching and rate limiting
	mirror     *media.Mirror
	ingestor   IngestRunner
	cfg        *config.Config
	log        *slog.Logger
}

// New creates a new HTTP server instance. kv, mirror, and ingestor may
// be nil; the corresponding surfaces degrade gracefully.
func New(db persistence.Database, kv *cache.Cache, mirror *media.Mirror, ingestor IngestRunner, cfg *config.Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		db:       db,
		kv:       kv,
		mirror:   mirror,
		ingestor: ingestor,
		cfg:      cfg,
		log:      logger.Get(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(securityHeaders)

	if s.cfg.Server.CORS.Enabled {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Server.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "If-None-Match", "X-Request-ID"},
			ExposedHeaders:   []string{"ETag", "X-Cache"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

// setupRoutes configures routes for the server
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		// Public read surface: rate-limited and cached.
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit(bucketRead, s.cfg.RateLimit.ReadPerMin))

			r.Get("/items", s.cached(s.handleListItems))
			r.Get("/items/{id}", s.cached(s.handleGetItem))
			r.Get("/search", s.cached(s.handleSearch))
			r.Get("/counties", s.cached(s.handleCounties))
			r.Get("/feeds", s.cached(s.handleListFeeds))
		})

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit(bucketWrite, s.cfg.RateLimit.WritePerMin))

			r.Get("/media/*", s.handleMedia)
			r.Head("/media/*", s.handleMedia)
			r.With(s.botGuard).Get("/open-proxy", s.handleOpenProxy)
		})

		// Admin surface: bot-guarded like every mutating path, then
		// identity-gated. Editors reach only the review queue.
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.botGuard)
			r.Use(s.rateLimit(bucketAdmin, s.cfg.RateLimit.AdminPerMin))

			r.With(s.requireAdmin).Post("/ingest", s.handleTriggerIngest)

			r.Group(func(r chi.Router) {
				r.Use(s.requireEditor)
				r.Get("/reviews", s.handleListReviews)
				r.Post("/reviews/{id}", s.handleResolveReview)
			})
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		"addr", s.httpServer.Addr,
		"read_timeout", s.cfg.Server.ReadTimeout,
		"write_timeout", s.cfg.Server.WriteTimeout,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server gracefully...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// Router returns the chi router instance (useful for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
