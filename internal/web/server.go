// Package web provides the HTTP API for document ingest and search.
package web

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/docingest/internal/config"
	"github.com/JonMunkholm/docingest/internal/format"
	"github.com/JonMunkholm/docingest/internal/ingest"
	"github.com/JonMunkholm/docingest/internal/store/solr"
	"github.com/JonMunkholm/docingest/internal/web/middleware"
)

// Service is the ingest service the server exposes.
type Service interface {
	Index(ctx context.Context, collection string, f format.Format, r io.Reader) (*ingest.Result, error)
	Search(ctx context.Context, collection string, q solr.Query) (*solr.SearchResult, error)
	Collections(ctx context.Context) ([]string, error)
	Status() ingest.Status
}

var errRateLimited = errors.New("rate limit exceeded")

// Server is the HTTP API server.
type Server struct {
	service Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server

	stop context.CancelFunc
}

// NewServer creates a Server. Background rate limiter cleanup runs until
// Shutdown.
func NewServer(service Service, cfg *config.Config) *Server {
	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
		stop:    stop,
	}
	s.setupMiddleware()
	s.setupRoutes(ctx)
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Server.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes(ctx context.Context) {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		if s.cfg.Rate.Enabled {
			r.Use(s.rateLimit(ctx, s.cfg.Rate.RequestsPerMinute))
		}

		r.Get("/status", s.handleStatus)
		r.Get("/collections", s.handleCollections)

		r.Route("/collections/{collection}", func(r chi.Router) {
			r.Get("/search", s.handleSearch)

			r.Group(func(r chi.Router) {
				if s.cfg.Rate.Enabled {
					r.Use(s.rateLimit(ctx, s.cfg.Rate.IngestLimit))
				}
				r.Post("/documents", s.handleIngest)
			})
		})
	})
}

func (s *Server) rateLimit(ctx context.Context, perMinute int) func(http.Handler) http.Handler {
	rl := middleware.NewRateLimiter(perMinute)
	go rl.Run(ctx)
	return rl.Handler(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, r, errRateLimited)
	})
}

// Start listens on the configured address. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds headers suited to a JSON API.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
