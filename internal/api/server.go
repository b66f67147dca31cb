// Package api exposes the Inkwell publishing pipeline over HTTP.
// Handlers are thin: they resolve the principal, translate DTOs and map
// domain errors; every rule lives in internal/service.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/inkwellapp/inkwell-server/internal/ratelimit"
)

// Options tunes the HTTP surface.
type Options struct {
	CORSOrigins []string
	RateLimit   float64 // Mutating requests per second per caller; informs Retry-After
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services *Services
	limiter  *ratelimit.KeyedRateLimiter
	opts     Options
	router   *chi.Mux
	api      huma.API
	logger   *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
// limiter may be nil to disable rate limiting.
func NewServer(services *Services, limiter *ratelimit.KeyedRateLimiter, opts Options, logger *slog.Logger) *Server {
	s := &Server{
		services: services,
		limiter:  limiter,
		opts:     opts,
		router:   chi.NewRouter(),
		logger:   logger,
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("Inkwell API", "1.0.0")
	humaConfig.Info.Description = "Publishing pipeline: safe HTML rendering, unique slugs and full-text search for posts and users."
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, used by tests and the OpenAPI dump.
func (s *Server) API() huma.API {
	return s.api
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderPrincipalID, HeaderPrincipalAdmin},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))
	s.router.Use(s.principalMiddleware)
	s.router.Use(s.rateLimitMiddleware)
}

// setupRoutes registers every huma operation.
func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerPostRoutes()
	s.registerCommentRoutes()
	s.registerUserRoutes()
	s.registerTaxonomyRoutes()
	s.registerSearchRoutes()
	s.registerAdminRoutes()
}
