// Package api provides the HTTP API server and handlers for the Stacks catalog.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/stacksapp/stacks-server/internal/http/response"
	"github.com/stacksapp/stacks-server/internal/ratelimit"
	"github.com/stacksapp/stacks-server/internal/service"
	"github.com/stacksapp/stacks-server/internal/sse"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	authService    *service.AuthService
	catalogService *service.CatalogService
	sseHandler     *sse.Handler
	loginLimiter   *ratelimit.KeyedRateLimiter
	router         *chi.Mux
	logger         *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(authService *service.AuthService, catalogService *service.CatalogService, sseHandler *sse.Handler, logger *slog.Logger) *Server {
	s := &Server{
		authService:    authService,
		catalogService: catalogService,
		sseHandler:     sseHandler,
		loginLimiter:   NewLoginRateLimiter(20, time.Minute, 5),
		router:         chi.NewRouter(),
		logger:         logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Health check.
	s.router.Get("/health", s.handleHealthCheck)

	// API v1.
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authGate)

		// Auth endpoints (public).
		r.Route("/auth", func(r chi.Router) {
			r.With(s.rateLimitByIP(s.loginLimiter)).Post("/login", s.handleLogin)
		})

		// Users.
		r.Route("/users", func(r chi.Router) {
			r.Post("/", s.handleCreateUser)
			r.Get("/me", s.handleGetCurrentUser)
		})

		// Catalog.
		r.Route("/books", func(r chi.Router) {
			r.Get("/", s.handleListBooks)
			r.Get("/count", s.handleBookCount)
			r.Post("/", s.handleAddBook)
		})
		r.Route("/authors", func(r chi.Router) {
			r.Get("/", s.handleListAuthors)
			r.Get("/count", s.handleAuthorCount)
			r.Patch("/{name}", s.handleEditAuthor)
		})
		r.Get("/genres", s.handleListGenres)

		// Event stream.
		r.Get("/events/books", s.sseHandler.ServeHTTP)
	})
}

// handleHealthCheck responds to health check requests.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{"status": "ok"}, s.logger)
}
