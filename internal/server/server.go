// Package server provides the HTTP server and routing for Folio.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/events"
	"folio/internal/modules/market"
)

// RouteRegistrar is implemented by every module's handler
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// Config holds server configuration
type Config struct {
	Log           zerolog.Logger
	Cfg           *config.Config
	PortfolioDB   *database.DB
	ClientDataDB  *database.DB
	Bus           *events.Bus
	MarketService *market.Service
	Modules       []RouteRegistrar
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	databases      map[string]*database.DB
	limiter        *RateLimiter
	systemHandlers *SystemHandlers
	streamHandler  *StreamHandler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	databases := map[string]*database.DB{
		"portfolio":  cfg.PortfolioDB,
		"clientdata": cfg.ClientDataDB,
	}

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg.Cfg,
		databases:      databases,
		limiter:        NewRateLimiter(cfg.Cfg.RateLimit, time.Duration(cfg.Cfg.RateLimitWindow)*time.Second),
		systemHandlers: NewSystemHandlers(cfg.Log, databases, cfg.MarketService),
		streamHandler:  NewStreamHandler(cfg.Bus, cfg.Log),
	}

	s.setupMiddleware(cfg.Cfg.DevMode)
	s.setupRoutes(cfg.Modules)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(modules []RouteRegistrar) {
	// Health check sits outside the rate limit
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware)

		// Streaming before module routes so it is not shadowed
		r.Get("/stream", s.streamHandler.ServeHTTP)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
		})

		for _, module := range modules {
			module.RegisterRoutes(r)
		}
	})
}

// handleHealth reports liveness, including a quick check per database
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	resp := map[string]interface{}{"status": "ok"}

	checks := make(map[string]string, len(s.databases))
	for name, db := range s.databases {
		if err := db.QuickCheck(r.Context()); err != nil {
			checks[name] = "unavailable"
			resp["status"] = "degraded"
			status = http.StatusServiceUnavailable
			s.log.Error().Err(err).Str("database", name).Msg("Health check failed")
			continue
		}
		checks[name] = "ok"
	}
	resp["databases"] = checks

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode health response")
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and its streams
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.streamHandler.CloseAll()
	return s.server.Shutdown(ctx)
}

// Router returns the chi router, used by tests
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
