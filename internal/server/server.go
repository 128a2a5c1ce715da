// Package server provides the HTTP read surface over the market-data facade.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/valer-ix/mardatbot/internal/services"
)

// Config wires the server's port, mode and dependencies.
type Config struct {
	Port       int
	DevMode    bool
	Log        zerolog.Logger
	MarketData *services.MarketDataService
}

// Server is the HTTP read surface over the market-data facade.
type Server struct {
	router     *chi.Mux
	server     *http.Server
	marketData *services.MarketDataService
	log        zerolog.Logger
}

// New builds the router, middleware stack and routes for one server.
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		marketData: cfg.MarketData,
		log:        cfg.Log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware installs the common middleware. Compression is skipped in
// dev mode so raw responses stay readable.
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes registers the read-only API surface.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/lookup", s.handleLookup)
		r.Get("/quotes/{id}", s.handleQuote)
		r.Get("/ohlc/{id}", s.handleOHLC)
		r.Get("/crossrates/{base}/{counter}", s.handleCrossratePrice)
		r.Get("/crypto", s.handleCryptoList)
		r.Get("/fundamentals/{ticker}/{sheet}", s.handleFundamentals)
		r.Get("/ratios/{ticker}", s.handleRatios)
	})
}

// Start begins serving requests and blocks until shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs each request with its status and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
