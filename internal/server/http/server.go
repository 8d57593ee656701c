// Package httpserver provides the HTTP REST API for the author digest service.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/drumstick90/authordigest/internal/digest"
	"github.com/drumstick90/authordigest/internal/llm"
	"github.com/drumstick90/authordigest/internal/worksources"
)

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	digest     *digest.Service
	authors    worksources.AuthorSource
	filler     *worksources.AbstractFiller
	llmCfg     llm.FactoryConfig
	keepAlive  time.Duration
	validate   *validator.Validate
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// KeepAliveInterval is the SSE idle keepalive interval.
	KeepAliveInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = 60 * time.Second
	}
}

// NewServer creates a new HTTP server with all dependencies. filler may be
// nil when the abstract fallback source is disabled.
func NewServer(
	cfg Config,
	digestSvc *digest.Service,
	authors worksources.AuthorSource,
	filler *worksources.AbstractFiller,
	llmCfg llm.FactoryConfig,
	logger zerolog.Logger,
) *Server {
	cfg.applyDefaults()

	s := &Server{
		digest:    digestSvc,
		authors:   authors,
		filler:    filler,
		llmCfg:    llmCfg,
		keepAlive: cfg.KeepAliveInterval,
		validate:  validator.New(),
		logger:    logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	// WriteTimeout stays at the configured value even when zero: the SSE
	// progress stream outlives any sane write timeout.
	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/providers", s.listProviders)

		r.Route("/authors", func(r chi.Router) {
			r.Get("/resolve", s.resolveAuthor)
			r.Get("/candidates", s.listCandidates)
			r.Get("/{authorID}/works", s.getAuthorWorks)
		})

		r.Route("/digest", func(r chi.Router) {
			r.Post("/store", s.storeWorks)
			r.Post("/extract", s.startExtraction)
			r.Get("/extract/progress/{sessionID}", s.streamProgress)
			r.Post("/synthesize", s.synthesize)
			r.Post("/analyze", s.analyze)
			r.Get("/status", s.digestStatus)
			r.Get("/extracts", s.getExtracts)
			r.Post("/clear", s.clearDigest)
		})
	})

	return r
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listProviders returns the provider catalog for client configuration.
func (s *Server) listProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": llm.Catalog(s.llmCfg),
	})
}
