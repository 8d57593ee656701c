// Package main provides the entry point for the author digest HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drumstick90/authordigest/internal/config"
	"github.com/drumstick90/authordigest/internal/digest"
	"github.com/drumstick90/authordigest/internal/llm"
	"github.com/drumstick90/authordigest/internal/observability"
	httpserver "github.com/drumstick90/authordigest/internal/server/http"
	"github.com/drumstick90/authordigest/internal/worksources"
	"github.com/drumstick90/authordigest/internal/worksources/openalex"
	"github.com/drumstick90/authordigest/internal/worksources/pubmed"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env if present so bare provider keys work in development.
	_ = godotenv.Load()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("authordigest server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set up Prometheus metrics when enabled.
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("authordigest")
	}

	// Create the OpenAlex author source.
	authors := openalex.New(openalex.Config{
		BaseURL:   cfg.WorkSources.OpenAlex.BaseURL,
		Email:     cfg.WorkSources.OpenAlex.Email,
		Timeout:   cfg.WorkSources.OpenAlex.Timeout,
		RateLimit: cfg.WorkSources.OpenAlex.RateLimit,
	})

	// Create the PubMed abstract fallback when enabled.
	var filler *worksources.AbstractFiller
	if cfg.WorkSources.PubMed.Enabled {
		pubmedClient := pubmed.New(pubmed.Config{
			BaseURL:   cfg.WorkSources.PubMed.BaseURL,
			APIKey:    cfg.WorkSources.PubMed.APIKey,
			Email:     cfg.WorkSources.PubMed.Email,
			Timeout:   cfg.WorkSources.PubMed.Timeout,
			RateLimit: cfg.WorkSources.PubMed.RateLimit,
		})
		filler = worksources.NewAbstractFiller(pubmedClient, logger)
		if metrics != nil {
			filler.OnFallback(func(method string) {
				metrics.AbstractFallbacks.WithLabelValues(method).Inc()
			})
		}
		logger.Info().Msg("pubmed abstract fallback enabled")
	}

	// Create the digest pipeline service.
	digestSvc := digest.NewService(digest.ServiceConfig{
		MaxWorkers:             cfg.Digest.MaxWorkers,
		MaxWorkersLimit:        cfg.Digest.MaxWorkersLimit,
		RequestsPerMinute:      cfg.Digest.RequestsPerMinute,
		RequestsPerMinuteLimit: cfg.Digest.RequestsPerMinuteLimit,
		MaxRetries:             cfg.Digest.MaxRetries,
		CacheDir:               cfg.Digest.CacheDir,
		ProgressBuffer:         cfg.Digest.ProgressBuffer,
	}, metrics, logger)

	// Assemble the generation provider factory configuration.
	llmCfg := llm.FactoryConfig{
		Provider:    cfg.LLM.Provider,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		OpenAI: llm.ProviderSettings{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			Model:   cfg.LLM.OpenAI.Model,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
		},
		Anthropic: llm.ProviderSettings{
			APIKey:  cfg.LLM.Anthropic.APIKey,
			Model:   cfg.LLM.Anthropic.Model,
			BaseURL: cfg.LLM.Anthropic.BaseURL,
		},
		Gemini: llm.ProviderSettings{
			APIKey:  cfg.LLM.Gemini.APIKey,
			Model:   cfg.LLM.Gemini.Model,
			BaseURL: cfg.LLM.Gemini.BaseURL,
		},
	}

	// Create the HTTP REST API server.
	httpCfg := httpserver.Config{
		Address:           cfg.Server.HTTPAddress(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		KeepAliveInterval: cfg.Digest.KeepAliveInterval,
	}
	httpSrv := httpserver.NewServer(httpCfg, digestSvc, authors, filler, llmCfg, logger)

	// Set up the Prometheus metrics handler on a separate port when enabled.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.ReadTimeout,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 2)

	// Start HTTP REST API server in background.
	go func() {
		logger.Info().
			Str("address", httpCfg.Address).
			Msg("HTTP REST API server starting")
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Start metrics server if configured.
	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("server stopped")
	return nil
}
