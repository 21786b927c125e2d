// Package main implements the entry point for the sitegen API server, which
// turns practice descriptions (text or audio) into generated website content
// through an asynchronous job pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kestrelworks/sitegen-api/internal/api"
	"github.com/kestrelworks/sitegen-api/internal/cache"
	"github.com/kestrelworks/sitegen-api/internal/config"
	"github.com/kestrelworks/sitegen-api/internal/domain"
	"github.com/kestrelworks/sitegen-api/internal/generation"
	"github.com/kestrelworks/sitegen-api/internal/hub"
	"github.com/kestrelworks/sitegen-api/internal/pipeline"
	"github.com/kestrelworks/sitegen-api/internal/platform/gemini"
	"github.com/kestrelworks/sitegen-api/internal/platform/logger"
	"github.com/kestrelworks/sitegen-api/internal/platform/redisconn"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func run() error {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Server)
	appLogger.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"redis_enabled", cfg.Redis.Addr != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The distributed cache tier is optional; the service runs on the local
	// tier alone when Redis is not configured or unreachable at startup.
	var remote cache.RemoteStore
	if cfg.Redis.Addr != "" {
		client, err := redisconn.Connect(ctx, cfg.Redis)
		if err != nil {
			appLogger.Warn("redis unavailable, running with local cache tier only",
				"error", err)
		} else {
			defer func() { _ = client.Close() }()
			remote = cache.NewRedisStore(client)
			appLogger.Info("connected to redis", "addr", cfg.Redis.Addr)
		}
	}

	contentCache := cache.New(remote, cache.Options{
		DefaultTTL:       cfg.Cache.DefaultTTL,
		LocalCapacity:    cfg.Cache.LocalCapacity,
		BreakerThreshold: cfg.Cache.BreakerThreshold,
		BreakerCooldown:  cfg.Cache.BreakerCooldown,
	}, appLogger)

	publisher := hub.NewInMemoryPublisher(appLogger)
	progressHub := hub.New(publisher, hub.DefaultConfig(), appLogger)
	progressHub.Start()
	defer progressHub.Close()

	generator, err := buildGenerator(ctx, cfg.LLM, appLogger)
	if err != nil {
		return err
	}

	// Transcription and persistence collaborators are wired by deployments
	// that have them; without a transcriber, audio submissions are rejected.
	appLogger.Warn("no transcription provider configured, audio submissions disabled")

	orchestrator := pipeline.New(progressHub, contentCache, generator, nil, nil, pipeline.Config{
		MaxConcurrent:     cfg.Pipeline.MaxConcurrent,
		GenerationTimeout: cfg.Pipeline.GenerationTimeout,
		PersistTimeout:    cfg.Pipeline.PersistTimeout,
		MinTextLength:     cfg.Pipeline.MinTextLength,
		MaxTextLength:     cfg.Pipeline.MaxTextLength,
		MaxAudioBytes:     cfg.Pipeline.MaxAudioBytes,
		PollInterval:      cfg.Transcription.PollInterval,
		PollMaxAttempts:   cfg.Transcription.MaxAttempts,
		CacheTTL:          cfg.Cache.DefaultTTL,
	}, appLogger)
	defer orchestrator.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(orchestrator, progressHub, contentCache, appLogger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		appLogger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	appLogger.Info("server stopped")
	return nil
}

// buildGenerator returns the Gemini-backed generator when an API key is
// configured, otherwise a deterministic stub so the service stays usable in
// development environments without credentials.
func buildGenerator(ctx context.Context, cfg config.LLMConfig, appLogger *slog.Logger) (generation.Generator, error) {
	if cfg.GeminiAPIKey == "" {
		appLogger.Warn("no Gemini API key configured, using stub generator")
		return stubGenerator(), nil
	}

	g, err := gemini.New(ctx, gemini.Config{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.ModelName,
	}, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini generator: %w", err)
	}
	return g, nil
}

func stubGenerator() generation.Generator {
	return generation.GeneratorFunc(func(_ context.Context, text, specialty string) (*domain.GeneratedContent, error) {
		return &domain.GeneratedContent{
			HeroSection: map[string]any{
				"headline":    "Welcome to our practice",
				"subheadline": "Quality care for every patient",
			},
			AboutSection: map[string]any{
				"title": "About us",
				"text":  text,
			},
			Services: []domain.ServiceItem{
				{Name: "General consultation", Description: "Personalized assessment and care"},
			},
			SEOMeta: map[string]any{
				"title":       specialty + " practice",
				"description": "A modern " + specialty + " practice website",
			},
			ConfidenceScore: 0.1,
			FallbackUsed:    true,
		}, nil
	})
}
