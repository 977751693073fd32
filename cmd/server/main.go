package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ChaseRain/deckstream/internal/api"
	"github.com/ChaseRain/deckstream/internal/infra/config"
	"github.com/ChaseRain/deckstream/internal/infra/httpclient"
	"github.com/ChaseRain/deckstream/internal/infra/limiter"
	"github.com/ChaseRain/deckstream/internal/infra/logger"
	"github.com/ChaseRain/deckstream/internal/service/gemini"
	"github.com/ChaseRain/deckstream/internal/service/imagegen"
	"github.com/ChaseRain/deckstream/internal/service/orchestrator"
	"github.com/ChaseRain/deckstream/internal/service/storage"
	"github.com/ChaseRain/deckstream/internal/service/taskqueue"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Init logger
	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Error("server exited with error", "error", err)
		zapLogger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, zapLogger *logger.Logger) error {
	// Init HTTP client
	httpClient := httpclient.New(httpclient.Options{
		Timeout:    time.Duration(cfg.HTTPClient.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.HTTPClient.MaxRetries,
	})

	// Init limiter
	lim := limiter.New(cfg.Limiter.MaxConcurrent, cfg.Limiter.RatePerSecond)

	// Init services
	geminiSvc := gemini.New(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.BaseURL, httpClient, zapLogger)
	if err := geminiSvc.Ready(); err != nil {
		// keep serving history and prompts; generation answers 503
		zapLogger.Warn("model stream not configured", "error", err)
	}
	imageGenSvc := imagegen.New(cfg.ImageGen.APIKey, cfg.ImageGen.Model, cfg.ImageGen.BaseURL, httpClient, zapLogger)
	images := imagegen.NewProvider(imageGenSvc, taskqueue.Options{
		Name:    "images",
		Spacing: cfg.Queue.Spacing,
		Retry: taskqueue.RetryPolicy{
			MaxAttempts: cfg.Queue.MaxAttempts,
			BaseDelay:   cfg.Queue.BaseDelay,
			Jitter:      cfg.Queue.Jitter,
		},
		Logger: zapLogger,
	})

	store, err := storage.New(cfg.Storage.Type, cfg.Storage.Path, cfg.History.ListLimit, zapLogger)
	if err != nil {
		return err
	}
	defer store.Close()

	// Init orchestrator
	orch := orchestrator.New(geminiSvc, images, store, lim, zapLogger, orchestrator.Options{
		SlideCount:      cfg.Generation.SlideCount,
		MaxSlideCount:   cfg.Generation.MaxSlideCount,
		SourcesPerSlide: cfg.Generation.SourcesPerSlide,
		HistoryEntries:  cfg.History.MaxEntries,
		ImageStyle:      cfg.ImageGen.Style,
		AspectRatio:     cfg.ImageGen.AspectRatio,
	})
	defer orch.Close()

	// Init router
	router := api.NewRouter(orch, zapLogger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zapLogger.Info("starting server", "addr", cfg.Server.Addr, "storage", cfg.Storage.Type)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zapLogger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("server forced to shutdown", "error", err)
			return err
		}
		return nil
	})

	err = g.Wait()
	zapLogger.Info("server stopped")
	return err
}
