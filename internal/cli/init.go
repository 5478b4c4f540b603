// Package cli holds the jizhang commands and the process bootstrap they share:
// environment loading, logging, configuration and opening the ledger.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"jizhang/internal/backend"
	"jizhang/internal/config"
	"jizhang/internal/ledger"
	"jizhang/internal/log"
	"jizhang/internal/storage"
	"jizhang/internal/suggest"
)

// LoadEnvFile loads a .env file for local development.
// A missing file is not an error, as the file is optional in production.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// SetupLogger builds the application logger from cfg, writing to w, and installs it
// as the slog default.
func SetupLogger(cfg *config.Config, w io.Writer) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: log.ComponentCLI,
		Output:    w,
	})
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration from the environment and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// OpenStore opens the configured backend and returns a loaded ledger on top of it.
// The returned close function releases the backend.
func OpenStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (*ledger.Store, func(), error) {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, nil, err
	}

	store := ledger.New(storage.NewRepository(res.KV))
	store.Load(ctx)

	closeFn := func() {
		if err := res.Cleanup(); err != nil {
			logger.ErrorContext(ctx, "Failed to close backend", log.FieldError, err, "backend", cfg.DataBackend)
		}
	}
	return store, closeFn, nil
}

// NewSuggestService returns the category suggester: Gemini when an API key is configured,
// with the keyword rules as fallback, otherwise the keyword rules alone.
func NewSuggestService(ctx context.Context, cfg *config.Config, logger *log.Logger) *suggest.Service {
	keywords := suggest.NewKeywordSuggester()
	opts := suggest.Options{
		Timeout:   cfg.SuggestTimeout,
		CacheSize: cfg.SuggestCacheSize,
		CacheTTL:  cfg.SuggestCacheTTL,
	}

	if !cfg.SuggestEnabled() {
		logger.DebugContext(ctx, "Gemini disabled, using keyword suggestions")
		return suggest.NewService(keywords, opts)
	}

	gemini, err := suggest.NewGeminiSuggester(ctx, suggest.GeminiConfig{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
	})
	if err != nil {
		logger.WarnContext(ctx, "Failed to initialize Gemini suggester, using keyword suggestions", log.FieldError, err)
		return suggest.NewService(keywords, opts)
	}

	opts.Fallback = keywords
	return suggest.NewService(gemini, opts)
}

// GracefulShutdown waits for SIGINT, SIGTERM or the end of parent, then runs cleanup
// with a context bounded by timeout. The returned context is cancelled once cleanup
// has started and the channel is closed when it returns.
func GracefulShutdown(parent context.Context, logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
			logger.Info("Shutting down", "reason", context.Cause(ctx))
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}
