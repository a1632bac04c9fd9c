package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/doxa-ai/doxa/internal/api"
	"github.com/doxa-ai/doxa/internal/buildconfig"
	"github.com/doxa-ai/doxa/internal/config"
	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/embedding"
	"github.com/doxa-ai/doxa/internal/extract"
	"github.com/doxa-ai/doxa/internal/store/inmem"
	"github.com/doxa-ai/doxa/internal/store/postgres"
	"github.com/doxa-ai/doxa/internal/store/sqlite"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	var logger *zap.Logger
	var err error
	if config.Development() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting", zap.String("build", buildconfig.String()))

	ctx := context.Background()

	provider, err := openProvider(ctx, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer func() { _ = provider.Close() }()

	// Provider initialization degrades rather than aborts: a misconfigured
	// embedder falls back to none and the engine keeps running text-only.
	embedder, err := embedding.NewProvider(config.EmbeddingProvider(), config.EmbeddingDimension())
	if err != nil {
		logger.Warn("embedding provider initialization failed, embeddings disabled",
			zap.String("provider", config.EmbeddingProvider()), zap.Error(err))
		embedder = embedding.NoneProvider{}
	} else {
		logger.Info("embedding provider initialized", zap.String("provider", config.EmbeddingProvider()))
	}

	extractor, err := extract.NewProvider(config.ExtractProvider())
	if err != nil {
		logger.Warn("extraction provider initialization failed, using heuristic",
			zap.String("provider", config.ExtractProvider()), zap.Error(err))
		extractor = extract.NewHeuristicProvider()
	} else {
		logger.Info("extraction provider initialized", zap.String("provider", config.ExtractProvider()))
	}

	app, err := api.NewApp(ctx, api.Deps{
		Provider:  provider,
		Embedder:  embedder,
		Extractor: extractor,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("failed to build app", zap.Error(err))
	}

	app.Maintenance.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:    addr,
		Handler: app.Router,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	app.Maintenance.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// openProvider picks the storage backend: Postgres when DATABASE_URL is set,
// the embedded SQLite store when SQLITE_PATH is, the in-memory store
// otherwise.
func openProvider(ctx context.Context, logger *zap.Logger) (domain.StoreProvider, error) {
	if url := config.DatabaseURL(); url != "" {
		p, err := postgres.New(ctx, url)
		if err != nil {
			return nil, err
		}
		if err := p.Migrate(ctx); err != nil {
			_ = p.Close()
			return nil, err
		}
		logger.Info("using postgres store")
		return p, nil
	}

	if path := config.SQLitePath(); path != "" {
		p, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite store", zap.String("path", path))
		return p, nil
	}

	logger.Warn("no DATABASE_URL or SQLITE_PATH set, using in-memory store; data will not survive restarts")
	return inmem.NewProvider(), nil
}
