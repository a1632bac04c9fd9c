package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/doxa-ai/doxa/internal/api/handlers"
	mw "github.com/doxa-ai/doxa/internal/api/middleware"
	"github.com/doxa-ai/doxa/internal/buildconfig"
	"github.com/doxa-ai/doxa/internal/categorize"
	"github.com/doxa-ai/doxa/internal/config"
	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/embedding"
	"github.com/doxa-ai/doxa/internal/extract"
	"github.com/doxa-ai/doxa/internal/search"
	"github.com/doxa-ai/doxa/internal/service"
	"github.com/doxa-ai/doxa/internal/store/inmem"
	"github.com/doxa-ai/doxa/internal/store/postgres"
	"github.com/doxa-ai/doxa/internal/store/sqlite"
)

// Deps are the externally-constructed pieces the app is wired from. Clock
// and IDs default to the production implementations when nil.
type Deps struct {
	Provider    domain.StoreProvider
	Embedder    domain.EmbeddingProvider
	Extractor   domain.BeliefExtractionProvider
	Categorizer service.Categorizer
	Clock       domain.Clock
	IDs         domain.IDGenerator
	Logger      *zap.Logger
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router      *chi.Mux
	Maintenance *service.MaintenanceService

	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(ctx context.Context, deps Deps) (*App, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	ids := deps.IDs
	if ids == nil {
		ids = domain.UUIDGenerator{}
	}
	categorizer := deps.Categorizer
	if categorizer == nil {
		categorizer = categorize.New(logger)
	}

	embedder := deps.Embedder
	if embedder != nil {
		if rps := config.EmbeddingRPS(); rps > 0 {
			embedder = embedding.NewRateLimited(embedder, rps, config.EmbeddingBurst())
		}
	}

	// Similarity strategy, probed against whatever backend the provider wraps.
	strategy, err := search.NewSelector(ctx, deps.Provider.Stores().Memories, deps.Provider, config.MemoryStrategy(), logger)
	if err != nil {
		return nil, err
	}

	// Services
	memorySvc := service.NewMemoryService(deps.Provider, embedder, strategy, clock, ids, service.MemoryConfig{
		BatchSize:            config.MemoryBatchSize(),
		MaxSimilarityResults: config.MemoryMaxSimilarityResults(),
		SimilarityThreshold:  config.MemorySimilarityThreshold(),
		EmbeddingDimension:   config.EmbeddingDimension(),
	}, logger)
	graphSvc := service.NewGraphService(deps.Provider, clock, ids, logger)
	analyzerSvc := service.NewBeliefAnalyzer(deps.Provider, deps.Extractor, graphSvc, clock, ids, service.AnalyzerConfig{
		MinCandidateConfidence: config.BeliefMinCandidateConfidence(),
		ReinforceThreshold:     config.BeliefReinforceThreshold(),
		RelatedThreshold:       config.BeliefRelatedThreshold(),
		ResolutionByCategory:   resolutionStrategies(logger),
	}, logger)
	ingestSvc := service.NewIngestionService(memorySvc, analyzerSvc, categorizer, clock, service.IngestConfig{
		MaxContentLength: config.IngestMaxContentLength(),
		DisableAnalysis:  !config.BeliefAnalysisEnabled(),
	}, logger)
	maintenanceSvc := service.NewMaintenanceService(deps.Provider, analyzerSvc, clock,
		config.MaintenanceInterval(), config.RelationshipRetention(), logger)

	// Handlers
	ingestHandler := handlers.NewIngestHandler(ingestSvc)
	memoryHandler := handlers.NewMemoryHandler(memorySvc)
	beliefHandler := handlers.NewBeliefHandler(analyzerSvc)
	graphHandler := handlers.NewGraphHandler(graphSvc)
	systemHandler := handlers.NewSystemHandler(memorySvc)

	r := chi.NewRouter()

	app := &App{
		Router:      r,
		Maintenance: maintenanceSvc,
		startTime:   time.Now(),
	}

	// Metrics collector for middleware
	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", healthHandler(deps.Provider))
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", systemHandler.Stats)

		r.Route("/ingest", func(r chi.Router) {
			r.Post("/", ingestHandler.Ingest)
			r.Post("/dry-run", ingestHandler.DryRun)
			r.Post("/batch", ingestHandler.Batch)
		})

		r.Route("/memories", func(r chi.Router) {
			r.Get("/search", memoryHandler.Search)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", memoryHandler.GetByID)
				r.Put("/", memoryHandler.Update)
				r.Delete("/", memoryHandler.Delete)
			})
		})

		r.Route("/beliefs/{id}", func(r chi.Router) {
			r.Get("/", beliefHandler.GetByID)
			r.Post("/deactivate", beliefHandler.Deactivate)
			r.Post("/reactivate", beliefHandler.Reactivate)
			r.Get("/relationships", graphHandler.BeliefRelationships)
			r.Get("/related", graphHandler.Related)
			r.Get("/deprecation-chain", graphHandler.DeprecationChain)
		})

		r.Post("/conflicts/{id}/resolve", beliefHandler.ResolveConflict)

		r.Route("/relationships", func(r chi.Router) {
			r.Post("/", graphHandler.CreateEdge)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", graphHandler.GetEdge)
				r.Patch("/", graphHandler.UpdateEdge)
				r.Delete("/", graphHandler.DeleteEdge)
				r.Post("/deactivate", graphHandler.DeactivateEdge)
				r.Post("/reactivate", graphHandler.ReactivateEdge)
			})
		})

		r.Route("/agents/{agentID}", func(r chi.Router) {
			r.Get("/memories", memoryHandler.ForAgent)
			r.Get("/memories/older-than", memoryHandler.OlderThan)
			r.Get("/beliefs", beliefHandler.ForAgent)
			r.Get("/conflicts", beliefHandler.Conflicts)

			r.Route("/graph", func(r chi.Router) {
				r.Get("/snapshot", graphHandler.Snapshot)
				r.Get("/export", graphHandler.Export)
				r.Post("/import", graphHandler.Import)
				r.Get("/validate", graphHandler.Validate)
				r.Get("/clusters", graphHandler.Clusters)
			})
		})

		r.Get("/graph/path", graphHandler.Path)
	})

	return app, nil
}

// resolutionStrategies converts the configured category=strategy pairs,
// dropping unknown strategy names with a warning.
func resolutionStrategies(logger *zap.Logger) map[string]domain.ResolutionStrategy {
	pairs := config.BeliefResolutionStrategies()
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]domain.ResolutionStrategy, len(pairs))
	for category, strategy := range pairs {
		if !domain.ValidResolutionStrategy(strategy) {
			logger.Warn("ignoring unknown resolution strategy",
				zap.String("category", category),
				zap.String("strategy", strategy))
			continue
		}
		out[category] = domain.ResolutionStrategy(strategy)
	}
	return out
}

func healthHandler(provider domain.StoreProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := provider.Capabilities(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"build":      buildconfig.VersionInfo(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure backends and providers satisfy their interfaces at compile time.
var (
	_ domain.StoreProvider            = (*postgres.Provider)(nil)
	_ domain.StoreProvider            = (*sqlite.Provider)(nil)
	_ domain.StoreProvider            = (*inmem.Provider)(nil)
	_ domain.EmbeddingProvider        = (*embedding.MockProvider)(nil)
	_ domain.EmbeddingProvider        = (*embedding.NoneProvider)(nil)
	_ domain.EmbeddingProvider        = (*embedding.RateLimited)(nil)
	_ domain.BeliefExtractionProvider = (*extract.HeuristicProvider)(nil)
	_ domain.BeliefExtractionProvider = (*extract.MockProvider)(nil)
	_ service.Categorizer             = (*categorize.Categorizer)(nil)
	_ search.Strategy                 = (*search.Selector)(nil)
)
