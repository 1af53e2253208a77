package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/emosense/internal/api"
	"github.com/timmy/emosense/internal/api/middleware"
	"github.com/timmy/emosense/internal/config"
	"github.com/timmy/emosense/internal/indexer"
	"github.com/timmy/emosense/internal/logger"
	"github.com/timmy/emosense/internal/repository"
	"github.com/timmy/emosense/internal/service"
	"github.com/timmy/emosense/internal/source/jsonl"
	"github.com/timmy/emosense/internal/storage"
	"github.com/timmy/emosense/internal/vector"
)

type sizedRetriever interface {
	service.Retriever
	Size() int
}

func main() {
	appLogger := logger.NewFromEnv(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid configuration")
	}

	ctx := context.Background()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	analysisRepo := repository.NewAnalysisRepository(db)

	embeddingService := service.EmbeddingFromConfig(&cfg.Embedding)

	idx, err := loadIndex(ctx, cfg, embeddingService, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load reference index")
	}
	appLogger.WithFields(logger.Fields{
		"examples":   idx.Size(),
		"dimensions": idx.Dimensions(),
	}).Info("Reference index loaded")
	if err := embeddingService.CheckDimensions(idx.Dimensions()); err != nil {
		appLogger.WithError(err).Fatal("Reference index does not match the embedding model")
	}

	var retriever sizedRetriever = service.NewLocalRetriever(idx, embeddingService)
	if cfg.Index.Backend == "qdrant" {
		qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
			Host:            cfg.Qdrant.Host,
			Port:            cfg.Qdrant.Port,
			Collection:      cfg.Qdrant.Collection,
			APIKey:          cfg.Qdrant.APIKey,
			UseTLS:          cfg.Qdrant.UseTLS,
			VectorDimension: idx.Dimensions(),
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize Qdrant repository")
		}
		defer qdrantRepo.Close()

		if err := qdrantRepo.EnsureCollection(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure Qdrant collection")
		}
		// Leftover points from an older, larger build would be served as neighbors.
		if err := indexer.VerifyMirror(ctx, qdrantRepo, idx.Size()); err != nil {
			appLogger.WithError(err).Fatal("Qdrant collection does not match the reference index; rerun buildindex -qdrant")
		}
		retriever = service.NewQdrantRetriever(qdrantRepo, embeddingService, idx.Dimensions(), idx.Size())
		appLogger.WithField("collection", cfg.Qdrant.Collection).Info("Using Qdrant retrieval backend")
	}

	insight, err := service.InsightFromConfig(&cfg.Insight)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize insight generator")
	}

	classifier := service.ClassifierFromConfig(&cfg.Classifier)
	fields := logger.Fields{
		"embedding_model":  embeddingService.GetModel(),
		"classifier_model": classifier.GetModel(),
	}
	if named, ok := insight.(interface{ GetModel() string }); ok {
		fields["insight_model"] = named.GetModel()
	}
	appLogger.WithFields(fields).Info("Model collaborators configured")

	pool := service.NewPool(cfg.Pipeline.Workers)
	analysisService := service.NewAnalysisService(service.AnalysisDeps{
		Classifier: classifier,
		Retriever:  retriever,
		Insight:    insight,
		Store:      analysisRepo,
		Pool:       pool,
	}, service.AnalysisConfigFrom(cfg), appLogger)
	summaryService := service.NewSummaryService(analysisRepo, pool, cfg.Pipeline.PersistTimeout)

	router := api.SetupRouter(api.RouterDeps{
		Analyzer:   analysisService,
		Summarizer: summaryService,
		Results:    analysisRepo,
		Index:      retriever,
		Logger:     appLogger,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	}, cfg.Server.Mode)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":    cfg.Server.Port,
			"mode":    cfg.Server.Mode,
			"workers": pool.Size(),
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}

// loadIndex loads the serving index, fetching it from object storage or
// building it from the configured corpus when the local artifact is missing.
func loadIndex(ctx context.Context, cfg *config.Config, embedder *service.EmbeddingService, log *logger.Logger) (*vector.Index, error) {
	opts := indexer.EnsureOptions{Path: cfg.Index.Path}

	if cfg.Index.RemoteKey != "" && cfg.Storage.Enabled() {
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		opts.RemoteKey = cfg.Index.RemoteKey
		opts.Fetch = func(ctx context.Context, key, localPath string) error {
			return storage.FetchIndex(ctx, store, key, localPath)
		}
	}

	if cfg.Index.Source != "" {
		opts.Source = jsonl.NewAdapter(cfg.Index.Source)
		opts.Builder = indexer.NewBuilder(embedder, log, &indexer.Config{
			BatchSize: cfg.Index.BatchSize,
			Workers:   cfg.Index.Workers,
		})
	}

	return indexer.EnsureIndex(ctx, opts)
}
