package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/emosense/internal/config"
	"github.com/timmy/emosense/internal/indexer"
	"github.com/timmy/emosense/internal/logger"
	"github.com/timmy/emosense/internal/repository"
	"github.com/timmy/emosense/internal/service"
	"github.com/timmy/emosense/internal/source/jsonl"
	"github.com/timmy/emosense/internal/storage"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "emosense-buildindex",
	})
	logger.SetDefaultLogger(appLogger)

	configPath := flag.String("config", "", "Path to config file")
	input := flag.String("input", "", "Labeled examples (.jsonl); defaults to index.source")
	output := flag.String("output", "", "Index payload path; defaults to index.path")
	publishKey := flag.String("publish", "", "Object key to publish the built index under")
	syncQdrant := flag.Bool("qdrant", false, "Mirror the built index into the Qdrant collection")
	batchSize := flag.Int("batch", 0, "Texts per embedding call (0 uses index.batch_size)")
	workers := flag.Int("workers", 0, "Concurrent embedding calls (0 uses index.workers)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	if *input == "" {
		*input = cfg.Index.Source
	}
	if *output == "" {
		*output = cfg.Index.Path
	}
	if *batchSize <= 0 {
		*batchSize = cfg.Index.BatchSize
	}
	if *workers <= 0 {
		*workers = cfg.Index.Workers
	}
	if *input == "" || *output == "" {
		appLogger.Fatal("Both -input and -output (or index.source and index.path) are required")
	}
	if err := cfg.ValidateEmbedding(); err != nil {
		appLogger.WithError(err).Fatal("Invalid embedding configuration")
	}

	appLogger.WithFields(logger.Fields{
		"input":   *input,
		"output":  *output,
		"batch":   *batchSize,
		"workers": *workers,
		"publish": *publishKey,
		"qdrant":  *syncQdrant,
	}).Info("Starting index build")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	builder := indexer.NewBuilder(service.EmbeddingFromConfig(&cfg.Embedding), appLogger, &indexer.Config{
		BatchSize: *batchSize,
		Workers:   *workers,
	})

	idx, stats, err := builder.BuildAndPersist(ctx, jsonl.NewAdapter(*input), *output)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to build index")
	}

	if *publishKey != "" {
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}
		if err := store.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
		if err := storage.PublishIndex(ctx, store, *output, *publishKey); err != nil {
			appLogger.WithError(err).Fatal("Failed to publish index")
		}
		appLogger.WithFields(logger.Fields{
			"key": *publishKey,
			"url": store.GetURL(*publishKey),
		}).Info("Index published")
	}

	if *syncQdrant {
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

		if err := indexer.SyncToQdrant(ctx, idx, qdrantRepo); err != nil {
			appLogger.WithError(err).Fatal("Failed to sync index to Qdrant")
		}
		appLogger.WithField("points", idx.Size()).Info("Qdrant collection synced")
	}

	appLogger.WithFields(logger.Fields{
		"records":     stats.Records,
		"dimensions":  stats.Dimensions,
		"duration_ms": stats.EndTime.Sub(stats.StartTime).Milliseconds(),
	}).Info("Index build completed")
}
