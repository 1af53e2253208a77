// Package indexer turns a labeled example source into a persisted vector index.
package indexer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/timmy/emosense/internal/logger"
	"github.com/timmy/emosense/internal/source"
	"github.com/timmy/emosense/internal/vector"
)

const (
	defaultBatchSize = 32
	defaultWorkers   = 4
)

// BatchEmbedder embeds many texts in one call, returning vectors in input order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds builder tuning.
type Config struct {
	BatchSize int // texts per embedding call
	Workers   int // concurrent embedding calls
}

// Builder reads a source, embeds every record and builds a vector.Index.
type Builder struct {
	embedder  BatchEmbedder
	logger    *logger.Logger
	batchSize int
	workers   int
}

// BuildStats describes one build run.
type BuildStats struct {
	Records    int
	Dimensions int
	StartTime  time.Time
	EndTime    time.Time
}

// NewBuilder creates a new index builder.
// Parameters:
//   - embedder: embedding collaborator used for every record.
//   - log: logger instance.
//   - cfg: batch and concurrency settings; nil uses defaults.
//
// Returns:
//   - *Builder: initialized builder.
func NewBuilder(embedder BatchEmbedder, log *logger.Logger, cfg *Config) *Builder {
	b := &Builder{
		embedder:  embedder,
		logger:    log,
		batchSize: defaultBatchSize,
		workers:   defaultWorkers,
	}
	if cfg != nil {
		if cfg.BatchSize > 0 {
			b.batchSize = cfg.BatchSize
		}
		if cfg.Workers > 0 {
			b.workers = cfg.Workers
		}
	}
	return b
}

// scope attaches the builder's logger and component fields to ctx.
func (b *Builder) scope(ctx context.Context, src source.Source) context.Context {
	if b.logger != nil {
		ctx = b.logger.WithContext(ctx)
	}
	return logger.SetSource(logger.SetComponent(ctx, "indexer"), src.GetSourceID())
}

// Collect reads every record from src in batches.
func (b *Builder) Collect(ctx context.Context, src source.Source) ([]vector.Example, error) {
	var examples []vector.Example
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records, next, err := src.FetchBatch(ctx, cursor, b.batchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch records: %w", err)
		}
		for _, r := range records {
			examples = append(examples, vector.Example{Text: r.Text, Label: r.Label})
		}

		if next == "" || len(records) == 0 {
			return examples, nil
		}
		cursor = next
	}
}

// Build collects src and embeds it into a new index. Nothing is written.
func (b *Builder) Build(ctx context.Context, src source.Source) (*vector.Index, *BuildStats, error) {
	ctx = b.scope(ctx, src)
	stats := &BuildStats{StartTime: time.Now()}

	examples, err := b.Collect(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	if len(examples) == 0 {
		return nil, nil, vector.ErrEmptyCorpus
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		"records":    len(examples),
		"batch_size": b.batchSize,
		"workers":    b.workers,
	}).Info("Embedding examples")

	vectors, err := b.embedAll(ctx, examples)
	if err != nil {
		return nil, nil, err
	}

	idx, err := vector.BuildFromVectors(examples, vectors)
	if err != nil {
		return nil, nil, err
	}

	stats.Records = idx.Size()
	stats.Dimensions = idx.Dimensions()
	stats.EndTime = time.Now()
	return idx, stats, nil
}

// BuildAndPersist builds the index and writes it to path (plus the .meta sidecar).
// On any build failure no artifact is written.
func (b *Builder) BuildAndPersist(ctx context.Context, src source.Source, path string) (*vector.Index, *BuildStats, error) {
	ctx = b.scope(ctx, src)
	idx, stats, err := b.Build(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	if err := idx.Persist(path); err != nil {
		return nil, nil, fmt.Errorf("failed to persist index: %w", err)
	}
	stats.EndTime = time.Now()

	logger.With(logger.Fields{
		logger.FieldCount:      stats.Records,
		logger.FieldDurationMs: stats.EndTime.Sub(stats.StartTime).Milliseconds(),
		"dimensions":           stats.Dimensions,
		"path":                 path,
	}).Info(ctx, "Index built")

	return idx, stats, nil
}

// embedAll embeds examples in batches with bounded concurrency, keeping input order.
func (b *Builder) embedAll(ctx context.Context, examples []vector.Example) ([][]float32, error) {
	vectors := make([][]float32, len(examples))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for start := 0; start < len(examples); start += b.batchSize {
		end := start + b.batchSize
		if end > len(examples) {
			end = len(examples)
		}
		start, end := start, end

		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, ex := range examples[start:end] {
				texts = append(texts, ex.Text)
			}

			batch, err := b.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed records %d-%d: %w", start, end-1, err)
			}
			if len(batch) != len(texts) {
				return fmt.Errorf("embed records %d-%d: got %d vectors for %d texts", start, end-1, len(batch), len(texts))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
