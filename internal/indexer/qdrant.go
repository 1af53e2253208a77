package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/emosense/internal/logger"
	"github.com/timmy/emosense/internal/repository"
	"github.com/timmy/emosense/internal/vector"
)

// ErrMirrorOutOfSync is returned when the Qdrant collection does not hold
// exactly the examples of the serving index.
var ErrMirrorOutOfSync = errors.New("qdrant collection out of sync with index")

// ExampleCounter reports how many examples a remote collection holds.
type ExampleCounter interface {
	Count(ctx context.Context) (uint64, error)
}

// ExampleSink receives a built index for remote serving.
type ExampleSink interface {
	ExampleCounter
	EnsureCollection(ctx context.Context) error
	UpsertExamples(ctx context.Context, examples []repository.ExamplePoint) error
	DeleteFromPosition(ctx context.Context, size int) error
}

// SyncToQdrant mirrors every example of idx into sink, keyed by position.
// Points left over from a larger previous build are deleted, and the final
// count must equal idx.Size().
func SyncToQdrant(ctx context.Context, idx *vector.Index, sink ExampleSink) error {
	if idx.Size() == 0 {
		return vector.ErrEmptyIndex
	}
	if err := sink.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}

	examples := idx.Examples()
	points := make([]repository.ExamplePoint, len(examples))
	for i, ex := range examples {
		points[i] = repository.ExamplePoint{
			Position: i,
			Text:     ex.Text,
			Label:    ex.Label,
			Vector:   idx.Vector(i),
		}
	}

	if err := sink.UpsertExamples(ctx, points); err != nil {
		return err
	}
	if err := sink.DeleteFromPosition(ctx, len(points)); err != nil {
		return err
	}
	if err := VerifyMirror(ctx, sink, len(points)); err != nil {
		return err
	}

	logger.With(logger.Fields{logger.FieldCount: len(points)}).Info(ctx, "Synced examples to Qdrant")
	return nil
}

// VerifyMirror fails with ErrMirrorOutOfSync unless counter holds exactly size examples.
func VerifyMirror(ctx context.Context, counter ExampleCounter, size int) error {
	n, err := counter.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count mirrored examples: %w", err)
	}
	if n != uint64(size) {
		return fmt.Errorf("%w: collection holds %d examples, index holds %d", ErrMirrorOutOfSync, n, size)
	}
	return nil
}
