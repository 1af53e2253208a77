package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/timmy/emosense/internal/domain"
	"github.com/timmy/emosense/internal/repository"
	"github.com/timmy/emosense/internal/vector"
)

// Retriever returns the k reference examples most similar to text.
type Retriever interface {
	Retrieve(ctx context.Context, text string, k int) ([]domain.RetrievedExample, error)
}

// LocalRetriever searches an in-process vector.Index.
type LocalRetriever struct {
	index    *vector.Index
	embedder vector.Embedder
}

// NewLocalRetriever creates a retriever over idx.
func NewLocalRetriever(idx *vector.Index, embedder vector.Embedder) *LocalRetriever {
	return &LocalRetriever{index: idx, embedder: embedder}
}

// Retrieve embeds text and searches the index exactly.
func (r *LocalRetriever) Retrieve(ctx context.Context, text string, k int) ([]domain.RetrievedExample, error) {
	return r.index.Query(ctx, text, r.embedder, k)
}

// Size returns the number of indexed examples.
func (r *LocalRetriever) Size() int {
	return r.index.Size()
}

// ExampleSearcher is the exact-search surface of the Qdrant example repository.
type ExampleSearcher interface {
	SearchExact(ctx context.Context, vector []float32, topK int) ([]repository.ExampleHit, error)
}

// QdrantRetriever searches examples mirrored into Qdrant with exact scoring.
type QdrantRetriever struct {
	searcher ExampleSearcher
	embedder vector.Embedder
	dim      int
	size     int
}

// NewQdrantRetriever creates a retriever backed by Qdrant. dim is the expected
// query dimension and size the number of mirrored examples (reported by health).
func NewQdrantRetriever(searcher ExampleSearcher, embedder vector.Embedder, dim, size int) *QdrantRetriever {
	return &QdrantRetriever{searcher: searcher, embedder: embedder, dim: dim, size: size}
}

// Retrieve embeds text, normalizes it and runs an exact remote search.
// Results are re-sorted so equal scores keep insertion order.
func (r *QdrantRetriever) Retrieve(ctx context.Context, text string, k int) ([]domain.RetrievedExample, error) {
	if k <= 0 {
		return nil, vector.ErrInvalidTopK
	}

	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if r.dim > 0 && len(vec) != r.dim {
		return nil, &vector.DimensionMismatchError{Position: -1, Got: len(vec), Want: r.dim}
	}
	unit, ok := vector.Normalize(vec)
	if !ok {
		unit = make([]float32, len(vec))
	}

	hits, err := r.searcher.SearchExact(ctx, unit, k)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(hits, func(a, b repository.ExampleHit) int {
		if a.Score != b.Score {
			return cmp.Compare(b.Score, a.Score)
		}
		return cmp.Compare(a.Position, b.Position)
	})

	out := make([]domain.RetrievedExample, len(hits))
	for i, h := range hits {
		out[i] = domain.RetrievedExample{Text: h.Text, Label: h.Label, Score: float64(h.Score)}
	}
	return out, nil
}

// Size returns the number of mirrored examples.
func (r *QdrantRetriever) Size() int {
	return r.size
}
