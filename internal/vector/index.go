// Package vector provides exact nearest-neighbor search over unit-normalized
// embeddings using inner-product similarity.
package vector

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/timmy/emosense/internal/domain"
)

// Example is a labeled reference text stored in the index.
type Example struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedFunc adapts a plain function to Embedder.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Embed calls f.
func (f EmbedFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// Hit is a single search result. Position is the example's insertion index.
type Hit struct {
	Position int
	Example  Example
	Score    float64
}

// Index holds unit-normalized vectors stored contiguously, with examples[i]
// describing data[i*dim:(i+1)*dim]. An Index is immutable after construction
// and safe for concurrent use.
type Index struct {
	dim      int
	data     []float32
	examples []Example
}

// Build embeds every example, normalizes the vectors and returns the index.
func Build(ctx context.Context, examples []Example, embed Embedder) (*Index, error) {
	if len(examples) == 0 {
		return nil, ErrEmptyCorpus
	}

	vectors := make([][]float32, len(examples))
	for i, ex := range examples {
		vec, err := embed.Embed(ctx, ex.Text)
		if err != nil {
			return nil, fmt.Errorf("embed example %d: %w", i, err)
		}
		vectors[i] = vec
	}

	return BuildFromVectors(examples, vectors)
}

// BuildFromVectors builds an index from pre-computed embeddings.
// vectors[i] must be the embedding of examples[i]; inputs are copied.
func BuildFromVectors(examples []Example, vectors [][]float32) (*Index, error) {
	if len(examples) == 0 {
		return nil, ErrEmptyCorpus
	}
	if len(vectors) != len(examples) {
		return nil, fmt.Errorf("vector: %d examples but %d embeddings", len(examples), len(vectors))
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("example 0: %w", ErrInvalidVector)
	}

	data := make([]float32, 0, len(vectors)*dim)
	for i, vec := range vectors {
		if len(vec) != dim {
			return nil, &DimensionMismatchError{Position: i, Got: len(vec), Want: dim}
		}
		unit, ok := normalize(vec)
		if !ok {
			return nil, fmt.Errorf("example %d: %w", i, ErrInvalidVector)
		}
		data = append(data, unit...)
	}

	stored := make([]Example, len(examples))
	copy(stored, examples)

	return &Index{dim: dim, data: data, examples: stored}, nil
}

// Size returns the number of stored vectors.
func (x *Index) Size() int {
	if x == nil {
		return 0
	}
	return len(x.examples)
}

// Dimensions returns the vector length.
func (x *Index) Dimensions() int {
	return x.dim
}

// Examples returns a copy of the stored examples in insertion order.
func (x *Index) Examples() []Example {
	out := make([]Example, len(x.examples))
	copy(out, x.examples)
	return out
}

// Vector returns a copy of the normalized vector at position i.
func (x *Index) Vector(i int) []float32 {
	out := make([]float32, x.dim)
	copy(out, x.data[i*x.dim:(i+1)*x.dim])
	return out
}

// Query embeds text and returns the topK most similar examples.
func (x *Index) Query(ctx context.Context, text string, embed Embedder, topK int) ([]domain.RetrievedExample, error) {
	if x.Size() == 0 {
		return nil, ErrEmptyIndex
	}
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}

	vec, err := embed.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := x.Search(vec, topK)
	if err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedExample, len(hits))
	for i, h := range hits {
		out[i] = domain.RetrievedExample{
			Text:  h.Example.Text,
			Label: h.Example.Label,
			Score: h.Score,
		}
	}
	return out, nil
}

// Search compares query against every stored vector and returns
// min(topK, Size()) hits ordered by descending score; equal scores keep
// insertion order.
func (x *Index) Search(query []float32, topK int) ([]Hit, error) {
	if x.Size() == 0 {
		return nil, ErrEmptyIndex
	}
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}
	if len(query) != x.dim {
		return nil, &DimensionMismatchError{Position: -1, Got: len(query), Want: x.dim}
	}

	// A zero query scores 0 against everything rather than failing.
	q, ok := normalize(query)
	if !ok {
		q = make([]float32, x.dim)
	}

	hits := make([]Hit, len(x.examples))
	for i := range x.examples {
		hits[i] = Hit{
			Position: i,
			Example:  x.examples[i],
			Score:    dot(q, x.data[i*x.dim:(i+1)*x.dim]),
		}
	}

	slices.SortFunc(hits, func(a, b Hit) int {
		if a.Score != b.Score {
			return cmp.Compare(b.Score, a.Score)
		}
		return cmp.Compare(a.Position, b.Position)
	})

	if topK > len(hits) {
		topK = len(hits)
	}
	return hits[:topK], nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// normalize returns a unit-length copy of v; ok is false for zero or non-finite norms.
func normalize(v []float32) ([]float32, bool) {
	n := norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, false
	}
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / n)
	}
	return out, true
}

// Normalize returns a unit-length copy of v, or ok=false when v has zero or
// non-finite norm.
func Normalize(v []float32) (unit []float32, ok bool) {
	return normalize(v)
}
