package vector

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCorpus is returned when an index is built from zero examples.
	ErrEmptyCorpus = errors.New("vector: empty corpus")

	// ErrEmptyIndex is returned when querying or loading an index with zero vectors.
	ErrEmptyIndex = errors.New("vector: index holds no vectors")

	// ErrCorruptIndex is returned when a persisted index fails validation on load.
	ErrCorruptIndex = errors.New("vector: corrupt index")

	// ErrDimensionMismatch is matched by every *DimensionMismatchError.
	ErrDimensionMismatch = errors.New("vector: dimension mismatch")

	// ErrInvalidVector is returned for vectors that cannot be L2-normalized.
	ErrInvalidVector = errors.New("vector: zero or non-finite norm")

	// ErrInvalidTopK is returned when top_k is not positive.
	ErrInvalidTopK = errors.New("vector: top_k must be positive")
)

// DimensionMismatchError reports a vector whose length differs from the index dimension.
// Position is the example position at build time, or -1 for a query vector.
type DimensionMismatchError struct {
	Position int
	Got      int
	Want     int
}

func (e *DimensionMismatchError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("vector: query dimension mismatch: got %d, want %d", e.Got, e.Want)
	}
	return fmt.Sprintf("vector: dimension mismatch at example %d: got %d, want %d", e.Position, e.Got, e.Want)
}

// Is makes errors.Is(err, ErrDimensionMismatch) hold.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}
