//go:generate go run go.uber.org/mock/mockgen -source=backend.go -destination=../mocks/mock_backend.go -package=mocks
package model

import (
	"context"

	"tox-lab/domain"
	"tox-lab/vectorize"
)

// Backend is the uniform prediction contract over all artifact variants.
// Predict returns one row per input sequence, each row exactly six
// probabilities in [0,1], in the fixed category declaration order. Rows are
// independent per-category probabilities, not a distribution. Implementations
// are immutable after construction and safe for concurrent callers.
type Backend interface {
	Variant() domain.Variant
	Predict(ctx context.Context, batch []vectorize.Sequence) ([][]float64, error)
	Close() error
}
