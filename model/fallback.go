package model

import (
	"context"

	"tox-lab/domain"
	"tox-lab/vectorize"
)

// fallbackScore mirrors the safe constant the original demo model returned.
const fallbackScore = 0.1

// FallbackBackend answers every category with a fixed low score. It stands in
// when a directory holds no recognizable model, or when a real backend failed
// to load and the pipeline degrades rather than stops.
type FallbackBackend struct{}

func NewFallbackBackend() *FallbackBackend { return &FallbackBackend{} }

func (f *FallbackBackend) Variant() domain.Variant { return domain.VariantFallback }

func (f *FallbackBackend) Close() error { return nil }

func (f *FallbackBackend) Predict(_ context.Context, batch []vectorize.Sequence) ([][]float64, error) {
	out := make([][]float64, len(batch))
	for i := range batch {
		row := make([]float64, domain.CategoryCount)
		for j := range row {
			row[j] = fallbackScore
		}
		out[i] = row
	}
	return out, nil
}
