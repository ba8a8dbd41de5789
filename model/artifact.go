package model

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tox-lab/domain"
	"tox-lab/vectorize"
)

// Artifact is one loaded model: the backend that scores, the vocabulary its
// variant vectorizes with, and the metadata operators see. Immutable after
// load; safe for concurrent use.
type Artifact struct {
	Info domain.ModelInfo

	backend Backend
	vocab   *vectorize.Vocabulary
}

// NewFallbackArtifact builds an in-memory fallback artifact outside the
// loader cache. Callers serve it when a configured path turns out to hold a
// corrupt artifact.
func NewFallbackArtifact(path string, seqLen int) *Artifact {
	return &Artifact{
		Info: domain.ModelInfo{
			Variant:        domain.VariantFallback,
			Path:           path,
			InstanceID:     uuid.New(),
			Categories:     domain.Categories(),
			SequenceLength: seqLen,
			LoadedAt:       time.Now().UTC(),
		},
		backend: NewFallbackBackend(),
	}
}

func (a *Artifact) Variant() domain.Variant { return a.Info.Variant }

// Vocabulary returns the word table for variants that vectorize outside the
// backend, nil for variants that tokenize internally or ignore input.
func (a *Artifact) Vocabulary() *vectorize.Vocabulary { return a.vocab }

// SequenceLength is the resolved token budget, already reconciled between
// artifact declaration and configuration fallback.
func (a *Artifact) SequenceLength() int { return a.Info.SequenceLength }

func (a *Artifact) Predict(ctx context.Context, batch []vectorize.Sequence) ([][]float64, error) {
	return a.backend.Predict(ctx, batch)
}

func (a *Artifact) Close() error { return a.backend.Close() }
