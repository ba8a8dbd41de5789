package domain

import (
	"time"

	"github.com/google/uuid"
)

// Variant identifies which backend family produced a score row.
type Variant string

const (
	// VariantTransformer serves a HuggingFace-style tokenizer + ONNX graph.
	VariantTransformer Variant = "transformer"
	// VariantLegacy serves the architecture-JSON + binary-weights format.
	VariantLegacy Variant = "legacy"
	// VariantGraph serves a packaged-graph directory.
	VariantGraph Variant = "graph"
	// VariantFallback is the deterministic non-production stub.
	VariantFallback Variant = "fallback"
	// VariantNone marks results produced without consulting any model,
	// e.g. the empty-input short circuit.
	VariantNone Variant = "none"
)

// ModelInfo describes a loaded artifact. InstanceID changes on every real
// load, so operators can tell a cache hit from a reload.
type ModelInfo struct {
	Variant        Variant    `json:"variant"`
	Path           string     `json:"path"`
	InstanceID     uuid.UUID  `json:"instance_id"`
	Categories     []Category `json:"categories"`
	SequenceLength int        `json:"sequence_length,omitempty"`
	VocabularySize int        `json:"vocabulary_size,omitempty"`
	Checksummed    bool       `json:"checksummed"`
	LoadedAt       time.Time  `json:"loaded_at"`
}
