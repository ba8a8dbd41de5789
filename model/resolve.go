// Package model loads toxicity artifacts and runs predictions over them.
// Four backend families exist; which one serves a directory is decided by
// the files present, never by configuration flags.
package model

import (
	"os"
	"path/filepath"

	"tox-lab/domain"
)

// Artifact file layout, by variant:
//
//	transformer: tokenizer.json + model.onnx   (+ config.json)
//	legacy:      model.json + weights.bin      (+ vocabulary.json)
//	graph:       graph/model.onnx              (+ graph/metadata.json, vocabulary.json)
//
// checksums.json, when present, pins BLAKE2b-256 digests for any of them.
const (
	TokenizerFile    = "tokenizer.json"
	OnnxModelFile    = "model.onnx"
	TransformerMeta  = "config.json"
	ArchitectureFile = "model.json"
	WeightsFile      = "weights.bin"
	VocabularyFile   = "vocabulary.json"
	GraphDir         = "graph"
	GraphMetaFile    = "metadata.json"
	ChecksumFile     = "checksums.json"
)

// Resolve picks the active variant from the files present under dir, in
// fixed precedence order: transformer, then legacy, then packaged graph.
// A missing or empty directory is not an error; it resolves to the fallback
// variant so the pipeline stays callable.
func Resolve(dir string) domain.Variant {
	if fileExists(filepath.Join(dir, TokenizerFile)) &&
		fileExists(filepath.Join(dir, OnnxModelFile)) {
		return domain.VariantTransformer
	}
	if fileExists(filepath.Join(dir, ArchitectureFile)) &&
		fileExists(filepath.Join(dir, WeightsFile)) {
		return domain.VariantLegacy
	}
	if fileExists(filepath.Join(dir, GraphDir, OnnxModelFile)) {
		return domain.VariantGraph
	}
	return domain.VariantFallback
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
