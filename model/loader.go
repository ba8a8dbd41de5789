package model

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"tox-lab/domain"
	"tox-lab/errors"
	"tox-lab/vectorize"
)

// LoadOptions tune how a directory is opened. SequenceLength is only a
// fallback: geometry the artifact declares itself always wins.
type LoadOptions struct {
	SequenceLength int
}

// Loader caches one Artifact per resolved directory and collapses concurrent
// loads of the same directory into a single open.
type Loader struct {
	mu    sync.RWMutex
	cache map[string]*Artifact
	group singleflight.Group
	loads atomic.Int64
}

func NewLoader() *Loader {
	return &Loader{cache: make(map[string]*Artifact)}
}

// Loads counts real opens, excluding cache hits.
func (l *Loader) Loads() int64 { return l.loads.Load() }

// Load returns the artifact for dir, opening it on first use. The cache key
// is the resolved absolute path, so relative spellings of one directory
// share an instance.
func (l *Loader) Load(dir string, opts LoadOptions) (*Artifact, error) {
	key, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.NewModelLoadError(dir, err)
	}

	if artifact := l.cached(key); artifact != nil {
		return artifact, nil
	}

	v, err, _ := l.group.Do(key, func() (interface{}, error) {
		if artifact := l.cached(key); artifact != nil {
			return artifact, nil
		}

		artifact, err := l.open(key, opts)
		if err != nil {
			return nil, err
		}
		l.loads.Add(1)

		l.mu.Lock()
		l.cache[key] = artifact
		l.mu.Unlock()
		return artifact, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifact), nil
}

func (l *Loader) cached(key string) *Artifact {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cache[key]
}

// Invalidate drops the cached artifact for dir and closes its backend. The
// next Load reopens the directory from disk.
func (l *Loader) Invalidate(dir string) error {
	key, err := filepath.Abs(dir)
	if err != nil {
		return errors.NewModelLoadError(dir, err)
	}

	l.mu.Lock()
	artifact := l.cache[key]
	delete(l.cache, key)
	l.mu.Unlock()

	if artifact != nil {
		return artifact.Close()
	}
	return nil
}

// Close drops and closes every cached artifact.
func (l *Loader) Close() error {
	l.mu.Lock()
	artifacts := make([]*Artifact, 0, len(l.cache))
	for _, artifact := range l.cache {
		artifacts = append(artifacts, artifact)
	}
	l.cache = make(map[string]*Artifact)
	l.mu.Unlock()

	var firstErr error
	for _, artifact := range artifacts {
		if err := artifact.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (l *Loader) open(dir string, opts LoadOptions) (*Artifact, error) {
	checksummed, err := verifyChecksums(dir)
	if err != nil {
		return nil, err
	}

	variant := Resolve(dir)

	var (
		backend   Backend
		vocab     *vectorize.Vocabulary
		seqLen    int
		vocabSize int
	)

	switch variant {
	case domain.VariantTransformer:
		b, err := LoadTransformerBackend(dir, opts.SequenceLength)
		if err != nil {
			return nil, err
		}
		backend, seqLen = b, b.SequenceLength()

	case domain.VariantLegacy:
		b, err := LoadLegacyBackend(dir)
		if err != nil {
			return nil, err
		}
		cfg := b.Config()
		vocab, err = vectorize.LoadVocabulary(filepath.Join(dir, VocabularyFile))
		if err != nil {
			b.Close()
			return nil, errors.NewModelLoadError(dir, err)
		}
		if vocab.Size() > cfg.VocabSize {
			b.Close()
			return nil, errors.NewModelLoadError(dir, fmt.Errorf("vocabulary declares %d ids, embedding table holds %d", vocab.Size(), cfg.VocabSize))
		}
		backend, seqLen, vocabSize = b, cfg.SequenceLength, vocab.Size()

	case domain.VariantGraph:
		b, err := LoadGraphBackend(dir, opts.SequenceLength)
		if err != nil {
			return nil, err
		}
		vocab, err = vectorize.LoadVocabulary(filepath.Join(dir, VocabularyFile))
		if err != nil {
			b.Close()
			return nil, errors.NewModelLoadError(dir, err)
		}
		backend, seqLen, vocabSize = b, b.SequenceLength(), vocab.Size()

	default:
		backend = NewFallbackBackend()
		seqLen = opts.SequenceLength
	}

	return &Artifact{
		Info: domain.ModelInfo{
			Variant:        variant,
			Path:           dir,
			InstanceID:     uuid.New(),
			Categories:     domain.Categories(),
			SequenceLength: seqLen,
			VocabularySize: vocabSize,
			Checksummed:    checksummed,
			LoadedAt:       time.Now().UTC(),
		},
		backend: backend,
		vocab:   vocab,
	}, nil
}
