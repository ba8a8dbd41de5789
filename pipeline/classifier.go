// Package pipeline is the library façade: configuration, lazy artifact
// resolution, and the Classify/ClassifyBatch entry points gluing
// normalization, vectorization, prediction and post-processing together.
//
// Privacy contract: the façade never logs or persists request text. Lengths,
// languages, scores and durations only.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tox-lab/contract"
	"tox-lab/domain"
	"tox-lab/errors"
	"tox-lab/model"
	"tox-lab/normalize"
	"tox-lab/observability"
	"tox-lab/postprocess"
	"tox-lab/vectorize"
)

// Option customizes construction without widening the constructor.
type Option func(*Classifier)

// WithLoader shares an artifact loader between classifiers. The caller keeps
// ownership: Close will not touch an injected loader.
func WithLoader(loader *model.Loader) Option {
	return func(c *Classifier) {
		c.loader = loader
		c.ownLoader = false
	}
}

// WithRecorder wires a durable verdict recorder. Recording is best-effort:
// a failing recorder never fails a classification.
func WithRecorder(recorder contract.Recorder) Option {
	return func(c *Classifier) { c.recorder = recorder }
}

// WithMonitor wires the in-process telemetry counters.
func WithMonitor(monitor *observability.PipelineMonitor) Option {
	return func(c *Classifier) { c.monitor = monitor }
}

// Classifier runs the full inference pipeline behind two calls. Safe for
// concurrent use; the artifact is resolved once, on first use.
type Classifier struct {
	log      *slog.Logger
	recorder contract.Recorder
	monitor  *observability.PipelineMonitor

	mu        sync.RWMutex
	cfg       Config
	norm      normalize.Normalizer
	th        postprocess.Thresholds
	loader    *model.Loader
	ownLoader bool
	artifact  *model.Artifact
	vec       *vectorize.Vectorizer
}

func New(cfg Config, log *slog.Logger, opts ...Option) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Classifier{
		log:       log,
		cfg:       cfg,
		norm:      normalize.New(normalize.Options{ReplaceURLs: cfg.StripURLs, StripHTML: cfg.StripHTML}),
		th:        cfg.Thresholds(),
		ownLoader: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.loader == nil {
		c.loader = model.NewLoader()
	}
	return c, nil
}

// session is the immutable view one classification call works with, taken
// once so a concurrent UpdateConfig cannot tear a call in half.
type session struct {
	artifact *model.Artifact
	vec      *vectorize.Vectorizer
	norm     normalize.Normalizer
	th       postprocess.Thresholds
	maxLen   int
	degraded bool
	debug    bool
}

func (s session) sequence(canonical string) vectorize.Sequence {
	if s.vec == nil {
		return vectorize.Passthrough(canonical)
	}
	return s.vec.Vectorize(canonical)
}

// Classify scores a single text.
func (c *Classifier) Classify(ctx context.Context, text string) (domain.Result, error) {
	results, err := c.ClassifyBatch(ctx, []string{text})
	if err != nil {
		return domain.Result{}, err
	}
	return results[0], nil
}

// ClassifyBatch scores texts in one model invocation. N texts in, exactly N
// results out, in order; texts that normalize to nothing short-circuit to
// the all-clear result without touching the model. Any failure fails the
// whole call: no silent all-clear for text that was never scored.
func (c *Classifier) ClassifyBatch(ctx context.Context, texts []string) ([]domain.Result, error) {
	s, err := c.session(ctx)
	if err != nil {
		c.observeFailure(ctx)
		return nil, err
	}

	started := time.Now()
	results := make([]domain.Result, len(texts))

	var pending []vectorize.Sequence
	var slots []int
	for i, raw := range texts {
		canonical := s.norm.Normalize(normalize.Truncate(raw, s.maxLen))
		if canonical == "" {
			results[i] = domain.EmptyResult(s.th.Global)
			continue
		}
		pending = append(pending, s.sequence(canonical))
		slots = append(slots, i)
	}

	if len(pending) > 0 {
		rows, err := s.artifact.Predict(ctx, pending)
		if err != nil {
			c.observeFailure(ctx)
			return nil, err
		}
		if len(rows) != len(pending) {
			c.observeFailure(ctx)
			return nil, fmt.Errorf("backend returned %d rows for %d sequences", len(rows), len(pending))
		}

		share := time.Since(started) / time.Duration(len(pending))
		for j, row := range rows {
			res, err := postprocess.Process(row, s.th)
			if err != nil {
				c.observeFailure(ctx)
				return nil, err
			}
			res.Variant = s.artifact.Variant()
			res.Degraded = s.degraded
			res.Elapsed = share
			results[slots[j]] = res
		}
	}

	for _, res := range results {
		c.observe(ctx, res)
	}

	if s.debug {
		c.log.Debug("🔬 Batch classified",
			"texts", len(texts),
			"scored", len(pending),
			"elapsed", time.Since(started),
		)
	}
	return results, nil
}

// ModelInfo resolves the artifact if needed and returns its metadata.
func (c *Classifier) ModelInfo(ctx context.Context) (domain.ModelInfo, error) {
	s, err := c.session(ctx)
	if err != nil {
		return domain.ModelInfo{}, err
	}
	return s.artifact.Info, nil
}

// Config returns the active configuration.
func (c *Classifier) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// UpdateConfig swaps the configuration after re-validation. Changing the
// model path or the sequence geometry drops the cached artifact, so the next
// call resolves it fresh.
func (c *Classifier) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cfg.ModelPath != c.cfg.ModelPath || cfg.SequenceLength != c.cfg.SequenceLength {
		if err := c.loader.Invalidate(c.cfg.ModelPath); err != nil {
			c.log.Warn("Invalidating cached artifact failed", "path", c.cfg.ModelPath, "err", err)
		}
	}
	c.artifact = nil
	c.vec = nil
	c.cfg = cfg
	c.norm = normalize.New(normalize.Options{ReplaceURLs: cfg.StripURLs, StripHTML: cfg.StripHTML})
	c.th = cfg.Thresholds()
	return nil
}

// Close releases the artifact loader when the classifier owns it. Injected
// loaders stay with their owner.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.artifact = nil
	c.vec = nil
	if c.ownLoader {
		return c.loader.Close()
	}
	return nil
}

// session returns the current pipeline view, resolving the artifact on first
// use. A corrupt artifact degrades to fallback scores instead of failing:
// flagged on every result and logged once here.
func (c *Classifier) session(ctx context.Context) (session, error) {
	if err := ctx.Err(); err != nil {
		return session{}, err
	}

	c.mu.RLock()
	if c.artifact != nil {
		s := c.sessionLocked()
		c.mu.RUnlock()
		return s, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.artifact == nil {
		if err := c.resolveLocked(); err != nil {
			return session{}, err
		}
	}
	return c.sessionLocked(), nil
}

func (c *Classifier) sessionLocked() session {
	return session{
		artifact: c.artifact,
		vec:      c.vec,
		norm:     c.norm,
		th:       c.th,
		maxLen:   c.cfg.MaxTextLength,
		degraded: c.artifact.Variant() == domain.VariantFallback,
		debug:    c.cfg.Debug,
	}
}

func (c *Classifier) resolveLocked() error {
	artifact, err := c.loader.Load(c.cfg.ModelPath, model.LoadOptions{SequenceLength: c.cfg.SequenceLength})
	if err != nil {
		if !errors.IsModelLoadError(err) {
			return err
		}
		c.log.Warn("Artifact unusable, serving fallback scores",
			"path", c.cfg.ModelPath,
			"err", err,
		)
		artifact = model.NewFallbackArtifact(c.cfg.ModelPath, c.cfg.SequenceLength)
	}

	vec, err := c.buildVectorizer(artifact)
	if err != nil {
		return err
	}

	c.artifact = artifact
	c.vec = vec
	c.log.Info("Artifact resolved",
		"variant", artifact.Variant(),
		"path", artifact.Info.Path,
		"instance_id", artifact.Info.InstanceID,
		"sequence_length", artifact.SequenceLength(),
	)
	return nil
}

// buildVectorizer returns nil for variants that tokenize internally or
// ignore input; those take the passthrough path.
func (c *Classifier) buildVectorizer(artifact *model.Artifact) (*vectorize.Vectorizer, error) {
	vocab := artifact.Vocabulary()
	if vocab == nil {
		return nil, nil
	}
	return vectorize.New(vocab, vectorize.Options{
		SequenceLength: artifact.SequenceLength(),
		PadLeft:        c.cfg.PadLeft,
		TruncateLeft:   c.cfg.TruncateLeft,
	})
}

// observe and observeFailure run the bookkeeping off the request context:
// a cancelled call must still leave its mark in the ledger.
func (c *Classifier) observe(ctx context.Context, res domain.Result) {
	if c.monitor != nil {
		c.monitor.ObserveResult(res)
	}
	if c.recorder != nil {
		if err := c.recorder.Record(context.WithoutCancel(ctx), res); err != nil {
			c.log.Warn("Recording verdict failed", "err", err)
		}
	}
}

func (c *Classifier) observeFailure(ctx context.Context) {
	if c.monitor != nil {
		c.monitor.ObserveFailure()
	}
	if c.recorder != nil {
		if err := c.recorder.RecordFailure(context.WithoutCancel(ctx)); err != nil {
			c.log.Warn("Recording failure mark failed", "err", err)
		}
	}
}
