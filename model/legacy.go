package model

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"tox-lab/domain"
	"tox-lab/errors"
	"tox-lab/vectorize"
)

// legacyArchitecture is the only graph shape the legacy format describes: an
// embedding table mean-pooled over non-pad tokens, dense ReLU hidden layers,
// then a six-way sigmoid head.
const legacyArchitecture = "embedding_pool_mlp"

// LegacyConfig mirrors model.json, the architecture description shipped next
// to the binary weights.
type LegacyConfig struct {
	Architecture   string   `json:"architecture"`
	VocabSize      int      `json:"vocab_size"`
	EmbeddingDim   int      `json:"embedding_dim"`
	HiddenUnits    []int    `json:"hidden_units"`
	SequenceLength int      `json:"sequence_length"`
	PadID          int64    `json:"pad_id"`
	Categories     []string `json:"categories,omitempty"`
}

func (c LegacyConfig) validate() error {
	if c.Architecture != legacyArchitecture {
		return fmt.Errorf("unsupported architecture %q", c.Architecture)
	}
	if c.VocabSize <= 0 || c.EmbeddingDim <= 0 || c.SequenceLength <= 0 {
		return fmt.Errorf("architecture dimensions must be positive")
	}
	for i, width := range c.HiddenUnits {
		if width <= 0 {
			return fmt.Errorf("hidden layer %d width must be positive", i)
		}
	}
	return nil
}

type denseLayer struct {
	weights []float32 // row-major, in rows of out values
	bias    []float32
	in, out int
}

// LegacyBackend runs the architecture-JSON + binary-weights format in pure
// Go. Weights are immutable after load; Predict is safe for concurrent use.
type LegacyBackend struct {
	cfg       LegacyConfig
	embedding []float32 // vocab_size rows of embedding_dim values
	hidden    []denseLayer
	output    denseLayer
	orderIdx  []int
}

// LoadLegacyBackend reads model.json and weights.bin under dir. Every
// corruption mode surfaces as a ModelLoadError: malformed JSON, impossible
// dimensions, a weights file that sniffs as text, section size mismatches,
// short reads and trailing bytes.
func LoadLegacyBackend(dir string) (*LegacyBackend, error) {
	data, err := os.ReadFile(filepath.Join(dir, ArchitectureFile))
	if err != nil {
		return nil, errors.NewModelLoadError(dir, err)
	}

	var cfg LegacyConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewModelLoadError(dir, fmt.Errorf("architecture description malformed: %w", err))
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.NewModelLoadError(dir, err)
	}

	orderIdx, err := orderIndices(cfg.Categories)
	if err != nil {
		return nil, errors.NewModelLoadError(dir, err)
	}

	weightsPath := filepath.Join(dir, WeightsFile)
	if err := sniffBinary(weightsPath); err != nil {
		return nil, errors.NewModelLoadError(dir, err)
	}

	f, err := os.Open(weightsPath)
	if err != nil {
		return nil, errors.NewModelLoadError(dir, err)
	}
	defer f.Close()

	backend := &LegacyBackend{cfg: cfg, orderIdx: orderIdx}
	if err := backend.readWeights(bufio.NewReader(f)); err != nil {
		return nil, errors.NewModelLoadError(dir, err)
	}
	return backend, nil
}

// readWeights walks the declared shape through the section stream. Sections
// are length-prefixed (4-byte little-endian count, then count float32 LE):
// embedding table first, then weight matrix + bias per layer, output last.
func (b *LegacyBackend) readWeights(r io.Reader) error {
	embedding, err := readSection(r, b.cfg.VocabSize*b.cfg.EmbeddingDim)
	if err != nil {
		return fmt.Errorf("embedding table: %w", err)
	}
	b.embedding = embedding

	in := b.cfg.EmbeddingDim
	for i, width := range b.cfg.HiddenUnits {
		layer, err := readDense(r, in, width)
		if err != nil {
			return fmt.Errorf("hidden layer %d: %w", i, err)
		}
		b.hidden = append(b.hidden, layer)
		in = width
	}

	output, err := readDense(r, in, domain.CategoryCount)
	if err != nil {
		return fmt.Errorf("output layer: %w", err)
	}
	b.output = output

	var extra [1]byte
	if n, err := r.Read(extra[:]); n != 0 || err != io.EOF {
		return fmt.Errorf("weights file has trailing bytes")
	}
	return nil
}

func readSection(r io.Reader, want int) ([]float32, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("section header: %w", err)
	}
	if int(count) != want {
		return nil, fmt.Errorf("section holds %d values, want %d", count, want)
	}

	values := make([]float32, count)
	if err := binary.Read(r, binary.LittleEndian, values); err != nil {
		return nil, fmt.Errorf("section payload: %w", err)
	}
	return values, nil
}

func readDense(r io.Reader, in, out int) (denseLayer, error) {
	weights, err := readSection(r, in*out)
	if err != nil {
		return denseLayer{}, err
	}
	bias, err := readSection(r, out)
	if err != nil {
		return denseLayer{}, err
	}
	return denseLayer{weights: weights, bias: bias, in: in, out: out}, nil
}

func (b *LegacyBackend) Variant() domain.Variant { return domain.VariantLegacy }

func (b *LegacyBackend) Close() error { return nil }

// Config exposes the declared geometry for artifact metadata.
func (b *LegacyBackend) Config() LegacyConfig { return b.cfg }

func (b *LegacyBackend) Predict(_ context.Context, batch []vectorize.Sequence) ([][]float64, error) {
	out := make([][]float64, len(batch))
	for i, seq := range batch {
		row, err := b.forward(seq.IDs)
		if err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
}

func (b *LegacyBackend) forward(ids []int64) ([]float64, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("legacy backend received an empty id sequence")
	}

	x := b.pool(ids)
	for _, layer := range b.hidden {
		x = layer.apply(x, relu)
	}
	logits := b.output.apply(x, nil)

	row := make([]float64, len(logits))
	for j, v := range logits {
		row[j] = clamp01(sigmoid(float64(v)))
	}
	return reorder(row, b.orderIdx), nil
}

// pool mean-pools embedding rows over non-pad tokens. All-pad input yields
// the zero vector; ids outside the embedding table contribute nothing.
func (b *LegacyBackend) pool(ids []int64) []float32 {
	dim := b.cfg.EmbeddingDim
	pooled := make([]float32, dim)

	var seen int
	for _, id := range ids {
		if id == b.cfg.PadID || id < 0 || int(id) >= b.cfg.VocabSize {
			continue
		}
		row := b.embedding[int(id)*dim : (int(id)+1)*dim]
		for j, v := range row {
			pooled[j] += v
		}
		seen++
	}
	if seen > 0 {
		inv := 1 / float32(seen)
		for j := range pooled {
			pooled[j] *= inv
		}
	}
	return pooled
}

func (l denseLayer) apply(x []float32, activation func(float32) float32) []float32 {
	y := make([]float32, l.out)
	copy(y, l.bias)
	for i := 0; i < l.in; i++ {
		xi := x[i]
		if xi == 0 {
			continue
		}
		row := l.weights[i*l.out : (i+1)*l.out]
		for j, w := range row {
			y[j] += xi * w
		}
	}
	if activation != nil {
		for j := range y {
			y[j] = activation(y[j])
		}
	}
	return y
}
