package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"tox-lab/domain"
	"tox-lab/errors"
	"tox-lab/vectorize"
)

// sharedLibraryEnv points the process at a libonnxruntime build when the
// platform loader would not find one on its own.
const sharedLibraryEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

const (
	intraOpThreads = 1
	interOpThreads = 1
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// ensureRuntime initializes the onnxruntime environment once per process.
func ensureRuntime() error {
	ortInitOnce.Do(func() {
		if path := os.Getenv(sharedLibraryEnv); path != "" {
			ort.SetSharedLibraryPath(path)
		}
		if !ort.IsInitialized() {
			ortInitErr = ort.InitializeEnvironment()
		}
	})
	return ortInitErr
}

const (
	outputsProbabilities = "probabilities"
	outputsLogits        = "logits"
)

// graphMetadata mirrors graph/metadata.json. Everything is optional: outputs
// defaults to probabilities, sequence length falls back to the graph's input
// declaration, categories to positional order.
type graphMetadata struct {
	Outputs        string   `json:"outputs"`
	SequenceLength int      `json:"sequence_length,omitempty"`
	Categories     []string `json:"categories,omitempty"`
}

// GraphBackend drives a plain ONNX graph with a single token-id input.
// Sessions bind fixed (1, seqLen) tensors, so one session serves one
// sequence at a time; a channel hands sessions to callers and Close drains
// it, which also waits out in-flight work.
type GraphBackend struct {
	seqLen       int
	applySigmoid bool
	orderIdx     []int
	sessions     chan *graphSession
	poolSize     int
}

type graphSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[int64]
	output  *ort.Tensor[float32]
}

// LoadGraphBackend opens graph/model.onnx under dir. seqLen is the caller's
// fallback; the artifact wins when metadata or the graph input declares a
// static length.
func LoadGraphBackend(dir string, seqLen int) (*GraphBackend, error) {
	if err := ensureRuntime(); err != nil {
		return nil, errors.NewModelLoadError(dir, fmt.Errorf("initialize onnxruntime: %w", err))
	}

	meta, err := loadGraphMetadata(dir)
	if err != nil {
		return nil, errors.NewModelLoadError(dir, err)
	}
	orderIdx, err := orderIndices(meta.Categories)
	if err != nil {
		return nil, errors.NewModelLoadError(dir, err)
	}

	modelPath := filepath.Join(dir, GraphDir, OnnxModelFile)
	input, output, err := graphIOInfo(modelPath, meta.Outputs)
	if err != nil {
		return nil, errors.NewModelLoadError(dir, err)
	}

	switch {
	case meta.SequenceLength > 0:
		seqLen = meta.SequenceLength
	case len(input.Dimensions) == 2 && input.Dimensions[1] > 0:
		seqLen = int(input.Dimensions[1])
	}
	if seqLen <= 0 {
		return nil, errors.NewModelLoadError(dir, fmt.Errorf("graph input length is dynamic and no sequence length is configured"))
	}

	backend := &GraphBackend{
		seqLen:       seqLen,
		applySigmoid: meta.Outputs == outputsLogits,
		orderIdx:     orderIdx,
		poolSize:     1,
	}
	backend.sessions = make(chan *graphSession, backend.poolSize)
	for i := 0; i < backend.poolSize; i++ {
		ss, err := newGraphSession(modelPath, input.Name, output.Name, seqLen)
		if err != nil {
			backend.poolSize = i
			backend.Close()
			return nil, errors.NewModelLoadError(dir, err)
		}
		backend.sessions <- ss
	}
	return backend, nil
}

func loadGraphMetadata(dir string) (graphMetadata, error) {
	meta := graphMetadata{Outputs: outputsProbabilities}

	data, err := os.ReadFile(filepath.Join(dir, GraphDir, GraphMetaFile))
	if os.IsNotExist(err) {
		return meta, nil
	}
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("graph metadata malformed: %w", err)
	}

	switch meta.Outputs {
	case "":
		meta.Outputs = outputsProbabilities
	case outputsProbabilities, outputsLogits:
	default:
		return meta, fmt.Errorf("graph metadata declares unknown output kind %q", meta.Outputs)
	}
	return meta, nil
}

// graphIOInfo checks the graph exposes exactly one token-id input and picks
// the output to bind: a lone output wins, otherwise the one named like the
// declared output kind.
func graphIOInfo(modelPath, outputs string) (ort.InputOutputInfo, ort.InputOutputInfo, error) {
	var none ort.InputOutputInfo

	inputs, outs, err := ort.GetInputOutputInfoWithOptions(modelPath, nil)
	if err != nil {
		return none, none, fmt.Errorf("inspect onnx graph: %w", err)
	}
	if len(inputs) != 1 {
		return none, none, fmt.Errorf("graph declares %d inputs, want a single token-id tensor", len(inputs))
	}
	if len(outs) == 0 {
		return none, none, fmt.Errorf("graph declares no outputs")
	}
	if len(outs) == 1 {
		return inputs[0], outs[0], nil
	}
	for _, out := range outs {
		if out.Name == outputs {
			return inputs[0], out, nil
		}
	}
	names := make([]string, 0, len(outs))
	for _, out := range outs {
		names = append(names, out.Name)
	}
	return none, none, fmt.Errorf("graph declares several outputs %v and none is named %q", names, outputs)
}

func newGraphSession(modelPath, inputName, outputName string, seqLen int) (*graphSession, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("set graph optimization: %w", err)
	}
	if err := opts.SetIntraOpNumThreads(intraOpThreads); err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("set intra threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(interOpThreads); err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("set inter threads: %w", err)
	}

	input, err := ort.NewEmptyTensor[int64](ort.NewShape(1, int64(seqLen)))
	if err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(domain.CategoryCount)))
	if err != nil {
		input.Destroy()
		opts.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.Value{input},
		[]ort.Value{output},
		opts,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		opts.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	opts.Destroy()

	return &graphSession{session: session, input: input, output: output}, nil
}

func (g *GraphBackend) Variant() domain.Variant { return domain.VariantGraph }

// SequenceLength reports the length the bound tensors expect.
func (g *GraphBackend) SequenceLength() int { return g.seqLen }

func (g *GraphBackend) Predict(ctx context.Context, batch []vectorize.Sequence) ([][]float64, error) {
	ss := <-g.sessions
	defer func() { g.sessions <- ss }()

	out := make([][]float64, len(batch))
	for i, seq := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(seq.IDs) != g.seqLen {
			return nil, fmt.Errorf("sequence %d holds %d ids, session binds %d", i, len(seq.IDs), g.seqLen)
		}
		copy(ss.input.GetData(), seq.IDs)
		if err := ss.session.Run(); err != nil {
			return nil, fmt.Errorf("onnx run: %w", err)
		}
		out[i] = g.row(ss.output.GetData())
	}
	return out, nil
}

func (g *GraphBackend) row(raw []float32) []float64 {
	row := make([]float64, domain.CategoryCount)
	for j := 0; j < domain.CategoryCount && j < len(raw); j++ {
		v := float64(raw[j])
		if g.applySigmoid {
			v = sigmoid(v)
		}
		row[j] = clamp01(v)
	}
	return reorder(row, g.orderIdx)
}

func (g *GraphBackend) Close() error {
	var firstErr error
	for i := 0; i < g.poolSize; i++ {
		ss := <-g.sessions
		if err := ss.session.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
		ss.input.Destroy()
		ss.output.Destroy()
	}
	g.poolSize = 0
	return firstErr
}
