package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"tox-lab/domain"
	"tox-lab/errors"
	"tox-lab/vectorize"
)

const (
	inputIDsName      = "input_ids"
	attentionMaskName = "attention_mask"
	tokenTypeIDsName  = "token_type_ids"
	logitsName        = "logits"
)

// transformerConfig is the fraction of config.json the backend reads: the
// label order of the classification head and the position table size that
// caps the usable sequence length.
type transformerConfig struct {
	ID2Label              map[string]string `json:"id2label"`
	MaxPositionEmbeddings int               `json:"max_position_embeddings"`
}

func (c transformerConfig) labels() []string {
	if len(c.ID2Label) == 0 {
		return nil
	}
	labels := make([]string, len(c.ID2Label))
	for key, label := range c.ID2Label {
		id, err := strconv.Atoi(key)
		if err != nil || id < 0 || id >= len(labels) {
			return nil
		}
		labels[id] = label
	}
	return labels
}

// TransformerBackend runs a fine-tuned encoder exported to ONNX next to its
// tokenizer.json. It tokenizes raw text itself, so the sequences it receives
// carry text only. The head emits one logit per category; sigmoid maps each
// to an independent probability.
type TransformerBackend struct {
	tk       *tokenizer.Tokenizer
	seqLen   int
	orderIdx []int
	sessions chan *transformerSession
	poolSize int
}

type transformerSession struct {
	session   *ort.AdvancedSession
	inputIDs  *ort.Tensor[int64]
	attention *ort.Tensor[int64]
	tokenType *ort.Tensor[int64]
	output    *ort.Tensor[float32]
}

// LoadTransformerBackend opens tokenizer.json, config.json and model.onnx
// under dir. seqLen is the caller's fallback; a static graph input length
// wins, and the position table caps whatever was chosen.
func LoadTransformerBackend(dir string, seqLen int) (*TransformerBackend, error) {
	if err := ensureRuntime(); err != nil {
		return nil, errors.NewModelLoadError(dir, fmt.Errorf("initialize onnxruntime: %w", err))
	}

	tk, err := pretrained.FromFile(filepath.Join(dir, TokenizerFile))
	if err != nil {
		return nil, errors.NewModelLoadError(dir, fmt.Errorf("load tokenizer: %w", err))
	}

	cfg, err := loadTransformerConfig(dir)
	if err != nil {
		return nil, errors.NewModelLoadError(dir, err)
	}
	orderIdx, err := orderIndices(cfg.labels())
	if err != nil {
		return nil, errors.NewModelLoadError(dir, err)
	}

	modelPath := filepath.Join(dir, OnnxModelFile)
	inputs, output, err := transformerIOInfo(modelPath)
	if err != nil {
		return nil, errors.NewModelLoadError(dir, err)
	}

	if len(inputs[0].Dimensions) == 2 && inputs[0].Dimensions[1] > 0 {
		seqLen = int(inputs[0].Dimensions[1])
	}
	if cfg.MaxPositionEmbeddings > 0 && seqLen > cfg.MaxPositionEmbeddings {
		seqLen = cfg.MaxPositionEmbeddings
	}
	if seqLen <= 0 {
		return nil, errors.NewModelLoadError(dir, fmt.Errorf("encoder input length is dynamic and no sequence length is configured"))
	}

	if dims := output.Dimensions; len(dims) > 0 && dims[len(dims)-1] > 0 && int(dims[len(dims)-1]) != domain.CategoryCount {
		return nil, errors.NewModelLoadError(dir, fmt.Errorf("classification head emits %d scores, want %d", dims[len(dims)-1], domain.CategoryCount))
	}

	backend := &TransformerBackend{
		tk:       tk,
		seqLen:   seqLen,
		orderIdx: orderIdx,
		poolSize: 1,
	}
	backend.sessions = make(chan *transformerSession, backend.poolSize)
	for i := 0; i < backend.poolSize; i++ {
		ss, err := newTransformerSession(modelPath, inputs, output.Name, seqLen)
		if err != nil {
			backend.poolSize = i
			backend.Close()
			return nil, errors.NewModelLoadError(dir, err)
		}
		backend.sessions <- ss
	}
	return backend, nil
}

func loadTransformerConfig(dir string) (transformerConfig, error) {
	var cfg transformerConfig

	data, err := os.ReadFile(filepath.Join(dir, TransformerMeta))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("encoder config malformed: %w", err)
	}
	return cfg, nil
}

// transformerIOInfo keeps the graph's declared input order and checks every
// input is one the session knows how to feed. Output selection follows the
// usual export convention: a lone output, or the one named logits.
func transformerIOInfo(modelPath string) ([]ort.InputOutputInfo, ort.InputOutputInfo, error) {
	var none ort.InputOutputInfo

	inputs, outputs, err := ort.GetInputOutputInfoWithOptions(modelPath, nil)
	if err != nil {
		return nil, none, fmt.Errorf("inspect onnx graph: %w", err)
	}

	var hasIDs bool
	for _, in := range inputs {
		switch in.Name {
		case inputIDsName:
			hasIDs = true
		case attentionMaskName, tokenTypeIDsName:
		default:
			return nil, none, fmt.Errorf("encoder declares unsupported input %q", in.Name)
		}
	}
	if !hasIDs {
		return nil, none, fmt.Errorf("encoder declares no %s input", inputIDsName)
	}

	if len(outputs) == 0 {
		return nil, none, fmt.Errorf("encoder declares no outputs")
	}
	if len(outputs) == 1 {
		return inputs, outputs[0], nil
	}
	for _, out := range outputs {
		if out.Name == logitsName {
			return inputs, out, nil
		}
	}
	names := make([]string, 0, len(outputs))
	for _, out := range outputs {
		names = append(names, out.Name)
	}
	return nil, none, fmt.Errorf("encoder declares several outputs %v and none is named %q", names, logitsName)
}

func newTransformerSession(modelPath string, inputs []ort.InputOutputInfo, outputName string, seqLen int) (*transformerSession, error) {
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

	ss := &transformerSession{}
	destroy := func() {
		for _, t := range []*ort.Tensor[int64]{ss.inputIDs, ss.attention, ss.tokenType} {
			if t != nil {
				t.Destroy()
			}
		}
		if ss.output != nil {
			ss.output.Destroy()
		}
		opts.Destroy()
	}

	shape := ort.NewShape(1, int64(seqLen))
	names := make([]string, 0, len(inputs))
	values := make([]ort.Value, 0, len(inputs))
	for _, in := range inputs {
		t, err := ort.NewEmptyTensor[int64](shape)
		if err != nil {
			destroy()
			return nil, fmt.Errorf("allocate %s tensor: %w", in.Name, err)
		}
		switch in.Name {
		case inputIDsName:
			ss.inputIDs = t
		case attentionMaskName:
			ss.attention = t
		case tokenTypeIDsName:
			ss.tokenType = t
		}
		names = append(names, in.Name)
		values = append(values, t)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(domain.CategoryCount)))
	if err != nil {
		destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}
	ss.output = output

	session, err := ort.NewAdvancedSession(
		modelPath,
		names,
		[]string{outputName},
		values,
		[]ort.Value{output},
		opts,
	)
	if err != nil {
		destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	opts.Destroy()

	ss.session = session
	return ss, nil
}

func (t *TransformerBackend) Variant() domain.Variant { return domain.VariantTransformer }

// SequenceLength reports the token budget per text after special tokens.
func (t *TransformerBackend) SequenceLength() int { return t.seqLen }

func (t *TransformerBackend) Predict(ctx context.Context, batch []vectorize.Sequence) ([][]float64, error) {
	ss := <-t.sessions
	defer func() { t.sessions <- ss }()

	out := make([][]float64, len(batch))
	for i, seq := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		en, err := t.tk.EncodeSingle(seq.Text, true)
		if err != nil {
			return nil, errors.NewVectorizationError("subword encoding failed", err)
		}
		ss.fill(en, t.seqLen)

		if err := ss.session.Run(); err != nil {
			return nil, fmt.Errorf("onnx run: %w", err)
		}
		out[i] = t.row(ss.output.GetData())
	}
	return out, nil
}

// fill copies an encoding into the bound tensors, truncating on the right
// and padding with id 0 / mask 0. Masked positions never reach attention,
// so the pad id value is immaterial to the scores.
func (ss *transformerSession) fill(en *tokenizer.Encoding, seqLen int) {
	ids := ss.inputIDs.GetData()
	for i := 0; i < seqLen; i++ {
		if i < len(en.Ids) {
			ids[i] = int64(en.Ids[i])
		} else {
			ids[i] = 0
		}
	}
	if ss.attention != nil {
		mask := ss.attention.GetData()
		for i := 0; i < seqLen; i++ {
			if i < len(en.AttentionMask) {
				mask[i] = int64(en.AttentionMask[i])
			} else {
				mask[i] = 0
			}
		}
	}
	if ss.tokenType != nil {
		types := ss.tokenType.GetData()
		for i := range types {
			types[i] = 0
		}
	}
}

func (t *TransformerBackend) row(raw []float32) []float64 {
	row := make([]float64, domain.CategoryCount)
	for j := 0; j < domain.CategoryCount && j < len(raw); j++ {
		row[j] = clamp01(sigmoid(float64(raw[j])))
	}
	return reorder(row, t.orderIdx)
}

func (t *TransformerBackend) Close() error {
	var firstErr error
	for i := 0; i < t.poolSize; i++ {
		ss := <-t.sessions
		if err := ss.session.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
		for _, tensor := range []*ort.Tensor[int64]{ss.inputIDs, ss.attention, ss.tokenType} {
			if tensor != nil {
				tensor.Destroy()
			}
		}
		ss.output.Destroy()
	}
	t.poolSize = 0
	return firstErr
}
