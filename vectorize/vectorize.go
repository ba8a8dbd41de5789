// Package vectorize converts canonical text into the fixed-length token-id
// sequences the sequence backends consume. Transformer backends tokenize on
// their own, so for them the sequence is a passthrough of the text.
package vectorize

import (
	"strings"

	"tox-lab/errors"
)

// kerasFilters is the punctuation set the original training pipeline replaced
// with spaces before splitting. Kept byte-for-byte so ids line up with the
// vocabulary built at training time.
const kerasFilters = "!\"#$%&()*+,-./:;<=>?@[\\]^_`{|}~\t\n"

// Sequence carries both representations: IDs for sequence backends (always
// exactly SequenceLength entries), Text for backends that tokenize
// internally. Owned by one classification call, never shared.
type Sequence struct {
	IDs  []int64
	Text string
}

// Options fix the sequence geometry. The defaults pad and truncate on the
// right, the common sequence-classification convention; deployments replaying
// a Keras pad_sequences pipeline (which pre-pads) set PadLeft instead.
type Options struct {
	SequenceLength int
	PadLeft        bool
	TruncateLeft   bool
}

type Vectorizer struct {
	vocab *Vocabulary
	opts  Options
}

func New(vocab *Vocabulary, opts Options) (*Vectorizer, error) {
	if vocab == nil {
		return nil, errors.NewVectorizationError("vocabulary is required", nil)
	}
	if opts.SequenceLength <= 0 {
		return nil, errors.NewConfigurationError("sequence_length", "must be positive")
	}
	return &Vectorizer{vocab: vocab, opts: opts}, nil
}

// Vectorize maps canonical text onto a fixed-length id sequence. Unknown
// words become the OOV id; the result always has exactly SequenceLength ids.
// Deterministic: same text, same sequence.
func (v *Vectorizer) Vectorize(canonical string) Sequence {
	words := Split(canonical)
	ids := make([]int64, 0, len(words))
	for _, w := range words {
		ids = append(ids, v.vocab.ID(w))
	}
	return Sequence{IDs: v.fit(ids), Text: canonical}
}

// Passthrough wraps canonical text for backends that own their tokenization.
func Passthrough(canonical string) Sequence {
	return Sequence{Text: canonical}
}

// Split breaks canonical text into words the way the training tokenizer did:
// filter punctuation to spaces, then split on whitespace.
func Split(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(kerasFilters, r) {
			return ' '
		}
		return r
	}, text)
	return strings.Fields(cleaned)
}

func (v *Vectorizer) fit(ids []int64) []int64 {
	length := v.opts.SequenceLength

	if len(ids) > length {
		if v.opts.TruncateLeft {
			ids = ids[len(ids)-length:]
		} else {
			ids = ids[:length]
		}
	}
	if len(ids) == length {
		out := make([]int64, length)
		copy(out, ids)
		return out
	}

	padded := make([]int64, length)
	for i := range padded {
		padded[i] = v.vocab.PadID
	}
	if v.opts.PadLeft {
		copy(padded[length-len(ids):], ids)
	} else {
		copy(padded, ids)
	}
	return padded
}
