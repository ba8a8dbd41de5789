package vectorize

import (
	"encoding/json"
	"fmt"
	"os"

	"tox-lab/errors"
)

// Vocabulary maps words to token ids. Two ids are reserved and declared by
// the file itself: PadID fills sequences up to length, OOVID absorbs every
// word the vocabulary never saw.
type Vocabulary struct {
	PadID  int64            `json:"pad_id"`
	OOVID  int64            `json:"oov_id"`
	Tokens map[string]int64 `json:"tokens"`
}

// LoadVocabulary reads a vocabulary.json artifact. Every failure mode is a
// VectorizationError: the artifact may still serve predictions through a
// backend that tokenizes on its own, so this must not be fatal for loading.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewVectorizationError("vocabulary unreadable", err)
	}

	var vocab Vocabulary
	if err := json.Unmarshal(data, &vocab); err != nil {
		return nil, errors.NewVectorizationError("vocabulary malformed", err)
	}

	if err := vocab.validate(); err != nil {
		return nil, err
	}
	return &vocab, nil
}

func (v *Vocabulary) validate() error {
	if len(v.Tokens) == 0 {
		return errors.NewVectorizationError("vocabulary has no tokens", nil)
	}
	if v.PadID == v.OOVID {
		return errors.NewVectorizationError("pad and oov ids collide", nil)
	}
	if v.PadID < 0 || v.OOVID < 0 {
		return errors.NewVectorizationError("reserved ids must not be negative", nil)
	}
	for word, id := range v.Tokens {
		if id < 0 {
			return errors.NewVectorizationError(fmt.Sprintf("token %q has a negative id", word), nil)
		}
		if id == v.PadID || id == v.OOVID {
			return errors.NewVectorizationError(fmt.Sprintf("token %q reuses a reserved id", word), nil)
		}
	}
	return nil
}

// ID resolves one word, falling back to the out-of-vocabulary id.
func (v *Vocabulary) ID(word string) int64 {
	if id, ok := v.Tokens[word]; ok {
		return id
	}
	return v.OOVID
}

// Size counts distinct ids including the two reserved ones.
func (v *Vocabulary) Size() int {
	return len(v.Tokens) + 2
}
