// Package lexicon screens text against embedded word lists. Matching folds
// leet-speak substitutions and skips punctuation, so spaced-out or
// symbol-swapped spellings still hit. The screen is an advisory signal for
// consumers; model scores never depend on it.
package lexicon

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"

	"tox-lab/errors"
)

const defaultMaskRune = '*'

// Match is one dictionary term found in a text. Start and End are rune
// offsets into the original string and span every original rune the folded
// term covered, obfuscation characters included.
type Match struct {
	Term  string
	Start int
	End   int // exclusive
}

// Screen runs an Aho-Corasick automaton over leet-folded text. Immutable
// after construction, safe for concurrent use.
type Screen struct {
	machine  *goahocorasick.Machine
	maskRune rune
}

// NewScreen builds the automaton from dictionary terms. Terms are folded the
// same way scanned text is, so each dictionary entry is written in plain
// spelling once and covers its obfuscated variants for free.
func NewScreen(terms []string, maskRune rune) (*Screen, error) {
	if maskRune == 0 {
		maskRune = defaultMaskRune
	}

	seen := make(map[string]struct{}, len(terms))
	patterns := make([][]rune, 0, len(terms))
	for _, term := range terms {
		folded := foldRunes([]rune(term))
		if len(folded) == 0 {
			continue
		}
		if _, dup := seen[string(folded)]; dup {
			continue
		}
		seen[string(folded)] = struct{}{}
		patterns = append(patterns, folded)
	}
	if len(patterns) == 0 {
		return nil, errors.ErrEmptyLexicon
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Screen{machine: machine, maskRune: maskRune}, nil
}

// Scan reports every dictionary term present in text, with spans mapped back
// onto the original runes.
func (s *Screen) Scan(text string) []Match {
	folded := foldText(text)
	if len(folded.runes) == 0 {
		return nil
	}

	spans := s.machine.MultiPatternSearch(folded.runes, false)
	if len(spans) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(spans))
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(folded.origIdx) {
			continue
		}
		matches = append(matches, Match{
			Term:  string(span.Word),
			Start: folded.origIdx[start],
			End:   folded.origIdx[end-1] + 1,
		})
	}
	return matches
}

// Censor masks every matched span with the mask rune, preserving length and
// everything outside the spans.
func (s *Screen) Censor(text string) string {
	matches := s.Scan(text)
	if len(matches) == 0 {
		return text
	}

	runes := []rune(text)
	for _, m := range matches {
		for i := m.Start; i < m.End && i < len(runes); i++ {
			runes[i] = s.maskRune
		}
	}
	return string(runes)
}

// foldedText is the searchable form of an input plus the mapping from folded
// rune positions back to original rune positions.
type foldedText struct {
	runes   []rune
	origIdx []int
}

func foldText(text string) foldedText {
	orig := []rune(text)
	out := foldedText{
		runes:   make([]rune, 0, len(orig)),
		origIdx: make([]int, 0, len(orig)),
	}
	for i, r := range orig {
		clean := foldRune(r)
		if isNoise(clean) {
			continue
		}
		out.runes = append(out.runes, unicode.ToLower(clean))
		out.origIdx = append(out.origIdx, i)
	}
	return out
}

func foldRunes(in []rune) []rune {
	out := make([]rune, 0, len(in))
	for _, r := range in {
		clean := foldRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// foldRune maps common leet-speak substitutions back to their letters.
func foldRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

// isNoise marks runes ignored during matching, after folding. Digits that
// fold into letters never reach this check.
func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
