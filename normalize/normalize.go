// Package normalize turns raw comment text into the canonical form the
// vectorizer consumes. Normalization is deterministic and pure: same input,
// same output, no I/O.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/unicode/norm"

	"tox-lab/domain"
)

// URLPlaceholder stands in for stripped URLs so the token count of the
// surrounding sentence survives vectorization.
const URLPlaceholder = "xurlx"

var (
	urlPattern  = regexp.MustCompile(`(?:https?://|www\.)\S+`)
	htmlPattern = regexp.MustCompile(`<[^>]*>`)
)

// Options toggle the destructive steps. Defaults keep both on; deployments
// classifying pre-sanitized text can switch them off.
type Options struct {
	ReplaceURLs bool
	StripHTML   bool
}

func DefaultOptions() Options {
	return Options{ReplaceURLs: true, StripHTML: true}
}

type Normalizer struct {
	opts Options
}

func New(opts Options) Normalizer {
	return Normalizer{opts: opts}
}

// Normalize applies, in order: NFKC folding with control characters removed,
// lowercasing, URL replacement, HTML tag stripping, then whitespace collapse
// with trim. The collapse runs last so the composition stays idempotent even
// when a replacement leaves adjacent spaces behind. Empty and whitespace-only
// input normalizes to "".
func (n Normalizer) Normalize(raw string) string {
	text := norm.NFKC.String(raw)
	text = strings.Map(dropControl, text)
	text = strings.ToLower(text)
	if n.opts.ReplaceURLs {
		text = urlPattern.ReplaceAllString(text, URLPlaceholder)
	}
	if n.opts.StripHTML {
		text = htmlPattern.ReplaceAllString(text, " ")
	}
	return strings.Join(strings.Fields(text), " ")
}

// dropControl removes control runes but keeps the whitespace ones, which the
// final collapse folds into single spaces.
func dropControl(r rune) rune {
	if r == '\n' || r == '\t' || r == '\r' {
		return r
	}
	if unicode.IsControl(r) {
		return -1
	}
	return r
}

// Truncate caps raw input at max runes. A guard against pathological
// payloads, applied by the façade before normalization; max <= 0 disables it.
func Truncate(raw string, max int) string {
	if max <= 0 || utf8.RuneCountInString(raw) <= max {
		return raw
	}
	runes := []rune(raw)
	return string(runes[:max])
}

// DetectLanguage returns an ISO 639-1 hint for logging and the verbose CLI
// view. Advisory only: classification never branches on it.
func DetectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	return info.Lang.Iso6391()
}

// ExtractFeatures computes surface statistics over the raw text. The model
// never sees them; they exist for operators reading verbose output.
func ExtractFeatures(text string) domain.TextFeatures {
	var letters, uppers, excl, quest int
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				uppers++
			}
		}
		switch r {
		case '!':
			excl++
		case '?':
			quest++
		}
	}

	var capsRatio float64
	if letters > 0 {
		capsRatio = float64(uppers) / float64(letters)
	}

	return domain.TextFeatures{
		Length:           utf8.RuneCountInString(text),
		WordCount:        len(strings.Fields(text)),
		CapsRatio:        capsRatio,
		ExclamationCount: excl,
		QuestionCount:    quest,
		HasURL:           urlPattern.MatchString(strings.ToLower(text)),
	}
}
