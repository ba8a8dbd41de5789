package domain

import "time"

// CategoryScore pairs one category with its probability and the binarized
// flag derived from the effective threshold.
type CategoryScore struct {
	Category    Category `json:"category"`
	Probability float64  `json:"probability"`
	Flagged     bool     `json:"flagged"`
}

// Result is the outcome of classifying one text. A well-formed Result always
// carries exactly six scores in declaration order; the zero Result (no
// scores) only ever travels next to a non-nil error, so "could not classify"
// is never mistaken for "not toxic".
type Result struct {
	Scores    []CategoryScore `json:"scores"`
	IsToxic   bool            `json:"is_toxic"`
	Threshold float64         `json:"threshold"`
	// Severity lists the flagged categories by descending probability,
	// ties broken by declaration order.
	Severity []Category `json:"severity,omitempty"`
	Variant  Variant    `json:"variant"`
	// Degraded marks scores produced by the non-production fallback.
	Degraded bool          `json:"degraded,omitempty"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// Score returns the probability recorded for one category. Missing categories
// report 0; a well-formed Result has none.
func (r Result) Score(c Category) float64 {
	for _, s := range r.Scores {
		if s.Category == c {
			return s.Probability
		}
	}
	return 0
}

// Flagged reports whether one category crossed its effective threshold.
func (r Result) Flagged(c Category) bool {
	for _, s := range r.Scores {
		if s.Category == c {
			return s.Flagged
		}
	}
	return false
}

// EmptyResult builds the all-clear outcome used when input normalizes to
// nothing: six zero scores, not toxic, model never consulted.
func EmptyResult(threshold float64) Result {
	scores := make([]CategoryScore, 0, CategoryCount)
	for _, c := range Categories() {
		scores = append(scores, CategoryScore{Category: c})
	}
	return Result{
		Scores:    scores,
		Threshold: threshold,
		Variant:   VariantNone,
	}
}
