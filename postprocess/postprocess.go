// Package postprocess turns raw probability rows into decisions: one flag
// per category, the overall verdict and a severity ranking.
package postprocess

import (
	"fmt"
	"sort"

	"tox-lab/domain"
	"tox-lab/errors"
)

// DefaultThreshold is the global decision boundary when nothing is configured.
const DefaultThreshold = 0.5

// Thresholds is the global decision boundary plus optional per-category
// overrides. An override replaces the global value for that category only.
type Thresholds struct {
	Global      float64
	PerCategory map[domain.Category]float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Global: DefaultThreshold}
}

// Validate checks every threshold lies in the open interval (0,1). A
// threshold of exactly 0 would flag everything, 1 would flag nothing that a
// real model can reach; both are configuration mistakes, not tuning.
func (t Thresholds) Validate() error {
	if t.Global <= 0 || t.Global >= 1 {
		return errors.NewConfigurationError("confidence_threshold", fmt.Sprintf("%v is outside (0,1)", t.Global))
	}
	for category, v := range t.PerCategory {
		if _, err := domain.ParseCategory(string(category)); err != nil {
			return errors.NewConfigurationError("category_thresholds", err.Error())
		}
		if v <= 0 || v >= 1 {
			return errors.NewConfigurationError("category_thresholds", fmt.Sprintf("%s: %v is outside (0,1)", category, v))
		}
	}
	return nil
}

// Effective resolves the threshold applied to one category.
func (t Thresholds) Effective(c domain.Category) float64 {
	if v, ok := t.PerCategory[c]; ok {
		return v
	}
	return t.Global
}

// Process derives flags, verdict and severity from one raw score row. The
// row must hold exactly six probabilities in declaration order. Thresholds
// are re-validated here so a bad value can never silently change a verdict;
// past those two checks the derivation is pure and cannot fail.
func Process(raw []float64, th Thresholds) (domain.Result, error) {
	if err := th.Validate(); err != nil {
		return domain.Result{}, err
	}
	if len(raw) != domain.CategoryCount {
		return domain.Result{}, fmt.Errorf("score row holds %d values, want %d", len(raw), domain.CategoryCount)
	}

	result := domain.Result{
		Scores:    make([]domain.CategoryScore, 0, domain.CategoryCount),
		Threshold: th.Global,
	}
	for i, category := range domain.Categories() {
		flagged := raw[i] >= th.Effective(category)
		result.Scores = append(result.Scores, domain.CategoryScore{
			Category:    category,
			Probability: raw[i],
			Flagged:     flagged,
		})
		if flagged {
			result.IsToxic = true
			result.Severity = append(result.Severity, category)
		}
	}

	// Severity starts in declaration order; the stable sort keeps that
	// order for equal probabilities.
	sort.SliceStable(result.Severity, func(i, j int) bool {
		return result.Score(result.Severity[i]) > result.Score(result.Severity[j])
	})
	return result, nil
}
