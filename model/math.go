package model

import (
	"fmt"
	"math"

	"tox-lab/domain"
)

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// clamp01 pins a probability into [0,1]. NaN collapses to 0 so a numerical
// accident can never flag a category.
func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return 0
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}

func relu(v float32) float32 {
	if v > 0 {
		return v
	}
	return 0
}

// orderIndices maps a model's declared output order onto the fixed category
// declaration order: position p of the result row reads model output
// idx[p]. An empty declaration means positional (nil mapping). Declaring
// anything other than exactly the six known categories is a corrupt artifact.
func orderIndices(declared []string) ([]int, error) {
	if len(declared) == 0 {
		return nil, nil
	}
	if len(declared) != domain.CategoryCount {
		return nil, fmt.Errorf("model declares %d categories, want %d", len(declared), domain.CategoryCount)
	}

	idx := make([]int, domain.CategoryCount)
	for pos, category := range domain.Categories() {
		found := -1
		for i, name := range declared {
			if name == string(category) {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("model does not declare category %q", category)
		}
		idx[pos] = found
	}
	return idx, nil
}

// reorder projects a raw model row onto declaration order using a mapping
// from orderIndices. A nil mapping is positional passthrough.
func reorder(row []float64, idx []int) []float64 {
	if idx == nil {
		return row
	}
	out := make([]float64, len(idx))
	for pos, from := range idx {
		out[pos] = row[from]
	}
	return out
}
