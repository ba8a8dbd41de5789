package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"tox-lab/domain"
)

func TestClamp01(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"inside the range", 0.25, 0.25},
		{"lower bound", 0, 0},
		{"upper bound", 1, 1},
		{"below", -0.2, 0},
		{"above", 1.5, 1},
		{"negative infinity", math.Inf(-1), 0},
		{"positive infinity", math.Inf(1), 1},
		{"not a number collapses to zero", math.NaN(), 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, clamp01(tc.in))
		})
	}
}

func TestOrderIndices(t *testing.T) {
	req := require.New(t)

	t.Run("empty declaration is positional", func(t *testing.T) {
		idx, err := orderIndices(nil)
		require.NoError(t, err)
		require.Nil(t, idx)
	})

	t.Run("declaration order maps to identity", func(t *testing.T) {
		declared := make([]string, 0, domain.CategoryCount)
		for _, c := range domain.Categories() {
			declared = append(declared, string(c))
		}
		idx, err := orderIndices(declared)
		require.NoError(t, err)
		require.Equal(t, []int{0, 1, 2, 3, 4, 5}, idx)
	})

	t.Run("reversed declaration maps backwards", func(t *testing.T) {
		categories := domain.Categories()
		declared := make([]string, domain.CategoryCount)
		for i, c := range categories {
			declared[domain.CategoryCount-1-i] = string(c)
		}
		idx, err := orderIndices(declared)
		require.NoError(t, err)
		require.Equal(t, []int{5, 4, 3, 2, 1, 0}, idx)
	})

	t.Run("wrong arity fails", func(t *testing.T) {
		_, err := orderIndices([]string{"toxic"})
		require.ErrorContains(t, err, "declares 1 categories")
	})

	t.Run("duplicates crowd out a category", func(t *testing.T) {
		_, err := orderIndices([]string{"toxic", "toxic", "obscene", "threat", "insult", "identity_hate"})
		require.ErrorContains(t, err, "severe_toxic")
	})

	// Round trip: reorder applied to a reversed row restores declaration
	// order.
	declared := []string{"identity_hate", "insult", "threat", "obscene", "severe_toxic", "toxic"}
	idx, err := orderIndices(declared)
	req.NoError(err)
	row := []float64{0.6, 0.5, 0.4, 0.3, 0.2, 0.1}
	req.Equal([]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}, reorder(row, idx))
	req.Equal(row, reorder(row, nil), "nil mapping is passthrough")
}
