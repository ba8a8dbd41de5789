package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCategoriesOrderIsFixed(t *testing.T) {
	req := require.New(t)

	// Given the canonical declaration order
	want := []Category{
		CategoryToxic, CategorySevereToxic, CategoryObscene,
		CategoryThreat, CategoryInsult, CategoryIdentityHate,
	}

	// Then Categories returns exactly six names in that order
	got := Categories()
	req.Len(got, CategoryCount)
	req.Equal(want, got)

	// And mutating the returned slice never affects later calls
	got[0] = Category("mutated")
	req.Equal(CategoryToxic, Categories()[0])
}

func TestParseCategory(t *testing.T) {
	req := require.New(t)

	c, err := ParseCategory("identity_hate")
	req.NoError(err)
	req.Equal(CategoryIdentityHate, c)

	_, err = ParseCategory("sarcasm")
	req.Error(err)
}

func TestDescriptionsCoverEveryCategory(t *testing.T) {
	req := require.New(t)
	for _, c := range Categories() {
		req.NotEmpty(c.Description(), "category %s", c)
	}
}
