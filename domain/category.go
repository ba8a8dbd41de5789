package domain

import "fmt"

// Category is one of the six toxicity axes. Categories overlap: a comment can
// be obscene and threatening at once, so scores are independent probabilities.
type Category string

const (
	CategoryToxic        Category = "toxic"
	CategorySevereToxic  Category = "severe_toxic"
	CategoryObscene      Category = "obscene"
	CategoryThreat       Category = "threat"
	CategoryInsult       Category = "insult"
	CategoryIdentityHate Category = "identity_hate"
)

// categories fixes the declaration order. Display and severity tie-breaking
// rely on this order; scoring does not.
var categories = [6]Category{
	CategoryToxic,
	CategorySevereToxic,
	CategoryObscene,
	CategoryThreat,
	CategoryInsult,
	CategoryIdentityHate,
}

var descriptions = map[Category]string{
	CategoryToxic:        "General toxicity or rudeness",
	CategorySevereToxic:  "Extremely hateful or aggressive content",
	CategoryObscene:      "Obscene or vulgar language",
	CategoryThreat:       "Threatening language",
	CategoryInsult:       "Insulting or demeaning language",
	CategoryIdentityHate: "Hatred toward identity groups",
}

// Categories returns the six category names in declaration order.
// The returned slice is a fresh copy.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories[:])
	return out
}

// CategoryCount is the fixed width of every score row.
const CategoryCount = len(categories)

// Description returns the human wording shown by presentation layers.
func (c Category) Description() string {
	return descriptions[c]
}

// ParseCategory validates a category name coming from configuration.
func ParseCategory(name string) (Category, error) {
	for _, c := range categories {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", name)
}
