package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	n := New(DefaultOptions())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase and trim", "  You ARE Nice  ", "you are nice"},
		{"collapse whitespace runs", "so\t\tmuch\n\n  space", "so much space"},
		{"url replaced by placeholder", "go to https://evil.example/x?y=1 now", "go to xurlx now"},
		{"www url replaced", "see www.example.com please", "see xurlx please"},
		{"html tags stripped", "<b>you</b> are <i>done</i>", "you are done"},
		{"tag with url inside", `<a href="https://x.io">click</a>`, "click"},
		{"control characters removed", "a\x00b\x07c", "abc"},
		{"empty input", "", ""},
		{"whitespace only", " \n\t ", ""},
		{"nfkc folds fullwidth forms", "ＨＥＬＬＯ", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, n.Normalize(tt.in))
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	req := require.New(t)
	n := New(DefaultOptions())

	inputs := []string{
		"  MIXED case   with\nnewlines ",
		"visit http://a.b/c and <p>read</p>",
		"plain already canonical text",
		"",
		"<<nested> tags> and www.x.y leftovers",
	}

	for _, in := range inputs {
		once := n.Normalize(in)
		req.Equal(once, n.Normalize(once), "input %q", in)
	}
}

func TestNormalizeOptionsToggle(t *testing.T) {
	req := require.New(t)

	// Given a normalizer with both destructive steps disabled
	n := New(Options{})

	// Then URLs and tags survive, everything else still canonicalizes
	req.Equal("see www.example.com", n.Normalize("  See www.example.com  "))
	req.Equal("<b>hi</b>", n.Normalize("<B>Hi</B>"))
}

func TestTruncate(t *testing.T) {
	req := require.New(t)

	req.Equal("abc", Truncate("abc", 5))
	req.Equal("abcde", Truncate("abcdefgh", 5))
	req.Equal("abcdefgh", Truncate("abcdefgh", 0))
	// Rune-safe: never splits a multi-byte character
	req.Equal("héll", Truncate("héllo", 4))
}

func TestDetectLanguage(t *testing.T) {
	req := require.New(t)

	lang := DetectLanguage("this is a perfectly ordinary english sentence about nothing")
	req.Equal("en", lang)
}

func TestExtractFeatures(t *testing.T) {
	req := require.New(t)

	f := ExtractFeatures("STOP shouting at me!! why? see www.example.com")

	req.Equal(7, f.WordCount)
	req.Equal(2, f.ExclamationCount)
	req.Equal(1, f.QuestionCount)
	req.True(f.HasURL)
	req.Greater(f.CapsRatio, 0.0)
	req.Less(f.CapsRatio, 1.0)

	empty := ExtractFeatures("")
	req.Zero(empty.WordCount)
	req.Zero(empty.CapsRatio)
	req.False(empty.HasURL)
}

func BenchmarkNormalize(b *testing.B) {
	n := New(DefaultOptions())
	text := strings.Repeat("You ARE such a <b>nuisance</b>, see https://example.com/a?b=c ", 8)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = n.Normalize(text)
	}
}
