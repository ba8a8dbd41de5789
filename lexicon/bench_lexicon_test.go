package lexicon

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Lexicon_Benchmark(t *testing.T) {
	req := require.New(t)

	termCount := 100_000

	// --- Phase 1: GENERATING ---
	// Fixed-width ids so no folded term is a prefix of another
	startGen := time.Now()
	terms := make([]string, 0, termCount)
	for i := 0; i < termCount; i++ {
		terms = append(terms, fmt.Sprintf("badword%06d", i))
	}
	fmt.Printf("✅ Generating %d terms: %v\n", termCount, time.Since(startGen))

	// --- Phase 2: BUILDING AHO-CORASICK ---
	startBuild := time.Now()
	screen, err := NewScreen(terms, '*')
	req.NoError(err)
	fmt.Printf("✅ Building AC Automaton: %v\n", time.Since(startBuild))

	// --- Phase 3: SCANNING ---
	// A long comment with one known term buried in every repetition
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		sb.WriteString("perfectly ordinary words with badword000042 hidden inside and more filler ")
	}
	text := sb.String()

	startScan := time.Now()
	matches := screen.Scan(text)
	fmt.Printf("✅ Scanning %d runes: %v (%d matches)\n", len([]rune(text)), time.Since(startScan), len(matches))
	req.Len(matches, 200)

	fmt.Printf("\n🚀 Total startup time for lexicon: %v\n", time.Since(startGen))
}
