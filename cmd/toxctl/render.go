package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"tox-lab/domain"
	"tox-lab/lexicon"
	"tox-lab/normalize"
	"tox-lab/observability"
	"tox-lab/pipeline"
	"tox-lab/stats"
)

var (
	toxicStyle    = color.New(color.FgRed, color.OpBold)
	cleanStyle    = color.New(color.FgGreen, color.OpBold)
	degradedStyle = color.New(color.FgYellow)
	flaggedStyle  = color.New(color.FgRed)
)

// verdictView renders classification outcomes for humans. verbose adds
// language, surface features and lexicon matches.
type verdictView struct {
	screen  *lexicon.Screen
	verbose bool
}

func (v verdictView) renderVerdict(w io.Writer, result domain.Result) {
	if result.IsToxic {
		fmt.Fprintf(w, "\n%s  (top: %s, threshold %.2f)\n",
			toxicStyle.Render("⚠ TOXIC"), topLabel(result), result.Threshold)
	} else {
		fmt.Fprintf(w, "\n%s  (threshold %.2f)\n",
			cleanStyle.Render("✓ CLEAN"), result.Threshold)
	}
	if result.Degraded {
		fmt.Fprintf(w, "%s\n", degradedStyle.Render("degraded: fallback scores, artifact not servable"))
	}
}

func (v verdictView) renderScores(w io.Writer, result domain.Result) {
	table := newTable(w)
	table.SetHeader([]string{"Category", "Probability", "Flagged"})
	for _, s := range result.Scores {
		flagged := ""
		if s.Flagged {
			flagged = flaggedStyle.Render("yes")
		}
		table.Append([]string{string(s.Category), fmt.Sprintf("%.4f", s.Probability), flagged})
	}
	table.Render()
	fmt.Fprintf(w, "variant: %s, elapsed: %s\n", result.Variant, result.Elapsed.Round(time.Microsecond))
}

func (v verdictView) renderExtras(w io.Writer, text string) {
	if !v.verbose {
		return
	}

	features := normalize.ExtractFeatures(text)
	fmt.Fprintf(w, "\nlanguage: %s, words: %d, caps: %.0f%%, exclamations: %d, url: %v\n",
		orDash(normalize.DetectLanguage(text)), features.WordCount,
		features.CapsRatio*100, features.ExclamationCount, features.HasURL)

	matches := v.screen.Scan(text)
	if len(matches) == 0 {
		fmt.Fprintln(w, "lexicon: no matches")
		return
	}
	terms := lo.Uniq(lo.Map(matches, func(m lexicon.Match, _ int) string { return m.Term }))
	fmt.Fprintf(w, "lexicon: %d match(es): %s\n", len(matches), strings.Join(terms, ", "))
	fmt.Fprintf(w, "censored: %s\n", v.screen.Censor(text))
}

func (v verdictView) renderBatch(w io.Writer, lines []string, results []domain.Result) {
	table := newTable(w)
	header := []string{"#", "Verdict", "Top", "Max", "MS", "Text"}
	if v.verbose {
		header = []string{"#", "Verdict", "Top", "Max", "MS", "Lang", "Hits", "Text"}
	}
	table.SetHeader(header)

	toxicCount := 0
	for i, result := range results {
		if result.IsToxic {
			toxicCount++
		}
		row := []string{
			strconv.Itoa(i + 1),
			v.verdictCell(result),
			orDash(topLabel(result)),
			fmt.Sprintf("%.3f", maxScore(result)),
			strconv.FormatInt(result.Elapsed.Milliseconds(), 10),
		}
		if v.verbose {
			row = append(row,
				orDash(normalize.DetectLanguage(lines[i])),
				strconv.Itoa(len(v.screen.Scan(lines[i]))),
			)
		}
		row = append(row, truncate(lines[i], 60))
		table.Append(row)
	}
	table.Render()
	fmt.Fprintf(w, "\n%d/%d toxic\n", toxicCount, len(results))
}

func (v verdictView) renderStreamLine(w io.Writer, line string, result domain.Result) {
	fmt.Fprintf(w, "%s  %5.3f  %s\n", v.verdictCell(result), maxScore(result), truncate(line, 80))
}

func (v verdictView) verdictCell(result domain.Result) string {
	cell := cleanStyle.Render("clean")
	if result.IsToxic {
		cell = toxicStyle.Render("TOXIC")
	}
	if result.Degraded {
		cell += degradedStyle.Render(" (fallback)")
	}
	return cell
}

// printInfo renders three tables: the served artifact, the persisted usage
// ledger, and the in-process system snapshot.
func printInfo(ctx context.Context, classifier *pipeline.Classifier, recorder *stats.Repository, monitor *observability.PipelineMonitor) error {
	mi, err := classifier.ModelInfo(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\nModel")
	table := newTable(os.Stdout)
	table.Append([]string{"Variant", string(mi.Variant)})
	table.Append([]string{"Path", mi.Path})
	table.Append([]string{"Instance", mi.InstanceID.String()})
	table.Append([]string{"Categories", strings.Join(categoryNames(mi.Categories), ", ")})
	if mi.SequenceLength > 0 {
		table.Append([]string{"Sequence length", strconv.Itoa(mi.SequenceLength)})
	}
	if mi.VocabularySize > 0 {
		table.Append([]string{"Vocabulary", strconv.Itoa(mi.VocabularySize)})
	}
	table.Append([]string{"Checksummed", strconv.FormatBool(mi.Checksummed)})
	table.Append([]string{"Loaded", mi.LoadedAt.Format(time.RFC3339)})
	table.Render()

	usage, err := recorder.Snapshot(ctx)
	if err != nil {
		return err
	}
	fmt.Println("\nUsage")
	table = newTable(os.Stdout)
	table.Append([]string{"Classified", strconv.FormatUint(usage.Classified, 10)})
	table.Append([]string{"Toxic", strconv.FormatUint(usage.Toxic, 10)})
	table.Append([]string{"Toxic rate", fmt.Sprintf("%.1f%%", usage.ToxicRate()*100)})
	table.Append([]string{"Degraded", strconv.FormatUint(usage.Degraded, 10)})
	table.Append([]string{"Failed", strconv.FormatUint(usage.Failed, 10)})
	table.Append([]string{"Avg latency", usage.AverageLatency().Round(time.Microsecond).String()})
	for _, c := range domain.Categories() {
		if n := usage.CategoryFlags[c]; n > 0 {
			table.Append([]string{"Flagged " + string(c), strconv.FormatUint(n, 10)})
		}
	}
	variants := lo.Keys(usage.Variants)
	sort.Slice(variants, func(i, j int) bool { return variants[i] < variants[j] })
	for _, variant := range variants {
		table.Append([]string{"Variant " + string(variant), strconv.FormatUint(usage.Variants[variant], 10)})
	}
	table.Render()

	sys := monitor.Snapshot()
	fmt.Println("\nSystem")
	table = newTable(os.Stdout)
	table.Append([]string{"Heap", strconv.FormatUint(sys.AllocMemMb, 10) + " MB"})
	table.Append([]string{"RSS", strconv.FormatUint(sys.ProcessRssMb, 10) + " MB"})
	table.Append([]string{"CPU", fmt.Sprintf("%.1f%%", sys.ProcessCPUPct)})
	table.Append([]string{"GC runs", strconv.FormatUint(uint64(sys.NumGC), 10)})
	table.Render()
	return nil
}

// exportCSV writes one row per classified comment, each with a fresh id, the
// six probabilities in declaration order, and the comment truncated the way
// the original export did.
func exportCSV(path string, lines []string, results []domain.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	wr := csv.NewWriter(f)
	header := append([]string{"id", "timestamp", "verdict", "top_category"},
		categoryNames(domain.Categories())...)
	header = append(header, "variant", "degraded", "elapsed_ms", "text")
	if err := wr.Write(header); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for i, result := range results {
		verdict := "CLEAN"
		if result.IsToxic {
			verdict = "TOXIC"
		}
		row := []string{uuid.NewString(), now, verdict, topLabel(result)}
		for _, c := range domain.Categories() {
			row = append(row, strconv.FormatFloat(result.Score(c), 'f', 6, 64))
		}
		row = append(row,
			string(result.Variant),
			strconv.FormatBool(result.Degraded),
			strconv.FormatInt(result.Elapsed.Milliseconds(), 10),
			truncate(lines[i], 100),
		)
		if err := wr.Write(row); err != nil {
			return err
		}
	}
	wr.Flush()
	return wr.Error()
}

// newTable mirrors the house table styling: no borders, tab padding,
// left-aligned everything.
func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func topLabel(result domain.Result) string {
	if len(result.Severity) == 0 {
		return ""
	}
	return string(result.Severity[0])
}

func maxScore(result domain.Result) float64 {
	top := lo.MaxBy(result.Scores, func(a, b domain.CategoryScore) bool {
		return a.Probability > b.Probability
	})
	return top.Probability
}

func categoryNames(categories []domain.Category) []string {
	return lo.Map(categories, func(c domain.Category, _ int) string { return string(c) })
}

func truncate(s string, max int) string {
	cut := normalize.Truncate(s, max)
	if cut != s {
		return cut + "…"
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
