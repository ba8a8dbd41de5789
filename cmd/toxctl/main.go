package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"golang.org/x/sync/errgroup"

	"tox-lab/domain"
	"tox-lab/internal"
	"tox-lab/lexicon"
	"tox-lab/observability"
	"tox-lab/pipeline"
	"tox-lab/runtime/workers"
	"tox-lab/stats"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, dispatches the selected mode, and
// centralizes error reporting, so every defer (database close, model
// release) executes before the process exits.
func run() error {
	var (
		text     = flag.String("text", "", "classify one comment and print the verdict")
		file     = flag.String("file", "", "classify a file of comments, one per line")
		out      = flag.String("out", "", "write -file results to a CSV file")
		stream   = flag.Bool("stream", false, "classify stdin line by line through the micro-batcher")
		info     = flag.Bool("info", false, "print model, usage and system information")
		examples = flag.Bool("examples", false, "classify the built-in demonstration comments")
		verbose  = flag.Bool("verbose", false, "add language, surface features and lexicon matches")
	)
	flag.Parse()

	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Usage ledger (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.StatsFilepath).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		return fmt.Errorf("stats database opening failed: %w", err)
	}
	defer func() {
		log.Debug("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 4. Pipeline with recording and monitoring wired in
	monitor := observability.NewPipelineMonitor(log)
	recorder := stats.NewRepository(db, log)
	classifier, err := pipeline.New(config.PipelineConfig(), log,
		pipeline.WithRecorder(recorder),
		pipeline.WithMonitor(monitor),
	)
	if err != nil {
		return fmt.Errorf("pipeline initialization failed: %w", err)
	}
	defer func() { _ = classifier.Close() }()
	go monitor.Listen(ctx)

	// 5. Lexicon pre-screen for the verbose view
	maskRune, err := internal.CensorRune(config.CensorCharacter)
	if err != nil {
		return err
	}
	screen, dicts, err := lexicon.WithMask(maskRune)
	if err != nil {
		return fmt.Errorf("lexicon loading failed: %w", err)
	}
	log.Debug("Lexicon ready", "languages", dicts.Languages, "terms", len(dicts.Terms))

	// 6. Optional debug page
	if config.Debug {
		internal.StartInspector(log, db, monitor, func() domain.ModelInfo {
			mi, _ := classifier.ModelInfo(context.WithoutCancel(ctx))
			return mi
		}, config.DebugPort)
	}

	view := verdictView{screen: screen, verbose: *verbose}

	switch {
	case *info:
		return printInfo(ctx, classifier, recorder, monitor)
	case *text != "":
		return classifyOne(ctx, classifier, view, *text)
	case *examples:
		return classifyLines(ctx, classifier, view, exampleComments, "")
	case *file != "":
		lines, err := readLines(*file)
		if err != nil {
			return err
		}
		return classifyLines(ctx, classifier, view, lines, *out)
	case *stream:
		return streamStdin(ctx, log, classifier, monitor, view, config)
	default:
		flag.Usage()
		return fmt.Errorf("nothing to do: pass -text, -file, -stream, -examples or -info")
	}
}

// classifyOne serves the single-comment mode: full score table plus the
// verbose extras when asked.
func classifyOne(ctx context.Context, classifier *pipeline.Classifier, view verdictView, text string) error {
	result, err := classifier.Classify(ctx, text)
	if err != nil {
		return err
	}

	view.renderVerdict(os.Stdout, result)
	view.renderScores(os.Stdout, result)
	view.renderExtras(os.Stdout, text)
	return nil
}

// classifyLines serves -file and -examples: one batched call for the whole
// input, a summary table, and an optional CSV export.
func classifyLines(ctx context.Context, classifier *pipeline.Classifier, view verdictView, lines []string, csvPath string) error {
	if len(lines) == 0 {
		return fmt.Errorf("no comments to classify")
	}

	results, err := classifier.ClassifyBatch(ctx, lines)
	if err != nil {
		return err
	}

	view.renderBatch(os.Stdout, lines, results)

	if csvPath != "" {
		if err := exportCSV(csvPath, lines, results); err != nil {
			return fmt.Errorf("CSV export failed: %w", err)
		}
		fmt.Printf("\nResults written to %s\n", csvPath)
	}
	return nil
}

// streamStdin pushes stdin lines through the supervised micro-batcher, so
// concurrent submissions coalesce into grouped predictions. Each verdict is
// printed as soon as its batch flushes.
func streamStdin(ctx context.Context, log *slog.Logger, classifier *pipeline.Classifier, monitor *observability.PipelineMonitor, view verdictView, config internal.Config) error {
	batcher, err := workers.NewBatchWorker(log, classifier, monitor, config.BatchSize, config.BatchInterval)
	if err != nil {
		return err
	}

	sup := workers.NewSupervisor(log)
	supDone := make(chan struct{})
	go func() {
		sup.Add(batcher).Run(ctx)
		close(supDone)
	}()
	if err := awaitRunning(ctx, batcher); err != nil {
		return err
	}

	var printMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	// Bound the submissions in flight; the scanner pauses once the window
	// fills instead of reading all of stdin into memory.
	g.SetLimit(config.BatchSize * 4)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if gctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		g.Go(func() error {
			result, err := batcher.Submit(gctx, line)
			if err != nil {
				return err
			}
			printMu.Lock()
			defer printMu.Unlock()
			view.renderStreamLine(os.Stdout, line, result)
			return nil
		})
	}

	submitErr := g.Wait()
	sup.Stop()
	<-supDone

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdin read failed: %w", err)
	}
	if submitErr != nil && ctx.Err() != nil {
		// Interrupted by the operator: not a failure.
		return nil
	}
	return submitErr
}

// awaitRunning blocks until the supervised batcher accepts submissions.
func awaitRunning(ctx context.Context, batcher *workers.BatchWorker) error {
	for !batcher.Running() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	return nil
}

// readLines loads a comment file, skipping blank lines.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return lines, nil
}
