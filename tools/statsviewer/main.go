package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"

	"tox-lab/domain"
	"tox-lab/stats"
)

func main() {
	dbPath := flag.String("db", "data/stats", "Path to the badger stats database")
	// Par défaut on scanne "stats:" pour ne lister que les compteurs
	prefix := flag.String("prefix", stats.KeyPrefix, "Key prefix to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening the stats database: ", err)
	}
	defer db.Close()

	fmt.Println(banner(" RAW COUNTERS "))
	if err := renderCells(db, *prefix); err != nil {
		log.Fatal(err)
	}

	fmt.Println()

	fmt.Println(banner(" SUMMARY "))
	if err := renderSummary(db); err != nil {
		log.Fatal(err)
	}
}

func banner(s string) string {
	return color.New(color.BgBlack, color.FgGreen).Render(s)
}

// renderCells lists every raw counter cell under the prefix, decoded from
// its big-endian representation.
func renderCells(db *badger.DB, prefix string) error {
	table := newTable([]string{"Key", "Value", "Detail"})

	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			rawKey := string(item.Key())

			err := item.Value(func(v []byte) error {
				if len(v) != 8 {
					// Une cellule corrompue ne doit pas bloquer la lecture des autres
					fmt.Printf("Skipping key %s: %d bytes, want 8\n", rawKey, len(v))
					return nil
				}

				value := binary.BigEndian.Uint64(v)

				detail := ""
				if strings.HasSuffix(rawKey, "elapsed_ns") {
					detail = time.Duration(value).Round(time.Millisecond).String()
				}

				table.Append([]string{
					rawKey,
					fmt.Sprintf("%d", value),
					detail,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	table.Render()
	return nil
}

// renderSummary reads the counters back through the repository and prints
// the derived view: rates, latency, per-category and per-variant tallies.
func renderSummary(db *badger.DB) error {
	repo := stats.NewRepository(db, logs.GetLoggerFromLevel(slog.LevelError))
	usage, err := repo.Snapshot(context.Background())
	if err != nil {
		return err
	}

	table := newTable([]string{"Metric", "Value"})
	table.Append([]string{"Classified", fmt.Sprintf("%d", usage.Classified)})
	table.Append([]string{"Toxic", fmt.Sprintf("%d (%.1f%%)", usage.Toxic, usage.ToxicRate()*100)})
	table.Append([]string{"Degraded", fmt.Sprintf("%d", usage.Degraded)})
	table.Append([]string{"Failed", fmt.Sprintf("%d", usage.Failed)})
	table.Append([]string{"Avg latency", usage.AverageLatency().Round(time.Microsecond).String()})

	for _, c := range domain.Categories() {
		if n := usage.CategoryFlags[c]; n > 0 {
			table.Append([]string{fmt.Sprintf("Flagged %s", c), fmt.Sprintf("%d", n)})
		}
	}

	variants := make([]string, 0, len(usage.Variants))
	for v := range usage.Variants {
		variants = append(variants, string(v))
	}
	sort.Strings(variants)
	for _, v := range variants {
		table.Append([]string{fmt.Sprintf("Variant %s", v), fmt.Sprintf("%d", usage.Variants[domain.Variant(v)])})
	}

	table.Render()
	return nil
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
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

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		// Le mode read-only refuse de tronquer : on répare via un open
		// en écriture, puis on réouvre proprement
		if strings.Contains(err.Error(), "Log truncate required") {
			fmt.Println("⚠️  Value log needs truncation, repairing before read-only open")

			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}

			db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
