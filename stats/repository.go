package stats

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tox-lab/domain"

	"github.com/dgraph-io/badger/v4"
)

// KeyPrefix namespaces every counter cell so the inspection tools can tell
// them apart from anything else sharing the database.
const KeyPrefix = "stats:"

const (
	keyClassified = "stats:classified"
	keyToxic      = "stats:toxic"
	keyDegraded   = "stats:degraded"
	keyFailed     = "stats:failed"
	keyElapsedNs  = "stats:elapsed_ns"

	categoryKeyPrefix = "stats:category:"
	variantKeyPrefix  = "stats:variant:"
)

// UsageStats is the cumulative classification ledger read back from disk.
type UsageStats struct {
	Classified    uint64
	Toxic         uint64
	Degraded      uint64
	Failed        uint64
	CategoryFlags map[domain.Category]uint64
	Variants      map[domain.Variant]uint64
	TotalElapsed  time.Duration
}

// AverageLatency returns the mean time spent per classified text.
func (s UsageStats) AverageLatency() time.Duration {
	if s.Classified == 0 {
		return 0
	}
	return s.TotalElapsed / time.Duration(s.Classified)
}

// ToxicRate returns the share of classified texts that were flagged toxic.
func (s UsageStats) ToxicRate() float64 {
	if s.Classified == 0 {
		return 0
	}
	return float64(s.Toxic) / float64(s.Classified)
}

// Repository persists classification tallies in BadgerDB as big-endian
// uint64 cells, one key per counter. It satisfies contract.Recorder and
// never sees the classified text itself.
type Repository struct {
	db  *badger.DB
	log *slog.Logger

	// Writers share the same counter cells; serializing them keeps badger's
	// optimistic transactions from aborting with ErrConflict.
	mu sync.Mutex
}

func NewRepository(db *badger.DB, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log}
}

// Record folds one verdict into the persistent counters.
func (r *Repository) Record(ctx context.Context, result domain.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deltas := map[string]uint64{
		keyClassified: 1,
		keyElapsedNs:  uint64(result.Elapsed.Nanoseconds()),
	}
	if result.IsToxic {
		deltas[keyToxic] = 1
	}
	if result.Degraded {
		deltas[keyDegraded] = 1
	}
	if result.Variant != "" {
		deltas[variantKeyPrefix+string(result.Variant)] = 1
	}
	for _, score := range result.Scores {
		if score.Flagged {
			deltas[categoryKeyPrefix+string(score.Category)] = 1
		}
	}

	return r.add(deltas)
}

// RecordFailure counts a classification that returned an error.
func (r *Repository) RecordFailure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.add(map[string]uint64{keyFailed: 1})
}

func (r *Repository) add(deltas map[string]uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.db.Update(func(txn *badger.Txn) error {
		for key, delta := range deltas {
			current, err := readCounter(txn, key)
			if err != nil {
				return err
			}
			var cell [8]byte
			binary.BigEndian.PutUint64(cell[:], current+delta)
			if err := txn.Set([]byte(key), cell[:]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Snapshot reads every counter back into one coherent view.
func (r *Repository) Snapshot(ctx context.Context) (UsageStats, error) {
	if err := ctx.Err(); err != nil {
		return UsageStats{}, err
	}

	stats := UsageStats{
		CategoryFlags: make(map[domain.Category]uint64, domain.CategoryCount),
		Variants:      make(map[domain.Variant]uint64),
	}
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		if stats.Classified, err = readCounter(txn, keyClassified); err != nil {
			return err
		}
		if stats.Toxic, err = readCounter(txn, keyToxic); err != nil {
			return err
		}
		if stats.Degraded, err = readCounter(txn, keyDegraded); err != nil {
			return err
		}
		if stats.Failed, err = readCounter(txn, keyFailed); err != nil {
			return err
		}

		elapsed, err := readCounter(txn, keyElapsedNs)
		if err != nil {
			return err
		}
		stats.TotalElapsed = time.Duration(elapsed)

		for _, c := range domain.Categories() {
			n, err := readCounter(txn, categoryKeyPrefix+string(c))
			if err != nil {
				return err
			}
			stats.CategoryFlags[c] = n
		}

		return scanVariants(txn, stats.Variants)
	})
	if err != nil {
		return UsageStats{}, err
	}
	return stats, nil
}

// scanVariants collects the per-variant counters with a prefix scan, so new
// variants show up without a schema change.
func scanVariants(txn *badger.Txn, out map[domain.Variant]uint64) error {
	prefix := []byte(variantKeyPrefix)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		variant := domain.Variant(item.Key()[len(prefix):])
		err := item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("counter %s holds %d bytes, want 8", item.Key(), len(val))
			}
			out[variant] = binary.BigEndian.Uint64(val)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func readCounter(txn *badger.Txn, key string) (uint64, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var value uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("counter %s holds %d bytes, want 8", key, len(val))
		}
		value = binary.BigEndian.Uint64(val)
		return nil
	})
	return value, err
}
