package internal

import (
	"embed"
	"encoding/binary"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgraph-io/badger/v4"

	"tox-lab/domain"
	"tox-lab/observability"
	"tox-lab/stats"
)

//go:embed inspect.html
var templatesFS embed.FS

// InfoProvider returns the artifact currently served. The classifier swaps
// artifacts on reconfiguration, so the page asks every time instead of
// holding a snapshot.
type InfoProvider func() domain.ModelInfo

// CounterRow is one raw counter cell, for the bottom table of the page.
type CounterRow struct {
	Key   string
	Value uint64
}

// PageData feeds inspect.html. The page renders counters and metadata only;
// classified text never reaches it.
type PageData struct {
	Refreshed  string
	Model      domain.ModelInfo
	Usage      stats.UsageStats
	ToxicPct   float64
	AvgLatency string
	Pipeline   observability.PipelineStats
	Counters   []CounterRow
}

// StartInspector serves the HTML dashboard on /inspect and returns
// immediately. The database may be a read-only handle; the page only ever
// issues View transactions.
func StartInspector(log *slog.Logger, db *badger.DB, monitor *observability.PipelineMonitor, info InfoProvider, port int) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))
	mux.HandleFunc("/inspect", inspectHandler(log, db, monitor, info, tmpl))

	go func() {
		// Écoute sur toutes les interfaces pour permettre l'accès réseau
		addr := fmt.Sprintf("0.0.0.0:%d", port)
		log.Info(fmt.Sprintf("🌐 Inspecteur démarré : http://localhost:%d/inspect", port))
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Warn("Inspecteur HTTP arrêté", "error", err)
		}
	}()
}

func inspectHandler(log *slog.Logger, db *badger.DB, monitor *observability.PipelineMonitor, info InfoProvider, tmpl *template.Template) http.HandlerFunc {
	repo := stats.NewRepository(db, log)

	return func(w http.ResponseWriter, r *http.Request) {
		data := PageData{Refreshed: time.Now().Format("15:04:05")}

		if info != nil {
			data.Model = info()
		}

		// Récupération des compteurs persistés pour le dashboard
		if usage, err := repo.Snapshot(r.Context()); err == nil {
			data.Usage = usage
			data.ToxicPct = usage.ToxicRate() * 100
			data.AvgLatency = usage.AverageLatency().Round(time.Microsecond).String()
		} else {
			log.Warn("Lecture des compteurs impossible", "error", err)
		}

		if monitor != nil {
			data.Pipeline = monitor.Snapshot()
		}
		data.Counters = rawCounters(db)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			log.Warn("Rendu de la page inspect impossible", "error", err)
		}
	}
}

// rawCounters lists every persisted cell under the stats namespace.
func rawCounters(db *badger.DB) []CounterRow {
	var rows []CounterRow
	_ = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(stats.KeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			_ = item.Value(func(val []byte) error {
				if len(val) == 8 {
					rows = append(rows, CounterRow{
						Key:   string(item.Key()),
						Value: binary.BigEndian.Uint64(val),
					})
				}
				return nil
			})
		}
		return nil
	})
	return rows
}
