package internal

import (
	"context"
	"html/template"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"tox-lab/domain"
	"tox-lab/observability"
	"tox-lab/stats"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInspectHandler_RendersDashboard(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	db := openTestDB(t)

	repo := stats.NewRepository(db, log)
	result := domain.Result{
		Scores: []domain.CategoryScore{
			{Category: domain.CategoryToxic, Probability: 0.92, Flagged: true},
		},
		IsToxic:   true,
		Threshold: 0.5,
		Severity:  []domain.Category{domain.CategoryToxic},
		Variant:   domain.VariantLegacy,
		Elapsed:   3 * time.Millisecond,
	}
	req.NoError(repo.Record(context.Background(), result))

	monitor := observability.NewPipelineMonitor(log)
	monitor.ObserveResult(result)
	monitor.UpdateQueue(2, 32)

	info := func() domain.ModelInfo {
		return domain.ModelInfo{
			Variant:    domain.VariantLegacy,
			Path:       "testdata-model",
			InstanceID: uuid.New(),
			Categories: domain.Categories(),
			LoadedAt:   time.Now(),
		}
	}

	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))
	handler := inspectHandler(log, db, monitor, info, tmpl)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/inspect", nil))

	req.Equal(200, rec.Code)
	body := rec.Body.String()
	req.Contains(body, "tox-lab inspector")
	req.Contains(body, "legacy")
	req.Contains(body, "stats:classified")
	req.Contains(body, "TOXIC")
	req.Contains(body, "2/32")
}

func TestInspectHandler_EmptyDatabase(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	db := openTestDB(t)

	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))
	handler := inspectHandler(log, db, nil, nil, tmpl)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/inspect", nil))

	req.Equal(200, rec.Code)
	body := rec.Body.String()
	req.Contains(body, "nothing classified yet")
	req.Contains(body, "empty database")
}

func TestRawCounters(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := stats.NewRepository(db, slog.Default())

	req.NoError(repo.RecordFailure(context.Background()))

	rows := rawCounters(db)
	req.Len(rows, 1)
	req.Equal("stats:failed", rows[0].Key)
	req.Equal(uint64(1), rows[0].Value)
}
