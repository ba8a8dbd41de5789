package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tox-lab/domain"
	"tox-lab/errors"
	"tox-lab/observability"

	"github.com/stretchr/testify/require"
)

// scriptedClassifier records every batch it receives and answers each text
// with a result whose Threshold carries the text length, so tests can check
// that replies reach the right submitter.
type scriptedClassifier struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (s *scriptedClassifier) ClassifyBatch(ctx context.Context, texts []string) ([]domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches = append(s.batches, append([]string(nil), texts...))
	if s.err != nil {
		return nil, s.err
	}

	results := make([]domain.Result, len(texts))
	for i, text := range texts {
		results[i] = domain.Result{
			Threshold: float64(len(text)),
			Variant:   domain.VariantLegacy,
		}
	}
	return results, nil
}

func (s *scriptedClassifier) seen() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]string, len(s.batches))
	copy(out, s.batches)
	return out
}

// startWorker runs w until the test ends and blocks until the worker
// accepts submissions.
func startWorker(t *testing.T, w *BatchWorker) context.CancelFunc {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Log("batch worker did not stop in time")
		}
	})

	deadline := time.Now().Add(time.Second)
	for !w.Running() {
		if time.Now().After(deadline) {
			t.Fatal("batch worker did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cancel
}

func TestBatchWorker_CoalescesConcurrentSubmissions(t *testing.T) {
	req := require.New(t)
	classifier := &scriptedClassifier{}
	w, err := NewBatchWorker(slog.Default(), classifier, nil, 4, time.Minute)
	req.NoError(err)
	startWorker(t, w)

	texts := []string{"a", "bb", "ccc", "dddd"}
	results := make([]domain.Result, len(texts))
	errs := make([]error, len(texts))

	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = w.Submit(context.Background(), text)
		}()
	}
	wg.Wait()

	for i, text := range texts {
		req.NoError(errs[i])
		req.Equal(float64(len(text)), results[i].Threshold)
		req.Equal(domain.VariantLegacy, results[i].Variant)
	}

	// The four submissions went through the backend as a single batch.
	batches := classifier.seen()
	req.Len(batches, 1)
	req.ElementsMatch(texts, batches[0])
}

func TestBatchWorker_IntervalFlushesPartialBatch(t *testing.T) {
	req := require.New(t)
	classifier := &scriptedClassifier{}
	w, err := NewBatchWorker(slog.Default(), classifier, nil, 100, 50*time.Millisecond)
	req.NoError(err)
	startWorker(t, w)

	texts := []string{"hi", "yo"}
	errs := make([]error, len(texts))

	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = w.Submit(context.Background(), text)
		}()
	}
	wg.Wait()

	// The batch never filled up: only the ticker can have answered.
	req.NoError(errs[0])
	req.NoError(errs[1])

	total := 0
	for _, batch := range classifier.seen() {
		total += len(batch)
	}
	req.Equal(2, total)
}

func TestBatchWorker_SubmitBeforeRunIsRefused(t *testing.T) {
	req := require.New(t)
	w, err := NewBatchWorker(slog.Default(), &scriptedClassifier{}, nil, 4, time.Second)
	req.NoError(err)

	_, err = w.Submit(context.Background(), "too early")

	req.ErrorIs(err, errors.ErrBatchClosed)
}

func TestBatchWorker_ShutdownRefusesQueuedTexts(t *testing.T) {
	req := require.New(t)
	classifier := &scriptedClassifier{}
	monitor := observability.NewPipelineMonitor(slog.Default())
	w, err := NewBatchWorker(slog.Default(), classifier, monitor, 10, time.Minute)
	req.NoError(err)
	cancel := startWorker(t, w)

	errCh := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background(), "stuck in the queue")
		errCh <- err
	}()

	// Wait until the text sits in the pending batch.
	deadline := time.Now().Add(time.Second)
	for monitor.GetLatest().PendingTexts == 0 {
		req.False(time.Now().After(deadline), "text never reached the queue")
		time.Sleep(5 * time.Millisecond)
	}

	cancel()

	select {
	case err := <-errCh:
		req.ErrorIs(err, errors.ErrBatchClosed)
	case <-time.After(time.Second):
		req.Fail("queued Submit should have been refused at shutdown")
	}

	_, err = w.Submit(context.Background(), "after shutdown")
	req.ErrorIs(err, errors.ErrBatchClosed)
}

func TestBatchWorker_ClassifierErrorReachesEverySubmitter(t *testing.T) {
	req := require.New(t)
	errBackend := fmt.Errorf("backend down")
	classifier := &scriptedClassifier{err: errBackend}
	w, err := NewBatchWorker(slog.Default(), classifier, nil, 2, time.Minute)
	req.NoError(err)
	startWorker(t, w)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = w.Submit(context.Background(), "doomed")
		}()
	}
	wg.Wait()

	req.ErrorIs(errs[0], errBackend)
	req.ErrorIs(errs[1], errBackend)
}

func TestBatchWorker_CallerCancellationUnblocksSubmit(t *testing.T) {
	req := require.New(t)
	classifier := &scriptedClassifier{}
	monitor := observability.NewPipelineMonitor(slog.Default())
	w, err := NewBatchWorker(slog.Default(), classifier, monitor, 5, time.Minute)
	req.NoError(err)
	startWorker(t, w)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := w.Submit(ctx, "never answered")
		errCh <- err
	}()

	deadline := time.Now().Add(time.Second)
	for monitor.GetLatest().PendingTexts == 0 {
		req.False(time.Now().After(deadline), "text never reached the queue")
		time.Sleep(5 * time.Millisecond)
	}

	cancel()

	select {
	case err := <-errCh:
		req.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		req.Fail("Submit should have given up with its caller")
	}
}

func TestBatchWorker_PublishesQueueDepth(t *testing.T) {
	req := require.New(t)
	classifier := &scriptedClassifier{}
	monitor := observability.NewPipelineMonitor(slog.Default())
	w, err := NewBatchWorker(slog.Default(), classifier, monitor, 2, time.Minute)
	req.NoError(err)
	startWorker(t, w)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = w.Submit(context.Background(), "measured")
		}()
	}
	wg.Wait()

	req.NoError(errs[0])
	req.NoError(errs[1])

	stats := monitor.GetLatest()
	req.Equal(uint32(2), stats.BatchCapacity)
	req.Zero(stats.PendingTexts)
}

func TestNewBatchWorker_RejectsBadSettings(t *testing.T) {
	t.Run("zero size", func(t *testing.T) {
		req := require.New(t)
		_, err := NewBatchWorker(slog.Default(), &scriptedClassifier{}, nil, 0, time.Second)
		req.Error(err)
		req.True(errors.IsConfigurationError(err))
	})

	t.Run("zero interval", func(t *testing.T) {
		req := require.New(t)
		_, err := NewBatchWorker(slog.Default(), &scriptedClassifier{}, nil, 4, 0)
		req.Error(err)
		req.True(errors.IsConfigurationError(err))
	})
}

func TestBatchWorker_UnderSupervision(t *testing.T) {
	req := require.New(t)
	classifier := &scriptedClassifier{}
	w, err := NewBatchWorker(slog.Default(), classifier, nil, 1, 50*time.Millisecond)
	req.NoError(err)

	sup := NewSupervisor(slog.Default())
	done := make(chan struct{})
	go func() {
		sup.Add(w).Run(context.Background())
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for !w.Running() {
		req.False(time.Now().After(deadline), "supervised batcher never started")
		time.Sleep(5 * time.Millisecond)
	}

	res, err := w.Submit(context.Background(), "supervised text")
	req.NoError(err)
	req.Equal(float64(len("supervised text")), res.Threshold)

	sup.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		req.Fail("supervisor should have drained after Stop()")
	}

	_, err = w.Submit(context.Background(), "after stop")
	req.ErrorIs(err, errors.ErrBatchClosed)
}
