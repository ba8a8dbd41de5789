package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"tox-lab/domain"
	"tox-lab/errors"
	"tox-lab/observability"
)

// BatchClassifier is the slice of the classification façade the batcher
// needs.
type BatchClassifier interface {
	ClassifyBatch(ctx context.Context, texts []string) ([]domain.Result, error)
}

type submission struct {
	text  string
	reply chan outcome
}

type outcome struct {
	result domain.Result
	err    error
}

// BatchWorker coalesces concurrent Submit calls into grouped ClassifyBatch
// invocations: a flush happens as soon as size texts wait, or when the
// interval ticks with anything pending. One supervised goroutine owns the
// queue, so under load the backend sees a few grouped predictions instead of
// a storm of single ones.
type BatchWorker struct {
	log      *slog.Logger
	classify BatchClassifier
	monitor  *observability.PipelineMonitor
	size     int
	interval time.Duration

	requests chan submission

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

// NewBatchWorker builds a batcher flushing every size texts or every
// interval, whichever comes first. The monitor may be nil when queue depth
// reporting is not wanted.
func NewBatchWorker(log *slog.Logger, classifier BatchClassifier, monitor *observability.PipelineMonitor, size int, interval time.Duration) (*BatchWorker, error) {
	if size < 1 {
		return nil, errors.NewConfigurationError("batch_size", "must be at least 1")
	}
	if interval <= 0 {
		return nil, errors.NewConfigurationError("batch_interval", "must be positive")
	}
	return &BatchWorker{
		log:      log,
		classify: classifier,
		monitor:  monitor,
		size:     size,
		interval: interval,
		requests: make(chan submission),
	}, nil
}

// Running reports whether the worker currently accepts submissions.
func (w *BatchWorker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Submit hands one text to the batcher and blocks until its verdict comes
// back, the caller's context ends, or the worker shuts down. Safe for
// concurrent use from any number of goroutines.
func (w *BatchWorker) Submit(ctx context.Context, text string) (domain.Result, error) {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return domain.Result{}, errors.ErrBatchClosed
	}
	stop := w.stop
	w.mu.Unlock()

	sub := submission{text: text, reply: make(chan outcome, 1)}

	select {
	case w.requests <- sub:
	case <-ctx.Done():
		return domain.Result{}, ctx.Err()
	case <-stop:
		return domain.Result{}, errors.ErrBatchClosed
	}

	select {
	case out := <-sub.reply:
		return out.result, out.err
	case <-ctx.Done():
		return domain.Result{}, ctx.Err()
	case <-stop:
		// A flush can deliver its verdicts right before shutdown; prefer a
		// real outcome over the closed error when both are ready.
		select {
		case out := <-sub.reply:
			return out.result, out.err
		default:
			return domain.Result{}, errors.ErrBatchClosed
		}
	}
}

// Run owns the queue until ctx ends. Submissions still waiting at shutdown
// are refused with ErrBatchClosed rather than silently dropped.
func (w *BatchWorker) Run(ctx context.Context) error {
	w.mu.Lock()
	stop := make(chan struct{})
	w.stop = stop
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(stop)
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	pending := make([]submission, 0, w.size)
	w.gauge(0)

	for {
		select {
		case <-ctx.Done():
			w.refuse(pending)
			return ctx.Err()
		case sub := <-w.requests:
			pending = append(pending, sub)
			w.gauge(len(pending))
			if len(pending) >= w.size {
				pending = w.flush(ctx, pending)
			}
		case <-ticker.C:
			pending = w.flush(ctx, pending)
		}
	}
}

// flush classifies everything pending as one batch and answers every
// submitter. The backing array is reused between flushes.
func (w *BatchWorker) flush(ctx context.Context, pending []submission) []submission {
	if len(pending) == 0 {
		return pending
	}

	texts := lo.Map(pending, func(sub submission, _ int) string { return sub.text })
	results, err := w.classify.ClassifyBatch(ctx, texts)
	if err != nil {
		for _, sub := range pending {
			sub.reply <- outcome{err: err}
		}
	} else {
		for i, sub := range pending {
			sub.reply <- outcome{result: results[i]}
		}
	}

	w.log.Debug("Batch flushed", "texts", len(pending), "failed", err != nil)
	w.gauge(0)
	return pending[:0]
}

func (w *BatchWorker) refuse(pending []submission) {
	for _, sub := range pending {
		sub.reply <- outcome{err: errors.ErrBatchClosed}
	}
	w.gauge(0)
}

func (w *BatchWorker) gauge(pending int) {
	if w.monitor != nil {
		w.monitor.UpdateQueue(pending, uint32(w.size))
	}
}
