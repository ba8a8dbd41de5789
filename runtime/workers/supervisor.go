package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tox-lab/contract"
	"tox-lab/errors"
)

// restartDelay spaces two launches of the same crashed worker.
const restartDelay = 200 * time.Millisecond

// Supervisor runs each worker in its own goroutine, turns panics into
// ErrWorkerPanic, restarts crashed workers after a short delay and stops the
// whole group when the parent context is cancelled or Stop is called. A
// worker that returns nil is finished and never restarted.
type Supervisor struct {
	Cancel  context.CancelFunc
	wg      *sync.WaitGroup
	log     *slog.Logger
	workers []contract.Worker
}

func NewSupervisor(log *slog.Logger) *Supervisor {
	return &Supervisor{wg: &sync.WaitGroup{}, log: log}
}

// Add registers workers to launch on Run. Not safe once Run has started.
func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Run launches every registered worker and blocks until all of them have
// finished. The supervisor derives its own cancellation trigger from ctx:
// parent cancellation stops the group, while Stop cancels only the group
// without touching the parent.
func (s *Supervisor) Run(ctx context.Context) {
	supervised, cancel := context.WithCancel(ctx)
	s.Cancel = cancel
	defer s.Cancel()

	for _, worker := range s.workers {
		s.Start(supervised, worker)
	}
	s.wg.Wait()
}

// Start supervises one worker in a dedicated goroutine. A crash, error or
// panic alike, restarts the worker after restartDelay; the supervisor itself
// stays up whatever a worker does.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	name := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Info(fmt.Sprintf("Stopping %s", name))
				return
			}

			err := runShielded(ctx, worker)

			if err == nil {
				s.log.Info(fmt.Sprintf("Worker finished: %s", name))
				return
			}
			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", name)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", name, "error", err)
			select {
			case <-ctx.Done():
				// Priority stop: skip the restart delay.
				return
			case <-time.After(restartDelay):
			}
		}
	}()
}

// runShielded converts a worker panic into ErrWorkerPanic so one bad worker
// cannot take the whole group down with it.
func runShielded(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}

// Stop cancels the supervised group. Run keeps waiting until every worker
// goroutine has drained.
func (s *Supervisor) Stop() {
	if s.Cancel != nil {
		s.Cancel()
	}
}
