//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"tox-lab/domain"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker is a bare run loop. It does not recover from its own panics;
// the supervisor does that for it.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName derives a log-friendly name from the worker's concrete type,
// so implementations never have to carry a Name method.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Recorder receives classification outcomes for aggregate accounting. It
// must never be handed request text: results and failure marks only.
type Recorder interface {
	Record(ctx context.Context, result domain.Result) error
	RecordFailure(ctx context.Context) error
}
