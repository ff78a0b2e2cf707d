package internal

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const DefaultWorkers = 4

type TaskKind string

const (
	TaskAsk    TaskKind = "ask"
	TaskIngest TaskKind = "ingest"
)

// TaskResult is what a caller renders. Text is always set, also on failure.
type TaskResult struct {
	ID      string
	Kind    TaskKind
	Text    string
	Flagged bool
	Err     error
}

// Dispatcher runs asks and ingestions as independent background tasks so a
// caller's event loop never blocks. Each task delivers exactly one result on
// its channel and, if given, to the callback.
type Dispatcher struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger logrus.FieldLogger
}

func NewDispatcher(workers int, logger logrus.FieldLogger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Dispatcher{
		sem:    semaphore.NewWeighted(int64(workers)),
		logger: orDiscard(logger),
	}
}

func (d *Dispatcher) Ask(ctx context.Context, session *Session, text string, capture CaptureMode, img *Image, callback func(TaskResult)) <-chan TaskResult {
	return d.run(ctx, TaskAsk, "Error processing request", callback, func(ctx context.Context) (TaskResult, error) {
		out, err := session.Ask(ctx, text, capture, img)
		if err != nil {
			return TaskResult{}, err
		}
		return TaskResult{Text: out.Answer, Flagged: out.Flagged}, nil
	})
}

func (d *Dispatcher) Ingest(ctx context.Context, uc *IngestUseCase, input IngestInput, callback func(TaskResult)) <-chan TaskResult {
	return d.run(ctx, TaskIngest, "Ingestion failed", callback, func(ctx context.Context) (TaskResult, error) {
		out, err := uc.Execute(ctx, input)
		if err != nil {
			return TaskResult{}, err
		}

		lines := make([]string, 0, len(out.Results))
		for _, r := range out.Results {
			lines = append(lines, IngestSummary(r))
		}
		if len(lines) == 0 {
			lines = append(lines, NoContentSummary)
		}
		return TaskResult{Text: strings.Join(lines, "\n")}, nil
	})
}

func (d *Dispatcher) run(
	ctx context.Context,
	kind TaskKind,
	failPrefix string,
	callback func(TaskResult),
	fn func(context.Context) (TaskResult, error),
) <-chan TaskResult {
	id := uuid.NewString()
	ch := make(chan TaskResult, 1)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(ch)

		res := d.execute(ctx, fn)
		res.ID = id
		res.Kind = kind
		if res.Err != nil {
			res.Text = fmt.Sprintf("%s: %v", failPrefix, res.Err)
			d.logger.WithError(res.Err).WithFields(logrus.Fields{"task": id, "kind": kind}).Warn("task failed")
		}

		if callback != nil {
			callback(res)
		}
		ch <- res
	}()

	return ch
}

func (d *Dispatcher) execute(ctx context.Context, fn func(context.Context) (TaskResult, error)) (res TaskResult) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return TaskResult{Err: err}
	}
	defer d.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			res = TaskResult{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	res, err := fn(ctx)
	if err != nil {
		return TaskResult{Err: err}
	}
	return res
}

// Wait blocks until every submitted task has delivered its result.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
