package repositories

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// TaskRunner runs tasks concurrently with at most maxThreadCount of them in flight.
// The first task error cancels the runner's context.
type TaskRunner struct {
	maxThreadCount int
	eg             *errgroup.Group
	limiterChan    chan struct{}
	context        context.Context
}

// NewTaskRunner returns a TaskRunner. maxThreadCount <= 0 is treated as 1.
func NewTaskRunner(ctx context.Context, maxThreadCount int) *TaskRunner {
	if maxThreadCount <= 0 {
		maxThreadCount = 1
	}
	eg, ctx2 := errgroup.WithContext(ctx)
	return &TaskRunner{
		maxThreadCount: maxThreadCount,
		limiterChan:    make(chan struct{}, maxThreadCount),
		eg:             eg,
		context:        ctx2,
	}
}

// GetContext returns the runner's context, canceled when a task fails or Wait returns.
func (tr *TaskRunner) GetContext() context.Context {
	return tr.context
}

// Go schedules task, blocking while all thread slots are occupied.
func (tr *TaskRunner) Go(task func() error) {
	// Occupy a thread slot.
	tr.limiterChan <- struct{}{}
	tr.eg.Go(func() error {
		// Free up this thread slot.
		defer func() { <-tr.limiterChan }()
		return task()
	})
}

// Wait is a wrapper to errgroup.Wait.
func (tr *TaskRunner) Wait() error {
	return tr.eg.Wait()
}
