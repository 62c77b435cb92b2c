package transaction

import (
	"context"

	repositories "github.com/cesarpv27/Azure.Repositories-sub001"
)

// Outcome is what a backend reports for one submitted batch: the aggregate result and one status
// code per action, in the same order as the batch's actions. A rejected batch reports the failing
// action's own status and 424 (failed dependency) for the others.
type Outcome struct {
	Succeeded   bool
	StatusCodes []int
	// FailureCode is the backend error code of the action that failed the batch, if known.
	FailureCode string
}

// BatchSubmitter is the backend network call taking one finalized batch. It must not retry; a transport
// failure is returned as the error.
type BatchSubmitter[K comparable, T any] interface {
	SubmitBatch(ctx context.Context, batch Batch[K, T]) (Outcome, error)
}

// BatchSubmitterFunc adapts a function to BatchSubmitter.
type BatchSubmitterFunc[K comparable, T any] func(ctx context.Context, batch Batch[K, T]) (Outcome, error)

// SubmitBatch calls f.
func (f BatchSubmitterFunc[K, T]) SubmitBatch(ctx context.Context, batch Batch[K, T]) (Outcome, error) {
	return f(ctx, batch)
}

// Submission is the result of submitting one batch.
type Submission[K comparable, T any] struct {
	Batch   Batch[K, T]
	Outcome Outcome
	Err     error
}

// SubmitBatches submits each batch exactly once, at most maxConcurrency at a time, and returns the
// submissions in batch order. A failing batch does not stop the others.
func SubmitBatches[K comparable, T any](ctx context.Context, submitter BatchSubmitter[K, T], batches []Batch[K, T], maxConcurrency int) []Submission[K, T] {
	r := make([]Submission[K, T], len(batches))
	if len(batches) == 0 {
		return r
	}
	if maxConcurrency > len(batches) {
		maxConcurrency = len(batches)
	}
	tr := repositories.NewTaskRunner(ctx, maxConcurrency)
	for i := range batches {
		i := i
		tr.Go(func() error {
			o, err := submitter.SubmitBatch(ctx, batches[i])
			r[i] = Submission[K, T]{
				Batch:   batches[i],
				Outcome: o,
				Err:     err,
			}
			return nil
		})
	}
	tr.Wait()
	return r
}
