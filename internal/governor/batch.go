package governor

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"sttmforge/internal/logging"
)

// BatchResult pairs a task with how it ended.
type BatchResult struct {
	Task    Task
	Outcome *Outcome
	Err     error
}

// RunBatch runs tasks with at most limit in flight. Tasks are independent:
// one task failing does not cancel the others. Results keep input order.
func RunBatch(ctx context.Context, g *Governor, tasks []Task, limit int) []BatchResult {
	if limit < 1 {
		limit = 1
	}
	timer := logging.StartTimer(logging.CategoryBatch, "batch")
	defer timer.Stop()

	results := make([]BatchResult, len(tasks))
	var eg errgroup.Group
	eg.SetLimit(limit)

	for i, task := range tasks {
		eg.Go(func() error {
			start := time.Now()
			out, err := g.Run(ctx, task)
			results[i] = BatchResult{Task: task, Outcome: out, Err: err}
			logging.BatchDebug("task %s (%s) finished in %v: err=%v", task.ID, task.Policy, time.Since(start), err)
			return nil
		})
	}
	_ = eg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Outcome != nil && r.Outcome.Succeeded() {
			succeeded++
		}
	}
	logging.Batch("batch complete: %d/%d tasks succeeded (limit=%d)", succeeded, len(tasks), limit)
	return results
}
