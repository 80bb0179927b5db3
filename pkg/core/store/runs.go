package store

import (
	"context"
	"fmt"

	"zeno_agent/pkg/core/retry"
)

// RunRepo records runs and steps, retrying each insert.
type RunRepo struct {
	writer  RunWriter
	retryer *retry.Retryer
}

func NewRunRepo(writer RunWriter, retryer *retry.Retryer) *RunRepo {
	return &RunRepo{writer: writer, retryer: retryer}
}

// Record writes the run followed by its steps in order.
func (r *RunRepo) Record(ctx context.Context, run Run, steps []Step) error {
	if err := r.retryer.Do(ctx, func(ctx context.Context) error {
		return r.writer.InsertRun(ctx, run)
	}); err != nil {
		return fmt.Errorf("log run %s: %w", run.ID, err)
	}
	for _, st := range steps {
		st.RunID = run.ID
		if err := r.retryer.Do(ctx, func(ctx context.Context) error {
			return r.writer.InsertStep(ctx, st)
		}); err != nil {
			return fmt.Errorf("log step %d of run %s: %w", st.Order, run.ID, err)
		}
	}
	return nil
}
