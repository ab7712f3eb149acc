package seq2seq

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// EvaluateLoss returns the mean per-batch loss with teacher forcing off.
// Batches are scored concurrently; weights are only read, so the model is
// shared by every worker. workers <= 0 uses GOMAXPROCS.
func EvaluateLoss(ctx context.Context, m *Model, batches []Batch, workers int) (float64, error) {
	if len(batches) == 0 {
		return 0, nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	losses := make([]float64, len(batches))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range batches {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			losses[i], _ = m.Loss(batches[i], 0, nil, false)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	total := 0.0
	for _, l := range losses {
		total += l
	}
	return total / float64(len(batches)), nil
}
