package pipeline

import (
	"context"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// RunBatch processes paths with up to workers in flight. All invoices share
// one snapshot and results come back in input order.
func (r *Runner) RunBatch(ctx context.Context, paths []string, workers int) []*entity.PipelineResult {
	results := make([]*entity.PipelineResult, len(paths))
	if len(paths) == 0 {
		return results
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	snap, snapErr := r.snapshots.LoadSnapshot(ctx)
	if snapErr != nil {
		r.logger.Error("Failed to load snapshot for batch", zap.Error(snapErr))
	}

	p := pool.New().WithMaxGoroutines(workers)
	for i := range paths {
		p.Go(func() {
			results[i] = r.run(ctx, paths[i], snap, snapErr)
		})
	}
	p.Wait()

	r.logger.Info("Batch complete",
		zap.Int("invoices", len(paths)),
		zap.Int("workers", workers))
	return results
}
