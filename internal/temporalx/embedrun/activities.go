package embedrun

import (
	"context"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/batch"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/ragerr"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

type Activities struct {
	Log *logger.Logger
	Job *batch.Job
}

func (a *Activities) RunEmbeddingBatch(ctx context.Context, in RunInput) (types.EmbeddingRunSummary, error) {
	if a == nil || a.Job == nil {
		return types.EmbeddingRunSummary{}, temporal.NewNonRetryableApplicationError("embedrun: activity not configured", errTypeConfiguration, nil)
	}
	info := activity.GetInfo(ctx)
	base := a.Log
	if base == nil {
		base = logger.Nop()
	}
	log := base.With("run_id", in.RunID, "attempt", info.Attempt)
	activity.RecordHeartbeat(ctx, batch.Progress{RunID: in.RunID})

	sum, err := a.Job.Run(ctx, in.Params, batch.RunOptions{
		RunID: in.RunID,
		// ctx ends once a cancellation is delivered with a heartbeat response.
		ShouldStop: func() bool { return ctx.Err() != nil },
		OnBatchDone: func(p batch.Progress) {
			activity.RecordHeartbeat(ctx, p)
			log.Debug("embedding batch done", "batch", p.Batch, "batches", p.Batches, "processed", p.Processed, "total", p.Total)
		},
	})
	if err != nil {
		if ragerr.IsConfiguration(err) {
			return sum, temporal.NewNonRetryableApplicationError(err.Error(), errTypeConfiguration, err)
		}
		log.Error("embedding run failed", "error", err)
		return sum, err
	}
	return sum, nil
}
