package embedrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	types "github.com/yungbote/roadmap-backend/internal/domain"
)

// EmbeddingRunWorkflow runs one batch embedding pass as a single heartbeating activity.
// Cancelling the workflow stops the job at its next batch boundary.
func EmbeddingRunWorkflow(ctx workflow.Context, in RunInput) (types.EmbeddingRunSummary, error) {
	if strings.TrimSpace(in.RunID) == "" {
		return types.EmbeddingRunSummary{}, fmt.Errorf("embedrun: missing run_id")
	}

	retry := &temporal.RetryPolicy{
		InitialInterval:        10 * time.Second,
		BackoffCoefficient:     2,
		MaximumInterval:        5 * time.Minute,
		MaximumAttempts:        3,
		NonRetryableErrorTypes: []string{errTypeConfiguration},
	}
	// A heartbeat lands after every batch, so one batch must finish inside HeartbeatTimeout.
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 12 * time.Hour,
		HeartbeatTimeout:    5 * time.Minute,
		WaitForCancellation: true,
		RetryPolicy:         retry,
	})

	logger := workflow.GetLogger(ctx)
	logger.Info("embedding run starting", "run_id", in.RunID, "model", in.Params.Model)

	var sum types.EmbeddingRunSummary
	err := workflow.ExecuteActivity(ctx, ActivityRunEmbeddingBatch, in).Get(ctx, &sum)
	if err != nil {
		return sum, err
	}
	logger.Info("embedding run finished", "run_id", sum.RunID, "success", sum.Success, "failed", sum.Failed, "stopped", sum.Stopped)
	return sum, nil
}
