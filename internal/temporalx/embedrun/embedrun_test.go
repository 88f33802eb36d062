package embedrun

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/batch"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
	"github.com/yungbote/roadmap-backend/internal/platform/ratelimit"
)

type memContent struct {
	mu     sync.Mutex
	items  []types.ContentItem
	writes int
}

func (m *memContent) ListPending(_ dbctx.Context, _ string, _, _ int) ([]types.ContentItem, error) {
	return m.items, nil
}

func (m *memContent) UpsertEmbedding(_ dbctx.Context, _ types.EmbeddingWrite) (bool, error) {
	m.mu.Lock()
	m.writes++
	m.mu.Unlock()
	return true, nil
}

type unitEmbedder struct{}

func (unitEmbedder) Embed(context.Context, string, int, string) ([]float32, error) {
	return []float32{0.6, 0.8}, nil
}

func newActivities(t *testing.T, n int) (*Activities, *memContent) {
	t.Helper()
	store := &memContent{}
	for i := 0; i < n; i++ {
		store.items = append(store.items, types.ContentItem{ContentType: "lesson", ContentID: fmt.Sprintf("%02d", i), TextContent: "text"})
	}
	job, err := batch.New(batch.Deps{
		Content:    store,
		Embedder:   unitEmbedder{},
		Log:        logger.Nop(),
		NewLimiter: func(time.Duration) ratelimit.Limiter { return ratelimit.Unlimited() },
	})
	if err != nil {
		t.Fatalf("batch.New: %v", err)
	}
	return &Activities{Log: logger.Nop(), Job: job}, store
}

func params(batchSize int) batch.Params {
	return batch.Params{Model: "test-embed", Dims: 2, BatchSize: batchSize, RatePer1K: batch.DefaultRatePer1K}
}

func register(env *testsuite.TestWorkflowEnvironment, acts *Activities) {
	env.RegisterWorkflowWithOptions(EmbeddingRunWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	env.RegisterActivityWithOptions(acts.RunEmbeddingBatch, activity.RegisterOptions{Name: ActivityRunEmbeddingBatch})
}

func TestWorkflowRunsJobAndHeartbeatsPerBatch(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	acts, store := newActivities(t, 5)
	register(env, acts)

	var mu sync.Mutex
	beats := 0
	env.SetOnActivityHeartbeatListener(func(_ *activity.Info, _ converter.EncodedValues) {
		mu.Lock()
		beats++
		mu.Unlock()
	})

	env.ExecuteWorkflow(EmbeddingRunWorkflow, RunInput{RunID: "run-1", Params: params(2)})
	if !env.IsWorkflowCompleted() {
		t.Fatalf("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	var sum types.EmbeddingRunSummary
	if err := env.GetWorkflowResult(&sum); err != nil {
		t.Fatalf("result: %v", err)
	}
	if sum.RunID != "run-1" || sum.Success != 5 || sum.Failed != 0 {
		t.Fatalf("summary: want run-1 success=5 got=%s success=%d failed=%d", sum.RunID, sum.Success, sum.Failed)
	}
	if len(sum.BatchSizes) != 3 {
		t.Fatalf("batch sizes: want=[2 2 1] got=%v", sum.BatchSizes)
	}
	if store.writes != 5 {
		t.Fatalf("writes: want=5 got=%d", store.writes)
	}
	if beats == 0 {
		t.Fatalf("heartbeats: want at least one")
	}
}

func TestWorkflowConfigurationErrorIsNotRetried(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	acts, store := newActivities(t, 3)
	register(env, acts)

	attempts := 0
	env.SetOnActivityStartedListener(func(*activity.Info, context.Context, converter.EncodedValues) {
		attempts++
	})

	env.ExecuteWorkflow(EmbeddingRunWorkflow, RunInput{RunID: "run-2", Params: params(0)})
	if !env.IsWorkflowCompleted() {
		t.Fatalf("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err == nil {
		t.Fatalf("workflow error: want configuration failure")
	}
	if attempts != 1 {
		t.Fatalf("attempts: want=1 got=%d", attempts)
	}
	if store.writes != 0 {
		t.Fatalf("writes: want=0 got=%d", store.writes)
	}
}

func TestWorkflowRejectsMissingRunID(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	acts, _ := newActivities(t, 1)
	register(env, acts)

	env.ExecuteWorkflow(EmbeddingRunWorkflow, RunInput{Params: params(2)})
	if err := env.GetWorkflowError(); err == nil {
		t.Fatalf("workflow error: want missing run_id")
	}
}

func TestWorkflowIDIsPerModel(t *testing.T) {
	if WorkflowID("text-embedding-3-small") != "embedding-run/text-embedding-3-small" {
		t.Fatalf("WorkflowID: got=%q", WorkflowID("text-embedding-3-small"))
	}
}
