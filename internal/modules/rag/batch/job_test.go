package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/roadmap-backend/internal/data/repos"
	"github.com/yungbote/roadmap-backend/internal/data/repos/testutil"
	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/ragerr"
	"github.com/yungbote/roadmap-backend/internal/platform/artifacts"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
	"github.com/yungbote/roadmap-backend/internal/platform/ratelimit"
)

const testModel = "test-embed"

type memContent struct {
	items   []types.ContentItem
	failIDs map[string]bool
	writes  []types.EmbeddingWrite
}

func (m *memContent) ListPending(_ dbctx.Context, _ string, _, limit int) ([]types.ContentItem, error) {
	if limit > 0 && limit < len(m.items) {
		return m.items[:limit], nil
	}
	return m.items, nil
}

func (m *memContent) UpsertEmbedding(_ dbctx.Context, w types.EmbeddingWrite) (bool, error) {
	if m.failIDs[w.ContentID] {
		return false, errors.New("write conflict")
	}
	m.writes = append(m.writes, w)
	return true, nil
}

type fakeEmbedder struct {
	mu      sync.Mutex
	calls   int
	texts   []string
	at      []time.Time
	failOn  string
	panicOn string
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string, _ int, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.texts = append(f.texts, text)
	f.at = append(f.at, time.Now())
	f.mu.Unlock()
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("embedding api 500")
	}
	if f.panicOn != "" && strings.Contains(text, f.panicOn) {
		panic("nil pointer in client")
	}
	return []float32{0.6, 0.8}, nil
}

type countingLimiter struct{ waits, dones int }

func (c *countingLimiter) Wait(ctx context.Context) error {
	c.waits++
	return ctx.Err()
}

func (c *countingLimiter) Done() { c.dones++ }

type limiters struct {
	item  *countingLimiter
	batch *countingLimiter
}

func (l *limiters) factory(time.Duration) ratelimit.Limiter {
	l.item = &countingLimiter{}
	return l.item
}

func (l *limiters) gap(time.Duration) ratelimit.Gap {
	l.batch = &countingLimiter{}
	return l.batch
}

func unlimited(time.Duration) ratelimit.Limiter { return ratelimit.Unlimited() }

func noGap(time.Duration) ratelimit.Gap { return ratelimit.After(0) }

func pendingItems(n int) []types.ContentItem {
	out := make([]types.ContentItem, n)
	for i := range out {
		out[i] = types.ContentItem{ContentType: "lesson", ContentID: fmt.Sprintf("%03d", i), TextContent: fmt.Sprintf("lesson %03d body", i)}
	}
	return out
}

func testParams() Params {
	return Params{
		Model:         testModel,
		Dims:          2,
		BatchSize:     20,
		ItemInterval:  time.Millisecond,
		BatchInterval: time.Second,
		RatePer1K:     DefaultRatePer1K,
	}
}

func newJob(t *testing.T, deps Deps) *Job {
	t.Helper()
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	j, err := New(deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return j
}

func TestRunBatchesAndRecoversPerItem(t *testing.T) {
	items := pendingItems(45)
	items[3].TextContent = "   \n\t "
	items[10].TextContent = "lesson boom"
	content := &memContent{items: items, failIDs: map[string]bool{"030": true}}
	emb := &fakeEmbedder{failOn: "boom", panicOn: "lesson 040"}
	lims := &limiters{}
	j := newJob(t, Deps{Content: content, Embedder: emb, NewLimiter: lims.factory, NewGap: lims.gap})

	var progress []Progress
	sum, err := j.Run(context.Background(), testParams(), RunOptions{OnBatchDone: func(p Progress) { progress = append(progress, p) }})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if fmt.Sprint(sum.BatchSizes) != "[20 20 5]" {
		t.Fatalf("batch sizes: want=[20 20 5] got=%v", sum.BatchSizes)
	}
	if sum.Total != 45 || sum.Success+sum.Failed != 45 {
		t.Fatalf("counts: total=%d success=%d failed=%d", sum.Total, sum.Success, sum.Failed)
	}
	// normalize, embed, store and panic failures
	if sum.Failed != 4 || sum.Success != 41 {
		t.Fatalf("failed: want=4 got=%d success=%d", sum.Failed, sum.Success)
	}
	if len(content.writes) != 41 {
		t.Fatalf("writes: want=41 got=%d", len(content.writes))
	}
	if len(progress) != 3 || progress[2].Processed != 45 || progress[0].BatchSize != 20 {
		t.Fatalf("progress: got=%+v", progress)
	}
	if lims.batch.waits != 3 || lims.batch.dones != 3 {
		t.Fatalf("batch gap: want waits=3 dones=3 got waits=%d dones=%d", lims.batch.waits, lims.batch.dones)
	}
	// every item except the blank one reaches the embedding call
	if got := lims.item.waits; got != 44 {
		t.Fatalf("item limiter waits: want=44 got=%d", got)
	}
	if math.Abs(sum.SuccessRate-41.0/45.0) > 1e-9 {
		t.Fatalf("success rate: got=%v", sum.SuccessRate)
	}
	if sum.Stopped || sum.DryRun {
		t.Fatalf("flags: got stopped=%v dry=%v", sum.Stopped, sum.DryRun)
	}
}

func TestRunStopsAtBatchBoundary(t *testing.T) {
	content := &memContent{items: pendingItems(45)}
	emb := &fakeEmbedder{}
	batches := 0
	j := newJob(t, Deps{Content: content, Embedder: emb, NewLimiter: unlimited, NewGap: noGap})

	sum, err := j.Run(context.Background(), testParams(), RunOptions{
		OnBatchDone: func(Progress) { batches++ },
		ShouldStop:  func() bool { return batches >= 1 },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sum.Stopped || sum.Success != 20 || emb.calls != 20 {
		t.Fatalf("stop: stopped=%v success=%d calls=%d", sum.Stopped, sum.Success, emb.calls)
	}
	if sum.Total != 45 {
		t.Fatalf("total: want=45 got=%d", sum.Total)
	}
}

func TestRunCancelledContextStopsBeforeWork(t *testing.T) {
	content := &memContent{items: pendingItems(5)}
	emb := &fakeEmbedder{}
	j := newJob(t, Deps{Content: content, Embedder: emb})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := j.Run(ctx, testParams(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sum.Stopped || emb.calls != 0 {
		t.Fatalf("want stopped without calls, got stopped=%v calls=%d", sum.Stopped, emb.calls)
	}
}

func TestCostEstimate(t *testing.T) {
	texts := make([]string, 1000)
	body := strings.Repeat("a", 4000)
	for i := range texts {
		texts[i] = body
	}
	tokens := EstimateTokens(texts)
	if tokens != 1_000_000 {
		t.Fatalf("tokens: want=1000000 got=%d", tokens)
	}
	if cost := EstimateCost(tokens, 0.00002); math.Abs(cost-0.02) > 1e-12 {
		t.Fatalf("cost: want=0.02 got=%v", cost)
	}
	if got := EstimateTokens([]string{"abcde", ""}); got != 2 {
		t.Fatalf("ceil: want=2 got=%d", got)
	}
}

func TestChunk(t *testing.T) {
	got := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if fmt.Sprint(got) != "[[1 2] [3 4] [5]]" {
		t.Fatalf("chunk: got=%v", got)
	}
	if Chunk([]int{}, 3) != nil || Chunk([]int{1}, 0) != nil {
		t.Fatalf("degenerate chunks should be nil")
	}
}

func TestConfigurationErrorsAbortBeforeWork(t *testing.T) {
	if _, err := New(Deps{Embedder: &fakeEmbedder{}}); !ragerr.IsConfiguration(err) {
		t.Fatalf("missing store: want configuration error, got=%v", err)
	}
	content := &memContent{items: pendingItems(3)}
	emb := &fakeEmbedder{}
	j := newJob(t, Deps{Content: content, Embedder: emb})

	for name, mutate := range map[string]func(*Params){
		"model":      func(p *Params) { p.Model = " " },
		"batch size": func(p *Params) { p.BatchSize = 0 },
		"rate":       func(p *Params) { p.RatePer1K = -1 },
		"templates":  func(p *Params) { p.RefreshTemplates = true },
	} {
		p := testParams()
		mutate(&p)
		if _, err := j.Run(context.Background(), p, RunOptions{}); !ragerr.IsConfiguration(err) {
			t.Fatalf("%s: want configuration error, got=%v", name, err)
		}
	}
	if emb.calls != 0 {
		t.Fatalf("no embedding expected, got=%d", emb.calls)
	}
}

func TestDryRunWritesEstimateOnly(t *testing.T) {
	dir := t.TempDir()
	sink, err := artifacts.NewLocalDir(dir)
	if err != nil {
		t.Fatalf("NewLocalDir: %v", err)
	}
	content := &memContent{items: pendingItems(7)}
	emb := &fakeEmbedder{}
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	j := newJob(t, Deps{Content: content, Embedder: emb, Artifacts: sink, Now: func() time.Time { return start }})

	p := testParams()
	p.DryRun = true
	p.BatchSize = 3
	sum, err := j.Run(context.Background(), p, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if emb.calls != 0 || len(content.writes) != 0 {
		t.Fatalf("dry run must not embed: calls=%d writes=%d", emb.calls, len(content.writes))
	}
	if !sum.DryRun || fmt.Sprint(sum.BatchSizes) != "[3 3 1]" || sum.EstimatedTokens == 0 {
		t.Fatalf("summary: got=%+v", sum)
	}
	if sum.ArtifactKey != "embedding_runs/test-embed/20260301T120000Z.json" {
		t.Fatalf("artifact key: got=%q", sum.ArtifactKey)
	}
	raw, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(sum.ArtifactKey)))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	var stored types.EmbeddingRunSummary
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if stored.Total != 7 || stored.Model != testModel || !stored.DryRun {
		t.Fatalf("artifact: got=%+v", stored)
	}
}

type failingSink struct{}

func (failingSink) Put(context.Context, string, []byte, string) error { return errors.New("403") }
func (failingSink) Describe() string                                  { return "failing" }

func TestArtifactFailureDoesNotFailRun(t *testing.T) {
	j := newJob(t, Deps{Content: &memContent{items: pendingItems(2)}, Embedder: &fakeEmbedder{}, Artifacts: failingSink{}})
	sum, err := j.Run(context.Background(), testParams(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Success != 2 || sum.ArtifactKey != "" {
		t.Fatalf("summary: got=%+v", sum)
	}
}

func TestRunIsIdempotentAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	db := testutil.SQLite(t)
	r := repos.New(db, testutil.Logger(t))
	old := time.Now().UTC().Add(-3 * time.Hour).Truncate(time.Second)
	for i := 0; i < 5; i++ {
		testutil.SeedContent(t, ctx, db, "lesson", fmt.Sprintf("%d", i), fmt.Sprintf("lesson %d text", i), old)
	}
	testutil.SeedContent(t, ctx, db, "quiz", "q1", "quiz text", old)

	emb := &fakeEmbedder{}
	j := newJob(t, Deps{Content: r.Content, Templates: r.Templates, Embedder: emb, Log: testutil.Logger(t), NewLimiter: unlimited, NewGap: noGap})

	first, err := j.Run(ctx, testParams(), RunOptions{})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Success != 6 || first.Failed != 0 {
		t.Fatalf("first: got=%+v", first)
	}
	coverage, err := r.Content.Coverage(dbctx.Of(ctx), testModel)
	if err != nil {
		t.Fatalf("Coverage: %v", err)
	}
	callsAfterFirst := emb.calls

	second, err := j.Run(ctx, testParams(), RunOptions{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Total != 0 || second.Success != 0 || emb.calls != callsAfterFirst {
		t.Fatalf("second run must do nothing: summary=%+v calls=%d", second, emb.calls-callsAfterFirst)
	}
	again, _ := r.Content.Coverage(dbctx.Of(ctx), testModel)
	if fmt.Sprint(again) != fmt.Sprint(coverage) {
		t.Fatalf("coverage changed: before=%v after=%v", coverage, again)
	}
	for _, row := range again {
		if row.CoveragePct != 100 {
			t.Fatalf("coverage %s: want=100 got=%v", row.ContentType, row.CoveragePct)
		}
	}

	// Editing content after it was embedded makes it pending again.
	if err := db.Model(&types.ContentRecord{}).
		Where("content_type = ? AND content_id = ?", "lesson", "2").
		Update("last_updated", time.Now().UTC().Add(2*time.Hour)).Error; err != nil {
		t.Fatalf("touch content: %v", err)
	}
	third, err := j.Run(ctx, testParams(), RunOptions{})
	if err != nil {
		t.Fatalf("third Run: %v", err)
	}
	if third.Total != 1 || third.Success != 1 {
		t.Fatalf("third: got=%+v", third)
	}
}

func TestRefreshTemplatesReembedsStale(t *testing.T) {
	ctx := context.Background()
	db := testutil.SQLite(t)
	r := repos.New(db, testutil.Logger(t))
	testutil.SeedTemplate(t, ctx, db, "old", []string{"go"}, []float32{1, 0, 0}, "old-model", 3)
	testutil.SeedTemplate(t, ctx, db, "bare", []string{"sql"}, nil, "", 0)
	testutil.SeedTemplate(t, ctx, db, "wide", []string{"rust"}, []float32{0, 0, 1}, testModel, 0)
	testutil.SeedTemplate(t, ctx, db, "current", []string{"css"}, []float32{0, 1}, testModel, 0)

	emb := &fakeEmbedder{}
	j := newJob(t, Deps{Content: r.Content, Templates: r.Templates, Embedder: emb, Log: testutil.Logger(t), NewLimiter: unlimited, NewGap: noGap})
	p := testParams()
	p.RefreshTemplates = true

	var progress []Progress
	sum, err := j.Run(ctx, p, RunOptions{OnBatchDone: func(pr Progress) { progress = append(progress, pr) }})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.TemplatesRefreshed != 3 || sum.TemplatesFailed != 0 || emb.calls != 3 {
		t.Fatalf("refresh: got=%+v calls=%d", sum, emb.calls)
	}
	n, err := r.Templates.CountStale(dbctx.Of(ctx), testModel, p.Dims)
	if err != nil || n != 0 {
		t.Fatalf("stale after refresh: n=%d err=%v", n, err)
	}
	embedded, _ := r.Templates.ListEmbedded(dbctx.Of(ctx), testModel, p.Dims)
	if len(embedded) != 4 {
		t.Fatalf("embedded: want=4 got=%d", len(embedded))
	}
	if len(progress) != 1 || progress[0].Phase != PhaseTemplates || progress[0].Total != 3 || progress[0].Success != 3 {
		t.Fatalf("template progress: got=%+v", progress)
	}
}

func TestRefreshTemplatesEmbedsStoredProfileText(t *testing.T) {
	ctx := context.Background()
	db := testutil.SQLite(t)
	r := repos.New(db, testutil.Logger(t))
	const profile = "goals: become a data engineer. skills: python, sql. experience: intermediate"
	row, err := types.NewTemplate(types.TemplateRecord{
		Name:           "Data engineering path",
		Difficulty:     "intermediate",
		TargetSkills:   []string{"airflow"},
		Embedding:      []float32{1, 0, 0},
		EmbeddingModel: "old-model",
		ProfileText:    profile,
		Source:         types.TemplateSourceGenerated,
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("NewTemplate: %v", err)
	}
	if err := r.Templates.Create(dbctx.Of(ctx), row); err != nil {
		t.Fatalf("Create: %v", err)
	}
	seeded := testutil.SeedTemplate(t, ctx, db, "seeded", []string{"go"}, nil, "", 0)
	seededRec, _ := seeded.Record()

	emb := &fakeEmbedder{}
	j := newJob(t, Deps{Content: r.Content, Templates: r.Templates, Embedder: emb, NewLimiter: unlimited, NewGap: noGap})
	p := testParams()
	p.RefreshTemplates = true
	if _, err := j.Run(ctx, p, RunOptions{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := map[string]bool{profile: true, ProfileText(seededRec): true}
	if len(emb.texts) != 2 || !want[emb.texts[0]] || !want[emb.texts[1]] || emb.texts[0] == emb.texts[1] {
		t.Fatalf("embedded texts: want=%v got=%q", want, emb.texts)
	}
}

func TestRefreshTemplatesStopsAtBatchBoundary(t *testing.T) {
	ctx := context.Background()
	db := testutil.SQLite(t)
	r := repos.New(db, testutil.Logger(t))
	for i := 0; i < 5; i++ {
		testutil.SeedTemplate(t, ctx, db, fmt.Sprintf("t%d", i), []string{"go"}, nil, "", 0)
	}

	emb := &fakeEmbedder{}
	j := newJob(t, Deps{Content: r.Content, Templates: r.Templates, Embedder: emb, NewLimiter: unlimited, NewGap: noGap})
	p := testParams()
	p.RefreshTemplates = true
	p.BatchSize = 2

	var progress []Progress
	sum, err := j.Run(ctx, p, RunOptions{
		OnBatchDone: func(pr Progress) { progress = append(progress, pr) },
		ShouldStop:  func() bool { return len(progress) >= 1 },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sum.Stopped || sum.TemplatesRefreshed != 2 || emb.calls != 2 {
		t.Fatalf("stop: want stopped=true refreshed=2 got stopped=%v refreshed=%d calls=%d", sum.Stopped, sum.TemplatesRefreshed, emb.calls)
	}
	if len(progress) != 1 || progress[0].Phase != PhaseTemplates || progress[0].Batches != 3 || progress[0].Processed != 2 {
		t.Fatalf("progress: got=%+v", progress)
	}
	if n, _ := r.Templates.CountStale(dbctx.Of(ctx), testModel, p.Dims); n != 3 {
		t.Fatalf("stale left: want=3 got=%d", n)
	}
}

func TestRunSpacesItemsAndBatches(t *testing.T) {
	const (
		item  = 20 * time.Millisecond
		batch = 120 * time.Millisecond
		slack = 5 * time.Millisecond
	)
	content := &memContent{items: pendingItems(6)}
	emb := &fakeEmbedder{}
	j := newJob(t, Deps{Content: content, Embedder: emb})
	p := testParams()
	p.BatchSize = 3
	p.ItemInterval = item
	p.BatchInterval = batch

	var boundary time.Time
	sum, err := j.Run(context.Background(), p, RunOptions{OnBatchDone: func(pr Progress) {
		if pr.Batch == 1 {
			boundary = time.Now()
		}
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Success != 6 || len(emb.at) != 6 {
		t.Fatalf("run: success=%d calls=%d", sum.Success, len(emb.at))
	}
	for _, i := range []int{1, 2, 4, 5} {
		if gap := emb.at[i].Sub(emb.at[i-1]); gap < item-slack {
			t.Fatalf("item gap %d: want>=%v got=%v", i, item, gap)
		}
	}
	if gap := emb.at[3].Sub(emb.at[2]); gap < batch-slack {
		t.Fatalf("batch gap: want>=%v got=%v", batch, gap)
	}
	if gap := emb.at[3].Sub(boundary); gap < batch-slack {
		t.Fatalf("batch gap from end of batch 1: want>=%v got=%v", batch, gap)
	}
}
