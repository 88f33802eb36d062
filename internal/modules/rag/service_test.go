package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/roadmap-backend/internal/data/repos"
	"github.com/yungbote/roadmap-backend/internal/data/repos/testutil"
	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/customize"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/generate"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/ragerr"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/search"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
)

const testModel = "test-embed"

// topicEmbedder maps any text mentioning "frontend" to a vector at cosine 0.82 from [1, 0].
type topicEmbedder struct{ err error }

func (e topicEmbedder) Embed(_ context.Context, _ string, _ int, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	if strings.Contains(text, "frontend") {
		return []float32{0.82, float32(math.Sqrt(1 - 0.82*0.82))}, nil
	}
	return []float32{0, 1}, nil
}

type stubGenerator struct {
	err   error
	calls int
}

func (g *stubGenerator) Generate(_ context.Context, qc types.UserQueryContext, _, _ []string) (*types.Roadmap, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &types.Roadmap{
		Title:         "Frontend for " + qc.ExperienceLevel,
		DurationWeeks: 4,
		Modules: []types.RoadmapModule{
			{Index: 1, Title: "HTML & CSS", Skills: []string{"html", "css"}, Weeks: 2, Hours: 16},
			{Index: 2, Title: "Accessibility", Skills: []string{"a11y"}, Weeks: 2, Hours: 16},
		},
		Metadata: types.RoadmapMetadata{Source: types.RoadmapSourceGenerated},
	}, nil
}

type harness struct {
	svc      *Service
	repos    repos.Repos
	fallback *generate.Fallback
	gen      *stubGenerator
	seeded   *types.Template
}

func newHarness(t *testing.T, emb topicEmbedder, gen *stubGenerator) *harness {
	t.Helper()
	ctx := context.Background()
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	r := repos.New(db, log)
	seeded := testutil.SeedTemplate(t, ctx, db, "frontend basics", []string{"HTML", "CSS"}, []float32{1, 0}, testModel, 0)

	p := DefaultParams()
	p.EmbeddingModel = testModel
	p.Dimensions = 2

	fb := generate.NewFallback(gen, emb, r.Templates, generate.Config{}, log)
	svc := NewService(ServiceDeps{
		Search:    search.NewService(emb, search.NewInProcess(r.Templates, log), log),
		Customize: customize.NewEngine(r.Templates, log),
		Generate:  fb,
		Content:   r.Content,
		Templates: r.Templates,
	}, p, log)
	return &harness{svc: svc, repos: r, fallback: fb, gen: gen, seeded: seeded}
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.fallback.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func frontendRequest(threshold float64) RoadmapRequest {
	return RoadmapRequest{
		Query: types.UserQueryContext{
			GoalsText:       "beginner frontend",
			SkillsText:      "HTML, CSS",
			ExperienceLevel: "beginner",
			TimeAvailable:   "10 hours per week",
		},
		Threshold: threshold,
		Limit:     5,
	}
}

func TestCreateRoadmapHitCustomizesAndCountsUsage(t *testing.T) {
	h := newHarness(t, topicEmbedder{}, &stubGenerator{})
	ctx := context.Background()

	res, err := h.svc.CreateRoadmap(ctx, frontendRequest(0.78))
	if err != nil {
		t.Fatalf("CreateRoadmap: %v", err)
	}
	if res.Outcome != "hit" || res.Roadmap.Metadata.TemplateID != h.seeded.ID.String() {
		t.Fatalf("result: outcome=%s meta=%+v", res.Outcome, res.Roadmap.Metadata)
	}
	want := []State{StateQueryBuilt, StateSearching, StateHit, StateCustomizing, StateDone}
	if fmt.Sprint(res.Trace) != fmt.Sprint(want) {
		t.Fatalf("trace: want=%v got=%v", want, res.Trace)
	}
	if h.gen.calls != 0 {
		t.Fatalf("generator must not run on a hit")
	}
	got, _ := h.repos.Templates.GetByID(dbctx.Of(ctx), h.seeded.ID)
	if got.UsageCount != 1 {
		t.Fatalf("usage_count: want=1 got=%d", got.UsageCount)
	}
}

func TestCreateRoadmapMissGeneratesAndPopulatesCache(t *testing.T) {
	h := newHarness(t, topicEmbedder{}, &stubGenerator{})
	ctx := context.Background()

	res, err := h.svc.CreateRoadmap(ctx, frontendRequest(0.90))
	if err != nil {
		t.Fatalf("CreateRoadmap: %v", err)
	}
	if res.Outcome != "miss" || h.gen.calls != 1 || res.Roadmap.Metadata.Source != types.RoadmapSourceGenerated {
		t.Fatalf("result: outcome=%s calls=%d", res.Outcome, h.gen.calls)
	}
	want := []State{StateQueryBuilt, StateSearching, StateMiss, StateGenerating, StateDone}
	if fmt.Sprint(res.Trace) != fmt.Sprint(want) {
		t.Fatalf("trace: want=%v got=%v", want, res.Trace)
	}
	h.drain(t)

	rows, err := h.repos.Templates.ListEmbedded(dbctx.Of(ctx), testModel, 2)
	if err != nil {
		t.Fatalf("ListEmbedded: %v", err)
	}
	var generated *types.TemplateRecord
	for _, row := range rows {
		rec, _ := row.Record()
		if rec.Source == types.TemplateSourceGenerated {
			generated = &rec
		}
	}
	if generated == nil {
		t.Fatalf("expected a generated template among %d rows", len(rows))
	}
	if generated.UsageCount != 1 || len(generated.Embedding) != 2 || generated.Difficulty != "beginner" {
		t.Fatalf("generated template: got=%+v", generated)
	}

	// The same profile now hits the cached template.
	again, err := h.svc.CreateRoadmap(ctx, frontendRequest(0.90))
	if err != nil {
		t.Fatalf("CreateRoadmap again: %v", err)
	}
	if again.Outcome != "hit" || again.Roadmap.Metadata.TemplateID != generated.ID.String() || h.gen.calls != 1 {
		t.Fatalf("second request: outcome=%s template=%s calls=%d", again.Outcome, again.Roadmap.Metadata.TemplateID, h.gen.calls)
	}
}

func TestCreateRoadmapSearchErrorIsFatal(t *testing.T) {
	h := newHarness(t, topicEmbedder{err: errors.New("embedding api down")}, &stubGenerator{})
	res, err := h.svc.CreateRoadmap(context.Background(), frontendRequest(0.78))
	if ragerr.SearchCode(err) != ragerr.SearchEmbedFailed {
		t.Fatalf("want search error, got=%v", err)
	}
	if res.Trace[len(res.Trace)-1] != StateFatal || h.gen.calls != 0 {
		t.Fatalf("trace: got=%v calls=%d", res.Trace, h.gen.calls)
	}
}

func TestCreateRoadmapGenerationErrorPropagates(t *testing.T) {
	boom := errors.New("model overloaded")
	h := newHarness(t, topicEmbedder{}, &stubGenerator{err: boom})
	_, err := h.svc.CreateRoadmap(context.Background(), frontendRequest(0.99))
	if ragerr.GenerationCode(err) != ragerr.GenerationFailed || !errors.Is(err, boom) {
		t.Fatalf("want generation error wrapping cause, got=%v", err)
	}
}

func TestDiagnostics(t *testing.T) {
	h := newHarness(t, topicEmbedder{}, &stubGenerator{})
	ctx := context.Background()

	matches, err := h.svc.SearchTemplates(ctx, "backend", 0, 3)
	if err != nil || len(matches) != 1 {
		t.Fatalf("threshold 0 search: matches=%d err=%v", len(matches), err)
	}
	report, err := h.svc.StaleTemplates(ctx, 10)
	if err != nil || report.Count != 0 || report.Model != testModel {
		t.Fatalf("stale: report=%+v err=%v", report, err)
	}
	if _, err := h.svc.Coverage(ctx); err != nil {
		t.Fatalf("Coverage: %v", err)
	}
}

func TestStaleTemplatesFlagsOtherDimensionality(t *testing.T) {
	h := newHarness(t, topicEmbedder{}, &stubGenerator{})
	ctx := context.Background()
	wide, err := types.NewTemplate(types.TemplateRecord{
		Name:           "wide vectors",
		Difficulty:     "beginner",
		TargetSkills:   []string{"html"},
		Embedding:      []float32{1, 0, 0},
		EmbeddingModel: testModel,
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("NewTemplate: %v", err)
	}
	if err := h.repos.Templates.Create(dbctx.Of(ctx), wide); err != nil {
		t.Fatalf("Create: %v", err)
	}

	matches, err := h.svc.SearchTemplates(ctx, "frontend", 0, 5)
	if err != nil {
		t.Fatalf("SearchTemplates: %v", err)
	}
	if len(matches) != 1 || matches[0].Template.ID != h.seeded.ID {
		t.Fatalf("matches: want=[%s] got=%d", h.seeded.Name, len(matches))
	}
	report, err := h.svc.StaleTemplates(ctx, 10)
	if err != nil {
		t.Fatalf("StaleTemplates: %v", err)
	}
	if report.Count != 1 || len(report.Templates) != 1 || report.Templates[0].ID != wide.ID {
		t.Fatalf("stale: want=1 (%s) got=%+v", wide.Name, report)
	}
}

func TestParamsLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rag.yaml")
	body := "similarity_threshold: 0.85\nbatch_size: 50\nitem_interval: 250ms\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("RAG_CONFIG_PATH", path)
	t.Setenv("RAG_MATCH_LIMIT", "3")

	p, err := LoadParams()
	if err != nil {
		t.Fatalf("LoadParams: %v", err)
	}
	if p.SimilarityThreshold != 0.85 || p.BatchSize != 50 || p.ItemInterval != 250*time.Millisecond || p.MatchLimit != 3 {
		t.Fatalf("params: got=%+v", p)
	}
	if p.EmbeddingModel != DefaultParams().EmbeddingModel {
		t.Fatalf("unset keys must keep defaults, got model=%q", p.EmbeddingModel)
	}

	t.Setenv("RAG_SEARCH_VARIANT", "faiss")
	if _, err := LoadParams(); !ragerr.IsConfiguration(err) {
		t.Fatalf("bad variant: want configuration error, got=%v", err)
	}
}
