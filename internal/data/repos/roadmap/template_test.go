package roadmap

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/roadmap-backend/internal/data/repos/testutil"
	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
)

func TestTemplateRepoIncrementUsageIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := testutil.SQLite(t)
	repo := NewTemplateRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}
	tpl := testutil.SeedTemplate(t, ctx, db, "frontend", []string{"html", "css"}, []float32{1, 0}, "m1", 0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.IncrementUsage(dbc, tpl.ID); err != nil {
				t.Errorf("IncrementUsage: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := repo.GetByID(dbc, tpl.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.UsageCount != 10 {
		t.Fatalf("usage_count: want=10 got=%d", got.UsageCount)
	}
	if err := repo.IncrementUsage(dbc, uuid.New()); !IsNotFound(err) {
		t.Fatalf("unknown id: want not_found, got=%v", err)
	}
}

func TestTemplateRepoStaleAndReembed(t *testing.T) {
	ctx := context.Background()
	db := testutil.SQLite(t)
	repo := NewTemplateRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	current := testutil.SeedTemplate(t, ctx, db, "current", []string{"go"}, []float32{1, 0}, "m2", 0)
	old := testutil.SeedTemplate(t, ctx, db, "old", []string{"sql"}, []float32{0, 1}, "m1", 0)
	bare := testutil.SeedTemplate(t, ctx, db, "bare", []string{"css"}, nil, "", 0)

	embedded, err := repo.ListEmbedded(dbc, "m2", 2)
	if err != nil {
		t.Fatalf("ListEmbedded: %v", err)
	}
	if len(embedded) != 1 || embedded[0].ID != current.ID {
		t.Fatalf("ListEmbedded: got=%d rows", len(embedded))
	}

	n, err := repo.CountStale(dbc, "m2", 2)
	if err != nil || n != 2 {
		t.Fatalf("CountStale: want=2 got=%d err=%v", n, err)
	}
	stale, err := repo.ListStale(dbc, "m2", 2, 0)
	if err != nil || len(stale) != 2 {
		t.Fatalf("ListStale: want=2 got=%d err=%v", len(stale), err)
	}

	for _, id := range []uuid.UUID{old.ID, bare.ID} {
		if err := repo.UpdateEmbedding(dbc, id, []float32{0.5, 0.5}, "m2"); err != nil {
			t.Fatalf("UpdateEmbedding: %v", err)
		}
	}
	if n, _ := repo.CountStale(dbc, "m2", 2); n != 0 {
		t.Fatalf("CountStale after refresh: want=0 got=%d", n)
	}
	got, _ := repo.GetByID(dbc, bare.ID)
	rec, err := got.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(rec.Embedding) != 2 || rec.EmbeddingModel != "m2" {
		t.Fatalf("refreshed template: got=%+v", rec)
	}
}

func TestTemplateRepoOtherDimensionalityIsStale(t *testing.T) {
	ctx := context.Background()
	db := testutil.SQLite(t)
	repo := NewTemplateRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	wide := testutil.SeedTemplate(t, ctx, db, "wide", []string{"go"}, []float32{1, 0, 0}, "m1", 0)
	narrow := testutil.SeedTemplate(t, ctx, db, "narrow", []string{"sql"}, []float32{0, 1}, "m1", 0)

	embedded, err := repo.ListEmbedded(dbc, "m1", 2)
	if err != nil {
		t.Fatalf("ListEmbedded: %v", err)
	}
	if len(embedded) != 1 || embedded[0].ID != narrow.ID {
		t.Fatalf("ListEmbedded dims=2: want=[narrow] got=%d rows", len(embedded))
	}
	if all, _ := repo.ListEmbedded(dbc, "m1", 0); len(all) != 2 {
		t.Fatalf("ListEmbedded any dims: want=2 got=%d", len(all))
	}
	if n, _ := repo.CountStale(dbc, "m1", 2); n != 1 {
		t.Fatalf("CountStale dims=2: want=1 got=%d", n)
	}
	stale, err := repo.ListStale(dbc, "m1", 2, 0)
	if err != nil || len(stale) != 1 || stale[0].ID != wide.ID {
		t.Fatalf("ListStale dims=2: want=[wide] got=%d err=%v", len(stale), err)
	}
	if n, _ := repo.CountStale(dbc, "m1", 0); n != 0 {
		t.Fatalf("CountStale any dims: want=0 got=%d", n)
	}

	if err := repo.UpdateEmbedding(dbc, wide.ID, []float32{0.6, 0.8}, "m1"); err != nil {
		t.Fatalf("UpdateEmbedding: %v", err)
	}
	if n, _ := repo.CountStale(dbc, "m1", 2); n != 0 {
		t.Fatalf("CountStale after re-embed: want=0 got=%d", n)
	}
	got, _ := repo.GetByID(dbc, wide.ID)
	if got.EmbeddingDims != 2 {
		t.Fatalf("embedding_dims: want=2 got=%d", got.EmbeddingDims)
	}
}

func TestTemplateRepoCreateValidates(t *testing.T) {
	db := testutil.SQLite(t)
	repo := NewTemplateRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	if err := repo.Create(dbc, &types.Template{}); codeOf(err) != CodeInvalid {
		t.Fatalf("empty name: want invalid, got=%v", err)
	}
	row := &types.Template{Name: "x", Difficulty: "beginner", Source: types.TemplateSourceSeed}
	if err := repo.Create(dbc, row); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if row.ID == uuid.Nil {
		t.Fatalf("expected id assigned")
	}
}

func TestNearestByCosinePostgres(t *testing.T) {
	ctx := context.Background()
	db := testutil.Tx(t, testutil.DB(t))
	repo := NewTemplateRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}
	model := "it-" + uuid.NewString()

	a := testutil.SeedTemplate(t, ctx, db, "a", []string{"html"}, []float32{1, 0, 0}, model, 0)
	b := testutil.SeedTemplate(t, ctx, db, "b", []string{"css"}, []float32{0.8, 0.6, 0}, model, 3)
	testutil.SeedTemplate(t, ctx, db, "c", []string{"sql"}, []float32{0, 0, 1}, model, 0)

	rows, err := repo.NearestByCosine(dbc, []float32{1, 0, 0}, model, 0.5, 5)
	if err != nil {
		t.Fatalf("NearestByCosine: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: want=2 got=%d", len(rows))
	}
	if rows[0].Template.ID != a.ID || rows[1].Template.ID != b.ID {
		t.Fatalf("order: got=%s,%s", rows[0].Template.Name, rows[1].Template.Name)
	}
	if rows[0].Similarity < 0.999 || rows[1].Similarity < 0.79 || rows[1].Similarity > 0.81 {
		t.Fatalf("similarities: got=%v,%v", rows[0].Similarity, rows[1].Similarity)
	}

	all, err := repo.NearestByCosine(dbc, []float32{1, 0, 0}, model, 0, 5)
	if err != nil || len(all) != 3 {
		t.Fatalf("threshold 0: want=3 got=%d err=%v", len(all), err)
	}

	// A vector of another width must not break the <=> comparison.
	testutil.SeedTemplate(t, ctx, db, "d", []string{"go"}, []float32{1, 0}, model, 0)
	all, err = repo.NearestByCosine(dbc, []float32{1, 0, 0}, model, 0, 5)
	if err != nil || len(all) != 3 {
		t.Fatalf("mixed dims: want=3 got=%d err=%v", len(all), err)
	}
	narrow, err := repo.NearestByCosine(dbc, []float32{1, 0}, model, 0, 5)
	if err != nil || len(narrow) != 1 || narrow[0].Template.Name != "d" {
		t.Fatalf("narrow query: want=[d] got=%d err=%v", len(narrow), err)
	}
}
