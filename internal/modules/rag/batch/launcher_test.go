package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

type gatedEmbedder struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedEmbedder) Embed(ctx context.Context, _ string, _ int, _ string) ([]float32, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []float32{0.6, 0.8}, nil
}

func TestInProcessLauncherRunsOneAtATime(t *testing.T) {
	store := &memContent{items: pendingItems(3)}
	emb := &gatedEmbedder{started: make(chan struct{}, 1), release: make(chan struct{})}
	job := newJob(t, Deps{
		Content:    store,
		Embedder:   emb,
		NewLimiter: unlimited,
		NewGap:     noGap,
	})
	l := NewInProcessLauncher(job, logger.Nop())

	first, err := l.Launch(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if first.RunID == "" || first.Mode != "in_process" {
		t.Fatalf("launch: got=%+v", first)
	}
	<-emb.started
	if _, err := l.Launch(context.Background(), testParams()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("second Launch: want=ErrRunInProgress got=%v", err)
	}

	close(emb.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	sum, ok := l.Last()
	if !ok {
		t.Fatalf("Last: want a summary")
	}
	if sum.RunID != first.RunID || sum.Success != 3 {
		t.Fatalf("summary: want run=%s success=3 got run=%s success=%d", first.RunID, sum.RunID, sum.Success)
	}
	if err := l.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := l.Launch(context.Background(), testParams()); err == nil {
		t.Fatalf("Launch after Close: want error")
	}
}

func TestInProcessLauncherRejectsBadParams(t *testing.T) {
	job := newJob(t, Deps{Content: &memContent{}, Embedder: &fakeEmbedder{}})
	l := NewInProcessLauncher(job, logger.Nop())
	p := testParams()
	p.BatchSize = 0
	if _, err := l.Launch(context.Background(), p); err == nil {
		t.Fatalf("Launch: want configuration error")
	}
}
