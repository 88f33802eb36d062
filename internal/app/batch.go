package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/roadmap-backend/internal/data/repos"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/batch"
	"github.com/yungbote/roadmap-backend/internal/observability"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

// BatchRuntime is the slice of the app a one-shot embedding run needs: no HTTP, no Temporal.
type BatchRuntime struct {
	Log     *logger.Logger
	DB      *gorm.DB
	Repos   repos.Repos
	Clients Clients
	Job     *batch.Job
	Metrics *observability.Metrics
}

func NewBatchRuntime(ctx context.Context, log *logger.Logger, cfg Config) (*BatchRuntime, error) {
	gdb, err := OpenStore(log, cfg)
	if err != nil {
		return nil, err
	}
	return newBatchRuntime(ctx, log, cfg, gdb)
}

// newBatchRuntime owns gdb: it is closed on any error.
func newBatchRuntime(ctx context.Context, log *logger.Logger, cfg Config, gdb *gorm.DB) (*BatchRuntime, error) {
	m := observability.Init(log)
	reposet := wireRepos(gdb, log)
	clients, err := wireClients(ctx, log, cfg, false)
	if err != nil {
		closeStore(gdb)
		return nil, err
	}
	job, err := newBatchJob(log, cfg, reposet, clients)
	if err != nil {
		clients.Close()
		closeStore(gdb)
		return nil, fmt.Errorf("init batch job: %w", err)
	}
	m.RegisterDB(log, gdb, "roadmaps")
	return &BatchRuntime{Log: log, DB: gdb, Repos: reposet, Clients: clients, Job: job, Metrics: m}, nil
}

func (b *BatchRuntime) Close() {
	if b == nil {
		return
	}
	b.Clients.Close()
	closeStore(b.DB)
	b.Log.Sync()
}
