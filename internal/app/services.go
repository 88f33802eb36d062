package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/roadmap-backend/internal/data/repos"
	"github.com/yungbote/roadmap-backend/internal/modules/rag"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/batch"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/customize"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/embedding"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/generate"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/search"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
	"github.com/yungbote/roadmap-backend/internal/temporalx/embedrun"
)

type Services struct {
	Roadmaps *rag.Service
	Fallback *generate.Fallback
	BatchJob *batch.Job
	Launcher batch.Launcher

	inProcess *batch.InProcessLauncher
}

func wireServices(log *logger.Logger, gdb *gorm.DB, cfg Config, r repos.Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	job, err := newBatchJob(log, cfg, r, clients)
	if err != nil {
		return Services{}, err
	}

	// Only the query side goes through the cache; batch writes always embed fresh.
	direct := embedding.NewClient(clients.OpenAI, log)
	queryEmbedder := embedding.NewCached(direct, clients.Cache, log)

	searcher := resolveSearcher(log, gdb, cfg.RAG.SearchVariant, r.Templates)
	searchSvc := search.NewService(queryEmbedder, searcher, log)
	engine := customize.NewEngine(r.Templates, log)
	gen := generate.NewLLMGenerator(clients.OpenAI, cfg.OpenAI.Model, cfg.Breaker, log)
	fallback := generate.NewFallback(gen, direct, r.Templates, generate.Config{
		DefaultTimeout: cfg.RAG.GenerationTimeout,
		PersistTimeout: cfg.RAG.PersistTimeout,
	}, log)

	svc := rag.NewService(rag.ServiceDeps{
		Search:    searchSvc,
		Customize: engine,
		Generate:  fallback,
		Content:   r.Content,
		Templates: r.Templates,
	}, cfg.RAG, log)

	out := Services{Roadmaps: svc, Fallback: fallback, BatchJob: job}
	if clients.Temporal != nil {
		out.Launcher = embedrun.NewLauncher(clients.Temporal, cfg.Temporal.TaskQueue)
	} else {
		out.inProcess = batch.NewInProcessLauncher(job, log)
		out.Launcher = out.inProcess
	}
	return out, nil
}

func newBatchJob(log *logger.Logger, cfg Config, r repos.Repos, clients Clients) (*batch.Job, error) {
	return batch.New(batch.Deps{
		Content:    r.Content,
		Templates:  r.Templates,
		Embedder:   embedding.NewClient(clients.OpenAI, log),
		Normalizer: cfg.RAG.Normalizer(),
		Artifacts:  clients.Artifacts,
		Log:        log,
	})
}
