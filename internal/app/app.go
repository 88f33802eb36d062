package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/roadmap-backend/internal/data/db"
	"github.com/yungbote/roadmap-backend/internal/data/repos"
	"github.com/yungbote/roadmap-backend/internal/http"
	"github.com/yungbote/roadmap-backend/internal/observability"
	"github.com/yungbote/roadmap-backend/internal/platform/envutil"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
	"github.com/yungbote/roadmap-backend/internal/temporalx/temporalworker"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    repos.Repos
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics

	otelShutdown func(context.Context) error
}

func NewLogger() (*logger.Logger, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// OpenStore connects and, unless DB_AUTO_MIGRATE=false, migrates the schema.
func OpenStore(log *logger.Logger, cfg Config) (*gorm.DB, error) {
	gdb, err := db.Open(log, cfg.DB)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := db.AutoMigrateAll(gdb); err != nil {
			closeStore(gdb)
			return nil, fmt.Errorf("automigrate: %w", err)
		}
	}
	return gdb, nil
}

func closeStore(gdb *gorm.DB) {
	if gdb == nil {
		return
	}
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func New(ctx context.Context, log *logger.Logger) (*App, error) {
	log.Info("Loading configuration...")
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	m := observability.Init(log)

	gdb, err := OpenStore(log, cfg)
	if err != nil {
		return nil, err
	}
	reposet := wireRepos(gdb, log)

	clients, err := wireClients(ctx, log, cfg, true)
	if err != nil {
		closeStore(gdb)
		return nil, err
	}
	serviceset, err := wireServices(log, gdb, cfg, reposet, clients)
	if err != nil {
		clients.Close()
		closeStore(gdb)
		return nil, err
	}
	handlerset := wireHandlers(log, gdb, serviceset)
	router := wireRouter(log, cfg, m, handlerset)

	return &App{
		Log:          log,
		DB:           gdb,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Metrics:      m,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP and, when Temporal is configured, the embedding-run worker, until ctx ends or one fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	a.Metrics.RegisterDB(a.Log, a.DB, "roadmaps")
	a.Metrics.StartRedisProbe(gctx, a.Log, a.Clients.Redis)

	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
		srv := http.NewServer(a.Router)
		return srv.Run(gctx, a.Cfg.HTTPAddr, a.Cfg.ShutdownGrace)
	})

	if a.Clients.Temporal != nil {
		runner, err := temporalworker.NewRunner(a.Log, a.Clients.Temporal, a.Cfg.Temporal, a.Services.BatchJob)
		if err != nil {
			return err
		}
		g.Go(func() error { return runner.Run(gctx) })
	}

	return g.Wait()
}

// Close waits for in-flight template write-backs and in-process runs, then releases clients.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.Services.Fallback != nil {
		if err := a.Services.Fallback.Drain(ctx); err != nil {
			a.Log.Warn("template write-backs still in flight at shutdown", "error", err)
		}
	}
	if a.Services.inProcess != nil {
		if err := a.Services.inProcess.Close(ctx); err != nil {
			a.Log.Warn("embedding run did not stop before shutdown deadline", "error", err)
		}
	}
	a.Clients.Close()
	closeStore(a.DB)
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	a.Log.Sync()
}
