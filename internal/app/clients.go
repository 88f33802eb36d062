package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/roadmap-backend/internal/platform/artifacts"
	"github.com/yungbote/roadmap-backend/internal/platform/embedcache"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
	"github.com/yungbote/roadmap-backend/internal/platform/openai"
	"github.com/yungbote/roadmap-backend/internal/temporalx"
)

type Clients struct {
	OpenAI    openai.Client
	Redis     redis.UniversalClient
	Cache     embedcache.Cache
	Artifacts artifacts.Sink
	Temporal  temporalsdkclient.Client

	local *embedcache.Local
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, withTemporal bool) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	ai, err := openai.NewClient(log, cfg.OpenAI)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}
	out.OpenAI = ai

	// Query embeddings are cached locally and, with REDIS_ADDR, shared across replicas.
	out.local = embedcache.NewLocal(cfg.EmbedCacheTTL, cfg.EmbedCacheSize)
	tiered := embedcache.Tiered{Local: out.local}
	if cfg.RedisAddr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// The cache is an optimisation; run without the shared tier.
			log.Warn("redis unreachable; shared embedding cache disabled", "addr", cfg.RedisAddr, "error", err)
			_ = rdb.Close()
		} else {
			out.Redis = rdb
			tiered.Shared = embedcache.NewRedis(rdb, cfg.EmbedCacheTTL, "roadmap:qemb:", log)
		}
	}
	out.Cache = tiered

	sink, err := resolveArtifactSink(ctx, log, cfg)
	if err != nil {
		out.Close()
		return Clients{}, err
	}
	out.Artifacts = sink

	if withTemporal && cfg.Temporal.Enabled() {
		tc, err := temporalx.NewClient(ctx, log, cfg.Temporal)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init temporal client: %w", err)
		}
		out.Temporal = tc
	}
	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if closer, ok := c.Artifacts.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.local != nil {
		c.local.Close()
	}
}
