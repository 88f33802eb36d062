package embedcache

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"

	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

// Cache stores query embeddings by an opaque key. Misses and backend failures both report ok=false.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32)
}

type Local struct {
	c *ttlcache.Cache[string, []float32]
}

// NewLocal builds an in-process TTL cache. Call Close to stop its expiry loop.
func NewLocal(ttl time.Duration, capacity uint64) *Local {
	opts := []ttlcache.Option[string, []float32]{
		ttlcache.WithTTL[string, []float32](ttl),
		ttlcache.WithDisableTouchOnHit[string, []float32](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, []float32](capacity))
	}
	c := ttlcache.New[string, []float32](opts...)
	go c.Start()
	return &Local{c: c}
}

func (l *Local) Get(_ context.Context, key string) ([]float32, bool) {
	item := l.c.Get(key)
	if item == nil {
		return nil, false
	}
	return append([]float32(nil), item.Value()...), true
}

func (l *Local) Set(_ context.Context, key string, vec []float32) {
	l.c.Set(key, append([]float32(nil), vec...), ttlcache.DefaultTTL)
}

func (l *Local) Len() int { return l.c.Len() }

func (l *Local) Close() { l.c.Stop() }

type Redis struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
	log    *logger.Logger
}

func NewRedis(rdb redis.UniversalClient, ttl time.Duration, prefix string, log *logger.Logger) *Redis {
	if prefix == "" {
		prefix = "roadmap:qemb:"
	}
	return &Redis{rdb: rdb, ttl: ttl, prefix: prefix, log: log.With("service", "EmbedCacheRedis")}
}

func (r *Redis) Get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("redis get failed", "error", err)
		}
		return nil, false
	}
	vec, err := decode(raw)
	if err != nil {
		r.log.Warn("redis cached vector corrupt", "error", err)
		return nil, false
	}
	return vec, true
}

func (r *Redis) Set(ctx context.Context, key string, vec []float32) {
	if err := r.rdb.Set(ctx, r.prefix+key, encode(vec), r.ttl).Err(); err != nil {
		r.log.Warn("redis set failed", "error", err)
	}
}

// Tiered reads the local cache first and back-fills it from the shared one.
type Tiered struct {
	Local  Cache
	Shared Cache
}

func (t Tiered) Get(ctx context.Context, key string) ([]float32, bool) {
	if t.Local != nil {
		if v, ok := t.Local.Get(ctx, key); ok {
			return v, true
		}
	}
	if t.Shared == nil {
		return nil, false
	}
	v, ok := t.Shared.Get(ctx, key)
	if ok && t.Local != nil {
		t.Local.Set(ctx, key, v)
	}
	return v, ok
}

func (t Tiered) Set(ctx context.Context, key string, vec []float32) {
	if t.Local != nil {
		t.Local.Set(ctx, key, vec)
	}
	if t.Shared != nil {
		t.Shared.Set(ctx, key, vec)
	}
}

func encode(vec []float32) []byte {
	out := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

func decode(raw []byte) ([]float32, error) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, errors.New("invalid vector encoding")
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}
