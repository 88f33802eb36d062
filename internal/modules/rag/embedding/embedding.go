package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/yungbote/roadmap-backend/internal/observability"
	"github.com/yungbote/roadmap-backend/internal/platform/embedcache"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
	"github.com/yungbote/roadmap-backend/internal/platform/openai"
)

// Embedder turns text into a fixed-length vector for a given model.
// dims <= 0 accepts whatever length the model returns.
type Embedder interface {
	Embed(ctx context.Context, model string, dims int, text string) ([]float32, error)
}

type Client struct {
	ai  openai.Client
	log *logger.Logger
}

func NewClient(ai openai.Client, log *logger.Logger) *Client {
	return &Client{ai: ai, log: log.With("service", "EmbeddingClient")}
}

func (c *Client) Embed(ctx context.Context, model string, dims int, text string) ([]float32, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("embedding model required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("embedding text is empty")
	}
	out, err := c.ai.Embed(ctx, model, dims, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("embed: expected 1 vector, got %d", len(out))
	}
	if err := Validate(out[0], dims); err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return out[0], nil
}

// Validate checks that vec is non-empty, finite and, when dims > 0, exactly dims long.
func Validate(vec []float32, dims int) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty vector")
	}
	if dims > 0 && len(vec) != dims {
		return fmt.Errorf("dimension mismatch: want %d got %d", dims, len(vec))
	}
	for i, f := range vec {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return fmt.Errorf("non-finite component at index %d", i)
		}
	}
	return nil
}

// CacheKey is the hex sha256 of model, dims and text.
func CacheKey(model string, dims int, text string) string {
	h := sha256.New()
	_, _ = h.Write([]byte(model))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.Itoa(dims)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Cached serves repeated query texts from cache. Use it on the request path only.
type Cached struct {
	inner Embedder
	cache embedcache.Cache
	log   *logger.Logger
}

func NewCached(inner Embedder, cache embedcache.Cache, log *logger.Logger) Embedder {
	if cache == nil {
		return inner
	}
	return &Cached{inner: inner, cache: cache, log: log.With("service", "CachedEmbedder")}
}

func (c *Cached) Embed(ctx context.Context, model string, dims int, text string) ([]float32, error) {
	key := CacheKey(model, dims, text)
	if vec, ok := c.cache.Get(ctx, key); ok {
		if Validate(vec, dims) == nil {
			observability.Current().IncEmbedCache("hit")
			return vec, nil
		}
		c.log.Warn("cached query vector invalid; re-embedding", "model", model, "dims", dims)
	}
	observability.Current().IncEmbedCache("miss")
	vec, err := c.inner.Embed(ctx, model, dims, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, vec)
	return vec, nil
}
