package rag

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/roadmap-backend/internal/modules/rag/batch"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/ragerr"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/search"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/textnorm"
	"github.com/yungbote/roadmap-backend/internal/platform/envutil"
)

// Params are the operator-facing tunables. They seed per-call values; no component reads them implicitly.
type Params struct {
	EmbeddingModel       string        `yaml:"embedding_model"`
	Dimensions           int           `yaml:"dimensions"`
	BatchSize            int           `yaml:"batch_size"`
	ItemInterval         time.Duration `yaml:"item_interval"`
	BatchInterval        time.Duration `yaml:"batch_interval"`
	SimilarityThreshold  float64       `yaml:"similarity_threshold"`
	MatchLimit           int           `yaml:"match_limit"`
	RatePer1K            float64       `yaml:"rate_per_1k_tokens"`
	MaxTokens            int           `yaml:"max_tokens"`
	CharsPerToken        int           `yaml:"chars_per_token"`
	GenerationTimeout    time.Duration `yaml:"generation_timeout"`
	PersistTimeout       time.Duration `yaml:"persist_timeout"`
	BaselineHoursPerWeek float64       `yaml:"baseline_hours_per_week"`
	SearchVariant        string        `yaml:"search_variant"`
}

const (
	SearchVariantPgvector  = "pgvector"
	SearchVariantInProcess = "in_process"
)

func DefaultParams() Params {
	return Params{
		EmbeddingModel:       "text-embedding-3-small",
		Dimensions:           1536,
		BatchSize:            batch.DefaultBatchSize,
		ItemInterval:         batch.DefaultItemInterval,
		BatchInterval:        batch.DefaultBatchInterval,
		SimilarityThreshold:  0.78,
		MatchLimit:           5,
		RatePer1K:            batch.DefaultRatePer1K,
		MaxTokens:            textnorm.DefaultMaxTokens,
		CharsPerToken:        textnorm.DefaultCharsPerToken,
		GenerationTimeout:    60 * time.Second,
		PersistTimeout:       30 * time.Second,
		BaselineHoursPerWeek: 10,
		SearchVariant:        SearchVariantPgvector,
	}
}

// ParamsFromEnv overlays RAG_* environment variables on base.
func ParamsFromEnv(base Params) Params {
	p := base
	p.EmbeddingModel = envutil.String("RAG_EMBEDDING_MODEL", p.EmbeddingModel)
	p.Dimensions = envutil.Int("RAG_EMBEDDING_DIMENSIONS", p.Dimensions)
	p.BatchSize = envutil.Int("RAG_BATCH_SIZE", p.BatchSize)
	p.ItemInterval = envutil.Duration("RAG_ITEM_INTERVAL", p.ItemInterval)
	p.BatchInterval = envutil.Duration("RAG_BATCH_INTERVAL", p.BatchInterval)
	p.SimilarityThreshold = envutil.Float("RAG_SIMILARITY_THRESHOLD", p.SimilarityThreshold)
	p.MatchLimit = envutil.Int("RAG_MATCH_LIMIT", p.MatchLimit)
	p.RatePer1K = envutil.Float("RAG_RATE_PER_1K_TOKENS", p.RatePer1K)
	p.MaxTokens = envutil.Int("RAG_MAX_TOKENS", p.MaxTokens)
	p.CharsPerToken = envutil.Int("RAG_CHARS_PER_TOKEN", p.CharsPerToken)
	p.GenerationTimeout = envutil.Duration("RAG_GENERATION_TIMEOUT", p.GenerationTimeout)
	p.PersistTimeout = envutil.Duration("RAG_PERSIST_TIMEOUT", p.PersistTimeout)
	p.BaselineHoursPerWeek = envutil.Float("RAG_BASELINE_HOURS_PER_WEEK", p.BaselineHoursPerWeek)
	p.SearchVariant = envutil.String("RAG_SEARCH_VARIANT", p.SearchVariant)
	return p
}

// LoadParamsFile overlays the keys present in a YAML file on base.
func LoadParamsFile(path string, base Params) (Params, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read rag config %s: %w", path, err)
	}
	p := base
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return base, fmt.Errorf("parse rag config %s: %w", path, err)
	}
	return p, nil
}

// LoadParams resolves defaults, then RAG_CONFIG_PATH, then RAG_* env vars.
func LoadParams() (Params, error) {
	p := DefaultParams()
	if path := envutil.String("RAG_CONFIG_PATH", ""); path != "" {
		var err error
		if p, err = LoadParamsFile(path, p); err != nil {
			return p, err
		}
	}
	p = ParamsFromEnv(p)
	return p, p.Validate()
}

func (p Params) Validate() error {
	if err := p.BatchParams().Validate(); err != nil {
		return err
	}
	if err := p.SearchParams(p.SimilarityThreshold, p.MatchLimit).Validate(); err != nil {
		return ragerr.Config("search", err.Error())
	}
	if p.GenerationTimeout <= 0 {
		return ragerr.Config("generation_timeout", "must be positive")
	}
	if p.BaselineHoursPerWeek <= 0 || math.IsNaN(p.BaselineHoursPerWeek) {
		return ragerr.Config("baseline_hours_per_week", "must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(p.SearchVariant)) {
	case SearchVariantPgvector, SearchVariantInProcess:
	default:
		return ragerr.Config("search_variant", fmt.Sprintf("unknown variant %q", p.SearchVariant))
	}
	return nil
}

func (p Params) Normalizer() textnorm.Normalizer {
	return textnorm.New(p.MaxTokens, p.CharsPerToken)
}

func (p Params) BatchParams() batch.Params {
	return batch.Params{
		Model:         p.EmbeddingModel,
		Dims:          p.Dimensions,
		BatchSize:     p.BatchSize,
		ItemInterval:  p.ItemInterval,
		BatchInterval: p.BatchInterval,
		RatePer1K:     p.RatePer1K,
	}
}

// SearchParams binds the configured model to an explicit threshold and limit.
func (p Params) SearchParams(threshold float64, limit int) search.Params {
	return search.Params{Model: p.EmbeddingModel, Dims: p.Dimensions, Threshold: threshold, Limit: limit}
}
