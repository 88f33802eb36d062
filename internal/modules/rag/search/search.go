package search

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/embedding"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/ragerr"
	"github.com/yungbote/roadmap-backend/internal/observability"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

// Params are required on every call; nothing is read from shared state.
type Params struct {
	Model     string
	Dims      int
	Threshold float64
	Limit     int
}

func (p Params) Validate() error {
	if strings.TrimSpace(p.Model) == "" {
		return ragerr.Search(ragerr.SearchInvalidParams, "model required", nil)
	}
	if math.IsNaN(p.Threshold) || p.Threshold < -1 || p.Threshold > 1 {
		return ragerr.Search(ragerr.SearchInvalidParams, "similarity_threshold must be within [-1, 1]", nil)
	}
	if p.Limit <= 0 {
		return ragerr.Search(ragerr.SearchInvalidParams, "match_limit must be positive", nil)
	}
	return nil
}

// Searcher ranks stored templates against a query vector. An empty result is a cache miss, not an error.
type Searcher interface {
	Search(ctx context.Context, query []float32, p Params) ([]types.TemplateMatch, error)
	Name() string
}

// Service embeds query text and delegates to a Searcher.
type Service struct {
	embedder embedding.Embedder
	searcher Searcher
	log      *logger.Logger
}

func NewService(embedder embedding.Embedder, searcher Searcher, log *logger.Logger) *Service {
	return &Service{embedder: embedder, searcher: searcher, log: log.With("service", "SimilaritySearch", "variant", searcher.Name())}
}

func (s *Service) SearchText(ctx context.Context, text string, p Params) ([]types.TemplateMatch, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ragerr.Search(ragerr.SearchInvalidQuery, "query text is empty", nil)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	vec, err := s.embedder.Embed(ctx, p.Model, p.Dims, text)
	if err != nil {
		return nil, ragerr.Search(ragerr.SearchEmbedFailed, "", err)
	}
	return s.SearchVector(ctx, vec, p)
}

func (s *Service) SearchVector(ctx context.Context, query []float32, p Params) (out []types.TemplateMatch, err error) {
	ctx, span := observability.StartSpan(ctx, "rag.search",
		attribute.String("variant", s.searcher.Name()),
		attribute.Float64("threshold", p.Threshold),
		attribute.Int("limit", p.Limit),
	)
	start := time.Now()
	defer func() {
		status := "ok"
		switch {
		case err != nil:
			status = "error"
		case len(out) == 0:
			status = "empty"
		}
		observability.Current().ObserveSearch(s.searcher.Name(), status, time.Since(start))
		span.SetAttributes(attribute.Int("matches", len(out)))
		observability.EndSpan(span, err)
	}()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := embedding.Validate(query, p.Dims); err != nil {
		return nil, ragerr.Search(ragerr.SearchInvalidQuery, "", err)
	}
	out, err = s.searcher.Search(ctx, query, p)
	if err != nil {
		if ragerr.IsSearch(err) {
			return nil, err
		}
		return nil, ragerr.Search(ragerr.SearchQueryFailed, "", err)
	}
	s.log.Debug("similarity search done", "matches", len(out), "threshold", p.Threshold, "limit", p.Limit)
	return out, nil
}

// CosineSimilarity returns 1 - cosine distance. Zero-norm vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank keeps matches at or above threshold, orders them by similarity, then usage_count, then id,
// and truncates to limit.
func Rank(matches []types.TemplateMatch, threshold float64, limit int) []types.TemplateMatch {
	out := make([]types.TemplateMatch, 0, len(matches))
	for _, m := range matches {
		if m.Similarity >= threshold {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		if out[i].Template.UsageCount != out[j].Template.UsageCount {
			return out[i].Template.UsageCount > out[j].Template.UsageCount
		}
		return out[i].Template.ID.String() < out[j].Template.ID.String()
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
