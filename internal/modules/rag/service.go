package rag

import (
	"context"
	"strings"
	"time"

	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/customize"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/generate"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/query"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/search"
	"github.com/yungbote/roadmap-backend/internal/observability"
	"github.com/yungbote/roadmap-backend/internal/platform/ctxutil"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

type State string

const (
	StateQueryBuilt  State = "QUERY_BUILT"
	StateSearching   State = "SEARCHING"
	StateHit         State = "HIT"
	StateCustomizing State = "CUSTOMIZING"
	StateMiss        State = "MISS"
	StateGenerating  State = "GENERATING"
	StateDone        State = "DONE"
	StateFatal       State = "FATAL_ERROR"
)

type TextSearcher interface {
	SearchText(ctx context.Context, text string, p search.Params) ([]types.TemplateMatch, error)
}

type Customizer interface {
	Customize(ctx context.Context, match types.TemplateMatch, qc types.UserQueryContext, opts customize.Options) (*types.Roadmap, error)
}

type Generator interface {
	Generate(ctx context.Context, req generate.Request) (*types.Roadmap, error)
}

type ContentStats interface {
	Coverage(dbc dbctx.Context, model string) ([]types.CoverageRow, error)
}

type TemplateStats interface {
	ListStale(dbc dbctx.Context, model string, dims, limit int) ([]*types.Template, error)
	CountStale(dbc dbctx.Context, model string, dims int) (int64, error)
}

// RoadmapRequest carries the retrieval knobs explicitly; callers fill omitted ones from Params.
type RoadmapRequest struct {
	Query     types.UserQueryContext
	SkillIDs  []string
	GoalIDs   []string
	Threshold float64
	Limit     int
}

type RoadmapResult struct {
	Roadmap *types.Roadmap `json:"roadmap"`
	Outcome string         `json:"outcome"`
	Trace   []State        `json:"-"`
}

type Service struct {
	search    TextSearcher
	customize Customizer
	generate  Generator
	content   ContentStats
	templates TemplateStats
	params    Params
	log       *logger.Logger
}

type ServiceDeps struct {
	Search    TextSearcher
	Customize Customizer
	Generate  Generator
	Content   ContentStats
	Templates TemplateStats
}

func NewService(deps ServiceDeps, params Params, log *logger.Logger) *Service {
	return &Service{
		search:    deps.Search,
		customize: deps.Customize,
		generate:  deps.Generate,
		content:   deps.Content,
		templates: deps.Templates,
		params:    params,
		log:       log.With("service", "RoadmapService"),
	}
}

func (s *Service) Params() Params { return s.params }

// CreateRoadmap runs one request through retrieval and either customization or generation.
// It yields exactly one roadmap or one error; nothing is retried here.
func (s *Service) CreateRoadmap(ctx context.Context, req RoadmapRequest) (*RoadmapResult, error) {
	res := &RoadmapResult{}
	start := time.Now()
	log := s.log.With(ctxutil.LogFields(ctx)...)
	move := func(st State, kv ...any) {
		res.Trace = append(res.Trace, st)
		log.Debug("roadmap request state", append([]any{"state", string(st)}, kv...)...)
	}
	fatal := func(err error) (*RoadmapResult, error) {
		move(StateFatal, "error", err)
		observability.Current().IncRetrieval("error")
		log.Error("roadmap request failed", "error", err, "trace", res.Trace, "elapsed", time.Since(start).String())
		return res, err
	}

	text := query.Build(req.Query)
	move(StateQueryBuilt, "chars", len(text))

	move(StateSearching, "threshold", req.Threshold, "limit", req.Limit)
	matches, err := s.search.SearchText(ctx, text, s.params.SearchParams(req.Threshold, req.Limit))
	if err != nil {
		return fatal(err)
	}

	if len(matches) > 0 {
		top := matches[0]
		move(StateHit, "template_id", top.Template.ID.String(), "similarity", top.Similarity)
		move(StateCustomizing)
		rm, err := s.customize.Customize(ctx, top, req.Query, customize.Options{BaselineHoursPerWeek: s.params.BaselineHoursPerWeek})
		if err != nil {
			return fatal(err)
		}
		res.Roadmap, res.Outcome = rm, "hit"
	} else {
		move(StateMiss)
		move(StateGenerating)
		rm, err := s.generate.Generate(ctx, generate.Request{
			Query:    req.Query,
			SkillIDs: req.SkillIDs,
			GoalIDs:  req.GoalIDs,
			Model:    s.params.EmbeddingModel,
			Dims:     s.params.Dimensions,
			Timeout:  s.params.GenerationTimeout,
		})
		if err != nil {
			return fatal(err)
		}
		res.Roadmap, res.Outcome = rm, "miss"
	}

	move(StateDone)
	observability.Current().IncRetrieval(res.Outcome)
	log.Info("roadmap request done", "outcome", res.Outcome, "modules", len(res.Roadmap.Modules), "elapsed", time.Since(start).String())
	return res, nil
}

// SearchTemplates is the diagnostic search; threshold 0 returns the best limit candidates.
func (s *Service) SearchTemplates(ctx context.Context, text string, threshold float64, limit int) ([]types.TemplateMatch, error) {
	return s.search.SearchText(ctx, strings.TrimSpace(text), s.params.SearchParams(threshold, limit))
}

func (s *Service) Coverage(ctx context.Context) ([]types.CoverageRow, error) {
	rows, err := s.content.Coverage(dbctx.Of(ctx), s.params.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		observability.Current().SetCoverage(r.ContentType, r.CoveragePct/100)
	}
	return rows, nil
}

type StaleReport struct {
	Model     string                 `json:"model"`
	Count     int64                  `json:"count"`
	Templates []types.TemplateRecord `json:"templates"`
}

// StaleTemplates lists templates search will skip because their vector is missing, from another model,
// or of another width than the configured dimensions.
func (s *Service) StaleTemplates(ctx context.Context, limit int) (*StaleReport, error) {
	dbc := dbctx.Of(ctx)
	n, err := s.templates.CountStale(dbc, s.params.EmbeddingModel, s.params.Dimensions)
	if err != nil {
		return nil, err
	}
	rows, err := s.templates.ListStale(dbc, s.params.EmbeddingModel, s.params.Dimensions, limit)
	if err != nil {
		return nil, err
	}
	out := &StaleReport{Model: s.params.EmbeddingModel, Count: n, Templates: make([]types.TemplateRecord, 0, len(rows))}
	for _, row := range rows {
		rec, err := row.Record()
		if err != nil {
			s.log.Warn("skipping malformed template row", "error", err)
			continue
		}
		out.Templates = append(out.Templates, rec)
	}
	return out, nil
}
