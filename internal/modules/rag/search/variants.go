package search

import (
	"context"

	"github.com/yungbote/roadmap-backend/internal/data/repos"
	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

// Pgvector pushes the nearest-neighbour query down to Postgres.
type Pgvector struct {
	templates repos.TemplateRepo
	log       *logger.Logger
}

func NewPgvector(templates repos.TemplateRepo, log *logger.Logger) *Pgvector {
	return &Pgvector{templates: templates, log: log.With("service", "PgvectorSearcher")}
}

func (s *Pgvector) Name() string { return "pgvector" }

func (s *Pgvector) Search(ctx context.Context, query []float32, p Params) ([]types.TemplateMatch, error) {
	rows, err := s.templates.NearestByCosine(dbctx.Of(ctx), query, p.Model, p.Threshold, p.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.TemplateMatch, 0, len(rows))
	for _, row := range rows {
		rec, err := row.Template.Record()
		if err != nil {
			s.log.Warn("skipping malformed template row", "error", err)
			continue
		}
		out = append(out, types.TemplateMatch{Template: rec, Similarity: row.Similarity})
	}
	return Rank(out, p.Threshold, p.Limit), nil
}

// InProcess fetches candidate vectors and scores them in Go. It works on any store, including SQLite.
type InProcess struct {
	templates repos.TemplateRepo
	log       *logger.Logger
}

func NewInProcess(templates repos.TemplateRepo, log *logger.Logger) *InProcess {
	return &InProcess{templates: templates, log: log.With("service", "InProcessSearcher")}
}

func (s *InProcess) Name() string { return "in_process" }

func (s *InProcess) Search(ctx context.Context, query []float32, p Params) ([]types.TemplateMatch, error) {
	rows, err := s.templates.ListEmbedded(dbctx.Of(ctx), p.Model, len(query))
	if err != nil {
		return nil, err
	}
	out := make([]types.TemplateMatch, 0, len(rows))
	for _, row := range rows {
		rec, err := row.Record()
		if err != nil {
			s.log.Warn("skipping malformed template row", "error", err)
			continue
		}
		if len(rec.Embedding) != len(query) {
			s.log.Warn("skipping template with mismatched dimensions",
				"template_id", rec.ID.String(), "want", len(query), "got", len(rec.Embedding))
			continue
		}
		out = append(out, types.TemplateMatch{Template: rec, Similarity: CosineSimilarity(query, rec.Embedding)})
	}
	return Rank(out, p.Threshold, p.Limit), nil
}
