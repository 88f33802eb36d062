package roadmap

import (
	"math"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

type ContentRepo interface {
	// ListPending returns items without an embedding current for model and, when dims > 0, that dimensionality.
	// limit <= 0 means no limit.
	ListPending(dbc dbctx.Context, model string, dims, limit int) ([]types.ContentItem, error)
	// UpsertEmbedding writes the vector for one item, keyed by (content_type, content_id).
	UpsertEmbedding(dbc dbctx.Context, w types.EmbeddingWrite) (bool, error)
	Coverage(dbc dbctx.Context, model string) ([]types.CoverageRow, error)
	UpsertContent(dbc dbctx.Context, rows []*types.ContentRecord) error
}

type contentRepo struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

func NewContentRepo(db *gorm.DB, baseLog *logger.Logger) ContentRepo {
	return &contentRepo{
		db:  db,
		log: baseLog.With("repo", "ContentRepo"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

type pendingRow struct {
	ContentType    string
	ContentID      string
	TextContent    string
	LastUpdated    time.Time
	Embedding      *pgvector.Vector
	EmbeddingModel *string
	EmbeddedAt     *time.Time
}

func (r *contentRepo) ListPending(dbc dbctx.Context, model string, dims, limit int) ([]types.ContentItem, error) {
	t := dbc.DB(r.db)
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, invalid("content.list_pending", "model required")
	}
	q := t.WithContext(dbc.Ctx).
		Table("content_items AS c").
		Select("c.content_type, c.content_id, c.text_content, c.last_updated, e.embedding, e.embedding_model, e.embedded_at").
		Joins("LEFT JOIN content_embeddings e ON e.content_type = c.content_type AND e.content_id = c.content_id").
		Order("c.content_type ASC, c.content_id ASC")
	if dims > 0 {
		q = q.Where("e.content_id IS NULL OR e.embedding_model <> ? OR e.dimensions <> ? OR c.last_updated > e.embedded_at", model, dims)
	} else {
		q = q.Where("e.content_id IS NULL OR e.embedding_model <> ? OR c.last_updated > e.embedded_at", model)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []pendingRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, mapError("content.list_pending", err)
	}
	out := make([]types.ContentItem, 0, len(rows))
	for _, row := range rows {
		item := types.ContentItem{
			ContentType: row.ContentType,
			ContentID:   row.ContentID,
			TextContent: row.TextContent,
			LastUpdated: row.LastUpdated,
			EmbeddedAt:  row.EmbeddedAt,
		}
		if row.Embedding != nil {
			item.Embedding = row.Embedding.Slice()
		}
		if row.EmbeddingModel != nil {
			item.EmbeddingModel = *row.EmbeddingModel
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *contentRepo) UpsertEmbedding(dbc dbctx.Context, w types.EmbeddingWrite) (bool, error) {
	t := dbc.DB(r.db)
	if strings.TrimSpace(w.ContentType) == "" || strings.TrimSpace(w.ContentID) == "" {
		return false, invalid("content.upsert_embedding", "content_type and content_id required")
	}
	if len(w.Vector) == 0 || strings.TrimSpace(w.Model) == "" {
		return false, invalid("content.upsert_embedding", "vector and model required")
	}
	now := r.now()
	row := &types.ContentEmbedding{
		ContentType:    w.ContentType,
		ContentID:      w.ContentID,
		Embedding:      pgvector.NewVector(w.Vector),
		EmbeddingModel: w.Model,
		Dimensions:     len(w.Vector),
		EmbeddedAt:     now,
	}
	res := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "content_type"}, {Name: "content_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"embedding":       gorm.Expr("excluded.embedding"),
				"embedding_model": gorm.Expr("excluded.embedding_model"),
				"dimensions":      gorm.Expr("excluded.dimensions"),
				"embedded_at":     now,
			}),
		}).
		Create(row)
	if res.Error != nil {
		return false, mapError("content.upsert_embedding", res.Error)
	}
	return res.RowsAffected > 0, nil
}

type coverageRow struct {
	ContentType string
	Total       int64
	Embedded    int64
}

func (r *contentRepo) Coverage(dbc dbctx.Context, model string) ([]types.CoverageRow, error) {
	t := dbc.DB(r.db)
	join := "LEFT JOIN content_embeddings e ON e.content_type = c.content_type AND e.content_id = c.content_id"
	var args []any
	if m := strings.TrimSpace(model); m != "" {
		join += " AND e.embedding_model = ?"
		args = append(args, m)
	}
	var rows []coverageRow
	if err := t.WithContext(dbc.Ctx).
		Table("content_items AS c").
		Select("c.content_type AS content_type, COUNT(*) AS total, COUNT(e.content_id) AS embedded").
		Joins(join, args...).
		Group("c.content_type").
		Order("c.content_type ASC").
		Scan(&rows).Error; err != nil {
		return nil, mapError("content.coverage", err)
	}
	out := make([]types.CoverageRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, types.CoverageRow{
			ContentType: row.ContentType,
			Total:       row.Total,
			Embedded:    row.Embedded,
			CoveragePct: coveragePct(row.Embedded, row.Total),
		})
	}
	return out, nil
}

func coveragePct(embedded, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(embedded)/float64(total)*10000) / 100
}

func (r *contentRepo) UpsertContent(dbc dbctx.Context, rows []*types.ContentRecord) error {
	t := dbc.DB(r.db)
	out := make([]*types.ContentRecord, 0, len(rows))
	now := r.now()
	for _, row := range rows {
		if row == nil || strings.TrimSpace(row.ContentType) == "" || strings.TrimSpace(row.ContentID) == "" {
			continue
		}
		if row.LastUpdated.IsZero() {
			row.LastUpdated = now
		}
		out = append(out, row)
	}
	if len(out) == 0 {
		return nil
	}
	err := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_type"}, {Name: "content_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"text_content", "last_updated"}),
		}).
		Create(&out).Error
	return mapError("content.upsert", err)
}
