package roadmap

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

// NearestRow is one template returned by the push-down search together with its cosine similarity.
type NearestRow struct {
	Template   *types.Template
	Similarity float64
}

type TemplateRepo interface {
	Create(dbc dbctx.Context, row *types.Template) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Template, error)
	// IncrementUsage bumps usage_count in a single UPDATE so concurrent selections never lose an update.
	IncrementUsage(dbc dbctx.Context, id uuid.UUID) error
	// ListEmbedded returns templates whose vector was produced by model with dims components.
	// dims <= 0 accepts any dimensionality.
	ListEmbedded(dbc dbctx.Context, model string, dims int) ([]*types.Template, error)
	// NearestByCosine runs the similarity search inside Postgres with pgvector's <=> operator.
	// Only vectors with len(query) components take part.
	NearestByCosine(dbc dbctx.Context, query []float32, model string, threshold float64, limit int) ([]NearestRow, error)
	// ListStale and CountStale cover rows with no vector, another model, or another dimensionality.
	// dims <= 0 only flags rows whose width was never recorded.
	ListStale(dbc dbctx.Context, model string, dims, limit int) ([]*types.Template, error)
	CountStale(dbc dbctx.Context, model string, dims int) (int64, error)
	UpdateEmbedding(dbc dbctx.Context, id uuid.UUID, vec []float32, model string) error
}

type templateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTemplateRepo(db *gorm.DB, baseLog *logger.Logger) TemplateRepo {
	return &templateRepo{db: db, log: baseLog.With("repo", "TemplateRepo")}
}

func (r *templateRepo) Create(dbc dbctx.Context, row *types.Template) error {
	t := dbc.DB(r.db)
	if row == nil || strings.TrimSpace(row.Name) == "" {
		return invalid("template.create", "name required")
	}
	if row.UsageCount < 0 {
		return invalid("template.create", "usage_count must be >= 0")
	}
	now := time.Now().UTC()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	return mapError("template.create", t.WithContext(dbc.Ctx).Create(row).Error)
}

func (r *templateRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Template, error) {
	t := dbc.DB(r.db)
	var out types.Template
	if err := t.WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, mapError("template.get", err)
	}
	return &out, nil
}

func (r *templateRepo) IncrementUsage(dbc dbctx.Context, id uuid.UUID) error {
	t := dbc.DB(r.db)
	if id == uuid.Nil {
		return invalid("template.increment_usage", "id required")
	}
	res := t.WithContext(dbc.Ctx).
		Model(&types.Template{}).
		Where("id = ?", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1))
	if res.Error != nil {
		return mapError("template.increment_usage", res.Error)
	}
	if res.RowsAffected == 0 {
		return mapError("template.increment_usage", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *templateRepo) ListEmbedded(dbc dbctx.Context, model string, dims int) ([]*types.Template, error) {
	t := dbc.DB(r.db)
	var out []*types.Template
	q := t.WithContext(dbc.Ctx).Where("path_embedding IS NOT NULL AND embedding_model = ?", model)
	if dims > 0 {
		q = q.Where("embedding_dims = ?", dims)
	}
	if err := q.
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, mapError("template.list_embedded", err)
	}
	return out, nil
}

type nearestScan struct {
	types.Template
	Similarity float64 `gorm:"column:similarity"`
}

func (r *templateRepo) NearestByCosine(dbc dbctx.Context, query []float32, model string, threshold float64, limit int) ([]NearestRow, error) {
	t := dbc.DB(r.db)
	if len(query) == 0 {
		return nil, invalid("template.nearest", "query vector required")
	}
	if limit <= 0 {
		return []NearestRow{}, nil
	}
	vec := pgvector.NewVector(query)
	var rows []nearestScan
	if err := t.WithContext(dbc.Ctx).
		Table("roadmap_templates").
		Select("roadmap_templates.*, 1 - (path_embedding <=> ?) AS similarity", vec).
		Where("path_embedding IS NOT NULL AND embedding_model = ?", model).
		Where("vector_dims(path_embedding) = ?", len(query)).
		// CASE pins evaluation order; Postgres may otherwise run <=> before the width check.
		Where("CASE WHEN vector_dims(path_embedding) = ? THEN 1 - (path_embedding <=> ?) END >= ?", len(query), vec, threshold).
		Order("similarity DESC, usage_count DESC, id ASC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, mapError("template.nearest", err)
	}
	out := make([]NearestRow, 0, len(rows))
	for i := range rows {
		tpl := rows[i].Template
		out = append(out, NearestRow{Template: &tpl, Similarity: rows[i].Similarity})
	}
	return out, nil
}

func (r *templateRepo) staleQuery(dbc dbctx.Context, model string, dims int) *gorm.DB {
	q := dbc.DB(r.db).WithContext(dbc.Ctx).Model(&types.Template{})
	if dims > 0 {
		return q.Where("path_embedding IS NULL OR embedding_model IS NULL OR embedding_model <> ? OR embedding_dims <> ?", model, dims)
	}
	return q.Where("path_embedding IS NULL OR embedding_model IS NULL OR embedding_model <> ? OR embedding_dims <= 0", model)
}

func (r *templateRepo) ListStale(dbc dbctx.Context, model string, dims, limit int) ([]*types.Template, error) {
	q := r.staleQuery(dbc, model, dims).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*types.Template
	if err := q.Find(&out).Error; err != nil {
		return nil, mapError("template.list_stale", err)
	}
	return out, nil
}

func (r *templateRepo) CountStale(dbc dbctx.Context, model string, dims int) (int64, error) {
	var n int64
	if err := r.staleQuery(dbc, model, dims).Count(&n).Error; err != nil {
		return 0, mapError("template.count_stale", err)
	}
	return n, nil
}

func (r *templateRepo) UpdateEmbedding(dbc dbctx.Context, id uuid.UUID, vec []float32, model string) error {
	t := dbc.DB(r.db)
	if id == uuid.Nil || len(vec) == 0 || strings.TrimSpace(model) == "" {
		return invalid("template.update_embedding", "id, vector and model required")
	}
	v := pgvector.NewVector(vec)
	res := t.WithContext(dbc.Ctx).
		Model(&types.Template{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"path_embedding":  &v,
			"embedding_model": model,
			"embedding_dims":  len(vec),
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return mapError("template.update_embedding", res.Error)
	}
	if res.RowsAffected == 0 {
		return mapError("template.update_embedding", gorm.ErrRecordNotFound)
	}
	return nil
}
