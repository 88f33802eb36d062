package testutil

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/roadmap-backend/internal/domain"
)

func SeedContent(tb testing.TB, ctx context.Context, tx *gorm.DB, contentType, contentID, text string, updated time.Time) *types.ContentRecord {
	tb.Helper()
	row := &types.ContentRecord{
		ContentType: contentType,
		ContentID:   contentID,
		TextContent: text,
		LastUpdated: updated.UTC(),
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		tb.Fatalf("seed content: %v", err)
	}
	return row
}

// SeedTemplate stores a template with the given vector; a nil vector leaves path_embedding NULL.
func SeedTemplate(tb testing.TB, ctx context.Context, tx *gorm.DB, name string, skills []string, vec []float32, model string, usage int) *types.Template {
	tb.Helper()
	row, err := types.NewTemplate(types.TemplateRecord{
		Name:           name,
		Difficulty:     "beginner",
		DurationWeeks:  4,
		TargetSkills:   skills,
		UsageCount:     usage,
		Path:           types.PathData{Modules: []types.PathModule{{Title: name + " basics", Skills: skills, Weeks: 2, Hours: 16}}},
		Embedding:      vec,
		EmbeddingModel: model,
	}, time.Now().UTC())
	if err != nil {
		tb.Fatalf("build template: %v", err)
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		tb.Fatalf("seed template: %v", err)
	}
	return row
}
