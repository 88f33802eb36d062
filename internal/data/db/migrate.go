package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/roadmap-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&types.ContentRecord{},
		&types.ContentEmbedding{},
		&types.Template{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if IsPostgres(db) {
		// Search filters on model first; usage_count breaks similarity ties.
		stmts := []string{
			`CREATE INDEX IF NOT EXISTS idx_roadmap_templates_model_usage ON roadmap_templates (embedding_model, usage_count DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_content_items_updated ON content_items (content_type, last_updated)`,
		}
		for _, stmt := range stmts {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("automigrate index: %w", err)
			}
		}
	}
	return nil
}
