package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/roadmap-backend/internal/data/repos/roadmap"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

type ContentRepo = roadmap.ContentRepo
type TemplateRepo = roadmap.TemplateRepo
type NearestRow = roadmap.NearestRow

type Repos struct {
	Content   ContentRepo
	Templates TemplateRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Content:   roadmap.NewContentRepo(db, log),
		Templates: roadmap.NewTemplateRepo(db, log),
	}
}
