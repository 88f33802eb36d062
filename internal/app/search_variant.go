package app

import (
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/roadmap-backend/internal/data/db"
	"github.com/yungbote/roadmap-backend/internal/data/repos"
	"github.com/yungbote/roadmap-backend/internal/modules/rag"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/search"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

// resolveSearcher honours RAG_SEARCH_VARIANT, except that the pgvector push-down needs Postgres:
// on any other dialect it falls back to ranking in process.
func resolveSearcher(log *logger.Logger, gdb *gorm.DB, variant string, templates repos.TemplateRepo) search.Searcher {
	variant = strings.ToLower(strings.TrimSpace(variant))
	if variant == rag.SearchVariantPgvector && !db.IsPostgres(gdb) {
		log.Warn("pgvector search needs postgres; using in-process ranking", "requested", variant)
		variant = rag.SearchVariantInProcess
	}
	var s search.Searcher
	switch variant {
	case rag.SearchVariantInProcess:
		s = search.NewInProcess(templates, log)
	default:
		s = search.NewPgvector(templates, log)
	}
	log.Info("similarity search variant selected", "variant", s.Name())
	return s
}
