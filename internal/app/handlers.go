package app

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/roadmap-backend/internal/http"
	httpH "github.com/yungbote/roadmap-backend/internal/http/handlers"
	"github.com/yungbote/roadmap-backend/internal/observability"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

type Handlers struct {
	Health     *httpH.HealthHandler
	Roadmap    *httpH.RoadmapHandler
	Template   *httpH.TemplateHandler
	Embeddings *httpH.EmbeddingHandler
}

func wireHandlers(log *logger.Logger, gdb *gorm.DB, services Services) Handlers {
	log.Info("Wiring handlers...")
	var pinger httpH.Pinger
	if sqlDB, err := gdb.DB(); err == nil {
		pinger = sqlDB
	}
	return Handlers{
		Health:     httpH.NewHealthHandler(pinger),
		Roadmap:    httpH.NewRoadmapHandler(services.Roadmaps, log),
		Template:   httpH.NewTemplateHandler(services.Roadmaps),
		Embeddings: httpH.NewEmbeddingHandler(services.Roadmaps, services.Launcher, log),
	}
}

func wireRouter(log *logger.Logger, cfg Config, m *observability.Metrics, handlers Handlers) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:              log,
		Metrics:          m,
		ServiceName:      cfg.ServiceName,
		HealthHandler:    handlers.Health,
		RoadmapHandler:   handlers.Roadmap,
		TemplateHandler:  handlers.Template,
		EmbeddingHandler: handlers.Embeddings,
	})
}
