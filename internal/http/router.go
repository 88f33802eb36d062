package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/roadmap-backend/internal/http/handlers"
	httpMW "github.com/yungbote/roadmap-backend/internal/http/middleware"
	"github.com/yungbote/roadmap-backend/internal/observability"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics
	// ServiceName names the otelgin server spans.
	ServiceName string

	RoadmapHandler   *httpH.RoadmapHandler
	TemplateHandler  *httpH.TemplateHandler
	EmbeddingHandler *httpH.EmbeddingHandler
	HealthHandler    *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	name := cfg.ServiceName
	if name == "" {
		name = "roadmap-backend"
	}
	r.Use(otelgin.Middleware(name))
	r.Use(httpMW.Correlate())
	r.Use(httpMW.CORS())
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		if cfg.RoadmapHandler != nil {
			api.POST("/roadmaps", cfg.RoadmapHandler.Create)
		}

		if cfg.TemplateHandler != nil {
			api.GET("/templates/search", cfg.TemplateHandler.Search)
			api.GET("/templates/stale", cfg.TemplateHandler.Stale)
		}

		if cfg.EmbeddingHandler != nil {
			api.GET("/embeddings/coverage", cfg.EmbeddingHandler.Coverage)
			api.POST("/embeddings/runs", cfg.EmbeddingHandler.StartRun)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "route not found", "code": "not_found"}})
	})
	return r
}
