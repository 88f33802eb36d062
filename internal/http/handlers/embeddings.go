package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/http/response"
	"github.com/yungbote/roadmap-backend/internal/modules/rag"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/batch"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/ragerr"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

type CoverageService interface {
	Coverage(ctx context.Context) ([]types.CoverageRow, error)
	Params() rag.Params
}

type EmbeddingHandler struct {
	svc      CoverageService
	launcher batch.Launcher
	log      *logger.Logger
}

func NewEmbeddingHandler(svc CoverageService, launcher batch.Launcher, log *logger.Logger) *EmbeddingHandler {
	return &EmbeddingHandler{svc: svc, launcher: launcher, log: log.With("handler", "EmbeddingHandler")}
}

// GET /api/embeddings/coverage
func (h *EmbeddingHandler) Coverage(c *gin.Context) {
	rows, err := h.svc.Coverage(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if rows == nil {
		rows = []types.CoverageRow{}
	}
	response.RespondOK(c, gin.H{"model": h.svc.Params().EmbeddingModel, "coverage": rows})
}

type startRunRequest struct {
	Limit            int  `json:"limit"`
	DryRun           bool `json:"dry_run"`
	RefreshTemplates bool `json:"refresh_templates"`
	BatchSize        *int `json:"batch_size"`
}

// POST /api/embeddings/runs
func (h *EmbeddingHandler) StartRun(c *gin.Context) {
	if h.launcher == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "runs_disabled", errors.New("embedding runs are not enabled on this instance"))
		return
	}
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	p := h.svc.Params().BatchParams()
	p.Limit = req.Limit
	p.DryRun = req.DryRun
	p.RefreshTemplates = req.RefreshTemplates
	if req.BatchSize != nil {
		p.BatchSize = *req.BatchSize
	}
	if err := p.Validate(); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_run_params", err)
		return
	}

	launch, err := h.launcher.Launch(c.Request.Context(), p)
	switch {
	case errors.Is(err, batch.ErrRunInProgress):
		response.RespondError(c, http.StatusConflict, "run_in_progress", err)
		return
	case ragerr.IsConfiguration(err):
		response.RespondError(c, http.StatusBadRequest, "invalid_run_params", err)
		return
	case err != nil:
		response.RespondErr(c, err)
		return
	}
	h.log.Info("embedding run accepted", "run_id", launch.RunID, "mode", launch.Mode, "dry_run", p.DryRun, "limit", p.Limit)
	response.RespondAccepted(c, launch)
}
