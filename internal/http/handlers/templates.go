package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/http/response"
	"github.com/yungbote/roadmap-backend/internal/modules/rag"
)

type TemplateService interface {
	SearchTemplates(ctx context.Context, text string, threshold float64, limit int) ([]types.TemplateMatch, error)
	StaleTemplates(ctx context.Context, limit int) (*rag.StaleReport, error)
	Params() rag.Params
}

type TemplateHandler struct {
	svc TemplateService
}

func NewTemplateHandler(svc TemplateService) *TemplateHandler {
	return &TemplateHandler{svc: svc}
}

const defaultStaleLimit = 50

// GET /api/templates/search?q=&threshold=&limit=
// threshold defaults to 0 here so the endpoint shows the nearest candidates even below the cutoff.
func (h *TemplateHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("q is required"))
		return
	}
	threshold := 0.0
	if v := strings.TrimSpace(c.Query("threshold")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_threshold", err)
			return
		}
		threshold = f
	}
	limit := h.svc.Params().MatchLimit
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		limit = n
	}

	matches, err := h.svc.SearchTemplates(c.Request.Context(), q, threshold, limit)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if matches == nil {
		matches = []types.TemplateMatch{}
	}
	response.RespondOK(c, gin.H{"matches": matches, "threshold": threshold, "limit": limit})
}

// GET /api/templates/stale?limit=
func (h *TemplateHandler) Stale(c *gin.Context) {
	limit := defaultStaleLimit
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	report, err := h.svc.StaleTemplates(c.Request.Context(), limit)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, report)
}
