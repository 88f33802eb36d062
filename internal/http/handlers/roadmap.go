package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/http/response"
	"github.com/yungbote/roadmap-backend/internal/modules/rag"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

type RoadmapService interface {
	CreateRoadmap(ctx context.Context, req rag.RoadmapRequest) (*rag.RoadmapResult, error)
	Params() rag.Params
}

type RoadmapHandler struct {
	svc RoadmapService
	log *logger.Logger
}

func NewRoadmapHandler(svc RoadmapService, log *logger.Logger) *RoadmapHandler {
	return &RoadmapHandler{svc: svc, log: log.With("handler", "RoadmapHandler")}
}

type createRoadmapRequest struct {
	Goals           string            `json:"goals"`
	Skills          string            `json:"skills"`
	ExperienceLevel string            `json:"experience_level"`
	TimeAvailable   string            `json:"time_available"`
	Profile         map[string]string `json:"profile"`
	SkillIDs        []string          `json:"skill_ids"`
	GoalIDs         []string          `json:"goal_ids"`
	// Omitted knobs take the configured defaults. 0 is a valid threshold.
	SimilarityThreshold *float64 `json:"similarity_threshold"`
	MatchLimit          *int     `json:"match_limit"`
}

var errEmptyQuery = errors.New("at least one of goals or skills is required")

// POST /api/roadmaps
func (h *RoadmapHandler) Create(c *gin.Context) {
	var req createRoadmapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.Goals) == "" && strings.TrimSpace(req.Skills) == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errEmptyQuery)
		return
	}

	p := h.svc.Params()
	threshold, limit := p.SimilarityThreshold, p.MatchLimit
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
	}
	if req.MatchLimit != nil {
		limit = *req.MatchLimit
	}

	res, err := h.svc.CreateRoadmap(c.Request.Context(), rag.RoadmapRequest{
		Query: types.UserQueryContext{
			GoalsText:       req.Goals,
			SkillsText:      req.Skills,
			ExperienceLevel: req.ExperienceLevel,
			TimeAvailable:   req.TimeAvailable,
			ProfileSubset:   req.Profile,
		},
		SkillIDs:  req.SkillIDs,
		GoalIDs:   req.GoalIDs,
		Threshold: threshold,
		Limit:     limit,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}
