package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
	"github.com/yungbote/roadmap-backend/internal/platform/openai"
)

// ErrInvalidOutput marks model output that parsed but does not describe a usable roadmap.
var ErrInvalidOutput = errors.New("invalid roadmap output")

// Generator produces a roadmap from scratch.
type Generator interface {
	Generate(ctx context.Context, qc types.UserQueryContext, skillIDs, goalIDs []string) (*types.Roadmap, error)
}

type BreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  2,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// LLMGenerator asks the chat model for a roadmap as strict JSON. Calls go through a circuit breaker so a
// failing provider is reported as unavailable instead of being hammered by every cache miss.
type LLMGenerator struct {
	ai    openai.Client
	model string
	cb    *gobreaker.CircuitBreaker[map[string]any]
	log   *logger.Logger
	now   func() time.Time
}

// errCallerDone marks failures caused by the caller's context ending.
var errCallerDone = errors.New("caller context done")

func NewLLMGenerator(ai openai.Client, model string, bc BreakerConfig, log *logger.Logger) *LLMGenerator {
	log = log.With("service", "RoadmapGenerator")
	cb := gobreaker.NewCircuitBreaker[map[string]any](gobreaker.Settings{
		Name:        "roadmap-generation",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureRatio
		},
		// Caller cancellations and deadlines say nothing about provider health. A provider timeout
		// on a live request still counts.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerDone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &LLMGenerator{ai: ai, model: model, cb: cb, log: log, now: time.Now}
}

func (g *LLMGenerator) Generate(ctx context.Context, qc types.UserQueryContext, skillIDs, goalIDs []string) (*types.Roadmap, error) {
	obj, err := g.cb.Execute(func() (map[string]any, error) {
		obj, err := g.ai.GenerateJSON(ctx, systemPrompt, userPrompt(qc, skillIDs, goalIDs), roadmapSchemaName, RoadmapSchema())
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", errCallerDone, err)
		}
		return obj, err
	})
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	var out modelRoadmap
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if err := out.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return g.toRoadmap(out, qc), nil
}

func (g *LLMGenerator) toRoadmap(out modelRoadmap, qc types.UserQueryContext) *types.Roadmap {
	rm := &types.Roadmap{
		Title:       strings.TrimSpace(out.Title),
		Description: strings.TrimSpace(out.Description),
		Difficulty:  qc.Difficulty(),
		Metadata: types.RoadmapMetadata{
			Source:          types.RoadmapSourceGenerated,
			ExperienceLevel: qc.Difficulty(),
			Model:           g.model,
			CreatedAt:       g.now().UTC(),
		},
	}
	weeks := 0
	for i, m := range out.Modules {
		w := max(m.Weeks, 1)
		weeks += w
		rm.Modules = append(rm.Modules, types.RoadmapModule{
			Index:       i + 1,
			Title:       strings.TrimSpace(m.Title),
			Description: strings.TrimSpace(m.Description),
			Skills:      types.StringSet(m.Skills),
			Weeks:       w,
			Hours:       m.Hours,
			Resources:   m.Resources,
		})
	}
	rm.DurationWeeks = weeks
	if out.DurationWeeks > weeks {
		rm.DurationWeeks = out.DurationWeeks
	}
	return rm
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
