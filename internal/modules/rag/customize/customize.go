package customize

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/query"
	"github.com/yungbote/roadmap-backend/internal/observability"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

const (
	DefaultBaselineHoursPerWeek = 10.0

	noteKnownSkills = "covers skills you already have"
)

// UsageCounter is the slice of the template store customization needs.
type UsageCounter interface {
	IncrementUsage(dbc dbctx.Context, id uuid.UUID) error
}

type Options struct {
	// BaselineHoursPerWeek is the weekly effort templates are authored for.
	BaselineHoursPerWeek float64
}

type Engine struct {
	usage UsageCounter
	log   *logger.Logger
	now   func() time.Time
}

func NewEngine(usage UsageCounter, log *logger.Logger) *Engine {
	return &Engine{usage: usage, log: log.With("service", "TemplateCustomization"), now: time.Now}
}

// Customize adapts a copy of the matched template to the user and counts the selection.
// Only the usage increment can fail.
func (e *Engine) Customize(ctx context.Context, match types.TemplateMatch, qc types.UserQueryContext, opts Options) (_ *types.Roadmap, err error) {
	ctx, span := observability.StartSpan(ctx, "rag.customize",
		attribute.String("template_id", match.Template.ID.String()),
		attribute.Float64("similarity", match.Similarity),
	)
	defer func() { observability.EndSpan(span, err) }()

	rm := Adapt(match, qc, opts, e.now().UTC())

	if err := e.usage.IncrementUsage(dbctx.Of(ctx), match.Template.ID); err != nil {
		return nil, fmt.Errorf("increment usage for template %s: %w", match.Template.ID, err)
	}
	observability.Current().IncTemplateSelected()
	e.log.Info("template customized",
		"template_id", match.Template.ID.String(),
		"similarity", match.Similarity,
		"modules", len(rm.Modules),
		"trimmed", len(rm.Metadata.TrimmedModules),
		"duration_weeks", rm.DurationWeeks,
	)
	return rm, nil
}

// Adapt is the pure part of Customize. The template's path is never modified.
func Adapt(match types.TemplateMatch, qc types.UserQueryContext, opts Options, now time.Time) *types.Roadmap {
	tpl := match.Template
	path := tpl.Path.Clone()
	level := qc.Difficulty()

	baseline := opts.BaselineHoursPerWeek
	if baseline <= 0 {
		baseline = DefaultBaselineHoursPerWeek
	}
	available, ok := ParseHoursPerWeek(qc.TimeAvailable)
	if !ok || available <= 0 {
		available = baseline
	}
	mult := experienceMultiplier(level)

	known := map[string]bool{}
	for _, s := range query.ParseList(qc.SkillsText) {
		known[s] = true
	}

	meta := types.RoadmapMetadata{
		Source:          types.RoadmapSourceTemplate,
		TemplateID:      tpl.ID.String(),
		Similarity:      match.Similarity,
		ExperienceLevel: level,
		HoursPerWeek:    available,
		PacingFactor:    round2(mult * baseline / available),
		CreatedAt:       now,
	}

	modules := make([]types.RoadmapModule, 0, len(path.Modules))
	for _, m := range path.Modules {
		rm := types.RoadmapModule{
			Title:       m.Title,
			Description: m.Description,
			Skills:      m.Skills,
			Resources:   m.Resources,
		}
		if coveredBy(m.Skills, known) {
			if level == "advanced" {
				meta.TrimmedModules = append(meta.TrimmedModules, m.Title)
				continue
			}
			rm.Optional = true
			rm.Note = noteKnownSkills
			meta.OptionalModules = append(meta.OptionalModules, m.Title)
		}
		hours := float64(m.Hours)
		if hours <= 0 {
			hours = float64(max(m.Weeks, 1)) * baseline
		}
		hours = math.Ceil(hours * mult)
		rm.Hours = int(hours)
		rm.Weeks = max(1, int(math.Ceil(hours/available)))
		modules = append(modules, rm)
	}

	// Never hand back an empty roadmap: keep the first module as optional review.
	if len(modules) == 0 && len(path.Modules) > 0 {
		m := path.Modules[0]
		hours := math.Ceil(float64(max(m.Hours, 1)) * mult)
		modules = append(modules, types.RoadmapModule{
			Title:       m.Title,
			Description: m.Description,
			Skills:      m.Skills,
			Resources:   m.Resources,
			Hours:       int(hours),
			Weeks:       max(1, int(math.Ceil(hours/available))),
			Optional:    true,
			Note:        noteKnownSkills,
		})
		meta.TrimmedModules = meta.TrimmedModules[1:]
		meta.OptionalModules = append(meta.OptionalModules, m.Title)
	}

	weeks := 0
	for i := range modules {
		modules[i].Index = i + 1
		if !modules[i].Optional {
			weeks += modules[i].Weeks
		}
	}
	if weeks == 0 {
		for _, m := range modules {
			weeks += m.Weeks
		}
	}
	if weeks == 0 {
		weeks = max(tpl.DurationWeeks, 1)
	}

	return &types.Roadmap{
		Title:         tpl.Name,
		Description:   tpl.Description,
		Difficulty:    level,
		DurationWeeks: weeks,
		Modules:       modules,
		Metadata:      meta,
	}
}

func coveredBy(skills []string, known map[string]bool) bool {
	if len(skills) == 0 || len(known) == 0 {
		return false
	}
	for _, s := range skills {
		if !known[strings.ToLower(strings.TrimSpace(s))] {
			return false
		}
	}
	return true
}

func experienceMultiplier(level string) float64 {
	switch level {
	case "advanced":
		return 0.8
	case "intermediate":
		return 1.0
	default:
		return 1.25
	}
}

var (
	effortRe = regexp.MustCompile(`(\d+(?:\.\d+)?)(?:\s*(?:-|to)\s*(\d+(?:\.\d+)?))?\s*(hours?|hrs?|h|minutes?|mins?)\b`)
	numberRe = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*$`)
)

// ParseHoursPerWeek reads free text like "10 hours/week", "2h a day", "30 minutes daily",
// "5-8 hrs per week" or "part-time". Bare numbers are hours per week.
func ParseHoursPerWeek(text string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return 0, false
	}
	if m := numberRe.FindStringSubmatch(s); m != nil {
		return positive(parseFloat(m[1]))
	}
	if m := effortRe.FindStringSubmatchIndex(s); m != nil {
		lo := parseFloat(s[m[2]:m[3]])
		v := lo
		if m[4] >= 0 {
			v = (lo + parseFloat(s[m[4]:m[5]])) / 2
		}
		if strings.HasPrefix(s[m[6]:m[7]], "m") {
			v /= 60
		}
		rest := s[m[7]:]
		switch {
		case strings.Contains(rest, "weekday"):
			v *= 5
		case strings.Contains(rest, "day"), strings.Contains(rest, "daily"), strings.Contains(rest, "night"):
			v *= 7
		case strings.Contains(rest, "month"):
			v /= 4.345
		}
		return positive(v)
	}
	switch {
	case strings.Contains(s, "full-time"), strings.Contains(s, "full time"), strings.Contains(s, "fulltime"):
		return 40, true
	case strings.Contains(s, "part-time"), strings.Contains(s, "part time"), strings.Contains(s, "parttime"):
		return 20, true
	case strings.Contains(s, "weekend"):
		return 8, true
	}
	return 0, false
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// positive rejects values that are non-positive once rounded to the reported precision.
func positive(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v = round2(v); v <= 0 {
		return 0, false
	}
	return v, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
