package rag

import (
	"strings"
	"time"
)

const (
	RoadmapSourceTemplate  = "template"
	RoadmapSourceGenerated = "generated"
)

// UserQueryContext is request-scoped and never persisted.
type UserQueryContext struct {
	GoalsText       string            `json:"goals"`
	SkillsText      string            `json:"skills"`
	ExperienceLevel string            `json:"experience_level"`
	TimeAvailable   string            `json:"time_available"`
	ProfileSubset   map[string]string `json:"profile,omitempty"`
}

// Difficulty maps the stated experience level onto a template difficulty.
func (q UserQueryContext) Difficulty() string {
	lvl := strings.ToLower(strings.TrimSpace(q.ExperienceLevel))
	switch {
	case strings.Contains(lvl, "advanced"), strings.Contains(lvl, "expert"), strings.Contains(lvl, "senior"):
		return "advanced"
	case strings.Contains(lvl, "intermediate"), strings.Contains(lvl, "mid"):
		return "intermediate"
	default:
		return "beginner"
	}
}

type RoadmapModule struct {
	Index       int      `json:"index"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Skills      []string `json:"skills,omitempty"`
	Weeks       int      `json:"weeks"`
	Hours       int      `json:"hours"`
	Resources   []string `json:"resources,omitempty"`
	Optional    bool     `json:"optional,omitempty"`
	Note        string   `json:"note,omitempty"`
}

type RoadmapMetadata struct {
	Source          string    `json:"source"`
	TemplateID      string    `json:"template_id,omitempty"`
	Similarity      float64   `json:"similarity,omitempty"`
	ExperienceLevel string    `json:"experience_level,omitempty"`
	HoursPerWeek    float64   `json:"hours_per_week,omitempty"`
	PacingFactor    float64   `json:"pacing_factor,omitempty"`
	TrimmedModules  []string  `json:"trimmed_modules,omitempty"`
	OptionalModules []string  `json:"optional_modules,omitempty"`
	Model           string    `json:"model,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type Roadmap struct {
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Difficulty    string          `json:"difficulty,omitempty"`
	DurationWeeks int             `json:"duration_weeks"`
	Modules       []RoadmapModule `json:"modules"`
	Metadata      RoadmapMetadata `json:"metadata"`
}

// PathData converts the roadmap's module list into a template path.
func (r Roadmap) PathData() PathData {
	out := PathData{Modules: make([]PathModule, 0, len(r.Modules))}
	for _, m := range r.Modules {
		out.Modules = append(out.Modules, PathModule{
			Title:       m.Title,
			Description: m.Description,
			Skills:      append([]string(nil), m.Skills...),
			Weeks:       m.Weeks,
			Hours:       m.Hours,
			Resources:   append([]string(nil), m.Resources...),
		})
	}
	return out
}
