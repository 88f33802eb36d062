package generate

import (
	"fmt"
	"strings"

	types "github.com/yungbote/roadmap-backend/internal/domain"
)

const roadmapSchemaName = "learning_roadmap_v1"

func stringArraySchema() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

func moduleSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":       map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"skills":      stringArraySchema(),
			"weeks":       map[string]any{"type": "integer"},
			"hours":       map[string]any{"type": "integer"},
			"resources":   stringArraySchema(),
		},
		"required":             []string{"title", "description", "skills", "weeks", "hours", "resources"},
		"additionalProperties": false,
	}
}

// RoadmapSchema is a strict JSON schema: every property is required and no extras are allowed.
func RoadmapSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":          map[string]any{"type": "string"},
			"description":    map[string]any{"type": "string"},
			"duration_weeks": map[string]any{"type": "integer"},
			"modules": map[string]any{
				"type":  "array",
				"items": moduleSchema(),
			},
		},
		"required":             []string{"title", "description", "duration_weeks", "modules"},
		"additionalProperties": false,
	}
}

type modelModule struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Skills      []string `json:"skills"`
	Weeks       int      `json:"weeks"`
	Hours       int      `json:"hours"`
	Resources   []string `json:"resources"`
}

type modelRoadmap struct {
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	DurationWeeks int           `json:"duration_weeks"`
	Modules       []modelModule `json:"modules"`
}

func (m modelRoadmap) validate() error {
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("title missing")
	}
	if len(m.Modules) == 0 {
		return fmt.Errorf("no modules")
	}
	for i, mod := range m.Modules {
		if strings.TrimSpace(mod.Title) == "" {
			return fmt.Errorf("module %d: title missing", i)
		}
		if mod.Weeks < 0 || mod.Hours < 0 {
			return fmt.Errorf("module %d: negative effort", i)
		}
	}
	return nil
}

const systemPrompt = `Design a personalized multi-week learning roadmap.
Order modules from foundations to advanced topics. Each module lists the skills it builds, a realistic
number of weeks and total hours for the learner's weekly time budget, and a few resource suggestions.
duration_weeks is the sum of module weeks.`

func userPrompt(qc types.UserQueryContext, skillIDs, goalIDs []string) string {
	var b strings.Builder
	line := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	line("Goals", qc.GoalsText)
	line("Current skills", qc.SkillsText)
	line("Experience level", qc.ExperienceLevel)
	line("Time available", qc.TimeAvailable)
	line("Selected skills", strings.Join(skillIDs, ", "))
	line("Selected goals", strings.Join(goalIDs, ", "))
	for _, k := range sortedKeys(qc.ProfileSubset) {
		line("Profile "+k, qc.ProfileSubset[k])
	}
	if b.Len() == 0 {
		return "No profile details were provided. Produce a general beginner roadmap for learning to program."
	}
	return b.String()
}
