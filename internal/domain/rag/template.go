package rag

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

const (
	TemplateSourceSeed      = "seed"
	TemplateSourceGenerated = "generated"
)

// Template is a reusable roadmap indexed by an embedding of the profile it was built for.
// ProfileText keeps the exact text path_embedding was computed from so refreshes embed the same input.
type Template struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string           `gorm:"column:name;not null" json:"name"`
	Description    string           `gorm:"column:description;type:text" json:"description"`
	Difficulty     string           `gorm:"column:difficulty;not null;index" json:"difficulty"`
	DurationWeeks  int              `gorm:"column:duration_weeks;not null" json:"duration_weeks"`
	TargetSkills   datatypes.JSON   `gorm:"column:target_skills;type:jsonb" json:"target_skills"`
	TargetGoals    datatypes.JSON   `gorm:"column:target_goals;type:jsonb" json:"target_goals"`
	UsageCount     int              `gorm:"column:usage_count;not null" json:"usage_count"`
	PathData       datatypes.JSON   `gorm:"column:path_data;type:jsonb" json:"path_data"`
	PathEmbedding  *pgvector.Vector `gorm:"column:path_embedding;type:vector" json:"-"`
	EmbeddingModel string           `gorm:"column:embedding_model;index" json:"embedding_model"`
	EmbeddingDims  int              `gorm:"column:embedding_dims;not null;default:0" json:"embedding_dims"`
	ProfileText    string           `gorm:"column:profile_text;type:text" json:"-"`
	Source         string           `gorm:"column:source;not null" json:"source"`
	CreatedAt      time.Time        `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Template) TableName() string { return "roadmap_templates" }

type PathModule struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Skills      []string `json:"skills,omitempty"`
	Weeks       int      `json:"weeks,omitempty"`
	Hours       int      `json:"hours,omitempty"`
	Resources   []string `json:"resources,omitempty"`
}

type PathData struct {
	Modules []PathModule `json:"modules"`
}

// Clone returns a deep copy so callers can adapt modules without touching the source.
func (p PathData) Clone() PathData {
	out := PathData{Modules: make([]PathModule, len(p.Modules))}
	for i, m := range p.Modules {
		m.Skills = append([]string(nil), m.Skills...)
		m.Resources = append([]string(nil), m.Resources...)
		out.Modules[i] = m
	}
	return out
}

// TemplateRecord is the validated, typed view of a Template row.
type TemplateRecord struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Difficulty     string    `json:"difficulty"`
	DurationWeeks  int       `json:"duration_weeks"`
	TargetSkills   []string  `json:"target_skills"`
	TargetGoals    []string  `json:"target_goals"`
	UsageCount     int       `json:"usage_count"`
	Path           PathData  `json:"path_data"`
	Embedding      []float32 `json:"-"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	ProfileText    string    `json:"-"`
	Source         string    `json:"source"`
}

// Record validates required fields and decodes the JSON columns.
func (t *Template) Record() (TemplateRecord, error) {
	if t == nil {
		return TemplateRecord{}, fmt.Errorf("template: nil row")
	}
	if t.ID == uuid.Nil {
		return TemplateRecord{}, fmt.Errorf("template: id required")
	}
	if strings.TrimSpace(t.Name) == "" {
		return TemplateRecord{}, fmt.Errorf("template %s: name required", t.ID)
	}
	if t.UsageCount < 0 {
		return TemplateRecord{}, fmt.Errorf("template %s: negative usage_count", t.ID)
	}
	rec := TemplateRecord{
		ID:             t.ID,
		Name:           t.Name,
		Description:    t.Description,
		Difficulty:     t.Difficulty,
		DurationWeeks:  t.DurationWeeks,
		UsageCount:     t.UsageCount,
		EmbeddingModel: t.EmbeddingModel,
		ProfileText:    t.ProfileText,
		Source:         t.Source,
	}
	var err error
	if rec.TargetSkills, err = decodeStrings(t.TargetSkills); err != nil {
		return TemplateRecord{}, fmt.Errorf("template %s: target_skills: %w", t.ID, err)
	}
	if rec.TargetGoals, err = decodeStrings(t.TargetGoals); err != nil {
		return TemplateRecord{}, fmt.Errorf("template %s: target_goals: %w", t.ID, err)
	}
	if len(t.PathData) > 0 {
		if err := json.Unmarshal(t.PathData, &rec.Path); err != nil {
			return TemplateRecord{}, fmt.Errorf("template %s: path_data: %w", t.ID, err)
		}
	}
	if t.PathEmbedding != nil {
		rec.Embedding = t.PathEmbedding.Slice()
	}
	return rec, nil
}

// NewTemplate builds a storable row from a record. Skill and goal sets are deduplicated and sorted.
func NewTemplate(rec TemplateRecord, now time.Time) (*Template, error) {
	if strings.TrimSpace(rec.Name) == "" {
		return nil, fmt.Errorf("template: name required")
	}
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	skills, _ := json.Marshal(StringSet(rec.TargetSkills))
	goals, _ := json.Marshal(StringSet(rec.TargetGoals))
	path, err := json.Marshal(rec.Path)
	if err != nil {
		return nil, fmt.Errorf("template: encode path_data: %w", err)
	}
	t := &Template{
		ID:             id,
		Name:           strings.TrimSpace(rec.Name),
		Description:    strings.TrimSpace(rec.Description),
		Difficulty:     rec.Difficulty,
		DurationWeeks:  rec.DurationWeeks,
		TargetSkills:   datatypes.JSON(skills),
		TargetGoals:    datatypes.JSON(goals),
		UsageCount:     rec.UsageCount,
		PathData:       datatypes.JSON(path),
		EmbeddingModel: rec.EmbeddingModel,
		ProfileText:    strings.TrimSpace(rec.ProfileText),
		Source:         rec.Source,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if t.Source == "" {
		t.Source = TemplateSourceSeed
	}
	if len(rec.Embedding) > 0 {
		v := pgvector.NewVector(rec.Embedding)
		t.PathEmbedding = &v
		t.EmbeddingDims = len(rec.Embedding)
	}
	return t, nil
}

// StringSet lowercases, trims, deduplicates and sorts.
func StringSet(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func decodeStrings(raw datatypes.JSON) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type TemplateMatch struct {
	Template   TemplateRecord `json:"template"`
	Similarity float64        `json:"similarity"`
}
