package rag

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewTemplateRoundTripsThroughRecord(t *testing.T) {
	rec := TemplateRecord{
		Name:          "Frontend Foundations",
		Difficulty:    "beginner",
		DurationWeeks: 6,
		TargetSkills:  []string{"CSS", "HTML", " html "},
		TargetGoals:   []string{"frontend"},
		Path: PathData{Modules: []PathModule{
			{Title: "HTML basics", Skills: []string{"html"}, Weeks: 2, Hours: 20},
		}},
		Embedding:      []float32{0.1, 0.2, 0.3},
		EmbeddingModel: "m1",
	}
	row, err := NewTemplate(rec, time.Now().UTC())
	if err != nil {
		t.Fatalf("NewTemplate: %v", err)
	}
	if row.ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}
	if row.Source != TemplateSourceSeed {
		t.Fatalf("source: want=%q got=%q", TemplateSourceSeed, row.Source)
	}
	got, err := row.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(got.TargetSkills) != 2 || got.TargetSkills[0] != "css" || got.TargetSkills[1] != "html" {
		t.Fatalf("target skills: got=%v", got.TargetSkills)
	}
	if len(got.Path.Modules) != 1 || got.Path.Modules[0].Title != "HTML basics" {
		t.Fatalf("path: got=%#v", got.Path)
	}
	if len(got.Embedding) != 3 {
		t.Fatalf("embedding: got=%v", got.Embedding)
	}
}

func TestTemplateRecordRejectsMissingFields(t *testing.T) {
	if _, err := (&Template{}).Record(); err == nil {
		t.Fatalf("expected error for missing id")
	}
	if _, err := (&Template{ID: uuid.New()}).Record(); err == nil {
		t.Fatalf("expected error for missing name")
	}
	if _, err := (&Template{ID: uuid.New(), Name: "x", TargetSkills: []byte("{bad")}).Record(); err == nil {
		t.Fatalf("expected error for malformed target_skills")
	}
}

func TestPathDataCloneIsDeep(t *testing.T) {
	src := PathData{Modules: []PathModule{{Title: "a", Skills: []string{"x"}}}}
	cp := src.Clone()
	cp.Modules[0].Skills[0] = "y"
	cp.Modules[0].Title = "b"
	if src.Modules[0].Skills[0] != "x" || src.Modules[0].Title != "a" {
		t.Fatalf("source mutated: %#v", src)
	}
}

func TestContentItemNeedsEmbedding(t *testing.T) {
	now := time.Now().UTC()
	earlier := now.Add(-time.Hour)
	cases := []struct {
		name string
		item ContentItem
		want bool
	}{
		{"no vector", ContentItem{LastUpdated: now}, true},
		{"other model", ContentItem{LastUpdated: earlier, Embedding: []float32{1}, EmbeddingModel: "old", EmbeddedAt: &now}, true},
		{"edited after embed", ContentItem{LastUpdated: now, Embedding: []float32{1}, EmbeddingModel: "m", EmbeddedAt: &earlier}, true},
		{"current", ContentItem{LastUpdated: earlier, Embedding: []float32{1}, EmbeddingModel: "m", EmbeddedAt: &now}, false},
	}
	for _, tc := range cases {
		if got := tc.item.NeedsEmbedding("m"); got != tc.want {
			t.Fatalf("%s: want=%v got=%v", tc.name, tc.want, got)
		}
	}
}

func TestDifficultyFromExperience(t *testing.T) {
	cases := map[string]string{
		"":             "beginner",
		"Beginner":     "beginner",
		"intermediate": "intermediate",
		"Advanced dev": "advanced",
	}
	for in, want := range cases {
		if got := (UserQueryContext{ExperienceLevel: in}).Difficulty(); got != want {
			t.Fatalf("%q: want=%q got=%q", in, want, got)
		}
	}
}
