package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/textnorm"
)

var norm = textnorm.Default()

// Build renders the user's stated profile as canonical text for embedding.
// Equal contexts always yield byte-identical text; an empty context yields "".
func Build(qc types.UserQueryContext) string {
	return render(profile{
		goals:      clean(qc.GoalsText),
		skills:     strings.Join(ParseList(qc.SkillsText), ", "),
		experience: clean(qc.ExperienceLevel),
		time:       clean(qc.TimeAvailable),
		extra:      qc.ProfileSubset,
	})
}

// TemplateProfileText renders a stored template in the same layout as Build so both land in the same space.
func TemplateProfileText(rec types.TemplateRecord) string {
	goals := strings.Join(types.StringSet(rec.TargetGoals), ", ")
	if goals == "" {
		goals = clean(rec.Name + " " + rec.Description)
	}
	t := ""
	if rec.DurationWeeks > 0 {
		t = fmt.Sprintf("%d weeks", rec.DurationWeeks)
	}
	return render(profile{
		goals:      goals,
		skills:     strings.Join(types.StringSet(rec.TargetSkills), ", "),
		experience: clean(rec.Difficulty),
		time:       t,
	})
}

type profile struct {
	goals      string
	skills     string
	experience string
	time       string
	extra      map[string]string
}

func render(p profile) string {
	parts := make([]string, 0, 5)
	add := func(label, v string) {
		if v != "" {
			parts = append(parts, label+": "+v)
		}
	}
	add("goals", p.goals)
	add("skills", p.skills)
	add("experience", p.experience)
	add("time available", p.time)
	if len(p.extra) > 0 {
		keys := make([]string, 0, len(p.extra))
		for k := range p.extra {
			if clean(k) != "" && clean(p.extra[k]) != "" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		kv := make([]string, 0, len(keys))
		for _, k := range keys {
			kv = append(kv, clean(k)+"="+clean(p.extra[k]))
		}
		add("profile", strings.Join(kv, "; "))
	}
	return norm.Normalize(strings.Join(parts, ". "))
}

func clean(s string) string {
	return strings.ToLower(norm.Normalize(s))
}

var listSep = regexp.MustCompile(`(?i)\s*(?:,|;|\n|/|\||\band\b|&)\s*`)

// ParseList splits free text like "HTML, CSS and JavaScript" into a sorted, deduplicated set.
func ParseList(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}
	}
	return types.StringSet(listSep.Split(text, -1))
}
