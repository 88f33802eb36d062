package promptstyle

import "strings"

const marker = "ROADMAP_PROMPT_STYLE_V1"

var shared = []string{
	"You design practical, multi-week learning roadmaps for individual learners.",
	"Ground every module in the learner's stated goals, skills, experience and weekly time budget.",
	"Do not invent credentials, links or citations.",
}

var byMode = map[string]string{
	"json": "Return a single JSON object that conforms to the schema and contains no extra keys.",
	"text": "Be concise and structured.",
}

// ApplySystem prefixes system with the house guidance for mode ("json" or "text").
// It is idempotent: a prompt that already carries the guidance is returned trimmed but otherwise unchanged.
func ApplySystem(system string, mode string) string {
	body := strings.TrimSpace(system)
	if body == "" || strings.Contains(body, marker) {
		return body
	}
	closing, ok := byMode[strings.ToLower(strings.TrimSpace(mode))]
	if !ok {
		closing = byMode["text"]
	}

	lines := make([]string, 0, len(shared)+5)
	lines = append(lines, marker, shared[0])
	if head, _, _ := strings.Cut(body, "\n"); strings.TrimSpace(head) != "" {
		lines = append(lines, "Task summary: "+strings.TrimSpace(head))
	}
	lines = append(lines, shared[1:]...)
	lines = append(lines, closing, "---", body)
	return strings.Join(lines, "\n")
}
