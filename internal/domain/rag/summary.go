package rag

import "time"

// EmbeddingRunSummary is emitted and persisted after each batch embedding run.
type EmbeddingRunSummary struct {
	RunID           string    `json:"run_id"`
	Total           int       `json:"total"`
	Success         int       `json:"success"`
	Failed          int       `json:"failed"`
	DurationSeconds float64   `json:"duration_seconds"`
	SuccessRate     float64   `json:"success_rate"`
	EstimatedTokens int       `json:"estimated_tokens"`
	EstimatedCost   float64   `json:"estimated_cost"`
	Model           string    `json:"model"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	BatchSizes      []int     `json:"batch_sizes"`
	DryRun          bool      `json:"dry_run,omitempty"`
	Stopped         bool      `json:"stopped,omitempty"`
	ArtifactKey     string    `json:"artifact_key,omitempty"`

	TemplatesRefreshed int `json:"templates_refreshed,omitempty"`
	TemplatesFailed    int `json:"templates_failed,omitempty"`
}
