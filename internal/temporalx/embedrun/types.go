package embedrun

import "github.com/yungbote/roadmap-backend/internal/modules/rag/batch"

const (
	WorkflowName              = "EmbeddingRunWorkflow"
	ActivityRunEmbeddingBatch = "RunEmbeddingBatch"

	// errTypeConfiguration marks activity failures that retrying cannot fix.
	errTypeConfiguration = "ConfigurationError"
)

type RunInput struct {
	RunID  string       `json:"run_id"`
	Params batch.Params `json:"params"`
}

// WorkflowID allows one active run per embedding model.
func WorkflowID(model string) string {
	return "embedding-run/" + model
}
