package domain

import "github.com/yungbote/roadmap-backend/internal/domain/rag"

const (
	TemplateSourceSeed      = rag.TemplateSourceSeed
	TemplateSourceGenerated = rag.TemplateSourceGenerated

	RoadmapSourceTemplate  = rag.RoadmapSourceTemplate
	RoadmapSourceGenerated = rag.RoadmapSourceGenerated
)

type (
	ContentRecord       = rag.ContentRecord
	ContentEmbedding    = rag.ContentEmbedding
	ContentItem         = rag.ContentItem
	EmbeddingWrite      = rag.EmbeddingWrite
	CoverageRow         = rag.CoverageRow
	Template            = rag.Template
	TemplateRecord      = rag.TemplateRecord
	TemplateMatch       = rag.TemplateMatch
	PathData            = rag.PathData
	PathModule          = rag.PathModule
	UserQueryContext    = rag.UserQueryContext
	Roadmap             = rag.Roadmap
	RoadmapModule       = rag.RoadmapModule
	RoadmapMetadata     = rag.RoadmapMetadata
	EmbeddingRunSummary = rag.EmbeddingRunSummary
)

var (
	NewTemplate = rag.NewTemplate
	StringSet   = rag.StringSet
)
