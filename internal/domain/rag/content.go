package rag

import (
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
)

// ContentRecord is the upstream-owned content row. This subsystem only reads it.
type ContentRecord struct {
	ContentType string    `gorm:"column:content_type;primaryKey;size:64" json:"content_type"`
	ContentID   string    `gorm:"column:content_id;primaryKey;size:191" json:"content_id"`
	TextContent string    `gorm:"column:text_content;type:text" json:"text_content"`
	LastUpdated time.Time `gorm:"column:last_updated;not null;index" json:"last_updated"`
}

func (ContentRecord) TableName() string { return "content_items" }

// ContentEmbedding holds the vector for one content row, keyed like the row itself.
// Written exclusively by the batch embedding job.
type ContentEmbedding struct {
	ContentType    string          `gorm:"column:content_type;primaryKey;size:64" json:"content_type"`
	ContentID      string          `gorm:"column:content_id;primaryKey;size:191" json:"content_id"`
	Embedding      pgvector.Vector `gorm:"column:embedding;type:vector;not null" json:"-"`
	EmbeddingModel string          `gorm:"column:embedding_model;not null;index" json:"embedding_model"`
	Dimensions     int             `gorm:"column:dimensions;not null" json:"dimensions"`
	EmbeddedAt     time.Time       `gorm:"column:embedded_at;not null" json:"embedded_at"`
}

func (ContentEmbedding) TableName() string { return "content_embeddings" }

// ContentItem is the validated read model assembled from content_items joined with content_embeddings.
type ContentItem struct {
	ContentType    string
	ContentID      string
	TextContent    string
	LastUpdated    time.Time
	Embedding      []float32
	EmbeddingModel string
	EmbeddedAt     *time.Time
}

func (c ContentItem) Key() string {
	return c.ContentType + ":" + c.ContentID
}

func (c ContentItem) Validate() error {
	if strings.TrimSpace(c.ContentType) == "" {
		return fmt.Errorf("content item: content_type required")
	}
	if strings.TrimSpace(c.ContentID) == "" {
		return fmt.Errorf("content item %q: content_id required", c.ContentType)
	}
	return nil
}

// NeedsEmbedding reports whether the item lacks an embedding current for model.
func (c ContentItem) NeedsEmbedding(model string) bool {
	if len(c.Embedding) == 0 || c.EmbeddedAt == nil {
		return true
	}
	if c.EmbeddingModel != model {
		return true
	}
	return c.LastUpdated.After(*c.EmbeddedAt)
}

type EmbeddingWrite struct {
	ContentType string
	ContentID   string
	Vector      []float32
	Model       string
}

type CoverageRow struct {
	ContentType string  `json:"content_type"`
	Total       int64   `json:"total"`
	Embedded    int64   `json:"embedded"`
	CoveragePct float64 `json:"coverage_pct"`
}
