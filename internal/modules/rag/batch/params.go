package batch

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yungbote/roadmap-backend/internal/modules/rag/ragerr"
)

const (
	DefaultBatchSize     = 20
	DefaultItemInterval  = 100 * time.Millisecond
	DefaultBatchInterval = time.Second
	// DefaultRatePer1K is USD per 1000 tokens for text-embedding-3-small.
	DefaultRatePer1K = 0.00002

	charsPerTokenEstimate = 4
)

// Params are the per-run tunables. Nothing here is read from package state.
type Params struct {
	Model         string
	Dims          int
	BatchSize     int
	ItemInterval  time.Duration
	BatchInterval time.Duration
	RatePer1K     float64
	// Limit caps the number of candidate items; 0 means all.
	Limit int
	// DryRun estimates cost and batch layout without embedding anything.
	DryRun bool
	// RefreshTemplates re-embeds templates whose vector came from another model.
	RefreshTemplates bool
}

func (p Params) Validate() error {
	switch {
	case strings.TrimSpace(p.Model) == "":
		return ragerr.Config("embedding_model", "required")
	case p.BatchSize <= 0:
		return ragerr.Config("batch_size", "must be positive")
	case p.Dims < 0:
		return ragerr.Config("dimensions", "must not be negative")
	case p.ItemInterval < 0 || p.BatchInterval < 0:
		return ragerr.Config("interval", "must not be negative")
	case p.RatePer1K < 0 || math.IsNaN(p.RatePer1K):
		return ragerr.Config("rate_per_1k", "must not be negative")
	case p.Limit < 0:
		return ragerr.Config("limit", "must not be negative")
	}
	return nil
}

// EstimateTokens is sum(ceil(chars/4)) over texts.
func EstimateTokens(texts []string) int {
	total := 0
	for _, t := range texts {
		n := utf8.RuneCountInString(t)
		total += (n + charsPerTokenEstimate - 1) / charsPerTokenEstimate
	}
	return total
}

func EstimateCost(tokens int, ratePer1K float64) float64 {
	return float64(tokens) / 1000 * ratePer1K
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
