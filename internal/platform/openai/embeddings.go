package openai

import (
	"context"
	"fmt"
	"strings"
)

type embeddingsRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *client) Embed(ctx context.Context, model string, dims int, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	if model = strings.TrimSpace(model); model == "" {
		model = c.embedModel
	}
	req := embeddingsRequest{Model: model, Input: make([]string, len(inputs)), Dimensions: max(dims, 0)}
	for i, in := range inputs {
		// the API rejects empty strings
		if strings.TrimSpace(in) == "" {
			in = " "
		}
		req.Input[i] = in
	}

	var resp embeddingsResponse
	if err := c.post(ctx, "/v1/embeddings", model, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("openai embeddings: requested %d vectors, got %d (model=%s)", len(inputs), len(resp.Data), model)
	}
	out := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			return nil, fmt.Errorf("openai embeddings: bad or duplicate index %d", d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("openai embeddings: empty vector at index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
