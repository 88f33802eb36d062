package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/roadmap-backend/internal/platform/promptstyle"
)

// ErrRefused is returned when the model declines to answer.
var ErrRefused = errors.New("model refused")

type responsesInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model       string           `json:"model"`
	Input       []responsesInput `json:"input"`
	Temperature *float64         `json:"temperature,omitempty"`
	Text        struct {
		Format map[string]any `json:"format"`
	} `json:"text"`
}

type responsesResponse struct {
	Status            string `json:"status"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role"`
		Content []struct {
			Type    string `json:"type"`
			Text    string `json:"text"`
			Refusal string `json:"refusal"`
		} `json:"content"`
	} `json:"output"`
}

// text concatenates the assistant's output_text parts; a refusal part wins over any text.
func (r responsesResponse) text() (string, error) {
	var b strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, part := range item.Content {
			switch part.Type {
			case "refusal":
				return "", fmt.Errorf("%w: %s", ErrRefused, part.Refusal)
			case "output_text":
				b.WriteString(part.Text)
			}
		}
	}
	return b.String(), nil
}

func (c *client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" || schema == nil {
		return nil, errors.New("schema name and schema required")
	}
	temp := c.temperature
	req := responsesRequest{
		Model: c.model,
		Input: []responsesInput{
			{Role: "system", Content: promptstyle.ApplySystem(system, "json")},
			{Role: "user", Content: user},
		},
		Temperature: &temp,
	}
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}

	var resp responsesResponse
	if err := c.post(ctx, "/v1/responses", c.model, req, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "incomplete" {
		reason := "unknown"
		if resp.IncompleteDetails != nil {
			reason = resp.IncompleteDetails.Reason
		}
		return nil, fmt.Errorf("openai response incomplete: %s", reason)
	}
	text, err := resp.text()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("openai response has no output_text")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("openai response is not a JSON object: %w", err)
	}
	return obj, nil
}
