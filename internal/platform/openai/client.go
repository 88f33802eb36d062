// Package openai is a small HTTP client for the two OpenAI endpoints the roadmap pipeline calls:
// embeddings and structured (JSON schema) responses.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/roadmap-backend/internal/observability"
	"github.com/yungbote/roadmap-backend/internal/platform/ctxutil"
	"github.com/yungbote/roadmap-backend/internal/platform/envutil"
	"github.com/yungbote/roadmap-backend/internal/platform/httpx"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

const (
	defaultBaseURL    = "https://api.openai.com"
	defaultEmbedModel = "text-embedding-3-small"

	maxRetryWait = 10 * time.Second
	// OpenAI echoes this header back in its logs, which ties provider-side errors to our request ids.
	headerClientRequestID = "X-Client-Request-Id"
)

type Client interface {
	// Embed returns one vector per input, in input order. Empty model uses the configured embedding
	// model; dims <= 0 keeps the model's native width.
	Embed(ctx context.Context, model string, dims int, inputs []string) ([][]float32, error)
	// GenerateJSON asks the chat model for an object matching schema (strict mode).
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	EmbedModel  string
	Timeout     time.Duration
	MaxRetries  int
	Temperature float64
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:      envutil.String("OPENAI_API_KEY", ""),
		BaseURL:     envutil.String("OPENAI_BASE_URL", defaultBaseURL),
		Model:       envutil.String("OPENAI_MODEL", "gpt-4o-mini"),
		EmbedModel:  envutil.String("OPENAI_EMBED_MODEL", defaultEmbedModel),
		Timeout:     envutil.Duration("OPENAI_TIMEOUT", 120*time.Second),
		MaxRetries:  envutil.Int("OPENAI_MAX_RETRIES", 4),
		Temperature: envutil.Float("OPENAI_TEMPERATURE", 0.2),
	}
}

// APIError is a non-2xx reply. Type and Code come from the OpenAI error body when it has one.
type APIError struct {
	Status  int
	Type    string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("openai %d (%s): %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("openai %d: %s", e.Status, msg)
}

func (e *APIError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.Status
}

// IsUnavailable reports provider-side trouble (rate limits, 5xx) that survived every retry.
func IsUnavailable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
}

func parseAPIError(status int, raw []byte) *APIError {
	out := &APIError{Status: status}
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		out.Message = body.Error.Message
		out.Type = body.Error.Type
		if body.Error.Code != nil {
			out.Code = fmt.Sprint(body.Error.Code)
		}
		return out
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	out.Message = msg
	return out
}

type client struct {
	log         *logger.Logger
	http        *http.Client
	baseURL     string
	apiKey      string
	model       string
	embedModel  string
	temperature float64
	maxRetries  int
	backoff     httpx.Backoff
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	c := &client{
		log:         log.With("service", "OpenAIClient"),
		http:        &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      key,
		model:       strings.TrimSpace(cfg.Model),
		embedModel:  strings.TrimSpace(cfg.EmbedModel),
		temperature: cfg.Temperature,
		maxRetries:  max(cfg.MaxRetries, 0),
		backoff:     httpx.Backoff{Base: time.Second, Max: maxRetryWait, Jitter: 0.2},
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.embedModel == "" {
		c.embedModel = defaultEmbedModel
	}
	if cfg.Timeout <= 0 {
		c.http.Timeout = 120 * time.Second
	}
	return c, nil
}

// post sends body as JSON and decodes a 2xx reply into out. Retryable failures (429, 5xx, transport
// errors) are retried with jittered exponential backoff, honouring Retry-After.
func (c *client) post(ctx context.Context, path, model string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("openai encode: %w", err)
	}
	start := time.Now()

	for attempt := 0; ; attempt++ {
		resp, raw, err := c.send(ctx, path, payload)
		if err == nil {
			in, outTok := usageTokens(raw)
			observability.Current().ObserveLLMRequest(model, path, "ok", time.Since(start), in, outTok)
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("openai decode: %w", err)
			}
			return nil
		}
		if ctx.Err() != nil || !httpx.Retryable(err) || attempt >= c.maxRetries {
			observability.Current().ObserveLLMRequest(model, path, failureLabel(err), time.Since(start), 0, 0)
			return err
		}

		sleep := c.backoff.Delay(attempt, resp)
		c.log.Warn("openai request retrying", append([]interface{}{
			"path", path,
			"attempt", attempt + 1,
			"max_retries", c.maxRetries,
			"sleep", sleep.String(),
			"error", err,
		}, ctxutil.LogFields(ctx)...)...)
		if err := httpx.Sleep(ctx, sleep); err != nil {
			return err
		}
	}
}

func (c *client) send(ctx context.Context, path string, payload []byte) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if corr, ok := ctxutil.CorrelationFrom(ctx); ok && corr.RequestID != "" {
		req.Header.Set(headerClientRequestID, corr.RequestID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, err
	}
	if resp.StatusCode/100 != 2 {
		return resp, raw, parseAPIError(resp.StatusCode, raw)
	}
	return resp, raw, nil
}

// usageTokens reads token usage from either the embeddings or the responses shape.
func usageTokens(raw []byte) (in, out int) {
	var u struct {
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
			PromptTokens int `json:"prompt_tokens"`
		} `json:"usage"`
	}
	if json.Unmarshal(raw, &u) != nil {
		return 0, 0
	}
	in = u.Usage.InputTokens
	if in == 0 {
		in = u.Usage.PromptTokens
	}
	return in, u.Usage.OutputTokens
}

func failureLabel(err error) string {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return strconv.Itoa(apiErr.Status)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
