// Package ctxutil carries request correlation ids across layers that only see a context.
package ctxutil

import "context"

type correlationKey struct{}

// Correlation identifies the request (or batch run) a unit of work belongs to.
type Correlation struct {
	TraceID   string
	RequestID string
	RunID     string
}

func WithCorrelation(ctx context.Context, c Correlation) context.Context {
	return context.WithValue(ctx, correlationKey{}, c)
}

func CorrelationFrom(ctx context.Context) (Correlation, bool) {
	if ctx == nil {
		return Correlation{}, false
	}
	c, ok := ctx.Value(correlationKey{}).(Correlation)
	return c, ok
}

// WithRunID tags ctx with a batch run id, keeping any request ids already present.
func WithRunID(ctx context.Context, runID string) context.Context {
	c, _ := CorrelationFrom(ctx)
	c.RunID = runID
	return WithCorrelation(ctx, c)
}

// LogFields returns the non-empty ids as logger key/value pairs.
func LogFields(ctx context.Context) []interface{} {
	c, ok := CorrelationFrom(ctx)
	if !ok {
		return nil
	}
	var kv []interface{}
	if c.TraceID != "" {
		kv = append(kv, "trace_id", c.TraceID)
	}
	if c.RequestID != "" {
		kv = append(kv, "request_id", c.RequestID)
	}
	if c.RunID != "" {
		kv = append(kv, "run_id", c.RunID)
	}
	return kv
}
