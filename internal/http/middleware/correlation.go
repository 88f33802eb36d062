package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/roadmap-backend/internal/platform/ctxutil"
)

const (
	HeaderTraceID   = "X-Trace-Id"
	HeaderRequestID = "X-Request-Id"

	maxClientIDLen = 128
)

// Correlate assigns trace and request ids and stores them on the request context.
// Install it after otelgin: a sampled span's trace id overrides the client header.
func Correlate() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())

		corr := ctxutil.Correlation{
			RequestID: clientID(c.GetHeader(HeaderRequestID)),
			TraceID:   clientID(c.GetHeader(HeaderTraceID)),
		}
		if sc := span.SpanContext(); sc.HasTraceID() {
			corr.TraceID = sc.TraceID().String()
		}
		if corr.RequestID == "" {
			corr.RequestID = uuid.NewString()
		}
		if corr.TraceID == "" {
			corr.TraceID = corr.RequestID
		}
		span.SetAttributes(attribute.String("request.id", corr.RequestID))

		c.Request = c.Request.WithContext(ctxutil.WithCorrelation(c.Request.Context(), corr))
		c.Header(HeaderTraceID, corr.TraceID)
		c.Header(HeaderRequestID, corr.RequestID)
		c.Next()
	}
}

// clientID drops ids that are oversized or contain anything but [A-Za-z0-9._-].
func clientID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxClientIDLen {
		return ""
	}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return ""
		}
	}
	return raw
}
