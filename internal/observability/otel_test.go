package observability

import (
	"context"
	"errors"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	h := parseHeaders("x-api-key=abc, bad, =skip,team=rag")
	if len(h) != 2 || h["x-api-key"] != "abc" || h["team"] != "rag" {
		t.Fatalf("headers: got=%v", h)
	}
	if parseHeaders("") != nil {
		t.Fatalf("empty headers: want=nil")
	}
}

func TestExporterConfigClampsRatio(t *testing.T) {
	t.Setenv("OTEL_SAMPLER_RATIO", "4")
	if got := exporterConfigFromEnv().SampleRatio; got != 1 {
		t.Fatalf("ratio: want=1 got=%v", got)
	}
	t.Setenv("OTEL_SAMPLER_RATIO", "-1")
	if got := exporterConfigFromEnv().SampleRatio; got != 0 {
		t.Fatalf("ratio: want=0 got=%v", got)
	}
}

func TestSpanHelpersWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.span")
	if ctx == nil {
		t.Fatalf("nil ctx")
	}
	EndSpan(span, errors.New("boom"))
}
