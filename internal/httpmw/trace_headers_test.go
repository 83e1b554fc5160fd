package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestTraceHeaders(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")

	tests := []struct {
		name    string
		flags   trace.TraceFlags
		valid   bool
		sampled string
	}{
		{"sampled", trace.FlagsSampled, true, "1"},
		{"not sampled", 0, true, "0"},
		{"no span", 0, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.valid {
				ctx = trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
					TraceID: traceID, SpanID: spanID, TraceFlags: tt.flags,
				}))
			}
			rec := httptest.NewRecorder()
			TraceHeaders(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))

			h := rec.Header()
			if !tt.valid {
				if h.Get(TraceIDHeader) != "" || h.Get(TraceSampledHeader) != "" {
					t.Fatalf("headers set without a span: %v", h)
				}
				return
			}
			if h.Get(TraceIDHeader) != traceID.String() || h.Get(SpanIDHeader) != spanID.String() {
				t.Fatalf("ids = %q/%q", h.Get(TraceIDHeader), h.Get(SpanIDHeader))
			}
			if h.Get(TraceSampledHeader) != tt.sampled {
				t.Fatalf("sampled = %q, want %q", h.Get(TraceSampledHeader), tt.sampled)
			}
		})
	}
}
