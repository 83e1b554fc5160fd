package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// Trace correlation headers set on every traced response.
const (
	TraceIDHeader      = "X-Trace-Id"
	SpanIDHeader       = "X-Span-Id"
	TraceSampledHeader = "X-Trace-Sampled"
)

// TraceHeaders echoes the server span ids on the response. Unsampled spans
// still carry ids; X-Trace-Sampled says whether the trace was exported.
func TraceHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc := trace.SpanContextFromContext(r.Context())
		if sc.IsValid() {
			h := w.Header()
			h.Set(TraceIDHeader, sc.TraceID().String())
			h.Set(SpanIDHeader, sc.SpanID().String())
			if sc.IsSampled() {
				h.Set(TraceSampledHeader, "1")
			} else {
				h.Set(TraceSampledHeader, "0")
			}
		}
		next.ServeHTTP(w, r)
	})
}
