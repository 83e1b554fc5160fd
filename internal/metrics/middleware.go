package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// UnmatchedRoute labels requests no route claimed. Raw paths are never used
// as label values.
const UnmatchedRoute = "unmatched"

type ctxKey struct{}

// WithRoute labels requests that never reach a chi route pattern, e.g. the
// site catch-all. It works from either side of Middleware.
func WithRoute(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slot, ok := r.Context().Value(ctxKey{}).(*string); ok {
			*slot = route
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, &route)))
	})
}

// Middleware records in-flight requests, totals, 5xx errors, latency and
// response size by method and route.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// a route context created here is the one chi fills in, so the
		// matched pattern is readable once next returns
		ctx := r.Context()
		if chi.RouteContext(ctx) == nil {
			ctx = context.WithValue(ctx, chi.RouteCtxKey, chi.NewRouteContext())
		}
		slot, ok := ctx.Value(ctxKey{}).(*string)
		if !ok {
			slot = new(string)
			ctx = context.WithValue(ctx, ctxKey{}, slot)
		}
		r = r.WithContext(ctx)

		m.inflight.Inc()
		defer m.inflight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(ctx).RoutePattern()
		if route == "" {
			route = *slot
		}
		if route == "" {
			route = UnmatchedRoute
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.observe(ctx, r.Method, route, status, ww.BytesWritten(), time.Since(start))
	})
}

func (m *ServerMetrics) observe(ctx context.Context, method, route string, status, size int, took time.Duration) {
	m.reqTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	if status >= 500 {
		m.errorsTotal.WithLabelValues(method, route).Inc()
	}

	dur := m.reqDur.WithLabelValues(method, route)
	eo, canExemplar := dur.(prometheus.ExemplarObserver)
	if ex := traceExemplar(ctx); ex != nil && canExemplar {
		eo.ObserveWithExemplar(took.Seconds(), ex)
	} else {
		dur.Observe(took.Seconds())
	}
	m.respBytes.WithLabelValues(method, route).Observe(float64(size))
}

// traceExemplar links a latency sample to its trace when the trace was sampled.
func traceExemplar(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsSampled() {
		return nil
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String()}
}
