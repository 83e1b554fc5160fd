package httpmw

import (
	"context"
	"net/http"
	"net/netip"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ligadeals/ligadeals-web/internal/log"
)

// CacheStateHeader is set by the site handler to HIT, MISS or BYPASS.
const CacheStateHeader = "X-Cache"

// recorder captures what the access log needs and times the response write
// in a child span that starts at the first byte.
type recorder struct {
	http.ResponseWriter
	ctx   context.Context
	start time.Time

	status  int
	written int64
	blocked time.Duration
	err     error

	span    trace.Span
	started bool
}

func (rw *recorder) begin() {
	if rw.started {
		return
	}
	rw.started = true
	parent := trace.SpanFromContext(rw.ctx)
	if !parent.IsRecording() {
		return
	}
	_, rw.span = parent.TracerProvider().Tracer("ligadeals/httpmw").Start(rw.ctx, "response.write",
		trace.WithAttributes(attribute.Float64("http.server.ttfb_seconds", time.Since(rw.start).Seconds())))
}

func (rw *recorder) end() {
	if rw.span == nil {
		return
	}
	rw.span.SetAttributes(
		attribute.Int("http.response.status_code", rw.code()),
		attribute.Int64("http.response.body.size", rw.written),
		attribute.Float64("http.server.write.block_seconds", rw.blocked.Seconds()),
	)
	if rw.err != nil {
		rw.span.RecordError(rw.err)
		rw.span.SetStatus(codes.Error, rw.err.Error())
	}
	rw.span.End()
}

func (rw *recorder) code() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

func (rw *recorder) WriteHeader(code int) {
	rw.begin()
	if rw.status == 0 {
		rw.status = code
	}
	t := time.Now()
	rw.ResponseWriter.WriteHeader(code)
	rw.blocked += time.Since(t)
}

func (rw *recorder) Write(b []byte) (int, error) {
	rw.begin()
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	t := time.Now()
	n, err := rw.ResponseWriter.Write(b)
	rw.blocked += time.Since(t)
	rw.written += int64(n)
	if err != nil && rw.err == nil {
		rw.err = err
	}
	return n, err
}

// Flush keeps video streaming incremental through the recorder.
func (rw *recorder) Flush() {
	rw.begin()
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *recorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// WithLogger stores a request-scoped logger in the context. Only
// server-derived fields are attached; query strings, form fields and other
// visitor-controlled values stay out of the logs.
func WithLogger(base log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			peer := r.RemoteAddr
			if ap, err := netip.ParseAddrPort(peer); err == nil {
				peer = ap.Addr().Unmap().String()
			}
			client := ClientIPFromContext(ctx)
			if client == "" {
				client = UnknownClient
			}
			reqID := RequestIDFromContext(ctx)
			scheme := schemeOf(r)

			if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
				span.SetAttributes(
					attribute.String("request_id", reqID),
					attribute.String("client.address", client),
					attribute.String("network.peer.address", peer),
					attribute.String("url.scheme", scheme),
				)
			}

			l := base.With(
				"request_id", reqID,
				"client.address", client,
				"network.peer.address", peer,
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
				"url.scheme", scheme,
			)
			next.ServeHTTP(w, r.WithContext(log.WithContext(ctx, l)))
		})
	}
}

// AccessLog writes one line per request once the handler returns. Static
// assets and load balancer health checks are skipped. Page responses carry
// the page cache state so hit ratios can be read from the logs.
func AccessLog() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &recorder{ResponseWriter: w, ctx: r.Context(), start: time.Now()}
			next.ServeHTTP(rw, r)
			rw.end()

			if IsStaticAsset(r.URL.Path) || isHealthPath(r.URL.Path) {
				return
			}
			kv := []any{
				"http.response.status_code", rw.code(),
				"http.server.request.duration", time.Since(rw.start).Seconds(),
				"http.response.body.size", rw.written,
				"http.request.body.size", max(r.ContentLength, 0),
				"http.route", RouteOf(r),
			}
			if state := rw.Header().Get(CacheStateHeader); state != "" {
				kv = append(kv, "cache", strings.ToLower(state))
			}
			log.FromContext(r.Context()).Info(r.Context(), "http request", kv...)
		})
	}
}

// IsStaticAsset reports paths of fingerprinted build output and images,
// which are neither logged nor traced.
func IsStaticAsset(p string) bool {
	if strings.HasPrefix(p, "/_next/static/") {
		return true
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".css", ".js", ".mjs", ".map",
		".png", ".jpg", ".jpeg", ".webp", ".avif", ".gif", ".svg", ".ico",
		".woff", ".woff2":
		return true
	}
	return false
}

func isHealthPath(p string) bool {
	return p == "/-/healthy" || p == "/-/ready"
}

// schemeOf trusts X-Forwarded-Proto only because ClientIP already removed it
// from requests that did not come through our proxies.
func schemeOf(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-Proto"); xf != "" {
		first, _, _ := strings.Cut(xf, ",")
		if s := strings.ToLower(strings.TrimSpace(first)); s == "http" || s == "https" {
			return s
		}
	}
	if r.URL != nil {
		if s := strings.ToLower(r.URL.Scheme); s == "http" || s == "https" {
			return s
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// Scope tags the request logger and span with the API handler name.
func Scope(handler string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = log.WithContext(ctx, log.FromContext(ctx).With("handler", handler))
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(attribute.String("app.handler", handler))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
