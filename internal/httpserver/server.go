package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ligadeals/ligadeals-web/internal/health"
	"github.com/ligadeals/ligadeals-web/internal/httpmw"
	"github.com/ligadeals/ligadeals-web/internal/log"
	"github.com/ligadeals/ligadeals-web/internal/metrics"
	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

// NewHandler builds an HTTP handler with routes + middleware
// main() owns *http.Server so it can do graceful shutdown
func NewHandler(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.SiteMaxBody <= 0 {
		opts.SiteMaxBody = 1024
	}

	// chi router
	r := chi.NewRouter()

	// Compress text responses (HTML/CSS/JS/JSON/SVG)
	r.Use(middleware.Compress(5,
		"text/html",
		"text/css",
		"application/javascript",
		"text/javascript",
		"application/json",
		"image/svg+xml",
		"image/x-icon",
	))

	// Annotate logger and tracer with http.route from chi route pattern if trace is recording
	r.Use(httpmw.AnnotateHTTPRoute)

	// Access log middleware
	r.Use(httpmw.AccessLog())

	// Register health routes at /-/healthy and /-/ready if probes provided
	if opts.Health != nil {
		r.Get("/-/healthy", health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get("/-/ready", health.ReadyzHandler(opts.Readiness))
	}

	if opts.APIRoutes != nil {
		opts.APIRoutes(r)
	}

	// Everything else is a page. The site limiter and body cap apply here
	// only, the API groups carry their own.
	if opts.SiteHandler != nil {
		site := httpmw.MaxBody(opts.SiteMaxBody)(opts.SiteHandler)
		if opts.RateLimitMW != nil {
			site = opts.RateLimitMW(site)
		}
		site = metrics.WithRoute("site", site)
		r.NotFound(site.ServeHTTP)
		r.MethodNotAllowed(site.ServeHTTP)
	}

	// Decide which requests get traced: pages and API calls, not assets or
	// load balancer health checks.
	traced := otelhttp.NewMiddleware("http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return !httpmw.IsStaticAsset(p) && p != "/robots.txt" && p != "/-/healthy" && p != "/-/ready"
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateHTTPRoute renames the span once chi has matched
			return r.Method + " " + httpmw.SiteRoute
		}),
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	)

	var recoverMW httpmw.Middleware
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(opts.Logger, opts.OnPanic)
	}

	// outermost first: security headers land on every response, panics
	// are caught before anything else runs, and the client IP is resolved
	// before the span, metrics and logger read it
	return httpmw.Stack(
		httpmw.SecurityHeaders,
		recoverMW,
		httpmw.RequestID,
		httpmw.ClientIP(opts.ClientIPOpts),
		traced,
		httpmw.TraceHeaders,
		opts.MetricsMW,
		httpmw.WithLogger(opts.Logger),
	)(r)
}

// Server timeout defaults, also used by the ops server.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	// video ranges are streamed through /api/video
	DefaultWriteTimeout   = 60 * time.Second
	DefaultIdleTimeout    = 60 * time.Second
	DefaultMaxHeaderBytes = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start public HTTP server
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts Options) (func(context.Context) error, error) {
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	srv := NewServer(fmt.Sprintf(":%d", port), NewHandler(opts))
	return Serve(ctx, opts.Logger, "http", "tcp4", srv)
}

// Serve listens on srv.Addr and serves in the background. The returned stop
// drains in-flight requests for up to 5s; calls after the first are no-ops.
// name tags the log lines so the public and ops servers can be told apart.
func Serve(ctx context.Context, L log.Logger, name, network string, srv *http.Server) (func(context.Context) error, error) {
	ln, err := (&net.ListenConfig{}).Listen(ctx, network, srv.Addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "%s server listen on %s", name, srv.Addr)
	}
	L = L.With("server", name)

	go func() {
		L.Info(ctx, "server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			L.Error(ctx, err, "server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, "server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
