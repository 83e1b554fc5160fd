package opshttp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ligadeals/ligadeals-web/internal/health"
	"github.com/ligadeals/ligadeals-web/internal/httpmw"
	"github.com/ligadeals/ligadeals-web/internal/httpserver"
	"github.com/ligadeals/ligadeals-web/internal/log"
)

// NewHandler serves the operator endpoints:
//
//	GET  /healthz, /readyz         liveness and readiness
//	GET  /metrics                  when opts.Metrics is set
//	GET  /-/pagecache              cached paths, when opts.PageCache is set
//	POST /-/pagecache/purge        manual invalidation
//	     /debug/pprof/, /debug/vars when opts.EnablePprof
//
// Only loopback, private and link-local peers get through.
func NewHandler(L log.Logger, opts *Options) http.Handler {
	if L == nil {
		L = log.Nop()
	}
	r := chi.NewRouter()
	if opts.UseRecoverMW {
		r.Use(httpmw.Recover(L, opts.OnPanic))
	}
	r.Use(privatePeersOnly(L))

	r.Get("/healthz", health.HealthzHandler(opts.Health))
	r.Get("/readyz", health.ReadyzHandler(opts.Readiness))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.PageCache != nil {
		pageCacheRoutes(r, opts.PageCache, L)
	}
	if opts.EnablePprof {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

// Start serves NewHandler on opts.Port (default 9000). Returns stop(ctx)
// for graceful shutdown.
func Start(ctx context.Context, L log.Logger, opts *Options) (func(context.Context) error, error) {
	if L == nil {
		L = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = 9000
	}
	// the shared 60s write timeout leaves room for a 30s CPU profile
	srv := httpserver.NewServer(fmt.Sprintf(":%d", port), NewHandler(L, opts))
	return httpserver.Serve(ctx, L, "ops", "tcp", srv)
}
