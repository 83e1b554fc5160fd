package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ligadeals/ligadeals-web/internal/health"
	"github.com/ligadeals/ligadeals-web/internal/httpmw"
	"github.com/ligadeals/ligadeals-web/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions

	// Served at /-/healthy and /-/ready when set.
	Health    health.Probe
	Readiness health.Probe

	// APIRoutes registers /api/* routes. Each route group brings its own
	// limiter, CORS policy, and body cap.
	APIRoutes func(chi.Router)

	// SiteHandler serves every path no API route matched.
	SiteHandler http.Handler

	// RateLimitMW guards SiteHandler only. API routes are limited per group.
	RateLimitMW func(http.Handler) http.Handler

	// SiteMaxBody caps request bodies sent to SiteHandler. Default 1KB,
	// pages are GET/HEAD only.
	SiteMaxBody int64
}
