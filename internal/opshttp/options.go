package opshttp

import (
	"context"
	"net/http"

	"github.com/ligadeals/ligadeals-web/internal/health"
)

// PageCache is the admin view of the page cache. *pagecache.Cache satisfies it.
type PageCache interface {
	Len() int
	Paths() []string
	InvalidatePath(ctx context.Context, path string) error
	InvalidateTag(ctx context.Context, tag string) error
}

type Options struct {
	Port         int
	Metrics      http.Handler
	EnablePprof  bool
	Health       health.Probe
	Readiness    health.Probe
	UseRecoverMW bool
	OnPanic      func() // Optional callback for when panics are recovered, e.g. to increment prometheus counters
	// nil hides the /-/pagecache endpoints
	PageCache PageCache
}
