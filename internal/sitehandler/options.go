package sitehandler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/ligadeals/ligadeals-web/internal/log"
	"github.com/ligadeals/ligadeals-web/internal/origin"
	"github.com/ligadeals/ligadeals-web/internal/pagecache"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

// Fetcher renders a page. *origin.Client is the production implementation.
type Fetcher interface {
	Fetch(ctx context.Context, r *http.Request) (*origin.Response, error)
}

// Cache outcomes passed to OnCache.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheBypass = "bypass"
	CacheError  = "error"
)

type Options struct {
	Logger log.Logger
	Origin Fetcher
	// nil disables page caching
	Cache *pagecache.Cache
	// maintenance page and fallback 404
	FallbackFS fs.FS

	MaintenanceFile string // default: "maintenance.html"
	Fallback404File string // default: "404.html"

	// bounds one origin render, shared by every request coalesced onto it
	FetchTimeout time.Duration // default: 15s

	// Cache-Control for 200s: pages and content files, hashed build output,
	// everything else.
	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=31536000, immutable"
	OtherCacheControl string // default: "public, max-age=3600"

	OnCache func(outcome string)
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.MaintenanceFile == "" {
		o.MaintenanceFile = "maintenance.html"
	}
	if o.Fallback404File == "" {
		o.Fallback404File = "404.html"
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 15 * time.Second
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=31536000, immutable"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.Origin == nil {
		return fmt.Errorf("%w: Origin is nil", ErrInvalidOptions)
	}
	if o.FallbackFS == nil {
		return fmt.Errorf("%w: FallbackFS is nil", ErrInvalidOptions)
	}
	// fail on boot if mispackaged
	if _, err := fs.Stat(o.FallbackFS, o.MaintenanceFile); err != nil {
		return fmt.Errorf("%w: missing %q in fallback FS: %v", ErrInvalidOptions, o.MaintenanceFile, err)
	}
	return nil
}
