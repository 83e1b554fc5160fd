// Package videohttp proxies CMS-hosted videos so browsers play them inline
// instead of downloading them.
package videohttp

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ligadeals/ligadeals-web/internal/apiresp"
	"github.com/ligadeals/ligadeals-web/internal/log"
	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

// upstream headers relayed to the client
var passHeaders = []string{"Content-Length", "Content-Range", "ETag", "Last-Modified"}

const (
	// a viewer that accepts no bytes for this long is dropped
	streamWriteIdle = 30 * time.Second
	maxRedirects    = 5
)

type API struct {
	client      *http.Client
	allowedHost string
	logger      log.Logger

	// OnUpstreamError is called with the upstream status, 0 for transport errors.
	OnUpstreamError func(status int)
}

type Option func(*API)

func WithHTTPClient(c *http.Client) Option {
	return func(a *API) {
		if c != nil {
			a.client = c
		}
	}
}

func WithLogger(l log.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithOnUpstreamError(fn func(status int)) Option {
	return func(a *API) { a.OnUpstreamError = fn }
}

// NewAPI proxies only https URLs on allowedHost (host or host:port).
func NewAPI(allowedHost string, opts ...Option) *API {
	a := &API{
		client: &http.Client{
			// no overall timeout, the body is read for as long as the viewer
			// keeps up; see streamWriteIdle
			Transport: otelhttp.NewTransport(&http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 15 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			}),
		},
		allowedHost: strings.ToLower(allowedHost),
		logger:      log.Nop(),
	}
	for _, o := range opts {
		o(a)
	}
	// copied so a caller's client keeps its own policy
	c := *a.client
	c.CheckRedirect = a.checkRedirect
	a.client = &c
	return a
}

// checkRedirect holds redirects to the same rules as the requested URL, so
// the allowed host cannot bounce the proxy elsewhere.
func (a *API) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return xerrors.Newf("video: stopped after %d redirects", len(via))
	}
	if _, ok := a.allowed(req.URL.String()); !ok {
		return xerrors.Newf("video: redirect to %s not allowed", req.URL.Redacted())
	}
	return nil
}

func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/api/video", a.HandleVideo)
}

// allowed reports whether raw is an https URL on the allowed host. Substring
// checks would let cdn.sanity.io.evil.example through. An allowed host
// without a port only matches the default https port.
func (a *API) allowed(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.User != nil {
		return nil, false
	}
	if strings.Contains(a.allowedHost, ":") {
		return u, strings.ToLower(u.Host) == a.allowedHost
	}
	return u, strings.ToLower(u.Hostname()) == a.allowedHost && (u.Port() == "" || u.Port() == "443")
}

func (a *API) HandleVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw := r.URL.Query().Get("url")
	if raw == "" {
		apiresp.Error(ctx, w, http.StatusBadRequest, "Video URL is required", "")
		return
	}
	target, ok := a.allowed(raw)
	if !ok {
		apiresp.Error(ctx, w, http.StatusForbidden, "Invalid video source", "")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		apiresp.Error(ctx, w, http.StatusBadRequest, "Video URL is required", "")
		return
	}
	req.Header.Set("Accept", "video/mp4,video/*")
	if rg := r.Header.Get("Range"); rg != "" {
		req.Header.Set("Range", rg)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.upstreamError(0)
		a.logger.Warn(ctx, "video upstream unreachable", "host", target.Host, "err", err)
		apiresp.Error(ctx, w, http.StatusBadGateway, "Failed to fetch video", "")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		a.upstreamError(resp.StatusCode)
		a.logger.Warn(ctx, "video upstream error", "host", target.Host, "status", resp.StatusCode)
		apiresp.Error(ctx, w, resp.StatusCode, "Failed to fetch video", "")
		return
	}

	h := w.Header()
	for _, k := range passHeaders {
		if v := resp.Header.Get(k); v != "" {
			h.Set(k, v)
		}
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "video/mp4"
	}
	h.Set("Content-Type", ct)
	h.Set("Content-Disposition", "inline")
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", "public, max-age=31536000, immutable")
	h.Set("Cross-Origin-Resource-Policy", "cross-origin")
	w.WriteHeader(resp.StatusCode)

	out := &idleDeadlineWriter{w: w, rc: http.NewResponseController(w), idle: streamWriteIdle}
	if _, err := io.Copy(out, resp.Body); err != nil && ctx.Err() == nil {
		a.logger.Debug(ctx, "video stream interrupted", "err", err)
	}
	if out.unsupported != nil {
		a.logger.Debug(ctx, "server write timeout applies to video stream", "err", out.unsupported)
	}
}

// idleDeadlineWriter pushes the connection write deadline forward before
// every chunk. The server WriteTimeout would otherwise end any video longer
// than it, while a viewer that stops reading is still cut off after idle.
type idleDeadlineWriter struct {
	w           io.Writer
	rc          *http.ResponseController
	idle        time.Duration
	unsupported error
}

func (d *idleDeadlineWriter) Write(p []byte) (int, error) {
	if d.unsupported == nil {
		if err := d.rc.SetWriteDeadline(time.Now().Add(d.idle)); err != nil {
			d.unsupported = err
		}
	}
	return d.w.Write(p)
}

func (a *API) upstreamError(status int) {
	if a.OnUpstreamError != nil {
		a.OnUpstreamError(status)
	}
}
