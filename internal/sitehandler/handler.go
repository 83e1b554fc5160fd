package sitehandler

import (
	"context"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ligadeals/ligadeals-web/internal/cryptoutil"
	"github.com/ligadeals/ligadeals-web/internal/origin"
	"github.com/ligadeals/ligadeals-web/internal/pagecache"
	"github.com/ligadeals/ligadeals-web/internal/pathutil"
)

type Handler struct {
	opts  Options
	group singleflight.Group
	now   func() time.Time
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: opts, now: time.Now}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// hardening: only allow GET/HEAD
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !pathutil.IsSitePath(r.URL.Path) {
		h.serveNotFound(w, r)
		return
	}

	cacheable := h.opts.Cache != nil && cacheableRequest(r)
	if cacheable {
		if e, ok := h.opts.Cache.Get(r.URL.Path); ok {
			h.outcome(CacheHit)
			w.Header().Set("Age", strconv.Itoa(int(e.Age(h.now()).Seconds())))
			if etag := e.Header.Get("ETag"); etag != "" && r.Header.Get("If-None-Match") == etag {
				w.Header().Set("ETag", etag)
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusNotModified)
				return
			}
			h.write(w, r, e.Status, e.Header, e.Body, "HIT")
			return
		}
	}

	// taken before the render so a webhook landing mid-render keeps the
	// old page out of the cache
	var gen uint64
	if cacheable {
		gen = h.opts.Cache.Generation()
	}
	resp, err := h.fetch(r, gen)
	if err != nil {
		h.outcome(CacheError)
		h.opts.Logger.Warn(r.Context(), "origin fetch failed", "path", r.URL.Path, "err", err)
		h.serveMaintenance(w, r)
		return
	}

	if resp.Status == http.StatusNotFound && len(resp.Body) == 0 {
		h.serveNotFound(w, r)
		return
	}

	state := "BYPASS"
	if cacheable && cacheableResponse(resp) {
		state = "MISS"
		h.outcome(CacheMiss)
		// resp is shared by every caller coalesced into the same fetch
		header := resp.Header.Clone()
		if header.Get("ETag") == "" {
			header.Set("ETag", `"`+cryptoutil.SHA256Hex(resp.Body)[:32]+`"`)
		}
		stored := h.opts.Cache.PutIfCurrent(&pagecache.Entry{
			Path:   r.URL.Path,
			Status: resp.Status,
			Header: header,
			Body:   resp.Body,
			Tags:   pagecache.TagsFor(r.URL.Path, resp.Header.Get(pagecache.TagHeader)),
		}, gen)
		if !stored {
			h.opts.Logger.Debug(r.Context(), "render overlapped an invalidation, not cached", "path", r.URL.Path)
		}
		h.write(w, r, resp.Status, header, resp.Body, state)
		return
	}
	h.outcome(CacheBypass)
	h.write(w, r, resp.Status, resp.Header, resp.Body, state)
}

// fetch renders r. Anonymous requests for the same URL and invalidation
// generation share one render, which outlives any single caller. Requests
// carrying credentials or a query always render on their own.
func (h *Handler) fetch(r *http.Request, gen uint64) (*origin.Response, error) {
	if !shareable(r) {
		ctx, cancel := context.WithTimeout(r.Context(), h.opts.FetchTimeout)
		defer cancel()
		return h.render(ctx, r)
	}
	key := strconv.FormatUint(gen, 10) + " " + r.URL.RequestURI()
	v, err, _ := h.group.Do(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.opts.FetchTimeout)
		defer cancel()
		return h.render(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	return v.(*origin.Response), nil
}

func (h *Handler) render(ctx context.Context, r *http.Request) (*origin.Response, error) {
	out := r.Clone(ctx)
	out.Method = http.MethodGet
	return h.opts.Origin.Fetch(ctx, out)
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, header http.Header, body []byte, state string) {
	dst := w.Header()
	for k, vv := range header {
		if k == pagecache.TagHeader {
			continue
		}
		dst[k] = append([]string(nil), vv...)
	}
	if status == http.StatusOK {
		if cc := cachePolicy(r.URL.Path, &h.opts); cc != "" {
			dst.Set("Cache-Control", cc)
		}
	}
	dst.Set("X-Cache", state)
	dst.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}

func (h *Handler) outcome(o string) {
	if h.opts.OnCache != nil {
		h.opts.OnCache(o)
	}
}

func (h *Handler) serveMaintenance(w http.ResponseWriter, r *http.Request) {
	// Maintenance should never be cached.
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", "60")

	serveFileWithStatus(w, r, http.StatusServiceUnavailable, h.opts.FallbackFS, h.opts.MaintenanceFile)
}

func (h *Handler) serveNotFound(w http.ResponseWriter, r *http.Request) {
	// avoid caching 404 responses
	w.Header().Set("Cache-Control", "no-store")

	if existsFile(h.opts.FallbackFS, h.opts.Fallback404File) {
		serveFileWithStatus(w, r, http.StatusNotFound, h.opts.FallbackFS, h.opts.Fallback404File)
		return
	}

	// last resort: plain text
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("404 page not found"))
}

func cacheableRequest(r *http.Request) bool {
	return r.URL.RawQuery == "" && r.Header.Get("Authorization") == ""
}

// shareable reports whether r may join another caller's render. A cookie
// can change what the renderer returns, so it rules sharing out.
func shareable(r *http.Request) bool {
	return cacheableRequest(r) && r.Header.Get("Cookie") == ""
}

func cacheableResponse(resp *origin.Response) bool {
	if resp.Status != http.StatusOK || len(resp.Header.Values("Set-Cookie")) > 0 {
		return false
	}
	cc := strings.ToLower(resp.Header.Get("Cache-Control"))
	return !strings.Contains(cc, "no-store") && !strings.Contains(cc, "private")
}

func existsFile(fsys fs.FS, name string) bool {
	st, err := fs.Stat(fsys, name)
	return err == nil && !st.IsDir()
}

// we want to serve a file but force an HTTP status code (404/503)
// but http.ServeFileFS writes a status code on its own so wrapping
// ResponseWriter and overriding the first WriteHeader call here
type statusOverrideWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusOverrideWriter) WriteHeader(code int) {
	if w.wroteHeader {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(w.status)
}

func (w *statusOverrideWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func serveFileWithStatus(w http.ResponseWriter, r *http.Request, status int, fsys fs.FS, name string) {
	sw := &statusOverrideWriter{ResponseWriter: w, status: status}
	http.ServeFileFS(sw, r, fsys, name)
}
