package videohttp

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// newFixture runs a TLS upstream and an API that trusts only its host.
func newFixture(t *testing.T, h http.HandlerFunc) (http.Handler, string, *[]int) {
	t.Helper()
	upstream := httptest.NewTLSServer(h)
	t.Cleanup(upstream.Close)
	u, _ := url.Parse(upstream.URL)

	var failures []int
	api := NewAPI(u.Host,
		WithHTTPClient(upstream.Client()),
		WithOnUpstreamError(func(s int) { failures = append(failures, s) }),
	)
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r, upstream.URL, &failures
}

func get(h http.Handler, videoURL string, hdr ...string) *httptest.ResponseRecorder {
	target := "/api/video"
	if videoURL != "" {
		target += "?url=" + url.QueryEscape(videoURL)
	}
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleVideo_Streams(t *testing.T) {
	h, base, _ := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "video/mp4,video/*" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "video/webm")
		w.Header().Set("Content-Disposition", "attachment")
		_, _ = io.WriteString(w, "VIDEO")
	})

	rec := get(h, base+"/files/p/d/clip.webm")
	if rec.Code != http.StatusOK || rec.Body.String() != "VIDEO" {
		t.Fatalf("%d %q", rec.Code, rec.Body.String())
	}
	want := map[string]string{
		"Content-Type":                 "video/webm",
		"Content-Disposition":          "inline",
		"Accept-Ranges":                "bytes",
		"Cache-Control":                "public, max-age=31536000, immutable",
		"Cross-Origin-Resource-Policy": "cross-origin",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestHandleVideo_DefaultContentType(t *testing.T) {
	h, base, _ := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = w.Write([]byte{0, 0, 0})
	})
	if ct := get(h, base+"/v.mp4").Header().Get("Content-Type"); ct != "video/mp4" {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestHandleVideo_ForwardsRange(t *testing.T) {
	h, base, _ := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "bytes=0-1" {
			t.Errorf("Range = %q", r.Header.Get("Range"))
		}
		w.Header().Set("Content-Range", "bytes 0-1/5")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = io.WriteString(w, "VI")
	})
	rec := get(h, base+"/v.mp4", "Range", "bytes=0-1")
	if rec.Code != http.StatusPartialContent || rec.Header().Get("Content-Range") != "bytes 0-1/5" {
		t.Fatalf("%d %v", rec.Code, rec.Header())
	}
}

func TestHandleVideo_Rejects(t *testing.T) {
	h, base, _ := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called")
	})
	host := strings.TrimPrefix(base, "https://")
	hostname := strings.Split(host, ":")[0]

	tests := []struct {
		name   string
		url    string
		status int
	}{
		{"missing", "", http.StatusBadRequest},
		{"other host", "https://evil.example/v.mp4", http.StatusForbidden},
		{"allowed host as subdomain", "https://" + hostname + ".evil.example/v.mp4", http.StatusForbidden},
		{"allowed host in path", "https://evil.example/" + hostname + "/v.mp4", http.StatusForbidden},
		{"plain http", "http://" + host + "/v.mp4", http.StatusForbidden},
		{"userinfo", "https://user@" + host + "/v.mp4", http.StatusForbidden},
		{"garbage", "::not a url", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := get(h, tt.url); rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestAllowed_DefaultPort(t *testing.T) {
	a := NewAPI("cdn.sanity.io")
	for raw, want := range map[string]bool{
		"https://cdn.sanity.io/files/x.mp4":     true,
		"https://CDN.sanity.io:443/files/x.mp4": true,
		"https://cdn.sanity.io:8443/x.mp4":      false,
		"https://cdn.sanity.io.evil.io/x.mp4":   false,
	} {
		if _, got := a.allowed(raw); got != want {
			t.Errorf("allowed(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestHandleVideo_UpstreamStatusRelayed(t *testing.T) {
	h, base, failures := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	rec := get(h, base+"/gone.mp4")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "Failed to fetch video") {
		t.Fatalf("%d %q", rec.Code, rec.Body.String())
	}
	if len(*failures) != 1 || (*failures)[0] != http.StatusNotFound {
		t.Fatalf("failures = %v", *failures)
	}
}

func TestHandleVideo_Redirects(t *testing.T) {
	var elsewhereHits atomic.Int32
	elsewhere := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		elsewhereHits.Add(1)
		io.WriteString(w, "NOT THE CDN")
	}))
	t.Cleanup(elsewhere.Close)

	var base string
	h, b, failures := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/moved.mp4":
			http.Redirect(w, r, "/clip.mp4", http.StatusFound)
		case "/offsite.mp4":
			http.Redirect(w, r, elsewhere.URL+"/clip.mp4", http.StatusFound)
		case "/downgrade.mp4":
			http.Redirect(w, r, "http://"+strings.TrimPrefix(base, "https://")+"/clip.mp4", http.StatusFound)
		case "/loop.mp4":
			http.Redirect(w, r, "/loop.mp4", http.StatusFound)
		case "/clip.mp4":
			io.WriteString(w, "VIDEO")
		}
	})
	base = b

	if rec := get(h, base+"/moved.mp4"); rec.Code != http.StatusOK || rec.Body.String() != "VIDEO" {
		t.Fatalf("same host redirect: %d %q", rec.Code, rec.Body.String())
	}
	for _, p := range []string{"/offsite.mp4", "/downgrade.mp4", "/loop.mp4"} {
		if rec := get(h, base+p); rec.Code != http.StatusBadGateway {
			t.Errorf("%s: status = %d, want 502", p, rec.Code)
		}
	}
	if n := elsewhereHits.Load(); n != 0 {
		t.Fatalf("proxy followed a redirect off the allowed host %d times", n)
	}
	if len(*failures) != 3 {
		t.Fatalf("failures = %v, want 3 transport errors", *failures)
	}
}

func TestNewAPI_CallerClientUntouched(t *testing.T) {
	c := &http.Client{}
	NewAPI("cdn.sanity.io", WithHTTPClient(c))
	if c.CheckRedirect != nil {
		t.Fatal("NewAPI changed the caller's client")
	}
}

// A video longer than the server WriteTimeout must still arrive whole.
func TestHandleVideo_OutlivesServerWriteTimeout(t *testing.T) {
	const chunks = 6
	h, base, _ := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		for i := 0; i < chunks; i++ {
			io.WriteString(w, strings.Repeat("v", 1024))
			w.(http.Flusher).Flush()
			time.Sleep(50 * time.Millisecond)
		}
	})

	front := httptest.NewUnstartedServer(h)
	front.Config.WriteTimeout = 100 * time.Millisecond
	front.Start()
	t.Cleanup(front.Close)

	resp, err := http.Get(front.URL + "/api/video?url=" + url.QueryEscape(base+"/long.mp4"))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("stream cut after %d bytes: %v", len(body), err)
	}
	if len(body) != chunks*1024 {
		t.Fatalf("got %d bytes, want %d", len(body), chunks*1024)
	}
}

func TestIdleDeadlineWriter_UnsupportedWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	d := &idleDeadlineWriter{w: rec, rc: http.NewResponseController(rec), idle: time.Second}
	for range 2 {
		if _, err := d.Write([]byte("ab")); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if !errors.Is(d.unsupported, http.ErrNotSupported) {
		t.Fatalf("unsupported = %v, want ErrNotSupported", d.unsupported)
	}
	if rec.Body.String() != "abab" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}
