package opshttp

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ligadeals/ligadeals-web/internal/health"
	"github.com/ligadeals/ligadeals-web/internal/log"
	"github.com/ligadeals/ligadeals-web/internal/pagecache"
)

func opsGet(h http.Handler, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const sidecar = "10.0.3.7:51234"

func TestNewHandler_Endpoints(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ligadeals_page_cache_total 3\n")
	})
	full := NewHandler(log.Nop(), &Options{
		Metrics:     metrics,
		EnablePprof: true,
		Health:      health.Fixed(true, ""),
		Readiness:   health.Fixed(false, "draining"),
		PageCache:   pagecache.New(),
	})
	bare := NewHandler(log.Nop(), &Options{})

	tests := []struct {
		name     string
		h        http.Handler
		path     string
		want     int
		wantBody string
	}{
		{"healthz", full, "/healthz", http.StatusOK, "ok"},
		{"readyz draining", full, "/readyz", http.StatusServiceUnavailable, "draining"},
		{"metrics", full, "/metrics", http.StatusOK, "ligadeals_page_cache_total"},
		{"pagecache", full, "/-/pagecache", http.StatusOK, `"entries":0`},
		{"pprof index", full, "/debug/pprof/", http.StatusOK, "goroutine"},
		{"expvar", full, "/debug/vars", http.StatusOK, "memstats"},

		// nil checks pass
		{"bare healthz", bare, "/healthz", http.StatusOK, "ok"},
		{"bare readyz", bare, "/readyz", http.StatusOK, "ready"},
		{"no metrics", bare, "/metrics", http.StatusNotFound, ""},
		{"no pagecache", bare, "/-/pagecache", http.StatusNotFound, ""},
		{"pprof off", bare, "/debug/pprof/", http.StatusNotFound, ""},
		{"pprof off profile", bare, "/debug/pprof/profile", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := opsGet(tt.h, tt.path, sidecar)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Fatalf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestNewHandler_PeerFilter(t *testing.T) {
	h := NewHandler(log.Nop(), &Options{})

	tests := []struct {
		remote string
		want   int
	}{
		{"127.0.0.1:40000", http.StatusOK},
		{"[::1]:40000", http.StatusOK},
		{"10.0.3.7:40000", http.StatusOK},
		{"172.20.1.1:40000", http.StatusOK},
		{"192.168.1.20:40000", http.StatusOK},
		{"[fd00::5]:40000", http.StatusOK},
		{"169.254.169.254:80", http.StatusOK},
		{"[fe80::1]:40000", http.StatusOK},
		{"[::ffff:10.0.0.1]:40000", http.StatusOK},

		{"203.0.113.5:40000", http.StatusForbidden},
		{"[2001:db8::1]:40000", http.StatusForbidden},
		{"[::ffff:8.8.8.8]:40000", http.StatusForbidden},
		{"10.0.0.1", http.StatusForbidden},
		{"not-an-ip:80", http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			if rec := opsGet(h, "/healthz", tt.remote); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

// A public peer is turned away before any check runs.
func TestNewHandler_PublicPeerSkipsChecks(t *testing.T) {
	var checks atomic.Int32
	h := NewHandler(log.Nop(), &Options{
		Readiness: health.CheckFunc(func(context.Context) error {
			checks.Add(1)
			return nil
		}),
	})
	opsGet(h, "/readyz", "198.51.100.4:443")
	if n := checks.Load(); n != 0 {
		t.Fatalf("readiness checked %d times for a public peer", n)
	}
}

func TestNewHandler_RecoversPanickingCheck(t *testing.T) {
	var panics atomic.Int32
	h := NewHandler(log.Nop(), &Options{
		UseRecoverMW: true,
		OnPanic:      func() { panics.Add(1) },
		Readiness: health.CheckFunc(func(context.Context) error {
			panic("redis client nil")
		}),
	})
	if rec := opsGet(h, "/readyz", sidecar); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if panics.Load() != 1 {
		t.Fatalf("OnPanic calls = %d, want 1", panics.Load())
	}
}

func TestStart_ServesAndStops(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	stop, err := Start(t.Context(), log.Nop(), &Options{Port: port, Health: health.Fixed(true, "")})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/healthz"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestStart_PortTaken(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	_, err = Start(t.Context(), nil, &Options{Port: ln.Addr().(*net.TCPAddr).Port})
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("err = %v, want a listen error", err)
	}
}
