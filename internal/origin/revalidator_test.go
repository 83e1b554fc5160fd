package origin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func TestRevalidator_SendsSecretAndTarget(t *testing.T) {
	var bodies []revalidateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %q", r.Method, r.Header.Get("Content-Type"))
		}
		var req revalidateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		bodies = append(bodies, req)
		_, _ = io.WriteString(w, `{"revalidated":true}`)
	}))
	defer srv.Close()

	rv := NewRevalidator(srv.URL, "s3cret", srv.Client())
	if err := rv.InvalidatePath(context.Background(), "/blog/x"); err != nil {
		t.Fatalf("InvalidatePath: %v", err)
	}
	if err := rv.InvalidateTag(context.Background(), "articles"); err != nil {
		t.Fatalf("InvalidateTag: %v", err)
	}

	if len(bodies) != 2 {
		t.Fatalf("got %d requests", len(bodies))
	}
	if bodies[0] != (revalidateRequest{Secret: "s3cret", Path: "/blog/x"}) {
		t.Errorf("path body = %+v", bodies[0])
	}
	if bodies[1] != (revalidateRequest{Secret: "s3cret", Tag: "articles"}) {
		t.Errorf("tag body = %+v", bodies[1])
	}
}

func TestRevalidator_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantSub string
	}{
		{"non-2xx", http.StatusUnauthorized, `{"message":"Invalid secret"}`, "status 401"},
		{"not revalidated", http.StatusOK, `{"revalidated":false,"error":"no such tag"}`, "no such tag"},
		{"not revalidated no reason", http.StatusOK, `{"revalidated":false}`, "not revalidated"},
		{"bad json", http.StatusOK, `<html>`, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			err := NewRevalidator(srv.URL, "s", srv.Client()).InvalidatePath(context.Background(), "/")
			if err == nil || !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantSub)
			}
		})
	}
}

func TestRevalidator_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"revalidated":true}`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewRevalidator(srv.URL, "s", nil).InvalidateTag(ctx, "videos"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestNewRevalidator_TracedTransport(t *testing.T) {
	traced := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	tests := []struct {
		name string
		hc   *http.Client
	}{
		{"nil", nil},
		{"bare client", &http.Client{Timeout: 3 * time.Second}},
		{"custom transport", &http.Client{Transport: &http.Transport{}}},
		{"already traced", traced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var before http.RoundTripper
			if tt.hc != nil {
				before = tt.hc.Transport
			}
			rv := NewRevalidator("http://renderer.internal/api/revalidate", "s", tt.hc)

			got, ok := rv.http.Transport.(*otelhttp.Transport)
			if !ok {
				t.Fatalf("transport = %T, want *otelhttp.Transport", rv.http.Transport)
			}
			if tt.hc == traced && got != traced.Transport {
				t.Fatal("traced transport wrapped twice")
			}
			if tt.hc != nil {
				if tt.hc.Transport != before {
					t.Fatal("caller's client was modified")
				}
				if rv.http.Timeout != tt.hc.Timeout {
					t.Fatalf("timeout = %v, want %v", rv.http.Timeout, tt.hc.Timeout)
				}
			}
		})
	}
}
