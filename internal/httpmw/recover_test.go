package httpmw

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ligadeals/ligadeals-web/internal/apiresp"
)

func TestRecover(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		value    any
		wantJSON bool
		wantErr  string
	}{
		{"page string panic", "/gallery", "template missing", false, "panic: template missing"},
		{"api error panic", "/api/contact", errors.New("nil sender"), true, "nil sender"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ml := newMemLogger()
			var panics atomic.Int32
			h := Recover(ml, func() { panics.Add(1) })(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic(tt.value)
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.path, nil))

			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d", rec.Code)
			}
			if panics.Load() != 1 {
				t.Fatalf("onPanic calls = %d", panics.Load())
			}
			line := ml.only(t)
			if line.level != "error" || !strings.Contains(line.err.Error(), tt.wantErr) {
				t.Fatalf("line = %+v", line)
			}
			if v, _ := line.field("url.path"); v != tt.path {
				t.Fatalf("url.path = %v", v)
			}
			if v, _ := line.field("stack"); !strings.Contains(v.(string), "goroutine") {
				t.Fatal("stack missing")
			}

			if !tt.wantJSON {
				if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
					t.Fatal("page panic answered with JSON")
				}
				return
			}
			var body apiresp.ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("body %q: %v", rec.Body.String(), err)
			}
			if body.HebrewError != apiresp.HeServerError {
				t.Fatalf("hebrewError = %q", body.HebrewError)
			}
		})
	}
}

func TestRecover_PassThrough(t *testing.T) {
	ml := newMemLogger()
	rec := httptest.NewRecorder()
	Recover(ml, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusNoContent || len(ml.all()) != 0 {
		t.Fatalf("status = %d, lines = %d", rec.Code, len(ml.all()))
	}
}

func TestRecover_ReraisesAbortHandler(t *testing.T) {
	h := Recover(nil, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want ErrAbortHandler", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/video", nil))
}
