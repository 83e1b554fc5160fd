package httpmw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"none", "", false},
		{"alb style", "Root=1-67891233-abcdef012345678912345678", false},
		{"plain token", "cms-delivery-42", true},
		{"uuid", "3f2a7c1e-5b8d-4e0f-9a61-2c4d8e7f1b03", true},
		{"too long", strings.Repeat("a", 65), false},
		{"log injection", "abc\ninjected=1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/revalidate", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			var inCtx string
			rec := httptest.NewRecorder()
			RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				inCtx = RequestIDFromContext(r.Context())
			})).ServeHTTP(rec, req)

			out := rec.Header().Get(RequestIDHeader)
			if out != inCtx {
				t.Fatalf("response id %q != context id %q", out, inCtx)
			}
			if tt.keep {
				if out != tt.incoming {
					t.Fatalf("id = %q, want %q kept", out, tt.incoming)
				}
				return
			}
			if _, err := uuid.Parse(out); err != nil {
				t.Fatalf("minted id %q is not a uuid", out)
			}
		})
	}
}
