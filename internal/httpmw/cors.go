package httpmw

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"

	"github.com/ligadeals/ligadeals-web/internal/apiresp"
)

// OriginPolicy decides which browser origins may call the API.
type OriginPolicy struct {
	// Allowed is an exact-match list. When empty every origin is allowed in
	// development and none in production.
	Allowed     []string
	Development bool
}

func (p OriginPolicy) allows(origin string) bool {
	if origin == "" {
		return true
	}
	if len(p.Allowed) == 0 {
		return p.Development
	}
	return slices.Contains(p.Allowed, origin)
}

// CORS rejects requests carrying a disallowed Origin with 403 and adds CORS
// headers (credentials allowed, origin echoed) for allowed ones. Requests
// without an Origin header are same-origin or server-to-server and pass.
func CORS(p OriginPolicy) func(http.Handler) http.Handler {
	c := cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return p.allows(origin)
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           600,
	})
	return func(next http.Handler) http.Handler {
		withCORS := c(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !p.allows(r.Header.Get("Origin")) {
				apiresp.Error(r.Context(), w, http.StatusForbidden, "CORS policy: Origin not allowed", "")
				return
			}
			withCORS.ServeHTTP(w, r)
		})
	}
}
