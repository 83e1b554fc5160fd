package httpmw

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/ligadeals/ligadeals-web/internal/apiresp"
	"github.com/ligadeals/ligadeals-web/internal/log"
	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

// Recover turns a handler panic into a 500 and one error log line. /api
// callers get the usual JSON error body with the Hebrew message, pages a
// plain text 500. http.ErrAbortHandler is re-raised so net/http can drop
// the connection. onPanic may be nil.
func Recover(logger log.Logger, onPanic func()) Middleware {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				if onPanic != nil {
					onPanic()
				}

				err, ok := rec.(error)
				if ok {
					err = xerrors.Wrap(err, "panic")
				} else {
					err = xerrors.Newf("panic: %v", rec)
				}
				logger.Error(r.Context(), err, "handler panic recovered",
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
					"stack", string(debug.Stack()),
				)

				if strings.HasPrefix(r.URL.Path, "/api/") {
					apiresp.Error(r.Context(), w, http.StatusInternalServerError, "Internal server error", apiresp.HeServerError)
					return
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
