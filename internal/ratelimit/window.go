package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ligadeals/ligadeals-web/internal/apiresp"
	"github.com/ligadeals/ligadeals-web/internal/httpmw"
	"github.com/ligadeals/ligadeals-web/internal/log"
)

// UnknownClient is the identifier used when no client address could be resolved.
const UnknownClient = httpmw.UnknownClient

// Decision is the outcome of one FixedWindow check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window resets, at least 1.
func (d Decision) RetryAfter(now time.Time) int {
	secs := int(d.ResetAt.Sub(now).Seconds() + 0.999)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// FixedWindow allows Max requests per client in each Window. Every call site
// gets its own FixedWindow (and scope) so budgets do not leak between routes.
type FixedWindow struct {
	store  Store
	scope  string
	max    int
	window time.Duration
	now    func() time.Time

	// OnDenied is called for every denied check, for metrics.
	OnDenied func(scope string)
}

type WindowOption func(*FixedWindow)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) WindowOption {
	return func(f *FixedWindow) { f.now = now }
}

func WithOnWindowDenied(fn func(scope string)) WindowOption {
	return func(f *FixedWindow) { f.OnDenied = fn }
}

// NewFixedWindow returns a limiter named scope allowing max requests per window.
func NewFixedWindow(store Store, scope string, max int, window time.Duration, opts ...WindowOption) *FixedWindow {
	f := &FixedWindow{
		store:  store,
		scope:  scope,
		max:    max,
		window: window,
		now:    time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *FixedWindow) Scope() string         { return f.scope }
func (f *FixedWindow) Window() time.Duration { return f.window }

// Check counts one request from id. The first max requests of a window are
// allowed with Remaining = max - count; later ones are denied with
// Remaining 0 until the window resets.
//
// When the store fails the request is allowed and the error returned so the
// caller can log it; a broken counter must not take the forms down.
func (f *FixedWindow) Check(ctx context.Context, id string) (Decision, error) {
	if id == "" {
		id = UnknownClient
	}
	now := f.now()
	count, resetAt, err := f.store.Increment(ctx, f.key(id), f.window, now)
	if err != nil {
		return Decision{Allowed: true, Limit: f.max, Remaining: f.max, ResetAt: now.Add(f.window)}, err
	}

	d := Decision{Limit: f.max, ResetAt: resetAt}
	if count > int64(f.max) {
		if f.OnDenied != nil {
			f.OnDenied(f.scope)
		}
		return d, nil
	}
	d.Allowed = true
	d.Remaining = f.max - int(count)
	return d, nil
}

// Reset forgets id's counter in this scope.
func (f *FixedWindow) Reset(ctx context.Context, id string) error {
	if id == "" {
		id = UnknownClient
	}
	return f.store.Reset(ctx, f.key(id))
}

func (f *FixedWindow) key(id string) string {
	return "ratelimit:" + f.scope + ":" + id
}

// SetHeaders writes X-RateLimit-Limit/Remaining/Reset (reset in unix ms).
func SetHeaders(h http.Header, d Decision) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.UnixMilli(), 10))
}

// Middleware applies the window to every request keyed by client IP. Denied
// requests get 429 with Retry-After set to the full window length.
func (f *FixedWindow) Middleware(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int((f.window + time.Second - 1) / time.Second))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		d, err := f.Check(ctx, httpmw.ClientIPFromContext(ctx))
		if err != nil {
			log.FromContext(ctx).Warn(ctx, "rate limit store unavailable, allowing request",
				"scope", f.scope,
				"error", err,
			)
		}
		if !d.Allowed {
			w.Header().Set("Retry-After", retryAfter)
			apiresp.Error(ctx, w, http.StatusTooManyRequests, "Too many requests", "יותר מדי בקשות. אנא המתן מעט.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
