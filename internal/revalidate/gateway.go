package revalidate

import (
	"context"
	"time"

	"github.com/ligadeals/ligadeals-web/internal/log"
	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

const (
	KindPath = "path"
	KindTag  = "tag"
)

// Revalidated lists what was actually invalidated.
type Revalidated struct {
	Paths []string `json:"paths"`
	Tags  []string `json:"tags"`
}

// Result is the completed webhook outcome. Failed items are only logged and
// counted; callers see them by their absence from Revalidated.
type Result struct {
	Success     bool        `json:"success"`
	Message     string      `json:"message"`
	Revalidated Revalidated `json:"revalidated"`
	Timestamp   string      `json:"timestamp"`

	DocumentType DocumentType `json:"-"`
	Failed       []ItemError  `json:"-"`
}

// Partial reports whether at least one invalidation failed.
func (r Result) Partial() bool { return len(r.Failed) > 0 }

// Gateway runs verify, parse, map and invalidate for one webhook body.
type Gateway struct {
	secret  string
	inv     Invalidator
	timeout time.Duration
	now     func() time.Time
	logger  log.Logger

	// OnInvalidate is called once per path or tag with outcome "ok" or "error".
	OnInvalidate func(kind, outcome string)
}

type Option func(*Gateway)

// WithCallTimeout bounds every single InvalidatePath/InvalidateTag call.
func WithCallTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

func WithLogger(l log.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func WithOnInvalidate(fn func(kind, outcome string)) Option {
	return func(g *Gateway) { g.OnInvalidate = fn }
}

// NewGateway returns a gateway for secret. An empty secret is accepted here
// and reported as ErrNotConfigured on every request.
func NewGateway(secret string, inv Invalidator, opts ...Option) *Gateway {
	g := &Gateway{
		secret:  secret,
		inv:     inv,
		timeout: 5 * time.Second,
		now:     time.Now,
		logger:  log.Nop(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Configured reports whether a secret is set.
func (g *Gateway) Configured() bool { return g.secret != "" }

// Handle processes one webhook. It returns ErrNotConfigured,
// ErrInvalidSignature (nothing is parsed or invalidated) or a
// *PayloadError; any other outcome is a Result with Success set, even when
// some invalidations failed.
func (g *Gateway) Handle(ctx context.Context, body []byte, signature string) (Result, error) {
	if g.secret == "" {
		return Result{}, xerrors.WithStack(ErrNotConfigured)
	}
	if !Verify(body, signature, g.secret) {
		return Result{}, ErrInvalidSignature
	}

	p, err := ParsePayload(body)
	if err != nil {
		return Result{}, err
	}

	dt := p.DocumentType()
	g.logger.Info(ctx, "received CMS webhook",
		"type", p.Type,
		"doc_type", dt.String(),
		"id", p.ID,
		"rev", p.Rev,
		"slug", p.SlugValue(),
	)

	res := Result{
		Success:      true,
		Message:      "Revalidation triggered",
		Revalidated:  Revalidated{Paths: []string{}, Tags: []string{}},
		DocumentType: dt,
	}

	for _, path := range PathsFor(p) {
		if err := g.call(ctx, func(ctx context.Context) error { return g.inv.InvalidatePath(ctx, path) }); err != nil {
			res.Failed = append(res.Failed, ItemError{Kind: KindPath, Target: path, Err: err})
			g.logger.Error(ctx, err, "failed to revalidate path", "path", path)
			g.observe(KindPath, "error")
			continue
		}
		res.Revalidated.Paths = append(res.Revalidated.Paths, path)
		g.logger.Debug(ctx, "revalidated path", "path", path)
		g.observe(KindPath, "ok")
	}

	for _, tag := range TagsFor(p) {
		if err := g.call(ctx, func(ctx context.Context) error { return g.inv.InvalidateTag(ctx, tag) }); err != nil {
			res.Failed = append(res.Failed, ItemError{Kind: KindTag, Target: tag, Err: err})
			g.logger.Error(ctx, err, "failed to revalidate tag", "tag", tag)
			g.observe(KindTag, "error")
			continue
		}
		res.Revalidated.Tags = append(res.Revalidated.Tags, tag)
		g.logger.Debug(ctx, "revalidated tag", "tag", tag)
		g.observe(KindTag, "ok")
	}

	res.Timestamp = g.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
	return res, nil
}

// call runs fn under the per-call timeout and turns a panic into an error so
// one broken invalidator cannot abort the rest of the batch.
func (g *Gateway) call(ctx context.Context, fn func(context.Context) error) (err error) {
	if g.inv == nil {
		return xerrors.New("no invalidator configured")
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = xerrors.Newf("invalidator panic: %v", rec)
		}
	}()
	return fn(ctx)
}

func (g *Gateway) observe(kind, outcome string) {
	if g.OnInvalidate != nil {
		g.OnInvalidate(kind, outcome)
	}
}
