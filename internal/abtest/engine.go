// Package abtest assigns sticky experiment variants to a client and counts
// impressions and conversions per variant.
//
// An Engine works on a single client's Storage. Assignments and counters
// are kept as two JSON documents so the layout matches what the browser
// keeps in localStorage.
package abtest

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/ligadeals/ligadeals-web/internal/log"
	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

var (
	ErrNoVariants = xerrors.New("abtest: test has no variants")

	errCorrupt = errors.New("abtest: corrupt document")
)

// Counts are the raw counters for one variant.
type Counts struct {
	Impressions int64 `json:"impressions"`
	Conversions int64 `json:"conversions"`
}

// Result is Counts plus ConversionRate in percent.
type Result struct {
	Impressions    int64   `json:"impressions"`
	Conversions    int64   `json:"conversions"`
	ConversionRate float64 `json:"conversionRate"`
}

func resultOf(c Counts) Result {
	r := Result{Impressions: c.Impressions, Conversions: c.Conversions}
	if c.Impressions > 0 {
		r.ConversionRate = float64(c.Conversions) / float64(c.Impressions) * 100
	}
	return r
}

// testID -> variantID
type assignments map[string]string

// testID -> variantID -> counts
type statsDoc map[string]map[string]*Counts

type Engine struct {
	storage Storage
	rand    func() float64
	logger  log.Logger

	// serializes read-modify-write of the two documents
	mu sync.Mutex
}

type Option func(*Engine)

// WithRand replaces the uniform [0,1) source used for new assignments.
func WithRand(fn func() float64) Option {
	return func(e *Engine) { e.rand = fn }
}

func WithLogger(l log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine returns an engine over storage. A nil storage is a context with
// no client persistence: every test resolves to its first variant and
// nothing is recorded.
func NewEngine(storage Storage, opts ...Option) *Engine {
	e := &Engine{
		storage: storage,
		rand:    rand.Float64,
		logger:  log.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Variant returns the client's variant for t. A stored assignment is reused
// while it still names one of t's variants; otherwise a variant is drawn by
// weight, stored, and one impression is counted for it.
func (e *Engine) Variant(ctx context.Context, t Test) (Variant, error) {
	if len(t.Variants) == 0 {
		return Variant{}, ErrNoVariants
	}
	if e.storage == nil {
		return t.Variants[0], nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	as, err := e.loadAssignments(ctx)
	if err != nil {
		return Variant{}, err
	}
	if id, ok := as[t.ID]; ok {
		if v, ok := t.Has(id); ok {
			return v, nil
		}
	}

	v := pick(t.Variants, e.rand())
	as[t.ID] = v.ID
	if err := e.save(ctx, AssignmentsKey, as); err != nil {
		return Variant{}, err
	}
	if err := e.recordImpression(ctx, t.ID, v.ID); err != nil {
		return Variant{}, err
	}
	e.logger.Debug(ctx, "ab variant assigned", "test", t.ID, "variant", v.ID)
	return v, nil
}

// pick walks variants in order with r scaled to the total weight. u is a
// uniform draw in [0,1).
func pick(variants []Variant, u float64) Variant {
	var total float64
	for _, v := range variants {
		total += v.weight()
	}
	r := u * total
	for _, v := range variants {
		w := v.weight()
		if r < w {
			return v
		}
		r -= w
	}
	return variants[0]
}

func (e *Engine) recordImpression(ctx context.Context, testID, variantID string) error {
	st, err := e.loadStats(ctx)
	if err != nil {
		return err
	}
	byVariant := st[testID]
	if byVariant == nil {
		byVariant = make(map[string]*Counts)
		st[testID] = byVariant
	}
	c := byVariant[variantID]
	if c == nil {
		c = &Counts{}
		byVariant[variantID] = c
	}
	c.Impressions++
	return e.save(ctx, StatsKey, st)
}

// TrackConversion counts one conversion. An empty variantID means the
// client's assigned variant. It does nothing when the client has no
// assignment for testID or when no impression was ever counted for the
// variant.
func (e *Engine) TrackConversion(ctx context.Context, testID, variantID string) error {
	if e.storage == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if variantID == "" {
		as, err := e.loadAssignments(ctx)
		if err != nil {
			return err
		}
		variantID = as[testID]
	}
	if variantID == "" {
		return nil
	}

	st, err := e.loadStats(ctx)
	if err != nil {
		return err
	}
	c := st[testID][variantID]
	if c == nil {
		e.logger.Debug(ctx, "ab conversion without impression dropped", "test", testID, "variant", variantID)
		return nil
	}
	c.Conversions++
	return e.save(ctx, StatsKey, st)
}

// TestResults reports each variant of testID that has counters.
func (e *Engine) TestResults(ctx context.Context, testID string) (map[string]Result, error) {
	out := make(map[string]Result)
	if e.storage == nil {
		return out, nil
	}

	e.mu.Lock()
	st, err := e.loadStats(ctx)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for id, c := range st[testID] {
		if c != nil {
			out[id] = resultOf(*c)
		}
	}
	return out, nil
}

// AllTestResults is TestResults for every test with counters.
func (e *Engine) AllTestResults(ctx context.Context) (map[string]map[string]Result, error) {
	out := make(map[string]map[string]Result)
	if e.storage == nil {
		return out, nil
	}

	e.mu.Lock()
	st, err := e.loadStats(ctx)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for testID, byVariant := range st {
		rs := make(map[string]Result, len(byVariant))
		for id, c := range byVariant {
			if c != nil {
				rs[id] = resultOf(*c)
			}
		}
		out[testID] = rs
	}
	return out, nil
}

// ResetTest forgets the client's assignment and all counters for testID.
func (e *Engine) ResetTest(ctx context.Context, testID string) error {
	if e.storage == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	as, err := e.loadAssignments(ctx)
	if err != nil {
		return err
	}
	if _, ok := as[testID]; ok {
		delete(as, testID)
		if err := e.save(ctx, AssignmentsKey, as); err != nil {
			return err
		}
	}

	st, err := e.loadStats(ctx)
	if err != nil {
		return err
	}
	if _, ok := st[testID]; ok {
		delete(st, testID)
		if err := e.save(ctx, StatsKey, st); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) loadAssignments(ctx context.Context) (assignments, error) {
	as := assignments{}
	err := e.load(ctx, AssignmentsKey, &as)
	if errors.Is(err, errCorrupt) || (err == nil && as == nil) {
		return assignments{}, nil
	}
	return as, err
}

func (e *Engine) loadStats(ctx context.Context) (statsDoc, error) {
	st := statsDoc{}
	err := e.load(ctx, StatsKey, &st)
	if errors.Is(err, errCorrupt) || (err == nil && st == nil) {
		return statsDoc{}, nil
	}
	return st, err
}

func (e *Engine) load(ctx context.Context, key string, dst any) error {
	raw, err := e.storage.Get(ctx, key)
	if err != nil {
		return xerrors.Wrapf(err, "abtest: read %s", key)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// treated as empty and overwritten on the next save
		e.logger.Warn(ctx, "ab storage document unreadable, starting fresh", "key", key, "error", err)
		return errCorrupt
	}
	return nil
}

func (e *Engine) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return xerrors.Wrapf(err, "abtest: encode %s", key)
	}
	if err := e.storage.Set(ctx, key, raw); err != nil {
		return xerrors.Wrapf(err, "abtest: write %s", key)
	}
	return nil
}
