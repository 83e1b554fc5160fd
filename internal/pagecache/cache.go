package pagecache

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/btree"
)

// Entry is one cached response.
type Entry struct {
	Path     string
	Status   int
	Header   http.Header
	Body     []byte
	Tags     []string
	StoredAt time.Time
}

// Age is how long ago the entry was stored.
func (e *Entry) Age(now time.Time) time.Duration { return now.Sub(e.StoredAt) }

// Eviction reasons passed to OnEvict.
const (
	ReasonExpired     = "expired"
	ReasonCapacity    = "capacity"
	ReasonInvalidated = "invalidated"
)

type ageKey struct {
	at   time.Time
	path string
}

func ageLess(a, b ageKey) bool {
	if a.at.Equal(b.at) {
		return a.path < b.path
	}
	return a.at.Before(b.at)
}

// Cache holds at most maxEntries pages for at most ttl each. The oldest entry
// is evicted first when full.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Entry
	byTag   map[string]map[string]struct{}
	byAge   *btree.BTreeG[ageKey]

	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	// bumped by every invalidation, see PutIfCurrent
	gen uint64

	OnEvict func(reason string, n int)
}

type Option func(*Cache)

// WithTTL sets the max age of an entry. 0 disables expiry.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithOnEvict(fn func(reason string, n int)) Option {
	return func(c *Cache) { c.OnEvict = fn }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]*Entry),
		byTag:      make(map[string]map[string]struct{}),
		byAge:      btree.NewBTreeG(ageLess),
		ttl:        time.Hour,
		maxEntries: 2048,
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the live entry for path. Expired entries are dropped.
func (c *Cache) Get(path string) (*Entry, bool) {
	c.mu.Lock()
	e, ok := c.entries[path]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	if c.expired(e, c.now()) {
		c.removeLocked(path)
		c.mu.Unlock()
		c.evicted(ReasonExpired, 1)
		return nil, false
	}
	c.mu.Unlock()
	return e, true
}

// Put stores e under e.Path, replacing any previous entry. StoredAt is set
// when zero. The entry must not be modified afterwards.
func (c *Cache) Put(e *Entry) {
	if e == nil || e.Path == "" || c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	evicted := c.putLocked(e)
	c.mu.Unlock()
	c.evicted(ReasonCapacity, evicted)
}

// Generation identifies the invalidation state. Read it before rendering a
// page and hand it to PutIfCurrent once the render is done.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// PutIfCurrent stores e like Put unless an invalidation ran after gen was
// read, in which case the render may predate the content change and is
// dropped. It reports whether e was stored.
func (c *Cache) PutIfCurrent(e *Entry, gen uint64) bool {
	if e == nil || e.Path == "" || c.maxEntries <= 0 {
		return false
	}
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	evicted := c.putLocked(e)
	c.mu.Unlock()
	c.evicted(ReasonCapacity, evicted)
	return true
}

func (c *Cache) putLocked(e *Entry) int {
	if e.StoredAt.IsZero() {
		e.StoredAt = c.now()
	}
	c.removeLocked(e.Path)
	c.entries[e.Path] = e
	c.byAge.Set(ageKey{at: e.StoredAt, path: e.Path})
	for _, t := range e.Tags {
		paths, ok := c.byTag[t]
		if !ok {
			paths = make(map[string]struct{})
			c.byTag[t] = paths
		}
		paths[e.Path] = struct{}{}
	}

	evicted := 0
	for len(c.entries) > c.maxEntries {
		oldest, ok := c.byAge.Min()
		if !ok {
			break
		}
		c.removeLocked(oldest.path)
		evicted++
	}
	return evicted
}

// InvalidatePath drops the entry for path. Missing paths are not an error.
func (c *Cache) InvalidatePath(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.gen++
	_, ok := c.entries[path]
	c.removeLocked(path)
	c.mu.Unlock()
	if ok {
		c.evicted(ReasonInvalidated, 1)
	}
	return nil
}

// InvalidateTag drops every entry carrying tag.
func (c *Cache) InvalidateTag(ctx context.Context, tag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.gen++
	paths := c.byTag[tag]
	n := len(paths)
	for p := range paths {
		c.removeLocked(p)
	}
	c.mu.Unlock()
	c.evicted(ReasonInvalidated, n)
	return nil
}

// Sweep drops every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	if c.ttl <= 0 {
		return 0
	}
	now := c.now()
	c.mu.Lock()
	n := 0
	for {
		oldest, ok := c.byAge.Min()
		if !ok || now.Sub(oldest.at) <= c.ttl {
			break
		}
		c.removeLocked(oldest.path)
		n++
	}
	c.mu.Unlock()
	c.evicted(ReasonExpired, n)
	return n
}

// Run sweeps every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Sweep()
		}
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Paths lists cached paths from oldest to newest.
func (c *Cache) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, c.byAge.Len())
	c.byAge.Scan(func(k ageKey) bool {
		out = append(out, k.path)
		return true
	})
	return out
}

func (c *Cache) expired(e *Entry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.StoredAt) > c.ttl
}

func (c *Cache) removeLocked(path string) {
	e, ok := c.entries[path]
	if !ok {
		return
	}
	delete(c.entries, path)
	c.byAge.Delete(ageKey{at: e.StoredAt, path: path})
	for _, t := range e.Tags {
		if paths, ok := c.byTag[t]; ok {
			delete(paths, path)
			if len(paths) == 0 {
				delete(c.byTag, t)
			}
		}
	}
}

func (c *Cache) evicted(reason string, n int) {
	if n > 0 && c.OnEvict != nil {
		c.OnEvict(reason, n)
	}
}
