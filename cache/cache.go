// Package cache implements the bounded, TTL'd, single-flight trace cache
// (spec §4.2, C2). Storage is backed by hashicorp/golang-lru/v2's
// expirable LRU (least-recently-used eviction when over capacity, with
// Get refreshing recency; expired entries read as misses on Get and are
// purged in the background); the single-flight guarantee is provided by
// golang.org/x/sync/singleflight, whose contract ("duplicate calls wait
// for the original to complete") is exactly what spec §4.2 asks for.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/srelabs/trace-engine/internal/log"
	"github.com/srelabs/trace-engine/trace"
)

// defaults from spec §6.
const (
	DefaultTTL        = 60 * time.Second
	DefaultMaxEntries = 10000
)

// Option configures a Cache.
type Option func(*config)

type config struct {
	ttl        time.Duration
	maxEntries int
	logger     log.Logger
}

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option { return func(c *config) { c.ttl = d } }

// WithMaxEntries overrides DefaultMaxEntries.
func WithMaxEntries(n int) Option { return func(c *config) { c.maxEntries = n } }

// WithLogger attaches a logger for eviction/miss diagnostics.
func WithLogger(l log.Logger) Option { return func(c *config) { c.logger = l } }

// Cache is a bounded, TTL'd map from trace id to trace.Trace with a
// single-flight GetOrFetch. Safe for concurrent use (spec §4.2:
// "Thread-safety: safe for concurrent use from the fetch pool and
// orchestrator").
type Cache struct {
	store *lru.LRU[string, trace.Trace]
	flight singleflight.Group
	log    log.Logger
}

// New builds a Cache from options, defaulting TTL/MaxEntries per spec §6.
func New(opts ...Option) *Cache {
	cfg := config{ttl: DefaultTTL, maxEntries: DefaultMaxEntries, logger: log.NoOp()}
	for _, o := range opts {
		o(&cfg)
	}
	return &Cache{
		store: lru.NewLRU[string, trace.Trace](cfg.maxEntries, nil, cfg.ttl),
		log:   cfg.logger,
	}
}

// Get returns the cached trace for id, or (zero, false) on miss or
// expiry (spec §4.2: "entries past ttl are evicted and a miss is
// returned").
func (c *Cache) Get(id string) (trace.Trace, bool) {
	return c.store.Get(id)
}

// Put inserts tr under id, evicting the least-recently-used entry if over
// capacity (handled internally by the expirable LRU).
func (c *Cache) Put(id string, tr trace.Trace) {
	c.store.Add(id, tr)
}

// Loader fetches a trace.Trace for id on a cache miss.
type Loader func(ctx context.Context, id string) (trace.Trace, error)

// GetOrFetch returns the cached trace for id if fresh, otherwise invokes
// loader. Concurrent GetOrFetch calls for the same id invoke loader at
// most once; all callers observe the same result or the same error
// (spec §4.2 single-flight guarantee).
func (c *Cache) GetOrFetch(ctx context.Context, id string, loader Loader) (trace.Trace, error) {
	if tr, ok := c.store.Get(id); ok {
		return tr, nil
	}
	v, err, _ := c.flight.Do(id, func() (any, error) {
		// Re-check: another flight may have populated the cache between
		// our miss above and acquiring the singleflight key.
		if tr, ok := c.store.Get(id); ok {
			return tr, nil
		}
		tr, err := loader(ctx, id)
		if err != nil {
			return trace.Trace{}, err
		}
		c.store.Add(id, tr)
		return tr, nil
	})
	if err != nil {
		c.log.Warn("cache: loader failed for " + id)
		return trace.Trace{}, err
	}
	return v.(trace.Trace), nil
}

// Len returns the number of entries the store holds, which can include
// expired entries not yet purged.
func (c *Cache) Len() int { return c.store.Len() }

// Remove evicts id, if present.
func (c *Cache) Remove(id string) { c.store.Remove(id) }
