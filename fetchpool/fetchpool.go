// Package fetchpool implements the bounded-concurrency parallel fan-out
// fetch (spec §4.3, C3). Scheduling uses golang.org/x/sync/errgroup
// paired with golang.org/x/sync/semaphore to bound max_in_flight, and an
// eapache/queue/v2 queue to hold ids waiting for a free slot — the spec
// calls this out explicitly ("up to max_in_flight loaders run
// concurrently; the remainder queue").
package fetchpool

import (
	"context"
	"sync"

	"github.com/eapache/queue/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/srelabs/trace-engine/internal/log"
	"github.com/srelabs/trace-engine/trace"
)

// DefaultMaxInFlight is spec §4.3's default concurrency bound.
const DefaultMaxInFlight = 10

// Option configures a Pool.
type Option func(*config)

type config struct {
	maxInFlight int
	logger      log.Logger
}

// WithMaxInFlight overrides DefaultMaxInFlight.
func WithMaxInFlight(n int) Option { return func(c *config) { c.maxInFlight = n } }

// WithLogger attaches a logger for per-loader failure diagnostics.
func WithLogger(l log.Logger) Option { return func(c *config) { c.logger = l } }

// Pool runs bounded-concurrency fan-out fetches.
type Pool struct {
	maxInFlight int
	log         log.Logger
}

// New builds a Pool from options.
func New(opts ...Option) *Pool {
	cfg := config{maxInFlight: DefaultMaxInFlight, logger: log.NoOp()}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.maxInFlight < 1 {
		cfg.maxInFlight = 1
	}
	return &Pool{maxInFlight: cfg.maxInFlight, log: cfg.logger}
}

// Loader fetches a trace for a single id.
type Loader func(ctx context.Context, id string) (trace.Trace, error)

// Result is the outcome of a fan-out fetch (spec §4.3: "produces a
// mapping id→Trace for every id that succeeds; failed fetches are
// silently omitted from the output but surfaced via a side channel
// count").
type Result struct {
	Traces    map[string]trace.Trace
	Requested int
	Fetched   int
	Failed    int
}

// Fetch runs loader for every id in ids, at most p.maxInFlight
// concurrently. Per-loader failures do not cancel peers (spec §4.3); if
// ctx is cancelled, no new loaders start but in-flight ones are allowed
// to finish (errgroup's own semantics: a cancelled context only prevents
// new work the caller gates on it, which is exactly the semaphore
// acquire below).
func (p *Pool) Fetch(ctx context.Context, ids []string, loader Loader) Result {
	res := Result{Traces: make(map[string]trace.Trace), Requested: len(ids)}
	if len(ids) == 0 {
		return res
	}

	pending := queue.New[string]()
	for _, id := range ids {
		pending.Add(id)
	}

	sem := semaphore.NewWeighted(int64(p.maxInFlight))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	// errgroup.WithContext cancels gctx on the first error; we don't
	// want a per-loader failure to stop peers, so loaders report their
	// failure through res rather than returning an error to the group,
	// and we use ctx (not gctx) as the cancellation signal for new work.

	for pending.Length() > 0 {
		if ctx.Err() != nil {
			mu.Lock()
			res.Failed += pending.Length()
			mu.Unlock()
			break
		}
		id := pending.Peek()
		pending.Remove()
		if err := sem.Acquire(ctx, 1); err != nil {
			// ctx was cancelled while waiting for a slot.
			mu.Lock()
			res.Failed += pending.Length() + 1
			mu.Unlock()
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			tr, err := loader(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				p.log.Warn("fetchpool: fetch failed for " + id)
				return nil
			}
			res.Traces[id] = tr
			res.Fetched++
			return nil
		})
	}
	_ = g.Wait()
	return res
}
