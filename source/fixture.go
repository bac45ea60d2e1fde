package source

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/srelabs/trace-engine/trace"
)

// Fixture is an in-memory TraceSource for tests and local experimentation
// (spec §4.1: "in-memory test fixture" variant). It is safe for
// concurrent use.
type Fixture struct {
	mu     sync.RWMutex
	traces map[string]trace.Trace
	// FailNotFound, when set, is returned verbatim as the error for ids
	// not present in the fixture; otherwise a FailureNotFound Error is
	// synthesized.
	FailNotFound error
}

// NewFixture builds an empty Fixture.
func NewFixture() *Fixture {
	return &Fixture{traces: make(map[string]trace.Trace)}
}

// Put registers tr under its TraceID, minting one via uuid if empty.
func (f *Fixture) Put(tr trace.Trace) trace.Trace {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tr.TraceID == "" {
		tr.TraceID = uuid.NewString()
	}
	f.traces[tr.TraceID] = tr
	return tr
}

// FetchOne implements TraceSource.
func (f *Fixture) FetchOne(ctx context.Context, project, traceID string, _ Credentials) (trace.Trace, error) {
	if err := ctx.Err(); err != nil {
		return trace.Trace{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	tr, ok := f.traces[traceID]
	if !ok && f.FailNotFound != nil {
		return trace.Trace{}, f.FailNotFound
	}
	if !ok || (project != "" && tr.Project != "" && tr.Project != project) {
		return trace.Trace{}, &Error{Failure: FailureNotFound, TraceID: traceID}
	}
	return tr, nil
}

// ListIDs implements TraceSource. filter is ignored: every stored id
// whose trace belongs to project (all ids when project is empty) is
// returned, sorted and cut to limit.
func (f *Fixture) ListIDs(ctx context.Context, project string, _ Filter, limit int, _ Credentials) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.traces))
	for id, tr := range f.traces {
		if project != "" && tr.Project != project {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
