package fetchpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srelabs/trace-engine/trace"
)

func TestFetchAllSucceed(t *testing.T) {
	p := New(WithMaxInFlight(4))
	ids := []string{"a", "b", "c", "d", "e"}
	res := p.Fetch(context.Background(), ids, func(ctx context.Context, id string) (trace.Trace, error) {
		return trace.New(id, "p", 1, nil), nil
	})
	assert.Equal(t, 5, res.Requested)
	assert.Equal(t, 5, res.Fetched)
	assert.Equal(t, 0, res.Failed)
	assert.Len(t, res.Traces, 5)
}

func TestFetchPerLoaderFailureIsolated(t *testing.T) {
	p := New()
	ids := []string{"ok1", "bad", "ok2"}
	res := p.Fetch(context.Background(), ids, func(ctx context.Context, id string) (trace.Trace, error) {
		if id == "bad" {
			return trace.Trace{}, errors.New("boom")
		}
		return trace.New(id, "p", 1, nil), nil
	})
	assert.Equal(t, 3, res.Requested)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 1, res.Failed)
	_, hasBad := res.Traces["bad"]
	assert.False(t, hasBad)
}

func TestFetchRespectsMaxInFlight(t *testing.T) {
	p := New(WithMaxInFlight(2))
	var current, max int32
	ids := []string{"a", "b", "c", "d", "e", "f"}
	res := p.Fetch(context.Background(), ids, func(ctx context.Context, id string) (trace.Trace, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&max)
			if n <= m || atomic.CompareAndSwapInt32(&max, m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return trace.New(id, "p", 1, nil), nil
	})
	assert.Equal(t, 6, res.Fetched)
	assert.LessOrEqual(t, int(max), 2)
}

func TestFetchEmptyIDs(t *testing.T) {
	p := New()
	res := p.Fetch(context.Background(), nil, func(ctx context.Context, id string) (trace.Trace, error) {
		t.Fatal("loader should not be called")
		return trace.Trace{}, nil
	})
	assert.Equal(t, 0, res.Requested)
	assert.Equal(t, 0, res.Fetched)
}

func TestFetchCancellationStopsNewLoaders(t *testing.T) {
	p := New(WithMaxInFlight(1))
	ctx, cancel := context.WithCancel(context.Background())
	ids := []string{"a", "b", "c"}
	var started int32
	res := p.Fetch(ctx, ids, func(ctx context.Context, id string) (trace.Trace, error) {
		atomic.AddInt32(&started, 1)
		cancel()
		return trace.New(id, "p", 1, nil), nil
	})
	require.Less(t, int(atomic.LoadInt32(&started)), 3)
	assert.Equal(t, 3, res.Requested)
	assert.Equal(t, res.Fetched+res.Failed, res.Requested)
}
