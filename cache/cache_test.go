package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srelabs/trace-engine/trace"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := New()
	tr := trace.New("t1", "p", 10, nil)
	c.Put("t1", tr)
	got, ok := c.Get("t1")
	require.True(t, ok)
	assert.Equal(t, tr.TraceID, got.TraceID)
}

func TestGetMissOnUnknown(t *testing.T) {
	c := New()
	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	c := New(WithTTL(10 * time.Millisecond))
	c.Put("t1", trace.New("t1", "p", 1, nil))
	time.Sleep(40 * time.Millisecond)
	_, ok := c.Get("t1")
	assert.False(t, ok)
}

func TestMaxEntriesEvictsOldest(t *testing.T) {
	c := New(WithMaxEntries(2))
	c.Put("a", trace.New("a", "p", 1, nil))
	c.Put("b", trace.New("b", "p", 1, nil))
	c.Put("c", trace.New("c", "p", 1, nil))
	assert.LessOrEqual(t, c.Len(), 2)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestGetOrFetchSingleFlight(t *testing.T) {
	c := New()
	var calls int32
	loader := func(ctx context.Context, id string) (trace.Trace, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(100 * time.Millisecond)
		return trace.New(id, "p", 1, nil), nil
	}

	var wg sync.WaitGroup
	results := make([]trace.Trace, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr, err := c.GetOrFetch(context.Background(), "X", loader)
			require.NoError(t, err)
			results[i] = tr
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, results[0].TraceID, results[1].TraceID)
	assert.Equal(t, 1, c.Len())

	// A third call after completion observes the cache, not the loader.
	tr, err := c.GetOrFetch(context.Background(), "X", loader)
	require.NoError(t, err)
	assert.Equal(t, "X", tr.TraceID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrFetchPropagatesLoaderError(t *testing.T) {
	c := New()
	wantErr := assert.AnError
	_, err := c.GetOrFetch(context.Background(), "X", func(ctx context.Context, id string) (trace.Trace, error) {
		return trace.Trace{}, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 0, c.Len())
}

func TestRemove(t *testing.T) {
	c := New()
	c.Put("t1", trace.New("t1", "p", 1, nil))
	c.Remove("t1")
	_, ok := c.Get("t1")
	assert.False(t, ok)
}
