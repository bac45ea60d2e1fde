package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srelabs/trace-engine/trace"
)

func TestFixtureFetchAndList(t *testing.T) {
	f := NewFixture()
	tr := f.Put(trace.New("t1", "proj-a", 0, []trace.Span{
		trace.NewSpan("s1", "", "op", 0, 0.1, nil),
	}))
	assert.Equal(t, "t1", tr.TraceID)

	got, err := f.FetchOne(context.Background(), "proj-a", "t1", Credentials{})
	require.NoError(t, err)
	assert.Equal(t, tr.TraceID, got.TraceID)

	ids, err := f.ListIDs(context.Background(), "proj-a", "", 10, Credentials{})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, ids)
}

func TestFixtureNotFound(t *testing.T) {
	f := NewFixture()
	_, err := f.FetchOne(context.Background(), "", "missing", Credentials{})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestFixtureMintsIDWhenEmpty(t *testing.T) {
	f := NewFixture()
	tr := f.Put(trace.Trace{Project: "p"})
	assert.NotEmpty(t, tr.TraceID)
}

func TestFixtureRespectsCancelledContext(t *testing.T) {
	f := NewFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.FetchOne(ctx, "", "anything", Credentials{})
	assert.Error(t, err)
}

func TestFileSourceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	start, end := 0.0, 0.05
	require.NoError(t, writeFixtureFile(dir, "abc123", fileTrace{
		Project: "proj-a",
		Spans: []fileSpan{
			{SpanID: "s1", Name: "op", StartUnix: &start, EndUnix: &end, Labels: map[string]string{"k": "v"}},
		},
	}))
	fs := NewFileSource(dir)
	tr, err := fs.FetchOne(context.Background(), "proj-a", "abc123", Credentials{})
	require.NoError(t, err)
	require.Len(t, tr.Spans, 1)
	assert.True(t, tr.Spans[0].HasUnix())
	ms, ok := tr.Spans[0].DurationMS()
	require.True(t, ok)
	assert.InDelta(t, 50.0, ms, 1e-6)

	ids, err := fs.ListIDs(context.Background(), "proj-a", "", 0, Credentials{})
	require.NoError(t, err)
	assert.Equal(t, []string{"abc123"}, ids)
}

func TestFileSourceNotFound(t *testing.T) {
	fs := NewFileSource(t.TempDir())
	_, err := fs.FetchOne(context.Background(), "", "nope", Credentials{})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestFileSourceMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))
	fs := NewFileSource(dir)
	_, err := fs.FetchOne(context.Background(), "", "bad", Credentials{})
	require.Error(t, err)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, FailureMalformed, se.Failure)
}

func TestFilterBuilderDeterministicOutput(t *testing.T) {
	f := NewFilterBuilder().ServiceName("checkout").Error(true).HTTPStatusCode(500).Latency("500ms").Build()
	assert.Equal(t, Filter("/http/status_code:500 error:true latency:500ms service.name:checkout"), f)
}
