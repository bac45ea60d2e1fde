package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanDurationMSUnixFirst(t *testing.T) {
	s := NewSpan("s1", "", "op", 100.0, 100.25, nil)
	ms, ok := s.DurationMS()
	require.True(t, ok)
	assert.InDelta(t, 250.0, ms, 1e-6)
}

func TestSpanDurationMSClampsNegative(t *testing.T) {
	s := NewSpan("s1", "", "op", 100.5, 100.0, nil)
	ms, ok := s.DurationMS()
	require.True(t, ok)
	assert.Equal(t, 0.0, ms)
}

func TestSpanDurationMSFallsBackToISO(t *testing.T) {
	s := NewSpanFromISO("s1", "", "op", "2024-01-01T00:00:00Z", "2024-01-01T00:00:01Z", nil)
	ms, ok := s.DurationMS()
	require.True(t, ok)
	assert.InDelta(t, 1000.0, ms, 1e-6)
}

func TestSpanDurationMSUndefined(t *testing.T) {
	s := NewSpanFromISO("s1", "", "op", "not-a-date", "", nil)
	_, ok := s.DurationMS()
	assert.False(t, ok)
}

func TestNewDerivesDurationFromSpans(t *testing.T) {
	spans := []Span{
		NewSpan("root", "", "root", 0, 0.1, nil),
		NewSpan("child", "root", "child", 0.01, 0.095, nil),
	}
	tr := New("t1", "proj", 0, spans)
	assert.InDelta(t, 100.0, tr.DurationMS, 1e-6)
	assert.True(t, tr.DurationConsistent())
}

func TestNewEmptyTraceIsConsistent(t *testing.T) {
	tr := New("t1", "proj", 0, nil)
	assert.Equal(t, 0.0, tr.DurationMS)
	assert.True(t, tr.DurationConsistent())
}

func TestDurationConsistentDetectsDrift(t *testing.T) {
	spans := []Span{NewSpan("root", "", "root", 0, 0.1, nil)}
	tr := Trace{TraceID: "t1", DurationMS: 500, Spans: spans}
	assert.False(t, tr.DurationConsistent())
}

func TestSpanLabelLookup(t *testing.T) {
	s := NewSpan("s1", "", "op", 0, 1, map[string]string{"http.status_code": "200"})
	v, ok := s.Label("http.status_code")
	require.True(t, ok)
	assert.Equal(t, "200", v)
	_, ok = s.Label("missing")
	assert.False(t, ok)
}
