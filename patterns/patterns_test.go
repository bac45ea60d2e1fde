package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srelabs/trace-engine/trace"
)

func TestDetectRetryStormBySizeThreshold(t *testing.T) {
	tr := trace.New("t1", "p", 0, []trace.Span{
		trace.NewSpan("s1", "", "call", 0, 0.01, nil),
		trace.NewSpan("s2", "", "call", 0.02, 0.03, nil),
		trace.NewSpan("s3", "", "call", 0.04, 0.05, nil),
	})
	got := DetectRetryStorm(tr, 3)
	require.Len(t, got, 1)
	assert.Equal(t, "call", got[0].SpanName)
	assert.Equal(t, SeverityMedium, got[0].Severity)
}

func TestDetectRetryStormSeverityHighAtFive(t *testing.T) {
	var spans []trace.Span
	for i := 0; i < 5; i++ {
		start := float64(i) * 0.02
		spans = append(spans, trace.NewSpan("s", "", "retry-call", start, start+0.01, nil))
	}
	tr := trace.New("t1", "p", 0, spans)
	got := DetectRetryStorm(tr, 3)
	require.Len(t, got, 1)
	assert.Equal(t, SeverityHigh, got[0].Severity)
}

func TestDetectRetryStormNameMatchBelowSizeAndNotSequentialNotFlagged(t *testing.T) {
	tr := trace.New("t1", "p", 0, []trace.Span{
		trace.NewSpan("s1", "", "retry-call", 0, 0.01, nil),
		trace.NewSpan("s2", "", "retry-call", 5, 5.01, nil),
	})
	got := DetectRetryStorm(tr, 3)
	assert.Empty(t, got)
}

func TestDetectRetryStormSizeOnlyFlaggedWithoutRetryNameOrSequentialRun(t *testing.T) {
	var spans []trace.Span
	for i := 0; i < 5; i++ {
		start := float64(i) * 10
		spans = append(spans, trace.NewSpan("s", "", "DatabaseQuery", start, start+0.01, nil))
	}
	tr := trace.New("t1", "p", 0, spans)
	got := DetectRetryStorm(tr, 3)
	require.Len(t, got, 1)
	assert.Equal(t, "DatabaseQuery", got[0].SpanName)
}

func TestDetectCascadingTimeoutScenarioS2(t *testing.T) {
	labels := map[string]string{"error.type": "timeout"}
	tr := trace.New("t1", "p", 0, []trace.Span{
		trace.NewSpan("a", "", "outer", 0, 1.2, labels),
		trace.NewSpan("b", "a", "middle", 0, 1.1, labels),
		trace.NewSpan("c", "b", "inner", 0, 1.05, labels),
	})
	r := DetectCascadingTimeout(tr, 1000)
	assert.True(t, r.CascadeDetected)
	require.Len(t, r.Chains, 1)
	assert.Equal(t, 3, r.Chains[0].ChainLength)
	assert.Equal(t, ImpactCritical, r.Impact)
}

func TestDetectCascadingTimeoutByDurationOnly(t *testing.T) {
	tr := trace.New("t1", "p", 0, []trace.Span{
		trace.NewSpan("a", "", "outer", 0, 1.5, nil),
		trace.NewSpan("b", "a", "inner", 0, 1.3, nil),
	})
	r := DetectCascadingTimeout(tr, 1000)
	assert.True(t, r.CascadeDetected)
}

func TestDetectCascadingTimeoutNone(t *testing.T) {
	tr := trace.New("t1", "p", 0, []trace.Span{
		trace.NewSpan("a", "", "outer", 0, 0.01, nil),
	})
	r := DetectCascadingTimeout(tr, 1000)
	assert.False(t, r.CascadeDetected)
	assert.Equal(t, ImpactLow, r.Impact)
}

func TestDetectConnectionPoolExhaustion(t *testing.T) {
	tr := trace.New("t1", "p", 0, []trace.Span{
		trace.NewSpan("a", "", "connection.acquire", 0, 0.6, nil), // 600ms, 6x threshold
	})
	r := DetectConnectionPoolExhaustion(tr, 100)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, SeverityHigh, r.Issues[0].Severity)
	assert.True(t, r.HasPoolExhaustion)
}

func TestDetectConnectionPoolBelowThresholdNotFlagged(t *testing.T) {
	tr := trace.New("t1", "p", 0, []trace.Span{
		trace.NewSpan("a", "", "pool.checkout", 0, 0.05, nil),
	})
	r := DetectConnectionPoolExhaustion(tr, 100)
	assert.Empty(t, r.Issues)
}

func TestDetectNPlusOneScenarioS1(t *testing.T) {
	var spans []trace.Span
	for i := 0; i < 5; i++ {
		start := float64(i) * 0.05
		spans = append(spans, trace.NewSpan("s", "", "DatabaseQuery", start, start+0.03, nil))
	}
	tr := trace.New("t1", "p", 0, spans)
	got := DetectNPlusOne(tr)
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].Count)
	assert.InDelta(t, 150.0, got[0].TotalDurationMS, 1e-6)
	assert.Equal(t, ImpactMedium, got[0].Impact) // 150 <= 200 -> medium, the exact boundary S1 calls out
}

func TestDetectNPlusOneBelowRunLengthNotFlagged(t *testing.T) {
	tr := trace.New("t1", "p", 0, []trace.Span{
		trace.NewSpan("s1", "", "q", 0, 0.03, nil),
		trace.NewSpan("s2", "", "q", 0.05, 0.08, nil),
	})
	got := DetectNPlusOne(tr)
	assert.Empty(t, got)
}

func TestDetectSerialChainParallelizationCandidate(t *testing.T) {
	var spans []trace.Span
	for i := 0; i < 4; i++ {
		start := float64(i) * 0.06
		spans = append(spans, trace.NewSpan("s", "", "op", start, start+0.05, nil))
	}
	tr := trace.New("t1", "p", 0, spans)
	got := DetectSerialChain(tr)
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].Count)
}

func TestDetectSerialChainBrokenByParentChild(t *testing.T) {
	tr := trace.New("t1", "p", 0, []trace.Span{
		trace.NewSpan("a", "", "op1", 0, 0.05, nil),
		trace.NewSpan("b", "a", "op2", 0.051, 0.1, nil), // parent-child: not a serial chain link
		trace.NewSpan("c", "", "op3", 0.101, 0.15, nil),
	})
	got := DetectSerialChain(tr)
	assert.Empty(t, got)
}
