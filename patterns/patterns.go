// Package patterns implements the pattern detector (spec §4.7, C7): five
// pure, rule-driven anti-pattern detectors ported from the Python
// reference's keyword/threshold heuristics
// (original_source/sre_agent/tools/analysis/trace/patterns.py and
// comparison.py) into idiomatic Go.
package patterns

import (
	"sort"
	"strings"

	"github.com/srelabs/trace-engine/trace"
)

var retryIndicators = []string{"retry", "attempt", "backoff", "reconnect"}
var timeoutIndicators = []string{"timeout", "deadline", "exceeded", "timed out", "context deadline"}
var connectionIndicators = []string{"connection", "pool", "acquire", "checkout", "wait"}

func containsIndicator(text string, indicators []string) bool {
	lower := strings.ToLower(text)
	for _, ind := range indicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

func labelsText(labels map[string]string) string {
	var b strings.Builder
	for k, v := range labels {
		b.WriteString(k)
		b.WriteString(":")
		b.WriteString(v)
		b.WriteString(" ")
	}
	return b.String()
}

// Severity/Impact levels shared across detectors.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

type Impact string

const (
	ImpactCritical Impact = "critical"
	ImpactHigh     Impact = "high"
	ImpactMedium   Impact = "medium"
	ImpactLow      Impact = "low"
)

func spanStartEnd(s trace.Span) (start, end float64, ok bool) {
	if s.HasUnix() {
		return s.StartUnix, s.EndUnix, true
	}
	return 0, 0, false
}

// confidenceFromRatio derives a [0,1) confidence score from how far a
// triggering metric sits past its threshold (SPEC_FULL.md "Supplemented
// features": a retry-storm group of 8 against a threshold of 3 scores
// higher than one of 3). 0 at the threshold itself, approaching 1 as the
// metric grows without bound.
func confidenceFromRatio(value, threshold float64) float64 {
	if threshold <= 0 {
		return 1
	}
	if value <= threshold {
		return 0
	}
	c := 1 - threshold/value
	if c > 1 {
		c = 1
	}
	return c
}

func durationMS(s trace.Span) float64 {
	ms, ok := s.DurationMS()
	if !ok {
		return 0
	}
	return ms
}

// sortedByStart returns t.Spans sorted by start_unix, spans lacking a
// resolvable start sorted last (stable, preserving original relative
// order among ties) — the shared sort order spec §9's open question on
// 4.7.4/4.7.5 resolves to.
func sortedByStart(t trace.Trace) []trace.Span {
	spans := append([]trace.Span(nil), t.Spans...)
	sort.SliceStable(spans, func(i, j int) bool {
		si, _, oki := spanStartEnd(spans[i])
		sj, _, okj := spanStartEnd(spans[j])
		if !oki && !okj {
			return false
		}
		if !oki {
			return false
		}
		if !okj {
			return true
		}
		return si < sj
	})
	return spans
}
