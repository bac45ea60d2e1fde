// Package spanalgebra implements the pure, deterministic functions over
// a trace.Trace (spec §4.4, C4): durations, error classification, call
// graph construction, quality validation, and summarization. Nothing in
// this package performs I/O.
package spanalgebra

import (
	"sort"

	"github.com/srelabs/trace-engine/trace"
)

// SpanTiming is one entry of Durations' output (spec §4.4.1).
type SpanTiming struct {
	SpanID     string
	Name       string
	DurationMS *float64 // nil when undefined
}

// Durations computes duration_ms for every span (unix fields first, then
// ISO), sorted descending by duration; ties keep insertion order. Spans
// with undefined duration sort last with DurationMS == nil (spec
// §4.4.1).
func Durations(t trace.Trace) []SpanTiming {
	out := make([]SpanTiming, len(t.Spans))
	for i, s := range t.Spans {
		st := SpanTiming{SpanID: s.SpanID, Name: s.Name}
		if ms, ok := s.DurationMS(); ok {
			v := ms
			st.DurationMS = &v
		}
		out[i] = st
	}
	// sort.SliceStable preserves insertion-order tie-breaking (spec
	// §4.4.1) and keeps nil-duration entries, which always compare as
	// "not less than" anything, at the tail.
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].DurationMS, out[j].DurationMS
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return *a > *b
	})
	return out
}
