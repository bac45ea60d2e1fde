// Package trace defines the immutable Trace/Span value types the rest of
// the engine operates on, and the timestamp/duration derivation rules
// every other package relies on.
package trace

import "time"

// durationEpsilonMS is the tolerance used when comparing derived
// durations for equality (spec §9: "use an epsilon of 1e-3 ms").
const durationEpsilonMS = 1e-3

// Trace is an immutable normalized trace record. Once constructed via
// New, a Trace's fields must not be mutated by callers; components that
// need per-call derived data (durations, call graphs, ...) compute fresh
// values rather than writing back into the Trace.
type Trace struct {
	TraceID    string
	Project    string
	DurationMS float64
	Spans      []Span
}

// Span is one timed operation within a Trace. StartUnix/EndUnix are the
// canonical representation; StartISO/EndISO are retained only as a
// fallback parse source for inputs that omit the unix fields.
type Span struct {
	SpanID       string
	ParentSpanID string
	Name         string

	StartUnix float64
	EndUnix   float64
	hasUnix   bool

	StartISO string
	EndISO   string

	Labels map[string]string
}

// NewSpan builds a Span from unix timestamps, the canonical
// representation. hasUnix is recorded so DurationMS can tell "0 but
// present" apart from "absent, fall back to ISO".
func NewSpan(spanID, parentSpanID, name string, startUnix, endUnix float64, labels map[string]string) Span {
	if labels == nil {
		labels = map[string]string{}
	}
	return Span{
		SpanID:       spanID,
		ParentSpanID: parentSpanID,
		Name:         name,
		StartUnix:    startUnix,
		EndUnix:      endUnix,
		hasUnix:      true,
		Labels:       labels,
	}
}

// NewSpanFromISO builds a Span that only carries ISO-8601 timestamps;
// DurationMS falls back to parsing them.
func NewSpanFromISO(spanID, parentSpanID, name, startISO, endISO string, labels map[string]string) Span {
	if labels == nil {
		labels = map[string]string{}
	}
	return Span{
		SpanID:       spanID,
		ParentSpanID: parentSpanID,
		Name:         name,
		StartISO:     startISO,
		EndISO:       endISO,
		Labels:       labels,
	}
}

// HasUnix reports whether this span carries canonical unix timestamps.
func (s Span) HasUnix() bool { return s.hasUnix }

// Label returns the value for key and whether it was present.
func (s Span) Label(key string) (string, bool) {
	v, ok := s.Labels[key]
	return v, ok
}

// DurationMS returns (end-start)*1000 clamped to >= 0 using unix fields
// first, then ISO fallback. ok is false when neither representation
// parses, per spec §3.2 ("otherwise undefined").
func (s Span) DurationMS() (ms float64, ok bool) {
	if s.hasUnix {
		d := (s.EndUnix - s.StartUnix) * 1000
		if d < 0 {
			d = 0
		}
		return d, true
	}
	start, okS := parseISO(s.StartISO)
	end, okE := parseISO(s.EndISO)
	if !okS || !okE {
		return 0, false
	}
	d := end.Sub(start).Seconds() * 1000
	if d < 0 {
		d = 0
	}
	return d, true
}

// startEnd returns unix seconds for the span's start/end, preferring the
// canonical fields and falling back to ISO parsing. ok is false if
// neither is available.
func (s Span) startEnd() (start, end float64, ok bool) {
	if s.hasUnix {
		return s.StartUnix, s.EndUnix, true
	}
	st, okS := parseISO(s.StartISO)
	en, okE := parseISO(s.EndISO)
	if !okS || !okE {
		return 0, 0, false
	}
	return float64(st.UnixNano()) / 1e9, float64(en.UnixNano()) / 1e9, true
}

func parseISO(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// New builds a Trace, deriving DurationMS from the span bounds when the
// caller passes 0 and spans are present (spec §3.1 invariant).
func New(traceID, project string, durationMS float64, spans []Span) Trace {
	if durationMS == 0 && len(spans) > 0 {
		if d, ok := spanDuration(spans); ok {
			durationMS = d
		}
	}
	return Trace{TraceID: traceID, Project: project, DurationMS: durationMS, Spans: spans}
}

// spanDuration computes (max end - min start) * 1000 over all spans that
// have resolvable bounds.
func spanDuration(spans []Span) (float64, bool) {
	var minStart, maxEnd float64
	found := false
	for _, s := range spans {
		start, end, ok := s.startEnd()
		if !ok {
			continue
		}
		if !found {
			minStart, maxEnd = start, end
			found = true
			continue
		}
		if start < minStart {
			minStart = start
		}
		if end > maxEnd {
			maxEnd = end
		}
	}
	if !found {
		return 0, false
	}
	return (maxEnd - minStart) * 1000, true
}

// DurationConsistent reports whether t.DurationMS matches the span-bounds
// derivation within the epsilon spec §9 specifies. Neither Validate nor
// New checks it (callers may legitimately pass a pre-measured
// duration alongside ISO-only spans that New cannot re-derive).
func (t Trace) DurationConsistent() bool {
	if len(t.Spans) == 0 {
		return true
	}
	d, ok := spanDuration(t.Spans)
	if !ok {
		return true
	}
	diff := d - t.DurationMS
	if diff < 0 {
		diff = -diff
	}
	return diff <= durationEpsilonMS
}
