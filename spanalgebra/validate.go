package spanalgebra

import "github.com/srelabs/trace-engine/trace"

// IssueType enumerates the quality defects Validate can report (spec
// §4.4.4).
type IssueType string

const (
	IssueMissingSpanID    IssueType = "missing_span_id"
	IssueOrphanedSpan     IssueType = "orphaned_span"
	IssueNegativeDuration IssueType = "negative_duration"
	IssueClockSkew        IssueType = "clock_skew"
	IssueTimestampParse   IssueType = "timestamp_parse_failure"
	IssueCycle            IssueType = "cycle"
)

// Issue is one quality defect found by Validate.
type Issue struct {
	Type    IssueType
	SpanID  string // empty when not span-scoped
	Message string
}

// QualityReport is the result of Validate (spec §4.4.4).
type QualityReport struct {
	Valid  bool
	Issues []Issue
}

// Validate checks t for the defects spec §4.4.4 enumerates.
func Validate(t trace.Trace) QualityReport {
	var issues []Issue

	byID := make(map[string]trace.Span, len(t.Spans))
	for _, s := range t.Spans {
		if s.SpanID == "" {
			issues = append(issues, Issue{Type: IssueMissingSpanID, Message: "span has empty span_id"})
			continue
		}
		byID[s.SpanID] = s
	}

	for _, s := range t.Spans {
		if s.SpanID == "" {
			continue
		}
		if s.ParentSpanID != "" {
			if _, ok := byID[s.ParentSpanID]; !ok {
				issues = append(issues, Issue{Type: IssueOrphanedSpan, SpanID: s.SpanID,
					Message: "parent_span_id " + s.ParentSpanID + " not present in trace"})
			}
		}

		ms, ok := s.DurationMS()
		if !ok {
			issues = append(issues, Issue{Type: IssueTimestampParse, SpanID: s.SpanID,
				Message: "could not derive duration from unix or ISO timestamps"})
		} else if rawIsNegative(s) && ms == 0 {
			// DurationMS() clamps negative durations to 0; detect the
			// pre-clamp sign here so the defect is still reported (spec
			// §4.4.4: "negative durations").
			issues = append(issues, Issue{Type: IssueNegativeDuration, SpanID: s.SpanID,
				Message: "end before start"})
		}

		if parent, ok := byID[s.ParentSpanID]; s.ParentSpanID != "" && ok {
			if skew, msg := clockSkew(parent, s); skew {
				issues = append(issues, Issue{Type: IssueClockSkew, SpanID: s.SpanID, Message: msg})
			}
		}
	}

	cg := BuildCallGraph(t)
	if cg.Cyclic {
		issues = append(issues, Issue{Type: IssueCycle, Message: "cycle detected among parent pointers"})
	}

	return QualityReport{Valid: len(issues) == 0, Issues: issues}
}

func rawIsNegative(s trace.Span) bool {
	if !s.HasUnix() {
		return false
	}
	return s.EndUnix < s.StartUnix
}

// clockSkew implements spec §4.4.4's "child start < parent start OR
// child end > parent end (tolerance 0)", using unix timestamps only —
// ISO-only spans can't be compared without first resolving to a
// comparable timeline, so they are skipped here (already flagged by
// IssueTimestampParse if unparseable).
func clockSkew(parent, child trace.Span) (bool, string) {
	if !parent.HasUnix() || !child.HasUnix() {
		return false, ""
	}
	if child.StartUnix < parent.StartUnix {
		return true, "child starts before parent"
	}
	if child.EndUnix > parent.EndUnix {
		return true, "child ends after parent"
	}
	return false, ""
}
