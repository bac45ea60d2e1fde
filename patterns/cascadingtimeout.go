package patterns

import "github.com/srelabs/trace-engine/trace"

// TimeoutChain is one detected cascade (spec §4.7.2).
type TimeoutChain struct {
	ChainLength            int
	OriginSpanName         string
	AffectedSpanNames      []string
	TotalTimeoutDurationMS float64
	Confidence             float64
}

// CascadingTimeoutReport is the result of DetectCascadingTimeout.
type CascadingTimeoutReport struct {
	TimeoutSpanCount int
	CascadeDetected  bool
	Chains           []TimeoutChain
	Impact           Impact
	Recommendation   string
}

const defaultTimeoutThresholdMS = 1000

func isTimeoutSpan(s trace.Span) bool {
	if containsIndicator(s.Name, timeoutIndicators) {
		return true
	}
	if containsIndicator(labelsText(s.Labels), timeoutIndicators) {
		return true
	}
	if v, ok := s.Label("error.type"); ok && v == "timeout" {
		return true
	}
	return false
}

// DetectCascadingTimeout finds spans that look like timeouts (by duration
// threshold or keyword/label match) and walks parent pointers to find
// chains of timeouts at least 2 deep, deduplicated so no reported chain
// is a strict subset of another (spec §4.7.2).
func DetectCascadingTimeout(t trace.Trace, thresholdMS float64) CascadingTimeoutReport {
	if thresholdMS <= 0 {
		thresholdMS = defaultTimeoutThresholdMS
	}

	byID := make(map[string]trace.Span, len(t.Spans))
	for _, s := range t.Spans {
		byID[s.SpanID] = s
	}

	var timeoutSpans []trace.Span
	for _, s := range t.Spans {
		if isTimeoutSpan(s) || durationMS(s) >= thresholdMS {
			timeoutSpans = append(timeoutSpans, s)
		}
	}
	sortByStart(timeoutSpans)

	timeoutIDs := make(map[string]bool, len(timeoutSpans))
	for _, s := range timeoutSpans {
		timeoutIDs[s.SpanID] = true
	}

	var chains []TimeoutChain
	if len(timeoutSpans) >= 2 {
		for _, origin := range timeoutSpans {
			chain := []trace.Span{origin}
			currentParent := origin.ParentSpanID
			for currentParent != "" {
				parent, ok := byID[currentParent]
				if !ok {
					break
				}
				if timeoutIDs[parent.SpanID] {
					chain = append(chain, parent)
				}
				currentParent = parent.ParentSpanID
			}
			if len(chain) >= 2 {
				names := make([]string, len(chain))
				total := 0.0
				for i, s := range chain {
					names[i] = s.Name
					total += durationMS(s)
				}
				chains = append(chains, TimeoutChain{
					ChainLength:            len(chain),
					OriginSpanName:         chain[0].Name,
					AffectedSpanNames:      names,
					TotalTimeoutDurationMS: total,
					Confidence:             confidenceFromRatio(float64(len(chain)), 2),
				})
			}
		}
	}

	unique := dedupeChains(chains)

	impact := Impact(ImpactLow)
	recommendation := "No cascading timeout detected."
	if len(unique) > 0 {
		impact = ImpactCritical
		recommendation = "Review timeout configuration. Consider deadline propagation and ensure child timeouts are shorter than parent timeouts."
	}

	return CascadingTimeoutReport{
		TimeoutSpanCount: len(timeoutSpans),
		CascadeDetected:  len(unique) > 0,
		Chains:           unique,
		Impact:           impact,
		Recommendation:   recommendation,
	}
}

// dedupeChains keeps only chains whose affected-span-name set is not a
// subset of an already-kept, longer chain (spec §4.7.2).
func dedupeChains(chains []TimeoutChain) []TimeoutChain {
	sortedChains := append([]TimeoutChain(nil), chains...)
	for i := 1; i < len(sortedChains); i++ {
		j := i
		for j > 0 && sortedChains[j].ChainLength > sortedChains[j-1].ChainLength {
			sortedChains[j], sortedChains[j-1] = sortedChains[j-1], sortedChains[j]
			j--
		}
	}

	var unique []TimeoutChain
	for _, c := range sortedChains {
		set := toSet(c.AffectedSpanNames)
		isSubset := false
		for _, u := range unique {
			if isSubsetOf(set, toSet(u.AffectedSpanNames)) {
				isSubset = true
				break
			}
		}
		if !isSubset {
			unique = append(unique, c)
		}
	}
	return unique
}

func toSet(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, i := range items {
		m[i] = struct{}{}
	}
	return m
}

func isSubsetOf(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
