package patterns

import "github.com/srelabs/trace-engine/trace"

// NPlusOne is one detected run of repeated same-name spans (spec §4.7.4).
type NPlusOne struct {
	SpanName        string
	Count           int
	TotalDurationMS float64
	Impact          Impact
	Confidence      float64
}

// DetectNPlusOne finds runs of >= 3 consecutive same-name spans (sorted
// by start_unix) whose summed duration exceeds 50ms (spec §4.7.4).
func DetectNPlusOne(target trace.Trace) []NPlusOne {
	sorted := sortedByStart(target)
	var found []NPlusOne

	flush := func(run []trace.Span) {
		if len(run) < 3 {
			return
		}
		total := 0.0
		for _, s := range run {
			total += durationMS(s)
		}
		if total <= 50 {
			return
		}
		impact := ImpactMedium
		if total > 200 {
			impact = ImpactHigh
		}
		found = append(found, NPlusOne{
			SpanName:        run[0].Name,
			Count:           len(run),
			TotalDurationMS: total,
			Impact:          impact,
			Confidence:      confidenceFromRatio(total, 50),
		})
	}

	var run []trace.Span
	for _, s := range sorted {
		if len(run) == 0 || s.Name == run[len(run)-1].Name {
			run = append(run, s)
			continue
		}
		flush(run)
		run = []trace.Span{s}
	}
	flush(run)

	return found
}

// SerialChain is one detected run of sequential non-parent-child spans
// (spec §4.7.5).
type SerialChain struct {
	SpanNames       []string
	Count           int
	TotalDurationMS float64
	Impact          Impact
	Confidence      float64
	Recommendation  string
}

const serialChainGapThresholdMS = 10

// serialChainGapEpsilonMS absorbs floating-point noise in the gap
// computation so a gap of exactly 10ms still counts as "within 10ms".
const serialChainGapEpsilonMS = 1e-3

// DetectSerialChain finds runs of >= 3 spans, not in a parent-child
// relation to their neighbor, where each subsequent span starts within
// 10ms of the previous span's end (spec §4.7.5). Shares sortedByStart's
// sort order with DetectNPlusOne per spec §9's resolved open question,
// but is otherwise computed independently.
func DetectSerialChain(target trace.Trace) []SerialChain {
	sorted := sortedByStart(target)
	var chains []SerialChain

	flush := func(chain []trace.Span) {
		if len(chain) < 3 {
			return
		}
		total := 0.0
		names := make([]string, len(chain))
		for i, s := range chain {
			total += durationMS(s)
			names[i] = s.Name
		}
		if total <= 100 {
			return
		}
		impact := ImpactMedium
		if total > 500 {
			impact = ImpactHigh
		}
		chains = append(chains, SerialChain{
			SpanNames:       names,
			Count:           len(chain),
			TotalDurationMS: total,
			Impact:          impact,
			Confidence:      confidenceFromRatio(total, 100),
			Recommendation:  "Consider parallelizing these operations using async/await or concurrent execution.",
		})
	}

	var chain []trace.Span
	for i := 0; i < len(sorted)-1; i++ {
		cur, next := sorted[i], sorted[i+1]
		_, currEnd, okCur := spanStartEnd(cur)
		nextStart, _, okNext := spanStartEnd(next)
		if !okCur || !okNext {
			continue
		}

		isParentChild := cur.SpanID == next.ParentSpanID || next.SpanID == cur.ParentSpanID
		if isParentChild {
			flush(chain)
			chain = nil
			continue
		}

		gapMS := (nextStart - currEnd) * 1000
		if gapMS >= 0 && gapMS <= serialChainGapThresholdMS+serialChainGapEpsilonMS {
			if len(chain) == 0 {
				chain = append(chain, cur)
			}
			chain = append(chain, next)
		} else {
			flush(chain)
			chain = nil
		}
	}
	flush(chain)

	return chains
}
