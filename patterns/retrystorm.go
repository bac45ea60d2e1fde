package patterns

import "github.com/srelabs/trace-engine/trace"

// RetryStorm is one group-level finding from DetectRetryStorm (spec §4.7.1).
type RetryStorm struct {
	SpanName             string
	RetryCount            int
	TotalDurationMS        float64
	HasExponentialBackoff bool
	Severity              Severity
	Confidence            float64
	Recommendation        string
}

const defaultRetryThreshold = 3

// DetectRetryStorm groups spans by name and flags a group as a retry
// storm if it reaches threshold size on its own, or its name matches a
// retry keyword AND its spans run in a mostly-sequential run of at
// least threshold length (spec §4.7.1). Size alone always qualifies; a
// name match additionally requires the sequential-run condition — this
// is the spec's tightened version of the reference implementation,
// which flagged on `sequential_count >= threshold or is_retry_span`
// without the AND (spec §9 open question, resolved toward the
// tightened behavior here).
func DetectRetryStorm(t trace.Trace, threshold int) []RetryStorm {
	if threshold <= 0 {
		threshold = defaultRetryThreshold
	}

	byName := make(map[string][]trace.Span)
	var order []string
	for _, s := range t.Spans {
		if _, ok := byName[s.Name]; !ok {
			order = append(order, s.Name)
		}
		byName[s.Name] = append(byName[s.Name], s)
	}

	var storms []RetryStorm
	for _, name := range order {
		group := byName[name]
		isRetryName := containsIndicator(name, retryIndicators)

		sorted := append([]trace.Span(nil), group...)
		sortByStart(sorted)

		sequential := 1
		for i := 1; i < len(sorted); i++ {
			_, prevEnd, okPrev := spanStartEnd(sorted[i-1])
			currStart, _, okCurr := spanStartEnd(sorted[i])
			if !okPrev || !okCurr {
				continue
			}
			gapMS := (currStart - prevEnd) * 1000
			if gapMS >= 0 && gapMS < 1000 {
				sequential++
			}
		}

		sizeQualifies := len(group) >= threshold
		nameQualifies := isRetryName && sequential >= threshold
		if !sizeQualifies && !nameQualifies {
			continue
		}

		total := 0.0
		durations := make([]float64, len(sorted))
		for i, s := range sorted {
			d := durationMS(s)
			durations[i] = d
			total += d
		}

		hasBackoff := false
		if len(durations) >= 3 {
			increasing := true
			for i := 0; i < len(durations)-1; i++ {
				if durations[i] > durations[i+1]*1.5 {
					increasing = false
					break
				}
			}
			hasBackoff = increasing
		}

		severity := SeverityMedium
		if len(group) >= 5 {
			severity = SeverityHigh
		}

		metric := float64(len(group))
		if nameQualifies && !sizeQualifies {
			metric = float64(sequential)
		}

		storms = append(storms, RetryStorm{
			SpanName:              name,
			RetryCount:             len(group),
			TotalDurationMS:        total,
			HasExponentialBackoff:  hasBackoff,
			Severity:               severity,
			Confidence:             confidenceFromRatio(metric, float64(threshold)),
			Recommendation:         "Investigate downstream service health. Consider circuit breaker pattern if not implemented.",
		})
	}
	return storms
}

func sortByStart(spans []trace.Span) {
	// insertion sort is fine here: groups are small (per-name spans within
	// a single trace), and stability matters for the insertion-order
	// tie-break the rest of the package relies on.
	for i := 1; i < len(spans); i++ {
		j := i
		for j > 0 {
			si, _, oki := spanStartEnd(spans[j])
			sj, _, okj := spanStartEnd(spans[j-1])
			if !oki || !okj || si >= sj {
				break
			}
			spans[j], spans[j-1] = spans[j-1], spans[j]
			j--
		}
	}
}
