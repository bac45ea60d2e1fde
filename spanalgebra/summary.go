package spanalgebra

import "github.com/srelabs/trace-engine/trace"

// Summary compresses a trace for downstream consumers (spec §4.4.5),
// supplemented with a sample of distinct label keys (SPEC_FULL.md:
// "Supplemented features") mirroring the summarization trimming the
// original Python implementation performs before handing trace content
// to a downstream consumer.
type Summary struct {
	TraceID      string
	TotalSpans   int
	DurationMS   float64
	ErrorCount   int
	Errors       []ErrorRecord
	SlowestSpans []SpanTiming
	LabelKeys    []string
}

const summaryTopN = 5
const labelKeySampleSize = 10

// Summarize builds the Summary for t.
func Summarize(t trace.Trace) Summary {
	errs := Errors(t)
	durations := Durations(t)

	slowest := durations
	if len(slowest) > summaryTopN {
		slowest = slowest[:summaryTopN]
	}
	errSample := errs
	if len(errSample) > summaryTopN {
		errSample = errSample[:summaryTopN]
	}

	seen := make(map[string]struct{})
	var keys []string
	for _, s := range t.Spans {
		for k := range s.Labels {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
			if len(keys) >= labelKeySampleSize {
				break
			}
		}
		if len(keys) >= labelKeySampleSize {
			break
		}
	}

	return Summary{
		TraceID:      t.TraceID,
		TotalSpans:   len(t.Spans),
		DurationMS:   t.DurationMS,
		ErrorCount:   len(errs),
		Errors:       errSample,
		SlowestSpans: slowest,
		LabelKeys:    keys,
	}
}
