// Package stats implements the statistics engine (spec §4.5, C5):
// population latency statistics and Z-score anomaly detection, backed by
// github.com/montanaflynn/stats for the underlying percentile/mean/
// variance computation.
package stats

import (
	"sort"

	mfstats "github.com/montanaflynn/stats"

	"github.com/srelabs/trace-engine/trace"
)

// Stats is the result of LatencyStats (spec §4.5.1).
type Stats struct {
	Count    int
	Min      float64
	Max      float64
	Mean     float64
	Median   float64
	P90      float64
	P95      float64
	P99      float64
	Stdev    float64
	Variance float64

	PerSpanStats map[string]Stats
}

// LatencyStats computes population statistics over trace-level
// duration_ms, plus a per-span-name breakdown over every occurrence
// across the population (spec §4.5.1).
func LatencyStats(traces []trace.Trace) Stats {
	durations := make([]float64, 0, len(traces))
	perSpan := make(map[string][]float64)
	for _, tr := range traces {
		durations = append(durations, tr.DurationMS)
		for _, s := range tr.Spans {
			if ms, ok := s.DurationMS(); ok {
				perSpan[s.Name] = append(perSpan[s.Name], ms)
			}
		}
	}

	st := computeStats(durations)
	st.PerSpanStats = make(map[string]Stats, len(perSpan))
	for name, samples := range perSpan {
		st.PerSpanStats[name] = computeStats(samples)
	}
	return st
}

// computeStats implements spec §4.5.1's exact definitions: median by
// mid-index of the sorted list, percentiles by index floor(count*q)
// clamped to the last index (not montanaflynn's own interpolating
// Percentile, which would not match the spec's index rule) — so sorting
// is done here and percentileByIndex reimplements just the indexing,
// while Mean/Variance/StandardDeviationSample are delegated to the
// library since those definitions match directly.
func computeStats(samples []float64) Stats {
	n := len(samples)
	if n == 0 {
		return Stats{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	data := mfstats.Float64Data(sorted)

	mean, _ := data.Mean()
	var variance, stdev float64
	if n > 1 {
		variance, _ = data.SampleVariance()
		stdev, _ = data.StandardDeviationSample()
	}

	return Stats{
		Count:    n,
		Min:      sorted[0],
		Max:      sorted[n-1],
		Mean:     mean,
		Median:   medianByIndex(sorted),
		P90:      percentileByIndex(sorted, 0.90),
		P95:      percentileByIndex(sorted, 0.95),
		P99:      percentileByIndex(sorted, 0.99),
		Stdev:    stdev,
		Variance: variance,
	}
}

// medianByIndex implements "median by mid-index of sorted list" (spec
// §4.5.1) rather than averaging the two middle elements on even counts.
func medianByIndex(sorted []float64) float64 {
	return sorted[len(sorted)/2]
}

// percentileByIndex implements spec §4.5.1's "p90, p95, p99 by index
// floor(count*q), clamped to last index".
func percentileByIndex(sorted []float64, q float64) float64 {
	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
