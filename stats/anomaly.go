package stats

import "math"

// DefaultThresholdSigma is spec §4.5.2's default anomaly threshold.
const DefaultThresholdSigma = 2.0

// noiseFloorMS is the minimum absolute span duration spec §4.5.2
// requires before a per-span anomaly can be flagged ("noise floor").
const noiseFloorMS = 50.0

// degenerateZ is the magnitude spec §4.5.2 assigns when baseline.stdev
// is 0 and the target differs from the mean ("z = 100 with sign").
const degenerateZ = 100.0

// AnomalyType classifies the direction of a detected anomaly.
type AnomalyType string

const (
	AnomalySlow AnomalyType = "slow"
	AnomalyFast AnomalyType = "fast"
)

// SpanAnomaly is one per-span-name anomaly entry (spec §4.5.2).
type SpanAnomaly struct {
	Name          string
	ZScore        float64
	AnomalyType   AnomalyType
	TargetMS      float64
	BaselineMeanMS float64
}

// Report is the result of Anomaly (spec §4.5.2).
type Report struct {
	IsAnomaly       bool
	ZScore          float64
	TargetDuration  float64
	BaselineMean    float64
	BaselineStdev   float64
	ThresholdSigma  float64
	DeviationMS     float64
	AnomalousSpans  []SpanAnomaly
}

// zScore computes (value-mean)/stdev with spec §4.5.2's degenerate-stdev
// handling: stdev==0 and value==mean yields 0; stdev==0 and value!=mean
// yields ±100.
func zScore(value, mean, stdev float64) float64 {
	if stdev == 0 {
		if value == mean {
			return 0
		}
		if value > mean {
			return degenerateZ
		}
		return -degenerateZ
	}
	return (value - mean) / stdev
}

// Anomaly computes a Z-score anomaly report for targetDurationMS /
// targetPerSpan against baseline, per spec §4.5.2.
func Anomaly(baseline Stats, targetDurationMS float64, targetPerSpan map[string]float64, thresholdSigma float64) Report {
	if thresholdSigma <= 0 {
		thresholdSigma = DefaultThresholdSigma
	}
	z := zScore(targetDurationMS, baseline.Mean, baseline.Stdev)

	var anomalous []SpanAnomaly
	for name, baselineSpanStats := range baseline.PerSpanStats {
		targetMS, ok := targetPerSpan[name]
		if !ok {
			continue
		}
		sz := zScore(targetMS, baselineSpanStats.Mean, baselineSpanStats.Stdev)
		if math.Abs(sz) > thresholdSigma && targetMS > noiseFloorMS {
			at := AnomalySlow
			if sz < 0 {
				at = AnomalyFast
			}
			anomalous = append(anomalous, SpanAnomaly{
				Name:           name,
				ZScore:         sz,
				AnomalyType:    at,
				TargetMS:       targetMS,
				BaselineMeanMS: baselineSpanStats.Mean,
			})
		}
	}

	return Report{
		IsAnomaly:      math.Abs(z) > thresholdSigma,
		ZScore:         z,
		TargetDuration: targetDurationMS,
		BaselineMean:   baseline.Mean,
		BaselineStdev:  baseline.Stdev,
		ThresholdSigma: thresholdSigma,
		DeviationMS:    targetDurationMS - baseline.Mean,
		AnomalousSpans: anomalous,
	}
}
