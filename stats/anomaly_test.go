package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnomalyDegenerateStdevZeroEqualsMean(t *testing.T) {
	baseline := Stats{Mean: 100, Stdev: 0}
	r := Anomaly(baseline, 100, nil, 2.0)
	assert.Equal(t, 0.0, r.ZScore)
	assert.False(t, r.IsAnomaly)
}

func TestAnomalyDegenerateStdevZeroDiffersFromMeanSigned(t *testing.T) {
	baseline := Stats{Mean: 100, Stdev: 0}

	slower := Anomaly(baseline, 150, nil, 2.0)
	assert.Equal(t, degenerateZ, slower.ZScore)
	assert.True(t, slower.IsAnomaly)

	faster := Anomaly(baseline, 50, nil, 2.0)
	assert.Equal(t, -degenerateZ, faster.ZScore)
	assert.True(t, faster.IsAnomaly)
}

func TestAnomalyNormalZScore(t *testing.T) {
	baseline := Stats{Mean: 100, Stdev: 10}
	r := Anomaly(baseline, 125, nil, 2.0)
	assert.InDelta(t, 2.5, r.ZScore, 1e-9)
	assert.True(t, r.IsAnomaly)

	notAnomaly := Anomaly(baseline, 110, nil, 2.0)
	assert.InDelta(t, 1.0, notAnomaly.ZScore, 1e-9)
	assert.False(t, notAnomaly.IsAnomaly)
}

func TestAnomalyDefaultThresholdWhenZeroOrNegative(t *testing.T) {
	baseline := Stats{Mean: 100, Stdev: 10}
	r := Anomaly(baseline, 125, nil, 0)
	assert.Equal(t, DefaultThresholdSigma, r.ThresholdSigma)
}

func TestAnomalyPerSpanFlaggedAboveThresholdAndNoiseFloor(t *testing.T) {
	baseline := Stats{
		Mean:  100,
		Stdev: 10,
		PerSpanStats: map[string]Stats{
			"db.query": {Mean: 20, Stdev: 2},
		},
	}
	target := map[string]float64{"db.query": 80} // z = 30, way above threshold, and > 50ms floor
	r := Anomaly(baseline, 100, target, 2.0)
	require := func(ok bool) {
		if !ok {
			t.Fatal("expected db.query to be flagged")
		}
	}
	found := false
	for _, sa := range r.AnomalousSpans {
		if sa.Name == "db.query" {
			found = true
			assert.Equal(t, AnomalySlow, sa.AnomalyType)
		}
	}
	require(found)
}

func TestAnomalyPerSpanSuppressedBelowNoiseFloor(t *testing.T) {
	baseline := Stats{
		Mean:  100,
		Stdev: 10,
		PerSpanStats: map[string]Stats{
			"tiny.op": {Mean: 1, Stdev: 0.1},
		},
	}
	// z would be huge but absolute duration is under the 50ms noise floor.
	target := map[string]float64{"tiny.op": 10}
	r := Anomaly(baseline, 100, target, 2.0)
	assert.Empty(t, r.AnomalousSpans)
}

func TestAnomalyPerSpanFastDirection(t *testing.T) {
	baseline := Stats{
		Mean:  100,
		Stdev: 10,
		PerSpanStats: map[string]Stats{
			"cache.read": {Mean: 200, Stdev: 5},
		},
	}
	target := map[string]float64{"cache.read": 60} // well below mean, still above noise floor
	r := Anomaly(baseline, 100, target, 2.0)
	require := func(ok bool) {
		if !ok {
			t.Fatal("expected cache.read to be flagged")
		}
	}
	found := false
	for _, sa := range r.AnomalousSpans {
		if sa.Name == "cache.read" {
			found = true
			assert.Equal(t, AnomalyFast, sa.AnomalyType)
		}
	}
	require(found)
}

func TestAnomalyMissingPerSpanTargetSkipped(t *testing.T) {
	baseline := Stats{
		Mean:  100,
		Stdev: 10,
		PerSpanStats: map[string]Stats{
			"absent.op": {Mean: 20, Stdev: 2},
		},
	}
	r := Anomaly(baseline, 100, map[string]float64{}, 2.0)
	assert.Empty(t, r.AnomalousSpans)
}
