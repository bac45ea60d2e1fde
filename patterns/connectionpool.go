package patterns

import "github.com/srelabs/trace-engine/trace"

// PoolIssue is one span flagged as a connection-pool wait (spec §4.7.3).
type PoolIssue struct {
	SpanName        string
	WaitDurationMS  float64
	Severity        Severity
	Confidence      float64
}

// PoolReport is the result of DetectConnectionPoolExhaustion.
type PoolReport struct {
	Issues            []PoolIssue
	TotalWaitMS       float64
	HasPoolExhaustion bool
	Recommendation    string
}

const defaultWaitThresholdMS = 100

// DetectConnectionPoolExhaustion flags spans whose name matches a
// connection/pool keyword and whose duration is at least wait_threshold_ms,
// graded by how far over threshold the wait runs (spec §4.7.3).
func DetectConnectionPoolExhaustion(t trace.Trace, waitThresholdMS float64) PoolReport {
	if waitThresholdMS <= 0 {
		waitThresholdMS = defaultWaitThresholdMS
	}

	var issues []PoolIssue
	total := 0.0
	for _, s := range t.Spans {
		if !containsIndicator(s.Name, connectionIndicators) {
			continue
		}
		d := durationMS(s)
		if d < waitThresholdMS {
			continue
		}
		severity := SeverityLow
		switch {
		case d >= waitThresholdMS*5:
			severity = SeverityHigh
		case d >= waitThresholdMS*2:
			severity = SeverityMedium
		}
		issues = append(issues, PoolIssue{
			SpanName:       s.Name,
			WaitDurationMS: d,
			Severity:       severity,
			Confidence:     confidenceFromRatio(d, waitThresholdMS),
		})
		total += d
	}

	hasExhaustion := len(issues) > 0 && total >= waitThresholdMS*3
	recommendation := "No connection pool issues detected."
	if len(issues) > 0 {
		recommendation = "Consider increasing connection pool size or reducing connection hold time. Review connection lifecycle and ensure proper connection release."
	}

	return PoolReport{
		Issues:            issues,
		TotalWaitMS:       total,
		HasPoolExhaustion: hasExhaustion,
		Recommendation:    recommendation,
	}
}
