// Package tracediff implements the comparative diff (spec §4.8, C8):
// timing diffs, call-graph structural diffs, and confidence-scored
// causal analysis between a baseline and a target trace. Grounded on
// original_source/sre_agent/tools/analysis/trace/comparison.py (timing
// and structural diff) and statistical_analysis.py's
// perform_causal_analysis (confidence scoring), ported to Go idiom.
package tracediff

import (
	"sort"

	"github.com/srelabs/trace-engine/criticalpath"
	"github.com/srelabs/trace-engine/patterns"
	"github.com/srelabs/trace-engine/spanalgebra"
	"github.com/srelabs/trace-engine/trace"
)

// SpanTimingDiff is one span-name-level comparison (spec §4.8.1).
type SpanTimingDiff struct {
	SpanName          string
	BaselineDurationMS float64
	TargetDurationMS   float64
	DiffMS             float64
	DiffPct            float64
	BaselineCount      int
	TargetCount        int
}

// Diff is the result of CompareTimings (spec §4.8.1).
type Diff struct {
	SlowerSpans        []SpanTimingDiff
	FasterSpans        []SpanTimingDiff
	MissingFromTarget  []string
	NewInTarget        []string
	NPlusOne           []patterns.NPlusOne
	SerialChains       []patterns.SerialChain
	BaselineTotalMS    float64
	TargetTotalMS      float64
	TotalDiffMS        float64
}

func nameAverages(t trace.Trace) (map[string][]float64, float64) {
	byName := make(map[string][]float64)
	total := 0.0
	for _, s := range t.Spans {
		ms, ok := s.DurationMS()
		if !ok {
			continue
		}
		byName[s.Name] = append(byName[s.Name], ms)
		total += ms
	}
	return byName, total
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// CompareTimings compares average per-span-name durations between
// baseline and target, classifying each common name as slower/faster
// per spec §4.8.1's thresholds, and folds in the N+1/serial-chain
// pattern results computed over target.
func CompareTimings(baseline, target trace.Trace) Diff {
	baselineByName, baselineTotal := nameAverages(baseline)
	targetByName, targetTotal := nameAverages(target)

	names := make(map[string]struct{})
	for n := range baselineByName {
		names[n] = struct{}{}
	}
	for n := range targetByName {
		names[n] = struct{}{}
	}

	var slower, faster []SpanTimingDiff
	for name := range names {
		bSamples, bOK := baselineByName[name]
		tSamples, tOK := targetByName[name]
		if !bOK || !tOK {
			continue
		}
		bAvg, tAvg := mean(bSamples), mean(tSamples)
		diffMS := tAvg - bAvg
		diffPct := 0.0
		if bAvg > 0 {
			diffPct = diffMS / bAvg * 100
		}

		cmp := SpanTimingDiff{
			SpanName:           name,
			BaselineDurationMS: bAvg,
			TargetDurationMS:   tAvg,
			DiffMS:             diffMS,
			DiffPct:            diffPct,
			BaselineCount:      len(bSamples),
			TargetCount:        len(tSamples),
		}

		switch {
		case diffPct > 10 || diffMS > 50:
			slower = append(slower, cmp)
		case diffPct < -10 || diffMS < -50:
			faster = append(faster, cmp)
		}
	}

	sort.Slice(slower, func(i, j int) bool { return slower[i].DiffMS > slower[j].DiffMS })
	sort.Slice(faster, func(i, j int) bool { return faster[i].DiffMS < faster[j].DiffMS })

	var missing, newInTarget []string
	for n := range baselineByName {
		if _, ok := targetByName[n]; !ok {
			missing = append(missing, n)
		}
	}
	for n := range targetByName {
		if _, ok := baselineByName[n]; !ok {
			newInTarget = append(newInTarget, n)
		}
	}
	sort.Strings(missing)
	sort.Strings(newInTarget)

	return Diff{
		SlowerSpans:       slower,
		FasterSpans:       faster,
		MissingFromTarget: missing,
		NewInTarget:       newInTarget,
		NPlusOne:          patterns.DetectNPlusOne(target),
		SerialChains:      patterns.DetectSerialChain(target),
		BaselineTotalMS:   baselineTotal,
		TargetTotalMS:     targetTotal,
		TotalDiffMS:       targetTotal - baselineTotal,
	}
}

// StructDiff is the result of CompareStructure (spec §4.8.2).
type StructDiff struct {
	MissingSpans     []string
	NewSpans         []string
	CommonSpans      []string
	BaselineSpanCount int
	TargetSpanCount   int
	SpanCountChange   int
	DepthChange       int
}

// CompareStructure diffs the call-graph span-name sets and depths of
// baseline and target (spec §4.8.2).
func CompareStructure(baseline, target trace.Trace) StructDiff {
	bGraph := spanalgebra.BuildCallGraph(baseline)
	tGraph := spanalgebra.BuildCallGraph(target)

	var missing, newSpans, common []string
	for n := range bGraph.SpanNames {
		if _, ok := tGraph.SpanNames[n]; !ok {
			missing = append(missing, n)
		} else {
			common = append(common, n)
		}
	}
	for n := range tGraph.SpanNames {
		if _, ok := bGraph.SpanNames[n]; !ok {
			newSpans = append(newSpans, n)
		}
	}
	sort.Strings(missing)
	sort.Strings(newSpans)
	sort.Strings(common)

	return StructDiff{
		MissingSpans:      missing,
		NewSpans:          newSpans,
		CommonSpans:       common,
		BaselineSpanCount:  len(baseline.Spans),
		TargetSpanCount:    len(target.Spans),
		SpanCountChange:    len(target.Spans) - len(baseline.Spans),
		DepthChange:        tGraph.MaxDepth - bGraph.MaxDepth,
	}
}

// CausalCandidate is one ranked root-cause candidate (spec §4.8.3).
type CausalCandidate struct {
	SpanID             string
	SpanName           string
	DiffMS             float64
	DiffPct            float64
	BaselineAvgMS      float64
	TargetMS           float64
	OnCriticalPath     bool
	SelfTimeMS         float64
	Depth              int
	ConfidenceScore    float64
	IsLikelyRootCause  bool
}

// CausalReport is the result of CausalAnalysis (spec §4.8.3).
type CausalReport struct {
	RootCauseCandidates []CausalCandidate
	TotalCandidates     int
	CriticalPathSpans   int
}

// CausalAnalysis ranks target spans by a confidence score combining the
// timing diff against same-named baseline spans, call-graph depth, and
// critical-path membership/self-time dominance (spec §4.8.3).
func CausalAnalysis(baseline, target trace.Trace) CausalReport {
	baselineByName := make(map[string][]float64)
	for _, s := range baseline.Spans {
		if ms, ok := s.DurationMS(); ok {
			baselineByName[s.Name] = append(baselineByName[s.Name], ms)
		}
	}

	cp := criticalpath.Analyze(target)
	critical := make(map[string]criticalpath.Entry, len(cp.CriticalPath))
	for _, e := range cp.CriticalPath {
		critical[e.SpanID] = e
	}

	depthMap := make(map[string]int)
	graph := spanalgebra.BuildCallGraph(target)
	for _, root := range graph.Tree {
		walkDepth(root, depthMap)
	}

	var candidates []CausalCandidate
	for _, s := range target.Spans {
		baselineDurations, ok := baselineByName[s.Name]
		if !ok {
			continue
		}
		targetMS, ok := s.DurationMS()
		if !ok {
			continue
		}
		baselineAvg := mean(baselineDurations)
		diffMS := targetMS - baselineAvg
		diffPct := 0.0
		if baselineAvg > 0 {
			diffPct = diffMS / baselineAvg * 100
		}
		if diffMS < 10 && diffPct < 10 {
			continue
		}

		entry, onCriticalPath := critical[s.SpanID]
		selfTime := 0.0
		if onCriticalPath {
			selfTime = entry.SelfTimeMS
		}

		depth := depthMap[s.SpanID]
		depthFactor := 1.0 + float64(depth)*0.1
		if depthFactor > 1.5 {
			depthFactor = 1.5
		}
		score := diffMS * depthFactor
		if onCriticalPath {
			score *= 2.0
			if selfTime > diffMS*0.3 {
				score *= 1.3
			}
		}

		candidates = append(candidates, CausalCandidate{
			SpanID:            s.SpanID,
			SpanName:          s.Name,
			DiffMS:            diffMS,
			DiffPct:           diffPct,
			BaselineAvgMS:     baselineAvg,
			TargetMS:          targetMS,
			OnCriticalPath:    onCriticalPath,
			SelfTimeMS:        selfTime,
			Depth:             depth,
			ConfidenceScore:   score,
			IsLikelyRootCause: onCriticalPath && selfTime > 50,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ConfidenceScore > candidates[j].ConfidenceScore
	})

	if len(candidates) > 0 && candidates[0].OnCriticalPath {
		candidates[0].IsLikelyRootCause = true
	}

	top := candidates
	if len(top) > 10 {
		top = top[:10]
	}

	return CausalReport{
		RootCauseCandidates: top,
		TotalCandidates:     len(candidates),
		CriticalPathSpans:   len(cp.CriticalPath),
	}
}

func walkDepth(node *spanalgebra.TreeNode, depthMap map[string]int) {
	stack := []*spanalgebra.TreeNode{node}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		depthMap[n.SpanID] = n.Depth
		for _, c := range n.Children {
			stack = append(stack, c)
		}
	}
}
