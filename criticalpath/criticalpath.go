// Package criticalpath implements the critical-path analyzer (spec §4.6,
// C6): for each root span, the self-time/blocking-path recursion described
// there, computed with an explicit work stack so deeply chained traces
// (tens of thousands of spans) are not processed by native recursion here.
// The call graph it walks comes from spanalgebra.BuildCallGraph, which
// builds the tree recursively.
package criticalpath

import (
	"sort"

	"github.com/srelabs/trace-engine/spanalgebra"
	"github.com/srelabs/trace-engine/trace"
)

// Entry is one node on the reported critical path.
type Entry struct {
	SpanID                  string
	Name                    string
	SelfTimeMS              float64
	ContributionPct         float64
	BlockingContributionPct float64
}

// Report is the result of Analyze (spec §4.6).
type Report struct {
	CriticalPath          []Entry
	TotalCriticalDuration float64
	TraceDurationMS       float64
	ParallelismRatio      float64
	ParallelismPct        float64
}

// nodeResult accumulates the per-node outputs of the bottom-up pass:
// self time and the node's own best blocking path (as a slice of span ids,
// root first).
type nodeResult struct {
	selfTimeMS   float64
	blockingPath []string
	blockingLen  float64
}

// Analyze computes the critical path for t (spec §4.6).
func Analyze(t trace.Trace) Report {
	if len(t.Spans) == 0 {
		return Report{}
	}

	cg := spanalgebra.BuildCallGraph(t)
	byID := make(map[string]trace.Span, len(t.Spans))
	for _, s := range t.Spans {
		byID[s.SpanID] = s
	}

	results := make(map[string]nodeResult, len(t.Spans))

	var bestRootPath []string
	var bestRootLen float64
	first := true
	for _, root := range cg.Tree {
		postOrder(root, byID, results)
		r := results[root.SpanID]
		if first || r.blockingLen > bestRootLen {
			bestRootPath = r.blockingPath
			bestRootLen = r.blockingLen
			first = false
		}
	}

	entries := make([]Entry, 0, len(bestRootPath))
	for _, id := range bestRootPath {
		r := results[id]
		entries = append(entries, Entry{
			SpanID:     id,
			Name:       byID[id].Name,
			SelfTimeMS: r.selfTimeMS,
		})
	}

	totalCritical := 0.0
	for _, e := range entries {
		totalCritical += e.SelfTimeMS
	}
	for i := range entries {
		if t.DurationMS > 0 {
			entries[i].ContributionPct = entries[i].SelfTimeMS / t.DurationMS * 100
		}
		if totalCritical > 0 {
			entries[i].BlockingContributionPct = entries[i].SelfTimeMS / totalCritical * 100
		}
	}

	ratio := 1.0
	if totalCritical > 0 {
		ratio = t.DurationMS / totalCritical
	}
	pct := 0.0
	if ratio > 1 {
		pct = (1 - 1/ratio) * 100
	}

	return Report{
		CriticalPath:          entries,
		TotalCriticalDuration: totalCritical,
		TraceDurationMS:       t.DurationMS,
		ParallelismRatio:      ratio,
		ParallelismPct:        pct,
	}
}

// postOrder visits node's subtree iteratively via an explicit work stack,
// pushing children before parents are finalized so every child's
// nodeResult is available once the parent is processed (spec §9: "must
// use an explicit work stack ... rather than natural recursion").
func postOrder(root *spanalgebra.TreeNode, byID map[string]trace.Span, results map[string]nodeResult) {
	type frame struct {
		node    *spanalgebra.TreeNode
		visited bool
	}
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if !top.visited {
			top.visited = true
			for i := len(top.node.Children) - 1; i >= 0; i-- {
				stack = append(stack, frame{node: top.node.Children[i]})
			}
			continue
		}
		stack = stack[:len(stack)-1]
		results[top.node.SpanID] = computeNode(top.node, byID, results)
	}
}

// computeNode implements spec §4.6's self_time and blocking_path
// recursion for a single node, assuming every child's nodeResult is
// already present in results.
func computeNode(node *spanalgebra.TreeNode, byID map[string]trace.Span, results map[string]nodeResult) nodeResult {
	span, ok := byID[node.SpanID]
	if !ok {
		return nodeResult{blockingPath: []string{node.SpanID}}
	}
	duration, _ := span.DurationMS()

	var intervals [][2]float64
	for _, c := range node.Children {
		cs, ok := byID[c.SpanID]
		if !ok {
			continue
		}
		start, end, ok := spanBounds(cs)
		if !ok {
			continue
		}
		intervals = append(intervals, [2]float64{start, end})
	}
	coverage := mergedCoverage(intervals)
	selfTime := duration - coverage
	if selfTime < 0 {
		selfTime = 0
	}

	// Pick the child maximizing blocking contribution, halved if it ends
	// more than 5ms before the parent's wait actually completes (spec
	// §4.6). "The parent" here is resolved as the latest end among the
	// node's children — the point at which the parent stops waiting and
	// any remaining self_time begins — rather than the node's own overall
	// end bound, which can include trailing self_time unrelated to any
	// single child's blocking behavior.
	const fiveMsSeconds = 5.0 / 1000.0
	coverageEnd, hasCoverageEnd := 0.0, false
	for _, c := range node.Children {
		if cs, ok := byID[c.SpanID]; ok {
			if _, cEnd, ok := spanBounds(cs); ok {
				if !hasCoverageEnd || cEnd > coverageEnd {
					coverageEnd = cEnd
					hasCoverageEnd = true
				}
			}
		}
	}

	var bestChild *spanalgebra.TreeNode
	var bestContribution float64
	for _, c := range node.Children {
		r, ok := results[c.SpanID]
		if !ok {
			continue
		}
		contribution := r.blockingLen
		if hasCoverageEnd {
			if cs, ok := byID[c.SpanID]; ok {
				if _, cEnd, ok := spanBounds(cs); ok && cEnd < coverageEnd-fiveMsSeconds {
					contribution /= 2
				}
			}
		}
		if bestChild == nil || contribution > bestContribution {
			bestChild = c
			bestContribution = contribution
		}
	}

	path := []string{node.SpanID}
	blockingLen := selfTime
	if bestChild != nil {
		childResult := results[bestChild.SpanID]
		path = append(path, childResult.blockingPath...)
		blockingLen = selfTime + childResult.blockingLen
	}

	return nodeResult{selfTimeMS: selfTime, blockingPath: path, blockingLen: blockingLen}
}

func spanBounds(s trace.Span) (start, end float64, ok bool) {
	if s.HasUnix() {
		return s.StartUnix, s.EndUnix, true
	}
	return 0, 0, false
}

// mergedCoverage returns the length of the union of the given [start,end]
// intervals (spec §4.6's "coverage(children)").
func mergedCoverage(intervals [][2]float64) float64 {
	if len(intervals) == 0 {
		return 0
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i][0] < intervals[j][0] })
	total := 0.0
	curStart, curEnd := intervals[0][0], intervals[0][1]
	for _, iv := range intervals[1:] {
		if iv[0] > curEnd {
			total += (curEnd - curStart) * 1000
			curStart, curEnd = iv[0], iv[1]
			continue
		}
		if iv[1] > curEnd {
			curEnd = iv[1]
		}
	}
	total += (curEnd - curStart) * 1000
	return total
}
