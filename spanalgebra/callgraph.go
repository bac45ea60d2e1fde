package spanalgebra

import "github.com/srelabs/trace-engine/trace"

// TreeNode is one node of CallGraph.Tree (spec §4.4.3).
type TreeNode struct {
	SpanID   string
	Name     string
	Depth    int
	Labels   map[string]string
	Children []*TreeNode
}

// CallGraph is the parent→children structure built from a trace (spec
// §4.4.3).
type CallGraph struct {
	Roots     []string
	Tree      []*TreeNode // one entry per root, in span order
	SpanNames map[string]struct{}
	MaxDepth  int
	// Cyclic is true when a cycle among spans was detected; callers that
	// need a traversable graph should treat the result as a best-effort
	// partial tree in that case (spec §4.4.3: "Cycles ... must be
	// rejected as a quality defect ... rather than producing infinite
	// traversal" — detection lives here, rejection/reporting in
	// Validate).
	Cyclic bool
}

// BuildCallGraph builds the parent→children mapping and root set for t.
func BuildCallGraph(t trace.Trace) CallGraph {
	byID := make(map[string]trace.Span, len(t.Spans))
	childrenOf := make(map[string][]string)
	for _, s := range t.Spans {
		byID[s.SpanID] = s
	}
	var roots []string
	for _, s := range t.Spans {
		if s.ParentSpanID == "" {
			roots = append(roots, s.SpanID)
			continue
		}
		if _, ok := byID[s.ParentSpanID]; !ok {
			// Orphaned: parent id not present among this trace's spans;
			// treated as a root for traversal purposes (validation flags
			// it separately, spec §4.4.4).
			roots = append(roots, s.SpanID)
			continue
		}
		childrenOf[s.ParentSpanID] = append(childrenOf[s.ParentSpanID], s.SpanID)
	}

	cg := CallGraph{Roots: roots, SpanNames: make(map[string]struct{})}
	for _, s := range t.Spans {
		cg.SpanNames[s.Name] = struct{}{}
	}

	cyclic := false
	for _, rootID := range roots {
		node, depth, cyc := buildNode(rootID, byID, childrenOf, 0, make(map[string]bool))
		if cyc {
			cyclic = true
		}
		if node == nil {
			continue
		}
		cg.Tree = append(cg.Tree, node)
		if depth > cg.MaxDepth {
			cg.MaxDepth = depth
		}
	}
	// A span whose parent chain never reaches a root sits on, or under, a
	// parent-pointer cycle that no root leads into.
	reached := make(map[string]bool, len(byID))
	stack := append([]*TreeNode(nil), cg.Tree...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		reached[n.SpanID] = true
		stack = append(stack, n.Children...)
	}
	if len(reached) < len(byID) {
		cyclic = true
	}
	cg.Cyclic = cyclic
	return cg
}

// buildNode walks the tree recursively but guards against
// cycles via the active-path `visiting` set (spec §9: "detect a re-visit
// on the active path and emit a cycle issue rather than recursing"
// infinitely). Returns the built node (nil if id is already on the
// active path), the max depth reached under it, and whether a cycle was
// found anywhere in the subtree.
func buildNode(id string, byID map[string]trace.Span, childrenOf map[string][]string, depth int, visiting map[string]bool) (*TreeNode, int, bool) {
	if visiting[id] {
		return nil, depth, true
	}
	visiting[id] = true
	defer delete(visiting, id)

	s, ok := byID[id]
	var name string
	var labels map[string]string
	if ok {
		name = s.Name
		labels = s.Labels
	}
	node := &TreeNode{SpanID: id, Name: name, Depth: depth, Labels: labels}
	maxDepth := depth
	cyclic := false
	for _, childID := range childrenOf[id] {
		childNode, childDepth, childCyclic := buildNode(childID, byID, childrenOf, depth+1, visiting)
		if childCyclic {
			cyclic = true
		}
		if childNode == nil {
			continue
		}
		node.Children = append(node.Children, childNode)
		if childDepth > maxDepth {
			maxDepth = childDepth
		}
	}
	return node, maxDepth, cyclic
}
