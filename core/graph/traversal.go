package graph

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrInvalidDepth       = errors.New("traversal depth must be between 1 and 3")
	ErrInvalidMaxNodes    = errors.New("traversal node cap out of range")
	ErrInvalidMinStrength = errors.New("minimum strength must be in [0,1]")
)

// Traversal bounds. MaxNodes counts neighbors beyond the root: the
// root is always returned and is not charged against the cap.
const (
	MinTraversalDepth = 1
	MaxTraversalDepth = 3
	MaxTraversalNodes = 500
)

// ExpandOptions configures a bounded neighborhood expansion.
type ExpandOptions struct {
	// Depth is the hop limit, 1 to 3.
	Depth int

	// MaxNodes caps how many neighbor nodes are returned (1 to 500).
	// When a hop would exceed the cap, neighbors are retained by
	// descending cumulative edge strength, ties broken by node weight,
	// then discovery order.
	MaxNodes int

	// NodeTypes, when non-empty, restricts which node types are expanded.
	NodeTypes []NodeType

	// EdgeTypes, when non-empty, restricts which edge types are followed.
	EdgeTypes []EdgeType

	// MinStrength drops edges below this strength before expansion.
	MinStrength float64
}

// Traverser performs bounded, filtered BFS over the stored graph.
// Expansion is deterministic for a fixed graph snapshot and identical
// options; no randomness is involved anywhere, so the same call twice
// yields identical node and edge ordering.
type Traverser struct {
	ns *NodeStore
	es *EdgeStore
}

// NewTraverser creates a Traverser over the given database.
func NewTraverser(db *DB) *Traverser {
	return &Traverser{
		ns: NewNodeStore(db),
		es: NewEdgeStore(db),
	}
}

// Expand returns the bounded neighborhood of the node rootID.
// Nodes[0] of the result is always the root. Cycles are handled by
// visited-node tracking, so degenerate graphs cannot revisit nodes
// within the depth budget.
func (t *Traverser) Expand(rootID string, opts ExpandOptions) (*Subgraph, error) {
	if err := validateExpandOptions(opts); err != nil {
		return nil, err
	}

	root, err := t.ns.GetNodeByID(rootID)
	if err != nil {
		return nil, err
	}

	state := &expandState{
		included:  map[string]bool{root.ID: true},
		edgeSeen:  map[string]bool{},
		nodeTypes: toNodeTypeSet(opts.NodeTypes),
	}
	sub := &Subgraph{Nodes: []*Node{root}}

	frontier := []string{root.ID}
	for hop := 0; hop < opts.Depth && len(frontier) > 0; hop++ {
		remaining := opts.MaxNodes - (len(sub.Nodes) - 1)
		if remaining <= 0 {
			break
		}

		accepted, err := t.expandHop(sub, state, frontier, opts, remaining)
		if err != nil {
			return nil, err
		}
		frontier = accepted
	}

	return sub, nil
}

func validateExpandOptions(opts ExpandOptions) error {
	if opts.Depth < MinTraversalDepth || opts.Depth > MaxTraversalDepth {
		return fmt.Errorf("%w: got %d", ErrInvalidDepth, opts.Depth)
	}
	if opts.MaxNodes < 1 || opts.MaxNodes > MaxTraversalNodes {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxNodes, opts.MaxNodes)
	}
	if math.IsNaN(opts.MinStrength) || opts.MinStrength < 0 || opts.MinStrength > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidMinStrength, opts.MinStrength)
	}
	return nil
}

type expandState struct {
	included  map[string]bool
	edgeSeen  map[string]bool
	nodeTypes map[NodeType]bool
}

// candidate tracks a node discovered during the current hop together
// with its salience for truncation ordering.
type candidate struct {
	id    string
	cum   float64
	order int
}

func (t *Traverser) expandHop(sub *Subgraph, state *expandState, frontier []string, opts ExpandOptions, remaining int) ([]string, error) {
	candidates, pendingEdges, err := t.collectHop(state, frontier, opts)
	if err != nil {
		return nil, err
	}

	accepted, err := t.selectCandidates(state, candidates, remaining)
	if err != nil {
		return nil, err
	}

	var frontierNext []string
	for _, node := range accepted {
		state.included[node.ID] = true
		sub.Nodes = append(sub.Nodes, node)
		frontierNext = append(frontierNext, node.ID)
	}

	for _, e := range pendingEdges {
		if state.included[e.SourceID] && state.included[e.TargetID] && !state.edgeSeen[e.ID] {
			state.edgeSeen[e.ID] = true
			sub.Edges = append(sub.Edges, e)
		}
	}

	return frontierNext, nil
}

// collectHop scans the frontier and gathers candidate neighbors plus
// every qualifying edge seen this hop. Candidates accumulate the
// strength of each qualifying edge that reaches them, so a node
// connected by several strong edges outranks one reached by a single
// weak edge when the cap bites.
func (t *Traverser) collectHop(state *expandState, frontier []string, opts ExpandOptions) ([]*candidate, []*Edge, error) {
	byID := make(map[string]*candidate)
	var ordered []*candidate
	var pendingEdges []*Edge
	edgeCollected := make(map[string]bool)

	for _, nodeID := range frontier {
		edges, err := t.neighborEdges(nodeID, opts.EdgeTypes)
		if err != nil {
			return nil, nil, err
		}

		for _, e := range edges {
			if e.Strength < opts.MinStrength || edgeCollected[e.ID] {
				continue
			}
			edgeCollected[e.ID] = true
			pendingEdges = append(pendingEdges, e)

			other := e.OtherEnd(nodeID)
			if state.included[other] {
				continue
			}
			c, ok := byID[other]
			if !ok {
				c = &candidate{id: other, order: len(ordered)}
				byID[other] = c
				ordered = append(ordered, c)
			}
			c.cum += e.Strength
		}
	}

	return ordered, pendingEdges, nil
}

func (t *Traverser) neighborEdges(nodeID string, edgeTypes []EdgeType) ([]*Edge, error) {
	out, err := t.es.GetEdgesFrom(nodeID, edgeTypes...)
	if err != nil {
		return nil, err
	}
	in, err := t.es.GetEdgesTo(nodeID, edgeTypes...)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(out))
	edges := make([]*Edge, 0, len(out)+len(in))
	for _, e := range append(out, in...) {
		if !seen[e.ID] {
			seen[e.ID] = true
			edges = append(edges, e)
		}
	}
	return edges, nil
}

// selectCandidates loads candidate nodes, applies the node type filter,
// and keeps the most salient `remaining` of them.
func (t *Traverser) selectCandidates(state *expandState, candidates []*candidate, remaining int) ([]*Node, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	nodes, err := t.ns.GetNodesBatch(ids)
	if err != nil {
		return nil, err
	}

	type scored struct {
		c    *candidate
		node *Node
	}
	var kept []scored
	for _, c := range candidates {
		node, ok := nodes[c.id]
		if !ok {
			// Dangling edge endpoint; skip rather than abort the hop.
			continue
		}
		if len(state.nodeTypes) > 0 && !state.nodeTypes[node.NodeType] {
			continue
		}
		kept = append(kept, scored{c: c, node: node})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].c.cum != kept[j].c.cum {
			return kept[i].c.cum > kept[j].c.cum
		}
		if kept[i].node.Weight != kept[j].node.Weight {
			return kept[i].node.Weight > kept[j].node.Weight
		}
		return kept[i].c.order < kept[j].c.order
	})

	if len(kept) > remaining {
		kept = kept[:remaining]
	}

	result := make([]*Node, len(kept))
	for i, s := range kept {
		result[i] = s.node
	}
	return result, nil
}

func toNodeTypeSet(types []NodeType) map[NodeType]bool {
	if len(types) == 0 {
		return nil
	}
	set := make(map[NodeType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}
