package graph

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

// testGraph builds a small fixture around one root user:
//
//	root -> m1 (participation 0.9)
//	root -> m2 (participation 0.6)
//	root -> t1 (association 0.1, below common thresholds)
//	m1   -> u2 (creation 0.8)
type testGraph struct {
	ns   *NodeStore
	es   *EdgeStore
	root string
	m1   string
	m2   string
	t1   string
	u2   string
}

func newTestGraph(t *testing.T, db *DB) *testGraph {
	t.Helper()
	ns := NewNodeStore(db)
	es := NewEdgeStore(db)

	mk := func(nt NodeType, entity, name string, weight float64) string {
		node, err := ns.UpsertNode(nt, EntityRef{ID: entity, Type: string(nt)},
			NodeMetadata{Name: name}, weight)
		if err != nil {
			t.Fatalf("seed %s: %v", entity, err)
		}
		return node.ID
	}

	g := &testGraph{
		ns:   ns,
		es:   es,
		root: mk(NodeTypeUser, "root", "Root", 0.5),
		m1:   mk(NodeTypeMission, "m-1", "Mission One", 0.7),
		m2:   mk(NodeTypeMission, "m-2", "Mission Two", 0.4),
		t1:   mk(NodeTypeTag, "t-1", "ocean", 0.5),
		u2:   mk(NodeTypeUser, "u-2", "Other", 0.5),
	}

	link := func(src, dst string, et EdgeType, strength float64) {
		if _, err := es.UpsertEdge(src, dst, et, strength, true, EdgeMetadata{}); err != nil {
			t.Fatalf("seed edge %s->%s: %v", src, dst, err)
		}
	}
	link(g.root, g.m1, EdgeTypeParticipation, 0.9)
	link(g.root, g.m2, EdgeTypeParticipation, 0.6)
	link(g.root, g.t1, EdgeTypeAssociation, 0.1)
	link(g.m1, g.u2, EdgeTypeCreation, 0.8)

	return g
}

func TestTraverser_Expand_Validation(t *testing.T) {
	db := newTestDB(t)
	g := newTestGraph(t, db)
	tr := NewTraverser(db)

	t.Run("depth out of range", func(t *testing.T) {
		for _, depth := range []int{0, -1, 4} {
			_, err := tr.Expand(g.root, ExpandOptions{Depth: depth, MaxNodes: 10})
			if !errors.Is(err, ErrInvalidDepth) {
				t.Errorf("depth %d: expected ErrInvalidDepth, got %v", depth, err)
			}
		}
	})

	t.Run("max nodes out of range", func(t *testing.T) {
		for _, maxNodes := range []int{0, -5, MaxTraversalNodes + 1} {
			_, err := tr.Expand(g.root, ExpandOptions{Depth: 1, MaxNodes: maxNodes})
			if !errors.Is(err, ErrInvalidMaxNodes) {
				t.Errorf("maxNodes %d: expected ErrInvalidMaxNodes, got %v", maxNodes, err)
			}
		}
	})

	t.Run("min strength out of range", func(t *testing.T) {
		for _, minStrength := range []float64{-0.1, 1.5} {
			_, err := tr.Expand(g.root, ExpandOptions{Depth: 1, MaxNodes: 10, MinStrength: minStrength})
			if !errors.Is(err, ErrInvalidMinStrength) {
				t.Errorf("minStrength %v: expected ErrInvalidMinStrength, got %v", minStrength, err)
			}
		}
	})

	t.Run("unknown root", func(t *testing.T) {
		_, err := tr.Expand("missing", ExpandOptions{Depth: 1, MaxNodes: 10})
		if !errors.Is(err, ErrNodeNotFound) {
			t.Errorf("expected ErrNodeNotFound, got %v", err)
		}
	})
}

func TestTraverser_Expand(t *testing.T) {
	db := newTestDB(t)
	g := newTestGraph(t, db)
	tr := NewTraverser(db)

	t.Run("root always first", func(t *testing.T) {
		sub, err := tr.Expand(g.root, ExpandOptions{Depth: 1, MaxNodes: 10})
		if err != nil {
			t.Fatalf("expand: %v", err)
		}
		if sub.Root() == nil || sub.Root().ID != g.root {
			t.Fatalf("expected root first, got %v", sub.Root())
		}
	})

	t.Run("depth one stops at direct neighbors", func(t *testing.T) {
		sub, err := tr.Expand(g.root, ExpandOptions{Depth: 1, MaxNodes: 10})
		if err != nil {
			t.Fatalf("expand: %v", err)
		}
		if sub.Node(g.u2) != nil {
			t.Error("expected two-hop node excluded at depth 1")
		}
		if sub.Node(g.m1) == nil || sub.Node(g.m2) == nil || sub.Node(g.t1) == nil {
			t.Error("expected all direct neighbors at depth 1")
		}
	})

	t.Run("depth two reaches second hop", func(t *testing.T) {
		sub, err := tr.Expand(g.root, ExpandOptions{Depth: 2, MaxNodes: 10})
		if err != nil {
			t.Fatalf("expand: %v", err)
		}
		if sub.Node(g.u2) == nil {
			t.Error("expected two-hop node at depth 2")
		}
		if len(sub.Edges) != 4 {
			t.Errorf("expected 4 edges, got %d", len(sub.Edges))
		}
	})

	t.Run("min strength filters weak edges", func(t *testing.T) {
		sub, err := tr.Expand(g.root, ExpandOptions{Depth: 1, MaxNodes: 10, MinStrength: 0.2})
		if err != nil {
			t.Fatalf("expand: %v", err)
		}
		if sub.Node(g.t1) != nil {
			t.Error("expected weak-edge neighbor excluded")
		}
		for _, e := range sub.Edges {
			if e.Strength < 0.2 {
				t.Errorf("edge %s below threshold: %v", e.ID, e.Strength)
			}
		}
	})

	t.Run("node type filter", func(t *testing.T) {
		sub, err := tr.Expand(g.root, ExpandOptions{
			Depth:     1,
			MaxNodes:  10,
			NodeTypes: []NodeType{NodeTypeMission},
		})
		if err != nil {
			t.Fatalf("expand: %v", err)
		}
		for _, n := range sub.Nodes[1:] {
			if n.NodeType != NodeTypeMission {
				t.Errorf("unexpected node type %s in filtered result", n.NodeType)
			}
		}
		if sub.Node(g.t1) != nil {
			t.Error("expected tag excluded by node type filter")
		}
	})

	t.Run("cap keeps strongest connections", func(t *testing.T) {
		sub, err := tr.Expand(g.root, ExpandOptions{Depth: 1, MaxNodes: 2})
		if err != nil {
			t.Fatalf("expand: %v", err)
		}
		// Root plus the two strongest neighbors.
		if len(sub.Nodes) != 3 {
			t.Fatalf("expected 3 nodes, got %d", len(sub.Nodes))
		}
		if sub.Node(g.m1) == nil || sub.Node(g.m2) == nil {
			t.Error("expected strongest neighbors kept under the cap")
		}
		if sub.Node(g.t1) != nil {
			t.Error("expected weakest neighbor truncated")
		}
	})

	t.Run("edges only between included nodes", func(t *testing.T) {
		sub, err := tr.Expand(g.root, ExpandOptions{Depth: 2, MaxNodes: 2})
		if err != nil {
			t.Fatalf("expand: %v", err)
		}
		for _, e := range sub.Edges {
			if sub.Node(e.SourceID) == nil || sub.Node(e.TargetID) == nil {
				t.Errorf("edge %s references excluded node", e.ID)
			}
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		opts := ExpandOptions{Depth: 2, MaxNodes: 3}
		first, err := tr.Expand(g.root, opts)
		if err != nil {
			t.Fatalf("first expand: %v", err)
		}
		second, err := tr.Expand(g.root, opts)
		if err != nil {
			t.Fatalf("second expand: %v", err)
		}
		if !reflect.DeepEqual(nodeIDs(first), nodeIDs(second)) {
			t.Errorf("node order differs between runs: %v vs %v", nodeIDs(first), nodeIDs(second))
		}
	})
}

func TestTraverser_Expand_Cycle(t *testing.T) {
	db := newTestDB(t)
	ns := NewNodeStore(db)
	es := NewEdgeStore(db)
	tr := NewTraverser(db)

	// a -> b -> c -> a
	ids := make([]string, 3)
	for i := range ids {
		node, err := ns.UpsertNode(NodeTypeUser,
			EntityRef{ID: fmt.Sprintf("cycle-%d", i), Type: "user"},
			NodeMetadata{Name: fmt.Sprintf("n%d", i)}, 0.5)
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		ids[i] = node.ID
	}
	for i := range ids {
		next := ids[(i+1)%len(ids)]
		if _, err := es.UpsertEdge(ids[i], next, EdgeTypeFollow, 0.5, true, EdgeMetadata{}); err != nil {
			t.Fatalf("seed edge: %v", err)
		}
	}

	sub, err := tr.Expand(ids[0], ExpandOptions{Depth: 3, MaxNodes: 10})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(sub.Nodes) != 3 {
		t.Errorf("expected each node once, got %d nodes", len(sub.Nodes))
	}
	if len(sub.Edges) != 3 {
		t.Errorf("expected each edge once, got %d edges", len(sub.Edges))
	}
}

func nodeIDs(sub *Subgraph) []string {
	ids := make([]string, len(sub.Nodes))
	for i, n := range sub.Nodes {
		ids[i] = n.ID
	}
	return ids
}
