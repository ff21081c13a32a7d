package graph

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

// TestEdgeStore_ConcurrentUpsert mirrors the node test for the
// (source, target, type) key: concurrent writers merge, never fail.
func TestEdgeStore_ConcurrentUpsert(t *testing.T) {
	db := newTestDB(t)
	ns := NewNodeStore(db)
	es := NewEdgeStore(db)
	ids := seedNodes(t, ns, 2)

	const writers = 8
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := es.UpsertEdge(ids[0], ids[1], EdgeTypeFollow, float64(i)/10, true,
				EdgeMetadata{Attributes: map[string]any{fmt.Sprintf("k%d", i): i}})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent upsert failed instead of merging: %v", err)
		}
	}

	edges, err := es.GetEdgesFrom(ids[0], EdgeTypeFollow)
	if err != nil {
		t.Fatalf("list edges: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected a single merged edge, got %d", len(edges))
	}
	if got := len(edges[0].Metadata.Attributes); got != writers {
		t.Errorf("expected %d merged attribute keys, got %d", writers, got)
	}
}

// seedNodes creates n user nodes and returns their IDs in creation order.
func seedNodes(t *testing.T, ns *NodeStore, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		node, err := ns.UpsertNode(NodeTypeUser,
			EntityRef{ID: string(rune('a' + i)), Type: "user"},
			NodeMetadata{Name: string(rune('a' + i))}, 0.5)
		if err != nil {
			t.Fatalf("seed node %d: %v", i, err)
		}
		ids[i] = node.ID
	}
	return ids
}

func TestEdgeStore_UpsertEdge(t *testing.T) {
	db := newTestDB(t)
	ns := NewNodeStore(db)
	es := NewEdgeStore(db)
	ids := seedNodes(t, ns, 2)

	t.Run("creates edge", func(t *testing.T) {
		occurred := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		edge, err := es.UpsertEdge(ids[0], ids[1], EdgeTypeParticipation, 0.8, true,
			EdgeMetadata{Description: "joined", OccurredAt: occurred})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if edge.Strength != 0.8 {
			t.Errorf("expected strength 0.8, got %v", edge.Strength)
		}
		if !edge.Directed {
			t.Error("expected directed edge")
		}
		if !edge.Metadata.OccurredAt.Equal(occurred) {
			t.Errorf("expected occurred_at %v, got %v", occurred, edge.Metadata.OccurredAt)
		}
	})

	t.Run("same triple updates in place", func(t *testing.T) {
		first, err := es.UpsertEdge(ids[0], ids[1], EdgeTypeFollow, 0.3, true, EdgeMetadata{})
		if err != nil {
			t.Fatalf("first upsert: %v", err)
		}
		second, err := es.UpsertEdge(ids[0], ids[1], EdgeTypeFollow, 0.6, true, EdgeMetadata{})
		if err != nil {
			t.Fatalf("second upsert: %v", err)
		}
		if second.ID != first.ID {
			t.Errorf("expected stable edge ID, got %s then %s", first.ID, second.ID)
		}
		if second.Strength != 0.6 {
			t.Errorf("expected updated strength 0.6, got %v", second.Strength)
		}
	})

	t.Run("unknown endpoint", func(t *testing.T) {
		_, err := es.UpsertEdge(ids[0], "missing", EdgeTypeLike, 0.5, true, EdgeMetadata{})
		if !errors.Is(err, ErrUnknownNode) {
			t.Errorf("expected ErrUnknownNode, got %v", err)
		}
	})

	t.Run("invalid edge type", func(t *testing.T) {
		_, err := es.UpsertEdge(ids[0], ids[1], EdgeType("hug"), 0.5, true, EdgeMetadata{})
		if !errors.Is(err, ErrInvalidEdgeType) {
			t.Errorf("expected ErrInvalidEdgeType, got %v", err)
		}
	})

	t.Run("strength out of range", func(t *testing.T) {
		for _, strength := range []float64{-0.1, 1.1, math.NaN()} {
			_, err := es.UpsertEdge(ids[0], ids[1], EdgeTypeLike, strength, true, EdgeMetadata{})
			if !errors.Is(err, ErrInvalidStrength) {
				t.Errorf("strength %v: expected ErrInvalidStrength, got %v", strength, err)
			}
		}
	})

	t.Run("self loop rejected for most types", func(t *testing.T) {
		_, err := es.UpsertEdge(ids[0], ids[0], EdgeTypeFollow, 0.5, true, EdgeMetadata{})
		if !errors.Is(err, ErrSelfLoop) {
			t.Errorf("expected ErrSelfLoop, got %v", err)
		}
	})

	t.Run("self loop allowed for association", func(t *testing.T) {
		_, err := es.UpsertEdge(ids[0], ids[0], EdgeTypeAssociation, 0.5, false, EdgeMetadata{})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestEdgeStore_GetEdgesFrom(t *testing.T) {
	db := newTestDB(t)
	ns := NewNodeStore(db)
	es := NewEdgeStore(db)
	ids := seedNodes(t, ns, 3)

	// a -> b directed, a -- c undirected, b -> a directed.
	if _, err := es.UpsertEdge(ids[0], ids[1], EdgeTypeFollow, 0.9, true, EdgeMetadata{}); err != nil {
		t.Fatalf("edge a->b: %v", err)
	}
	if _, err := es.UpsertEdge(ids[0], ids[2], EdgeTypeAssociation, 0.4, false, EdgeMetadata{}); err != nil {
		t.Fatalf("edge a--c: %v", err)
	}
	if _, err := es.UpsertEdge(ids[1], ids[0], EdgeTypeVote, 0.7, true, EdgeMetadata{}); err != nil {
		t.Fatalf("edge b->a: %v", err)
	}

	t.Run("outgoing plus undirected", func(t *testing.T) {
		edges, err := es.GetEdgesFrom(ids[0])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(edges) != 2 {
			t.Fatalf("expected 2 edges from a, got %d", len(edges))
		}
		// Strongest first.
		if edges[0].Strength < edges[1].Strength {
			t.Errorf("expected strength-descending order, got %v then %v",
				edges[0].Strength, edges[1].Strength)
		}
	})

	t.Run("undirected reachable from either end", func(t *testing.T) {
		edges, err := es.GetEdgesFrom(ids[2])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(edges) != 1 || edges[0].EdgeType != EdgeTypeAssociation {
			t.Errorf("expected the undirected edge from c, got %v", edges)
		}
	})

	t.Run("incoming plus undirected", func(t *testing.T) {
		edges, err := es.GetEdgesTo(ids[0])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(edges) != 2 {
			t.Errorf("expected 2 edges to a, got %d", len(edges))
		}
	})

	t.Run("type filter", func(t *testing.T) {
		edges, err := es.GetEdgesFrom(ids[0], EdgeTypeFollow)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(edges) != 1 || edges[0].EdgeType != EdgeTypeFollow {
			t.Errorf("expected only follow edges, got %v", edges)
		}
	})
}

func TestEdgeStore_DeleteEdge(t *testing.T) {
	db := newTestDB(t)
	ns := NewNodeStore(db)
	es := NewEdgeStore(db)
	ids := seedNodes(t, ns, 2)

	edge, err := es.UpsertEdge(ids[0], ids[1], EdgeTypeLike, 0.5, true, EdgeMetadata{})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := es.DeleteEdge(edge.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := es.GetEdge(edge.ID); !errors.Is(err, ErrEdgeNotFound) {
		t.Errorf("expected ErrEdgeNotFound, got %v", err)
	}
	if err := es.DeleteEdge(edge.ID); !errors.Is(err, ErrEdgeNotFound) {
		t.Errorf("expected ErrEdgeNotFound on second delete, got %v", err)
	}
}

func TestEdge_OtherEnd(t *testing.T) {
	edge := &Edge{SourceID: "a", TargetID: "b"}
	if got := edge.OtherEnd("a"); got != "b" {
		t.Errorf("expected b, got %s", got)
	}
	if got := edge.OtherEnd("b"); got != "a" {
		t.Errorf("expected a, got %s", got)
	}
}
