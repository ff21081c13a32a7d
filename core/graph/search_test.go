package graph

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestIndex(t *testing.T, db *DB) (*NodeIndex, *NodeStore) {
	t.Helper()
	ns := NewNodeStore(db)

	index, err := OpenNodeIndex(filepath.Join(t.TempDir(), "nodes.bleve"), ns, 16)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { index.Close() })
	return index, ns
}

func indexUser(t *testing.T, ns *NodeStore, index *NodeIndex, entity, name, description string) *Node {
	t.Helper()
	return indexNode(t, ns, index, NodeTypeUser, entity, name, description)
}

func indexNode(t *testing.T, ns *NodeStore, index *NodeIndex, nt NodeType, entity, name, description string) *Node {
	t.Helper()
	node, err := ns.UpsertNode(nt, EntityRef{ID: entity, Type: string(nt)},
		NodeMetadata{Name: name, Description: description}, 0.5)
	if err != nil {
		t.Fatalf("upsert %s: %v", entity, err)
	}
	if err := index.IndexNode(node); err != nil {
		t.Fatalf("index %s: %v", entity, err)
	}
	return node
}

func TestNodeIndex_Search(t *testing.T) {
	db := newTestDB(t)
	index, ns := newTestIndex(t, db)

	cleanup := indexNode(t, ns, index, NodeTypeMission, "m-1", "Shore cleanup", "picking up plastic")
	indexNode(t, ns, index, NodeTypeMission, "m-2", "Trail repair", "fixing the ridge path")
	ada := indexUser(t, ns, index, "u-1", "Ada", "cleanup organizer")

	t.Run("matches name", func(t *testing.T) {
		matches, err := index.Search("shore", "", 10)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(matches) != 1 || matches[0].Node.ID != cleanup.ID {
			t.Fatalf("expected the shore mission, got %v", matches)
		}
	})

	t.Run("matches description", func(t *testing.T) {
		matches, err := index.Search("plastic", "", 10)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(matches) != 1 || matches[0].Node.ID != cleanup.ID {
			t.Fatalf("expected description match, got %v", matches)
		}
	})

	t.Run("name outranks description", func(t *testing.T) {
		matches, err := index.Search("cleanup", "", 10)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(matches) != 2 {
			t.Fatalf("expected 2 matches, got %d", len(matches))
		}
		if matches[0].Node.ID != cleanup.ID {
			t.Errorf("expected name match first, got %s", matches[0].Node.Metadata.Name)
		}
	})

	t.Run("type filter", func(t *testing.T) {
		matches, err := index.Search("cleanup", NodeTypeUser, 10)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(matches) != 1 || matches[0].Node.ID != ada.ID {
			t.Fatalf("expected only the user match, got %v", matches)
		}
	})

	t.Run("no matches", func(t *testing.T) {
		matches, err := index.Search("volcano", "", 10)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(matches) != 0 {
			t.Errorf("expected no matches, got %d", len(matches))
		}
	})
}

func TestNodeIndex_RemoveNode(t *testing.T) {
	db := newTestDB(t)
	index, ns := newTestIndex(t, db)

	node := indexUser(t, ns, index, "u-1", "Ada", "")
	if err := index.RemoveNode(node.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	matches, err := index.Search("ada", "", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected removed node absent, got %d matches", len(matches))
	}
}

func TestNodeIndex_Closed(t *testing.T) {
	db := newTestDB(t)
	index, ns := newTestIndex(t, db)
	node := indexUser(t, ns, index, "u-1", "Ada", "")

	if err := index.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := index.IndexNode(node); !errors.Is(err, ErrIndexClosed) {
		t.Errorf("expected ErrIndexClosed on IndexNode, got %v", err)
	}
	if _, err := index.Search("ada", "", 10); !errors.Is(err, ErrIndexClosed) {
		t.Errorf("expected ErrIndexClosed on Search, got %v", err)
	}
	// Closing twice is fine.
	if err := index.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
