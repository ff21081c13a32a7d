package graph

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrNodeNotFound     = errors.New("node not found")
	ErrInvalidNodeType  = errors.New("invalid node type")
	ErrInvalidEntityRef = errors.New("entity reference must carry id and type")
	ErrMissingName      = errors.New("node metadata requires a name")
	ErrInvalidWeight    = errors.New("node weight must be in [0,1]")
)

// DefaultNodeWeight is the importance multiplier applied when a
// producer does not state one.
const DefaultNodeWeight = 0.5

// NodeStore provides upsert and lookup operations for graph nodes.
// Nodes are keyed by their external entity reference: the first upsert
// for a reference creates the node, later upserts merge metadata
// last-write-wins per field and overwrite the weight.
//
// Thread safety: an upsert is a single INSERT .. ON CONFLICT statement
// against the UNIQUE (entity_id, entity_type) index, so concurrent
// producers cannot create duplicate nodes or fail each other, only
// merge into the same row last-write-wins.
type NodeStore struct {
	db *DB
}

// NewNodeStore creates a NodeStore backed by the given database.
func NewNodeStore(db *DB) *NodeStore {
	return &NodeStore{db: db}
}

// UpsertNode creates or merges the node for the given entity reference.
func (ns *NodeStore) UpsertNode(nodeType NodeType, entity EntityRef, metadata NodeMetadata, weight float64) (*Node, error) {
	if !nodeType.IsValid() {
		return nil, ErrInvalidNodeType
	}
	if entity.ID == "" || entity.Type == "" {
		return nil, ErrInvalidEntityRef
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight < 0 || weight > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidWeight, weight)
	}

	// One atomic statement, never a read-then-write transaction:
	// concurrent upserts for the same key must merge, not surface a
	// busy-snapshot error. Merge semantics are expressed in SQL:
	// COALESCE keeps the stored value when the incoming field is
	// omitted (bound as NULL), json_patch merges attribute bags
	// key-wise.
	now := formatTime(time.Now())
	_, err := ns.db.db.Exec(`
		INSERT INTO nodes (id, node_type, entity_id, entity_type, name, description, image_url, attributes, weight, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, entity_type) DO UPDATE SET
			node_type   = excluded.node_type,
			name        = COALESCE(excluded.name, nodes.name),
			description = COALESCE(excluded.description, nodes.description),
			image_url   = COALESCE(excluded.image_url, nodes.image_url),
			attributes  = json_patch(COALESCE(nodes.attributes, '{}'), COALESCE(excluded.attributes, '{}')),
			weight      = excluded.weight,
			updated_at  = excluded.updated_at
	`, uuid.NewString(), nodeType, entity.ID, entity.Type,
		nullString(metadata.Name), nullString(metadata.Description), nullString(metadata.ImageURL),
		attributesJSON(metadata.Attributes), weight, now, now)
	if err != nil {
		// The NOT NULL constraint on name only fires on the insert
		// arm: a conflicting update keeps the stored name instead.
		if constraintViolation(err, sqlite3.ErrConstraintNotNull) {
			return nil, ErrMissingName
		}
		return nil, fmt.Errorf("upsert node %s/%s: %w", entity.Type, entity.ID, err)
	}

	return ns.GetNode(entity)
}

func attributesJSON(attrs map[string]any) any {
	if len(attrs) == 0 {
		return nil
	}
	encoded, _ := json.Marshal(attrs)
	return string(encoded)
}

// GetNode looks up a node by its external entity reference.
func (ns *NodeStore) GetNode(entity EntityRef) (*Node, error) {
	if entity.ID == "" || entity.Type == "" {
		return nil, ErrInvalidEntityRef
	}
	row := ns.db.db.QueryRow(nodeSelect+" WHERE entity_id = ? AND entity_type = ?", entity.ID, entity.Type)
	return scanNode(row)
}

// GetNodeByID looks up a node by its internal graph ID.
func (ns *NodeStore) GetNodeByID(id string) (*Node, error) {
	row := ns.db.db.QueryRow(nodeSelect+" WHERE id = ?", id)
	return scanNode(row)
}

// GetNodesByType returns nodes of the given type ordered by creation
// time. A limit of 0 means no limit.
func (ns *NodeStore) GetNodesByType(nodeType NodeType, limit int) ([]*Node, error) {
	query := nodeSelect + " WHERE node_type = ? ORDER BY created_at, id"
	args := []any{nodeType}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := ns.db.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes by type %s: %w", nodeType, err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// ListNodeIDs returns the IDs of all nodes of the given type in
// creation order. Used by computation jobs to enumerate targets
// without loading whole rows.
func (ns *NodeStore) ListNodeIDs(nodeType NodeType) ([]string, error) {
	rows, err := ns.db.db.Query("SELECT id FROM nodes WHERE node_type = ? ORDER BY created_at, id", nodeType)
	if err != nil {
		return nil, fmt.Errorf("list node ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan node id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetNodesBatch loads multiple nodes by ID in a single query.
// Missing nodes are silently omitted from the result map.
func (ns *NodeStore) GetNodesBatch(ids []string) (map[string]*Node, error) {
	if len(ids) == 0 {
		return make(map[string]*Node), nil
	}

	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}

	rows, err := ns.db.db.Query(nodeSelect+" WHERE id IN ("+string(placeholders)+")", args...)
	if err != nil {
		return nil, fmt.Errorf("batch query nodes: %w", err)
	}
	defer rows.Close()

	nodes, err := scanNodes(rows)
	if err != nil {
		return nil, err
	}

	result := make(map[string]*Node, len(nodes))
	for _, node := range nodes {
		result[node.ID] = node
	}
	return result, nil
}

// DeleteNode removes a node and, via foreign keys, its edges and scores.
func (ns *NodeStore) DeleteNode(id string) error {
	result, err := ns.db.db.Exec("DELETE FROM nodes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNodeNotFound
	}
	return nil
}

const nodeSelect = `
	SELECT id, node_type, entity_id, entity_type, name, description, image_url, attributes, weight, created_at, updated_at
	FROM nodes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row *sql.Row) (*Node, error) {
	node, err := scanNodeFields(row)
	if err == sql.ErrNoRows {
		return nil, ErrNodeNotFound
	}
	return node, err
}

func scanNodeFields(row rowScanner) (*Node, error) {
	var node Node
	var description, imageURL, attrsJSON sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&node.ID, &node.NodeType, &node.Entity.ID, &node.Entity.Type,
		&node.Metadata.Name, &description, &imageURL, &attrsJSON,
		&node.Weight, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	node.Metadata.Description = description.String
	node.Metadata.ImageURL = imageURL.String
	if attrsJSON.Valid && attrsJSON.String != "" && attrsJSON.String != "null" {
		if err := json.Unmarshal([]byte(attrsJSON.String), &node.Metadata.Attributes); err != nil {
			node.Metadata.Attributes = nil
		}
	}
	node.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	node.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return &node, nil
}

func scanNodes(rows *sql.Rows) ([]*Node, error) {
	var nodes []*Node
	for rows.Next() {
		node, err := scanNodeFields(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node row: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
